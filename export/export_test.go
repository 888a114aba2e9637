package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aliyun/alibabacloud-oss-go-sdk-v2/oss"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
)

type memSource map[int64][]byte

func (m memSource) EnsureLoaded(_ context.Context, id int64) ([]byte, bool) {
	data, ok := m[id]
	return data, ok
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func fixture(t *testing.T) (memSource, []gallery.Entry) {
	t.Helper()
	src := memSource{
		1: pngBytes(t, 40, 30),
		2: pngBytes(t, 20, 60),
	}
	entries := []gallery.Entry{
		{ID: 2, Filename: "screenshot_2.png"},
		{ID: 1, Filename: "screenshot_1.png"},
		{ID: 3, Filename: "screenshot_3.png"},
	}
	return src, entries
}

func TestToFolder(t *testing.T) {
	src, entries := fixture(t)
	dir := filepath.Join(t.TempDir(), "out")

	report, err := New(src, nil).ToFolder(context.Background(), dir, entries)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, []string{filepath.Join(dir, "screenshot_2.png"), filepath.Join(dir, "screenshot_1.png")}, report.Written)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, int64(3), report.Failed[0].ID)
	assert.Equal(t, "1 of 3 screenshots could not be exported", report.Summary())
	assert.Error(t, report.Err())

	data, err := os.ReadFile(filepath.Join(dir, "screenshot_1.png"))
	require.NoError(t, err)
	assert.Equal(t, src[1], data)
}

func TestWriteArchive_KeepsDisplayOrder(t *testing.T) {
	src, entries := fixture(t)
	var buf bytes.Buffer

	report, err := New(src, nil).WriteArchive(context.Background(), &buf, entries)
	require.NoError(t, err)
	assert.Len(t, report.Failed, 1)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"0001_screenshot_2.png", "0002_screenshot_1.png"}, names)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, src[1], data)
}

func TestWriteArchive_NothingToExport(t *testing.T) {
	_, err := New(memSource{}, nil).WriteArchive(context.Background(), io.Discard, []gallery.Entry{{ID: 9, Filename: "x.png"}})
	assert.ErrorIs(t, err, ErrNothingToExport)
}

func TestWritePDF_OnePagePerImage(t *testing.T) {
	src, entries := fixture(t)
	out := filepath.Join(t.TempDir(), "nested", "shots.pdf")
	require.NoError(t, os.MkdirAll(filepath.Dir(out), 0755))
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0644))

	report, err := New(src, nil).WritePDF(context.Background(), out, entries)
	require.NoError(t, err)
	assert.Equal(t, []string{"screenshot_2.png", "screenshot_1.png"}, report.Written)

	pages, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 2, pages, "an existing file is replaced, not appended to")
}

func TestWritePDF_NormalizesOtherFormats(t *testing.T) {
	img := image.NewPaletted(image.Rect(0, 0, 16, 16), color.Palette{color.White, color.Black})
	var buf bytes.Buffer
	require.NoError(t, gif.Encode(&buf, img, nil))
	src := memSource{7: buf.Bytes()}
	out := filepath.Join(t.TempDir(), "gif.pdf")

	report, err := New(src, nil).WritePDF(context.Background(), out, []gallery.Entry{{ID: 7, Filename: "screenshot_7.gif"}})
	require.NoError(t, err)
	assert.Empty(t, report.Failed)

	pages, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}

type fakePutter struct {
	mu   sync.Mutex
	keys []string
	body map[string][]byte
	fail string
}

func (f *fakePutter) PutObject(_ context.Context, req *oss.PutObjectRequest, _ ...func(*oss.Options)) (*oss.PutObjectResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := *req.Key
	if key == f.fail {
		return nil, errors.New("AccessDenied")
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	if f.body == nil {
		f.body = make(map[string][]byte)
	}
	f.keys = append(f.keys, key)
	f.body[key] = data
	return &oss.PutObjectResult{}, nil
}

func TestOSSSink_Upload(t *testing.T) {
	src, entries := fixture(t)
	putter := &fakePutter{fail: "shots/screenshot_1.png"}
	sink := &OSSSink{src: src, client: putter, bucket: "b", prefix: "shots"}

	report, err := sink.Upload(context.Background(), entries)
	require.NoError(t, err)

	assert.Equal(t, []string{"shots/screenshot_2.png"}, report.Written)
	assert.Equal(t, src[2], putter.body["shots/screenshot_2.png"])
	require.Len(t, report.Failed, 2)
	assert.Equal(t, int64(1), report.Failed[0].ID)
	assert.Contains(t, report.Failed[0].Err, "AccessDenied")
	assert.Equal(t, int64(3), report.Failed[1].ID)
}

func TestOSSSink_Disabled(t *testing.T) {
	sink := NewOSSSink(memSource{}, OSSConfig{Bucket: "b"})
	assert.False(t, sink.Enabled())

	_, err := sink.Upload(context.Background(), nil)
	assert.ErrorIs(t, err, ErrOSSDisabled)
}

func TestToFolder_ExtensionFollowsContent(t *testing.T) {
	// A cropped WebP entry keeps its storage name but holds PNG bytes
	src := memSource{5: pngBytes(t, 8, 8)}
	dir := t.TempDir()

	report, err := New(src, nil).ToFolder(context.Background(), dir, []gallery.Entry{{ID: 5, Filename: "screenshot_5.webp"}})
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(dir, "screenshot_5.png")}, report.Written)
	assert.NoFileExists(t, filepath.Join(dir, "screenshot_5.webp"))
}

func TestFileName(t *testing.T) {
	data := pngBytes(t, 2, 2)
	assert.Equal(t, "a.png", fileName("dir/a.png", data))
	assert.Equal(t, "a.png", fileName("a.heic", data))
	assert.Equal(t, "b.txt", fileName("b.txt", []byte("not an image")))
}
