package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCodec_Dimensions(t *testing.T) {
	size, err := NewCodec().Dimensions(testPNG(t, 40, 30))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(40, 30), size)
}

func TestCodec_DimensionsUnsupported(t *testing.T) {
	_, err := NewCodec().Dimensions([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestCodec_CropKeepsPixels(t *testing.T) {
	c := NewCodec()
	out, err := c.Crop(testPNG(t, 40, 30), image.Rect(10, 5, 30, 25))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(20, 20), img.Bounds().Size())

	r, g, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(10), r>>8)
	assert.Equal(t, uint32(5), g>>8)
}

func TestCodec_CropOutsideBounds(t *testing.T) {
	_, err := NewCodec().Crop(testPNG(t, 10, 10), image.Rect(20, 20, 30, 30))
	assert.Error(t, err)
}

func TestCodec_CropJPEGStaysJPEG(t *testing.T) {
	c := NewCodec()
	jpg, err := c.Convert(testPNG(t, 32, 32), FormatJPEG)
	require.NoError(t, err)

	out, err := c.Crop(jpg, image.Rect(0, 0, 16, 8))
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Width)
	assert.Equal(t, 8, cfg.Height)
}

func TestCodec_Thumbnail(t *testing.T) {
	out, err := NewCodec().Thumbnail(testPNG(t, 200, 100), 50)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Width)
	assert.Equal(t, 25, cfg.Height)
}

func TestIsHEIC(t *testing.T) {
	assert.True(t, isHEIC([]byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00")))
	assert.False(t, isHEIC(testPNG(t, 1, 1)))
}

func TestCodec_CropGIFStaysGIF(t *testing.T) {
	c := NewCodec()
	src, err := c.Convert(testPNG(t, 20, 20), FormatGIF)
	require.NoError(t, err)

	out, err := c.Crop(src, image.Rect(2, 2, 12, 7))
	require.NoError(t, err)

	assert.Equal(t, ".gif", DetectExtension(out))
	size, err := c.Dimensions(out)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(10, 5), size)
}

func TestDetectExtension(t *testing.T) {
	jpg, err := NewCodec().Convert(testPNG(t, 4, 4), FormatJPEG)
	require.NoError(t, err)

	assert.Equal(t, ".png", DetectExtension(testPNG(t, 4, 4)))
	assert.Equal(t, ".jpg", DetectExtension(jpg))
	assert.Equal(t, ".heic", DetectExtension([]byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00")))
	assert.Empty(t, DetectExtension([]byte("plain text")))
}
