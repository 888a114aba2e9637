// Package export writes gallery entries out of the store: to a folder, a zip
// archive, a PDF with one page per screenshot, or an OSS bucket.
package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
	"github.com/xiaoyuanzhu-com/screenshot-taker/raster"
)

// ErrNothingToExport is returned when no entry had readable content
var ErrNothingToExport = errors.New("nothing to export")

// Source hands out entry content, materializing it when needed
type Source interface {
	EnsureLoaded(ctx context.Context, id int64) ([]byte, bool)
}

// Report aggregates a multi-entry export
type Report struct {
	Attempted int               `json:"attempted"`
	Written   []string          `json:"written"`
	Failed    []gallery.Failure `json:"failed,omitempty"`
}

func (r *Report) fail(id int64, err error) {
	r.Failed = append(r.Failed, gallery.Failure{ID: id, Err: err.Error()})
}

// Err joins the per-entry failures, nil when there were none
func (r Report) Err() error {
	return gallery.BatchReport{Attempted: r.Attempted, Failed: r.Failed}.Err()
}

// Summary returns a user-facing line, empty when nothing failed
func (r Report) Summary() string {
	if len(r.Failed) == 0 {
		return ""
	}
	return fmt.Sprintf("%d of %d screenshots could not be exported", len(r.Failed), r.Attempted)
}

// Exporter writes entries in the order they are given
type Exporter struct {
	src  Source
	conv raster.Pipeline
}

// New creates an Exporter. conv is used when a format must be normalized.
func New(src Source, conv raster.Pipeline) *Exporter {
	if conv == nil {
		conv = raster.NewCodec()
	}
	return &Exporter{src: src, conv: conv}
}

// ToFolder writes each entry under its filename in dir, with the extension
// following the bytes. Existing files with the same name are replaced.
func (x *Exporter) ToFolder(ctx context.Context, dir string, entries []gallery.Entry) (Report, error) {
	report := Report{Attempted: len(entries), Written: []string{}}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return report, fmt.Errorf("create export dir: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			report.fail(e.ID, err)
			continue
		}
		data, ok := x.src.EnsureLoaded(ctx, e.ID)
		if !ok {
			report.fail(e.ID, gallery.ErrUnavailable)
			continue
		}
		path := filepath.Join(dir, fileName(e.Filename, data))
		if err := os.WriteFile(path, data, 0644); err != nil {
			report.fail(e.ID, err)
			continue
		}
		report.Written = append(report.Written, path)
	}

	log.Info().
		Str("dir", dir).
		Int("written", len(report.Written)).
		Int("failed", len(report.Failed)).
		Msg("exported screenshots to folder")
	return report, nil
}

// stage materializes entries into dir as NNNN_<filename> so the lexical
// order of the staged names is the display order. When normalize is set,
// formats other than PNG and JPEG are converted to PNG.
func (x *Exporter) stage(ctx context.Context, dir string, entries []gallery.Entry, normalize bool) (Report, []string) {
	report := Report{Attempted: len(entries), Written: []string{}}
	var paths []string

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			report.fail(e.ID, err)
			continue
		}
		data, ok := x.src.EnsureLoaded(ctx, e.ID)
		if !ok {
			report.fail(e.ID, gallery.ErrUnavailable)
			continue
		}

		name := fileName(e.Filename, data)
		if normalize && !pdfNative(name) {
			converted, err := x.conv.Convert(data, raster.FormatPNG)
			if err != nil {
				report.fail(e.ID, err)
				continue
			}
			data = converted
			name = strings.TrimSuffix(name, filepath.Ext(name)) + raster.Extension(raster.FormatPNG)
		}

		path := filepath.Join(dir, fmt.Sprintf("%04d_%s", i+1, name))
		if err := os.WriteFile(path, data, 0644); err != nil {
			report.fail(e.ID, err)
			continue
		}
		paths = append(paths, path)
		report.Written = append(report.Written, e.Filename)
	}
	return report, paths
}

// fileName is the base of filename with its extension matched to data. A
// cropped WebP or HEIC entry holds PNG bytes under its original name.
func fileName(filename string, data []byte) string {
	name := filepath.Base(filename)
	ext := raster.DetectExtension(data)
	if ext == "" {
		return name
	}
	current := strings.ToLower(filepath.Ext(name))
	if current == ext || (current == ".jpeg" && ext == ".jpg") {
		return name
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

func pdfNative(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
