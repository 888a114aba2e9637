package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
)

// WritePDF writes one page per entry to outPath, each page sized to its
// image. An existing file at outPath is replaced, never appended to.
func (x *Exporter) WritePDF(ctx context.Context, outPath string, entries []gallery.Entry) (Report, error) {
	dir, err := os.MkdirTemp("", "screenshot-pdf-*")
	if err != nil {
		return Report{Attempted: len(entries)}, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(dir)

	report, paths := x.stage(ctx, dir, entries, true)
	if len(paths) == 0 {
		return report, ErrNothingToExport
	}

	// Default import places each image on a page of its own dimensions
	imp := pdfcpu.DefaultImportConfig()
	conf := model.NewDefaultConfiguration()

	tmp := filepath.Join(dir, "out.pdf")
	if err := api.ImportImagesFile(paths, tmp, imp, conf); err != nil {
		return report, fmt.Errorf("assemble pdf: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		return report, fmt.Errorf("create output dir: %w", err)
	}
	if err := moveFile(tmp, outPath); err != nil {
		return report, err
	}

	log.Info().Str("path", outPath).Int("pages", len(paths)).Int("failed", len(report.Failed)).Msg("wrote screenshot pdf")
	return report, nil
}

// moveFile renames src onto dst, copying when they are on different devices
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read pdf: %w", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
