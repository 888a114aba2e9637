package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/mholt/archives"
	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
)

// WriteArchive streams a zip of entries to w. Names inside the archive carry
// a numeric prefix so extraction keeps the display order.
func (x *Exporter) WriteArchive(ctx context.Context, w io.Writer, entries []gallery.Entry) (Report, error) {
	dir, err := os.MkdirTemp("", "screenshot-archive-*")
	if err != nil {
		return Report{Attempted: len(entries)}, fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(dir)

	report, paths := x.stage(ctx, dir, entries, false)
	if len(paths) == 0 {
		return report, ErrNothingToExport
	}

	names := make(map[string]string, len(paths))
	for _, p := range paths {
		names[p] = filepath.Base(p)
	}
	files, err := archives.FilesFromDisk(ctx, nil, names)
	if err != nil {
		return report, fmt.Errorf("collect files: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].NameInArchive < files[j].NameInArchive })

	if err := (archives.Zip{}).Archive(ctx, w, files); err != nil {
		return report, fmt.Errorf("write zip: %w", err)
	}

	log.Info().Int("files", len(files)).Int("failed", len(report.Failed)).Msg("wrote screenshot archive")
	return report, nil
}
