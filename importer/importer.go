// Package importer brings screenshots produced outside a capture session
// (hotkey listener, full-screen capture script) into the gallery.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xiaoyuanzhu-com/screenshot-taker/gallery"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
	"github.com/xiaoyuanzhu-com/screenshot-taker/raster"
)

// Source labels for imported files
const (
	LabelHotkey     = "Global Hotkey"
	LabelFullScreen = "Full Screen"
)

// fullScreenPrefix marks files written by the full-screen capture script
const fullScreenPrefix = "screenshot_"

// Appender stores imported content
type Appender interface {
	Append(ctx context.Context, in gallery.NewEntry) (gallery.Entry, error)
}

// Converter re-encodes image bytes
type Converter interface {
	Convert(data []byte, to raster.Format) ([]byte, error)
}

// Config holds importer configuration
type Config struct {
	// Dir is the inbox watched for new files
	Dir string
	// Convert re-encodes imports to this format; empty keeps the original bytes
	Convert raster.Format
}

// Importer moves files into the gallery
type Importer struct {
	cfg   Config
	store Appender
	conv  Converter
}

// New creates an importer. conv may be nil when cfg.Convert is empty.
func New(cfg Config, store Appender, conv Converter) *Importer {
	return &Importer{cfg: cfg, store: store, conv: conv}
}

// Label returns the source label for a produced file
func Label(path string) string {
	if strings.HasPrefix(filepath.Base(path), fullScreenPrefix) {
		return LabelFullScreen
	}
	return LabelHotkey
}

// CleanPath strips the CR/LF noise external scripts leave around reported paths
func CleanPath(path string) string {
	path = strings.NewReplacer("\r", "", "\n", "").Replace(path)
	return strings.TrimSpace(path)
}

// ProcessFile appends the file at path to the gallery and removes it.
// A failed conversion falls back to the original bytes.
func (im *Importer) ProcessFile(ctx context.Context, path string) (gallery.Entry, error) {
	path = CleanPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return gallery.Entry{}, fmt.Errorf("read import %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if target := im.cfg.Convert; target != "" && im.conv != nil && raster.Extension(target) != ext {
		converted, err := im.conv.Convert(data, target)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("could not convert import, keeping original")
		} else {
			data = converted
			ext = raster.Extension(target)
		}
	}

	entry, err := im.store.Append(ctx, gallery.NewEntry{
		SourceLabel: Label(path),
		Content:     data,
		Ext:         ext,
	})
	if err != nil {
		return gallery.Entry{}, err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove imported file")
	}

	log.Info().Int64("id", entry.ID).Str("source", entry.SourceLabel).Str("from", path).Msg("screenshot imported")
	return entry, nil
}
