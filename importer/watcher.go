package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
)

var importable = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".gif":  true,
	".heic": true,
}

// Importable reports whether a file in the inbox should be imported.
// Hidden files, editor backups and partial downloads are skipped.
func Importable(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~") {
		return false
	}
	return importable[strings.ToLower(filepath.Ext(name))]
}

// Watcher imports files as they appear in the inbox directory
type Watcher struct {
	im        *Importer
	watcher   *fsnotify.Watcher
	debouncer *debouncer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher for im's inbox. delay <= 0 uses DefaultDebounceDelay.
func NewWatcher(im *Importer, delay time.Duration) *Watcher {
	if delay <= 0 {
		delay = DefaultDebounceDelay
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{im: im, ctx: ctx, cancel: cancel}
	w.debouncer = newDebouncer(delay, w.importPath)
	return w
}

// Start watches the inbox and queues files already waiting there
func (w *Watcher) Start() error {
	dir := w.im.cfg.Dir
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var err error
	w.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		w.watcher.Close()
		return err
	}

	w.wg.Add(1)
	go w.eventLoop()

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Msg("failed to scan inbox")
	}
	for _, e := range entries {
		if path := filepath.Join(dir, e.Name()); !e.IsDir() && Importable(path) {
			w.debouncer.Queue(path)
		}
	}

	log.Info().Str("dir", dir).Msg("inbox watcher started")
	return nil
}

// Stop cancels in-flight imports and stops watching
func (w *Watcher) Stop() {
	w.cancel()
	w.debouncer.Stop()
	if w.watcher != nil {
		w.watcher.Close()
	}
	w.wg.Wait()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 || !Importable(event.Name) {
				continue
			}
			w.debouncer.Queue(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("inbox watcher error")

		case <-w.ctx.Done():
			return
		}
	}
}

func (w *Watcher) importPath(path string) {
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		return
	}
	if _, err := w.im.ProcessFile(w.ctx, path); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("inbox import failed")
	}
}
