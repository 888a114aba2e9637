package importer

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDebounceDelay lets a writer finish before the file is imported
const DefaultDebounceDelay = 300 * time.Millisecond

// debouncer fires onReady once per path after delay with no new events
type debouncer struct {
	mu       sync.Mutex
	pending  map[string]*time.Timer
	delay    time.Duration
	onReady  func(path string)
	stopping atomic.Bool
}

func newDebouncer(delay time.Duration, onReady func(path string)) *debouncer {
	return &debouncer{
		pending: make(map[string]*time.Timer),
		delay:   delay,
		onReady: onReady,
	}
}

// Queue (re)starts the timer for path. It returns false once stopped.
func (d *debouncer) Queue(path string) bool {
	if d.stopping.Load() {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopping.Load() {
		return false
	}

	if t, ok := d.pending[path]; ok && t.Reset(d.delay) {
		return true
	}
	d.pending[path] = time.AfterFunc(d.delay, func() { d.fire(path) })
	return true
}

func (d *debouncer) fire(path string) {
	d.mu.Lock()
	_, ok := d.pending[path]
	delete(d.pending, path)
	d.mu.Unlock()

	if ok && !d.stopping.Load() {
		d.onReady(path)
	}
}

// Stop drops every pending path
func (d *debouncer) Stop() {
	d.stopping.Store(true)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range d.pending {
		t.Stop()
	}
	clear(d.pending)
}

func (d *debouncer) pendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
