package gallery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
)

type memBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	failPut error
	puts    int

	// putGate, when set, holds the next PutBlob until closed. putEntered is
	// closed once that call is waiting; failNext fails it.
	putGate    chan struct{}
	putEntered chan struct{}
	failNext   error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (m *memBlobs) GetBlob(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memBlobs) PutBlob(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	gate, entered := m.putGate, m.putEntered
	m.putGate, m.putEntered = nil, nil
	m.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext; err != nil {
		m.failNext = nil
		return err
	}
	if m.failPut != nil {
		return m.failPut
	}
	m.puts++
	m.data[key] = append([]byte(nil), value...)
	return nil
}

type memFiles struct {
	mu         sync.Mutex
	files      map[string][]byte
	failWrite  map[string]bool
	failRemove map[string]bool
	reads      int
	// readGate, when set, blocks every ReadFile until closed
	readGate chan struct{}
}

func newMemFiles() *memFiles {
	return &memFiles{
		files:      make(map[string][]byte),
		failWrite:  make(map[string]bool),
		failRemove: make(map[string]bool),
	}
}

var errDisk = errors.New("disk error")

func (m *memFiles) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite[path] {
		return errDisk
	}
	m.files[path] = append([]byte(nil), data...)
	return nil
}

func (m *memFiles) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	gate := m.readGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, fs.ErrNotExist)
	}
	return data, nil
}

func (m *memFiles) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failRemove[path] {
		return errDisk
	}
	if _, ok := m.files[path]; !ok {
		return fmt.Errorf("remove %s: %w", path, fs.ErrNotExist)
	}
	delete(m.files, path)
	return nil
}

func (m *memFiles) Exists(path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}

func (m *memFiles) has(path string) bool {
	ok, _ := m.Exists(path)
	return ok
}
