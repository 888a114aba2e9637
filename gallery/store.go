package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xiaoyuanzhu-com/screenshot-taker/log"
)

// MetadataKey is the blob key holding the persisted collection
const MetadataKey = "screenshots"

// CapturedAtLayout formats Entry.CapturedAt in local time
const CapturedAtLayout = "2006-01-02 15:04:05"

// LoadMode controls how much work LoadAll does per entry
type LoadMode string

const (
	// LoadEager reads every entry's content during LoadAll
	LoadEager LoadMode = "eager"
	// LoadLazy only checks that content exists; bytes are read on first use
	LoadLazy LoadMode = "lazy"
)

// Entry is a screenshot's metadata. It is also the persisted record shape.
type Entry struct {
	ID          int64  `json:"id"`
	SourceLabel string `json:"sourceLabel"`
	Filename    string `json:"filename"`
	CapturedAt  string `json:"capturedAt"`
	StoragePath string `json:"storagePath"`
}

// NewEntry describes content to append
type NewEntry struct {
	SourceLabel string
	Content     []byte
	// Ext is used to build the filename, e.g. ".png"
	Ext string
}

// BlobStore persists the metadata collection as a single value
type BlobStore interface {
	GetBlob(ctx context.Context, key string) ([]byte, bool, error)
	PutBlob(ctx context.Context, key string, value []byte) error
}

// Config holds store configuration
type Config struct {
	Dir      string
	LoadMode LoadMode
	// Prefix of generated filenames, "screenshot" when empty
	Prefix string
}

// ChangeKind identifies what a Change describes
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeUpdated   ChangeKind = "updated"
	ChangeDeleted   ChangeKind = "deleted"
	ChangeReordered ChangeKind = "reordered"
	ChangeCleared   ChangeKind = "cleared"
	ChangeLoaded    ChangeKind = "loaded"
)

// Change is delivered to the observer after a successful mutation
type Change struct {
	Kind ChangeKind
	ID   int64
}

type item struct {
	entry   Entry
	content []byte
	loaded  bool
}

// Store is the ordered screenshot collection. Metadata reads never wait on
// content IO: the metadata lock is only held for in-memory updates, content
// work runs under a per-id lock.
type Store struct {
	cfg   Config
	blobs BlobStore
	files FileStore

	mu     sync.RWMutex
	order  []int64
	items  map[int64]*item
	lastID int64

	locks idLock
	// metaMu serializes metadata transactions: mutate memory, persist, and
	// roll back on failure. Readers only take mu.
	metaMu sync.Mutex

	observer func(Change)
	now      func() time.Time
}

// NewStore creates an empty store. Call LoadAll to restore persisted state.
func NewStore(cfg Config, blobs BlobStore, files FileStore) *Store {
	if cfg.Prefix == "" {
		cfg.Prefix = "screenshot"
	}
	if cfg.LoadMode == "" {
		cfg.LoadMode = LoadEager
	}
	if files == nil {
		files = DirFileStore{}
	}
	return &Store{
		cfg:   cfg,
		blobs: blobs,
		files: files,
		items: make(map[int64]*item),
		now:   time.Now,
	}
}

// OnChange registers the observer called after each successful mutation
func (s *Store) OnChange(fn func(Change)) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

func (s *Store) emit(c Change) {
	s.mu.RLock()
	fn := s.observer
	s.mu.RUnlock()
	if fn != nil {
		fn(c)
	}
}

// nextID returns a millisecond timestamp, bumped to stay strictly increasing
func (s *Store) nextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// Append stores content durably, then records it at the end of the sequence.
// On any failure nothing is left behind and a *PersistError is returned.
func (s *Store) Append(ctx context.Context, in NewEntry) (Entry, error) {
	id := s.nextID()

	ext := in.Ext
	if ext == "" {
		ext = ".png"
	}
	filename := fmt.Sprintf("%s_%d%s", s.cfg.Prefix, id, ext)
	entry := Entry{
		ID:          id,
		SourceLabel: in.SourceLabel,
		Filename:    filename,
		CapturedAt:  s.now().Format(CapturedAtLayout),
		StoragePath: filepath.Join(s.cfg.Dir, filename),
	}

	lock := s.locks.acquire(id)
	defer lock.Unlock()

	if err := s.files.WriteFile(entry.StoragePath, in.Content); err != nil {
		return Entry{}, &PersistError{Op: "content", ID: id, Err: err}
	}

	s.metaMu.Lock()
	s.mu.Lock()
	s.items[id] = &item{entry: entry, content: in.Content, loaded: true}
	s.order = append(s.order, id)
	s.mu.Unlock()

	if err := s.persist(ctx); err != nil {
		s.mu.Lock()
		delete(s.items, id)
		s.order = slices.DeleteFunc(s.order, func(v int64) bool { return v == id })
		s.mu.Unlock()
		s.metaMu.Unlock()

		if rmErr := s.files.Remove(entry.StoragePath); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", entry.StoragePath).Msg("failed to roll back screenshot content")
		}
		return Entry{}, &PersistError{Op: "metadata", ID: id, Err: err}
	}
	s.metaMu.Unlock()

	log.Info().
		Int64("id", id).
		Str("source", entry.SourceLabel).
		Str("path", entry.StoragePath).
		Msg("screenshot added")

	s.emit(Change{Kind: ChangeAdded, ID: id})
	return entry, nil
}

// AppendFile copies a produced file into the store and removes the original.
// Surrounding whitespace and CR/LF noise in path are ignored.
func (s *Store) AppendFile(ctx context.Context, path, sourceLabel string) (Entry, error) {
	path = strings.TrimSpace(path)

	data, err := s.files.ReadFile(path)
	if err != nil {
		return Entry{}, &IOError{Op: "read", Path: path, Err: err}
	}

	ext := strings.ToLower(filepath.Ext(path))
	entry, err := s.Append(ctx, NewEntry{SourceLabel: sourceLabel, Content: data, Ext: ext})
	if err != nil {
		return Entry{}, err
	}

	if err := s.files.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Str("path", path).Msg("failed to remove captured source file")
	}
	return entry, nil
}

// EnsureLoaded returns the entry's content, reading it on first use.
// Unresolvable content yields ok=false and is logged, never returned as an error.
func (s *Store) EnsureLoaded(ctx context.Context, id int64) (content []byte, ok bool) {
	lock := s.locks.acquire(id)
	defer lock.Unlock()

	return s.loadLocked(id)
}

// loadLocked requires the per-id lock
func (s *Store) loadLocked(id int64) ([]byte, bool) {
	s.mu.RLock()
	it, exists := s.items[id]
	var path string
	if exists {
		if it.loaded {
			content := it.content
			s.mu.RUnlock()
			return content, true
		}
		path = it.entry.StoragePath
	}
	s.mu.RUnlock()

	if !exists {
		return nil, false
	}

	data, err := s.files.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Int64("id", id).Str("path", path).Msg("screenshot content not available")
		return nil, false
	}

	s.mu.Lock()
	if it, still := s.items[id]; still {
		it.content = data
		it.loaded = true
	}
	s.mu.Unlock()
	return data, true
}

// Mutate replaces an entry's content with fn's result, serialized with every
// other content operation on the same id. Errors from fn are returned unchanged.
func (s *Store) Mutate(ctx context.Context, id int64, fn func(content []byte) ([]byte, error)) error {
	lock := s.locks.acquire(id)
	defer lock.Unlock()

	entry, ok := s.Get(id)
	if !ok {
		return ErrNotFound
	}

	content, ok := s.loadLocked(id)
	if !ok {
		return &IOError{Op: "read", ID: id, Path: entry.StoragePath, Err: ErrUnavailable}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	updated, err := fn(content)
	if err != nil {
		return err
	}

	if err := s.files.WriteFile(entry.StoragePath, updated); err != nil {
		return &IOError{Op: "write", ID: id, Path: entry.StoragePath, Err: err}
	}

	s.mu.Lock()
	if it, still := s.items[id]; still {
		it.content = updated
		it.loaded = true
	}
	s.mu.Unlock()

	s.emit(Change{Kind: ChangeUpdated, ID: id})
	return nil
}

// Delete removes an entry. Metadata is persisted first; content removal is
// best effort and a missing file is not an error.
func (s *Store) Delete(ctx context.Context, id int64) error {
	lock := s.locks.acquire(id)
	defer lock.Unlock()

	s.metaMu.Lock()
	s.mu.Lock()
	it, exists := s.items[id]
	if !exists {
		s.mu.Unlock()
		s.metaMu.Unlock()
		return ErrNotFound
	}
	prevOrder := slices.Clone(s.order)
	delete(s.items, id)
	s.order = slices.DeleteFunc(s.order, func(v int64) bool { return v == id })
	s.mu.Unlock()

	err := s.persist(ctx)
	if err != nil {
		s.mu.Lock()
		s.items[id] = it
		s.order = prevOrder
		s.mu.Unlock()
	}
	s.metaMu.Unlock()
	if err != nil {
		return &PersistError{Op: "metadata", ID: id, Err: err}
	}

	if err := s.files.Remove(it.entry.StoragePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Int64("id", id).Str("path", it.entry.StoragePath).Msg("failed to remove screenshot content")
	}
	s.locks.forget(id)

	s.emit(Change{Kind: ChangeDeleted, ID: id})
	return nil
}

// DeleteMany deletes each id, continuing past failures. Unknown ids are
// reported as failures.
func (s *Store) DeleteMany(ctx context.Context, ids []int64) BatchReport {
	report := BatchReport{Attempted: len(ids)}
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			report.Failed = append(report.Failed, Failure{ID: id, Err: err.Error()})
		}
	}
	if len(report.Failed) > 0 {
		log.Warn().Str("summary", report.Summary()).Msg("delete finished with failures")
	}
	return report
}

// ClearAll removes every entry. Content removal failures do not stop the
// operation; they are collected in the report.
func (s *Store) ClearAll(ctx context.Context) (BatchReport, error) {
	s.metaMu.Lock()
	s.mu.Lock()
	removed := make([]*item, 0, len(s.order))
	for _, id := range s.order {
		removed = append(removed, s.items[id])
	}
	prevOrder, prevItems := s.order, s.items
	s.order = nil
	s.items = make(map[int64]*item)
	s.mu.Unlock()

	report := BatchReport{Attempted: len(removed)}

	err := s.persist(ctx)
	if err != nil {
		s.mu.Lock()
		s.order, s.items = prevOrder, prevItems
		s.mu.Unlock()
	}
	s.metaMu.Unlock()
	if err != nil {
		return report, &PersistError{Op: "metadata", Err: err}
	}

	for _, it := range removed {
		lock := s.locks.acquire(it.entry.ID)
		err := s.files.Remove(it.entry.StoragePath)
		lock.Unlock()
		s.locks.forget(it.entry.ID)

		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			report.Failed = append(report.Failed, Failure{ID: it.entry.ID, Err: err.Error()})
		}
	}

	if len(report.Failed) > 0 {
		log.Warn().Str("summary", report.Summary()).Msg("clear all finished with failures")
	}

	s.emit(Change{Kind: ChangeCleared})
	return report, nil
}

// Reorder moves id to sit immediately before beforeID. beforeID 0 moves it to
// the end. Unknown ids and id == beforeID are no-ops.
func (s *Store) Reorder(ctx context.Context, id, beforeID int64) error {
	s.metaMu.Lock()
	s.mu.Lock()
	from := slices.Index(s.order, id)
	if from < 0 || id == beforeID || (beforeID != 0 && slices.Index(s.order, beforeID) < 0) {
		s.mu.Unlock()
		s.metaMu.Unlock()
		return nil
	}

	prevOrder := slices.Clone(s.order)
	next := slices.Delete(slices.Clone(s.order), from, from+1)
	if beforeID == 0 {
		next = append(next, id)
	} else {
		to := slices.Index(next, beforeID)
		next = slices.Insert(next, to, id)
	}

	if slices.Equal(next, prevOrder) {
		s.mu.Unlock()
		s.metaMu.Unlock()
		return nil
	}
	s.order = next
	s.mu.Unlock()

	err := s.persist(ctx)
	if err != nil {
		s.mu.Lock()
		s.order = prevOrder
		s.mu.Unlock()
	}
	s.metaMu.Unlock()
	if err != nil {
		return &PersistError{Op: "metadata", ID: id, Err: err}
	}

	s.emit(Change{Kind: ChangeReordered, ID: id})
	return nil
}

// LoadAll replaces the in-memory collection with the persisted one. Records
// whose content cannot be resolved are left out and counted in the report.
func (s *Store) LoadAll(ctx context.Context) (LoadReport, error) {
	raw, found, err := s.blobs.GetBlob(ctx, MetadataKey)
	if err != nil {
		return LoadReport{}, &IOError{Op: "read metadata", Err: err}
	}

	var records []Entry
	if found && len(raw) > 0 {
		if err := json.Unmarshal(raw, &records); err != nil {
			return LoadReport{}, &IOError{Op: "decode metadata", Err: err}
		}
	}

	report := LoadReport{Total: len(records)}
	order := make([]int64, 0, len(records))
	items := make(map[int64]*item, len(records))
	var lastID int64

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return LoadReport{}, err
		}
		if _, dup := items[rec.ID]; dup {
			report.Failed = append(report.Failed, Failure{ID: rec.ID, Err: "duplicate id"})
			continue
		}

		it := &item{entry: rec}
		if err := s.resolve(it); err != nil {
			log.Warn().Err(err).Int64("id", rec.ID).Str("path", rec.StoragePath).Msg("screenshot could not be loaded")
			report.Failed = append(report.Failed, Failure{ID: rec.ID, Err: err.Error()})
			continue
		}

		items[rec.ID] = it
		order = append(order, rec.ID)
		lastID = max(lastID, rec.ID)
	}
	report.Loaded = len(order)

	s.metaMu.Lock()
	s.mu.Lock()
	s.order = order
	s.items = items
	s.lastID = max(s.lastID, lastID)
	s.mu.Unlock()
	s.metaMu.Unlock()

	if summary := report.Summary(); summary != "" {
		log.Warn().Int("loaded", report.Loaded).Int("total", report.Total).Msg(summary)
	} else {
		log.Info().Int("count", report.Loaded).Msg("screenshots loaded")
	}

	s.emit(Change{Kind: ChangeLoaded})
	return report, nil
}

func (s *Store) resolve(it *item) error {
	if s.cfg.LoadMode == LoadLazy {
		ok, err := s.files.Exists(it.entry.StoragePath)
		if err != nil {
			return err
		}
		if !ok {
			return fs.ErrNotExist
		}
		return nil
	}

	data, err := s.files.ReadFile(it.entry.StoragePath)
	if err != nil {
		return err
	}
	it.content = data
	it.loaded = true
	return nil
}

// persist writes the metadata snapshot. Callers hold metaMu, so the snapshot
// and any rollback cover only their own change.
func (s *Store) persist(ctx context.Context) error {
	records := s.List()
	if records == nil {
		records = []Entry{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return s.blobs.PutBlob(ctx, MetadataKey, raw)
}

// List returns entry metadata in display order
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].entry)
	}
	return out
}

// IDs returns entry ids in display order
func (s *Store) IDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order)
}

// Get returns an entry's metadata
func (s *Store) Get(id int64) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return Entry{}, false
	}
	return it.entry, true
}

// Len returns the number of entries
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Neighbors returns the ids before and after id in display order, 0 at the edges
func (s *Store) Neighbors(id int64) (prev, next int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := slices.Index(s.order, id)
	if i < 0 {
		return 0, 0, false
	}
	if i > 0 {
		prev = s.order[i-1]
	}
	if i < len(s.order)-1 {
		next = s.order[i+1]
	}
	return prev, next, true
}
