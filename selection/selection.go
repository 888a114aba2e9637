// Package selection tracks which screenshots are selected and the anchor
// used for range selection.
package selection

import (
	"context"
	"slices"
	"sync"
)

// Sequence is the ordered collection selections refer to
type Sequence interface {
	IDs() []int64
	Reorder(ctx context.Context, id, beforeID int64) error
}

// Bounds is an on-screen rectangle, used for rubber-band selection
type Bounds struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Intersects reports whether two rectangles overlap with positive area
func (b Bounds) Intersects(o Bounds) bool {
	return b.X < o.X+o.W && o.X < b.X+b.W &&
		b.Y < o.Y+o.H && o.Y < b.Y+b.H
}

// Card is a screenshot's on-screen bounds
type Card struct {
	ID     int64  `json:"id"`
	Bounds Bounds `json:"bounds"`
}

// Model is the selection state. Ids that disappear from the sequence are
// tolerated: they are never reported as selected and never break a range.
type Model struct {
	seq Sequence

	mu        sync.RWMutex
	selected  map[int64]struct{}
	anchor    int64
	hasAnchor bool

	onChange func()
}

// New creates an empty selection over seq
func New(seq Sequence) *Model {
	return &Model{seq: seq, selected: make(map[int64]struct{})}
}

// OnChange registers a callback invoked after the selection changes
func (m *Model) OnChange(fn func()) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

func (m *Model) changed() {
	m.mu.RLock()
	fn := m.onChange
	m.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Toggle flips id. With extend and an anchor present, every id between the
// anchor and id in the current sequence order (inclusive) is added instead.
// The anchor always moves to id.
func (m *Model) Toggle(id int64, extend bool) {
	order := m.seq.IDs()

	m.mu.Lock()
	switch {
	case extend && m.hasAnchor && m.anchor != id:
		from, to := slices.Index(order, m.anchor), slices.Index(order, id)
		if from >= 0 && to >= 0 {
			if from > to {
				from, to = to, from
			}
			for _, v := range order[from : to+1] {
				m.selected[v] = struct{}{}
			}
		} else {
			m.flip(id)
		}
	default:
		m.flip(id)
	}
	m.anchor = id
	m.hasAnchor = true
	m.mu.Unlock()

	m.changed()
}

func (m *Model) flip(id int64) {
	if _, ok := m.selected[id]; ok {
		delete(m.selected, id)
	} else {
		m.selected[id] = struct{}{}
	}
}

// SelectByIntersection adds every card overlapping drag. Existing selection
// is kept (union).
func (m *Model) SelectByIntersection(drag Bounds, cards []Card) []int64 {
	var hit []int64
	for _, c := range cards {
		if drag.Intersects(c.Bounds) {
			hit = append(hit, c.ID)
		}
	}
	m.Add(hit...)
	return hit
}

// Add selects ids without touching the anchor
func (m *Model) Add(ids ...int64) {
	if len(ids) == 0 {
		return
	}
	m.mu.Lock()
	for _, id := range ids {
		m.selected[id] = struct{}{}
	}
	m.mu.Unlock()
	m.changed()
}

// Clear empties the selection and forgets the anchor
func (m *Model) Clear() {
	m.mu.Lock()
	m.selected = make(map[int64]struct{})
	m.anchor, m.hasAnchor = 0, false
	m.mu.Unlock()
	m.changed()
}

// Contains reports whether id is selected and still in the sequence
func (m *Model) Contains(id int64) bool {
	if !slices.Contains(m.seq.IDs(), id) {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.selected[id]
	return ok
}

// Selected returns selected ids in current sequence order
func (m *Model) Selected() []int64 {
	order := m.seq.IDs()

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]int64, 0, len(m.selected))
	for _, id := range order {
		if _, ok := m.selected[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Anchor returns the last toggled id
func (m *Model) Anchor() (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.anchor, m.hasAnchor
}

// Reorder moves id before beforeID in the underlying sequence
func (m *Model) Reorder(ctx context.Context, id, beforeID int64) error {
	return m.seq.Reorder(ctx, id, beforeID)
}

// CropTargets returns the other selected ids a crop on acting should be
// replayed on. It is empty unless acting itself is selected.
func (m *Model) CropTargets(acting int64) []int64 {
	selected := m.Selected()
	if !slices.Contains(selected, acting) {
		return nil
	}
	return slices.DeleteFunc(selected, func(id int64) bool { return id == acting })
}

// ExportTargets returns the selected ids, or every id when nothing is selected
func (m *Model) ExportTargets() []int64 {
	if selected := m.Selected(); len(selected) > 0 {
		return selected
	}
	return m.seq.IDs()
}

// Prune forgets ids no longer in the sequence
func (m *Model) Prune() {
	order := m.seq.IDs()

	m.mu.Lock()
	pruned := false
	for id := range m.selected {
		if !slices.Contains(order, id) {
			delete(m.selected, id)
			pruned = true
		}
	}
	if m.hasAnchor && !slices.Contains(order, m.anchor) {
		m.anchor, m.hasAnchor = 0, false
	}
	m.mu.Unlock()

	if pruned {
		m.changed()
	}
}
