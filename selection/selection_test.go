package selection

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSeq struct {
	mu  sync.Mutex
	ids []int64
}

func (s *sliceSeq) IDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ids)
}

func (s *sliceSeq) Reorder(_ context.Context, id, beforeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	from := slices.Index(s.ids, id)
	if from < 0 || slices.Index(s.ids, beforeID) < 0 || id == beforeID {
		return nil
	}
	s.ids = slices.Delete(s.ids, from, from+1)
	s.ids = slices.Insert(s.ids, slices.Index(s.ids, beforeID), id)
	return nil
}

func (s *sliceSeq) remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = slices.DeleteFunc(s.ids, func(v int64) bool { return v == id })
}

func TestModel_ToggleFlips(t *testing.T) {
	m := New(&sliceSeq{ids: []int64{1, 2, 3}})

	m.Toggle(2, false)
	assert.Equal(t, []int64{2}, m.Selected())

	m.Toggle(2, false)
	assert.Empty(t, m.Selected())

	anchor, ok := m.Anchor()
	require.True(t, ok)
	assert.Equal(t, int64(2), anchor)
}

func TestModel_RangeFollowsCurrentOrder(t *testing.T) {
	seq := &sliceSeq{ids: []int64{1, 2, 3, 4, 5}}
	m := New(seq)

	m.Toggle(2, false)
	m.Toggle(4, true)
	assert.Equal(t, []int64{2, 3, 4}, m.Selected())

	// After reordering, the same gesture covers a different set
	m.Clear()
	require.NoError(t, m.Reorder(context.Background(), 5, 3))
	assert.Equal(t, []int64{1, 2, 5, 3, 4}, seq.IDs())

	m.Toggle(2, false)
	m.Toggle(4, true)
	assert.Equal(t, []int64{2, 5, 3, 4}, m.Selected())
}

func TestModel_RangeBackwards(t *testing.T) {
	m := New(&sliceSeq{ids: []int64{1, 2, 3, 4}})

	m.Toggle(4, false)
	m.Toggle(1, true)
	assert.Equal(t, []int64{1, 2, 3, 4}, m.Selected())
}

func TestModel_ExtendWithoutAnchorToggles(t *testing.T) {
	m := New(&sliceSeq{ids: []int64{1, 2, 3}})

	m.Toggle(3, true)
	assert.Equal(t, []int64{3}, m.Selected())
}

func TestModel_RangeWithDeletedAnchorTogglesOnly(t *testing.T) {
	seq := &sliceSeq{ids: []int64{1, 2, 3, 4}}
	m := New(seq)

	m.Toggle(1, false)
	seq.remove(1)
	m.Toggle(3, true)

	assert.Equal(t, []int64{3}, m.Selected())
}

func TestModel_SelectByIntersectionIsUnion(t *testing.T) {
	m := New(&sliceSeq{ids: []int64{1, 2, 3}})
	m.Toggle(3, false)

	cards := []Card{
		{ID: 1, Bounds: Bounds{X: 0, Y: 0, W: 100, H: 100}},
		{ID: 2, Bounds: Bounds{X: 110, Y: 0, W: 100, H: 100}},
		{ID: 3, Bounds: Bounds{X: 220, Y: 0, W: 100, H: 100}},
	}
	hit := m.SelectByIntersection(Bounds{X: 50, Y: 50, W: 70, H: 10}, cards)

	assert.Equal(t, []int64{1, 2}, hit)
	assert.Equal(t, []int64{1, 2, 3}, m.Selected())
}

func TestModel_StaleIdsAreIgnored(t *testing.T) {
	seq := &sliceSeq{ids: []int64{1, 2, 3}}
	m := New(seq)
	m.Add(1, 2, 3)

	seq.remove(2)

	assert.Equal(t, []int64{1, 3}, m.Selected())
	assert.False(t, m.Contains(2))
	require.NoError(t, m.Reorder(context.Background(), 2, 1))

	m.Prune()
	seq.mu.Lock()
	seq.ids = append(seq.ids, 2)
	seq.mu.Unlock()
	assert.False(t, m.Contains(2), "pruned ids do not come back")
}

func TestModel_CropTargets(t *testing.T) {
	m := New(&sliceSeq{ids: []int64{1, 2, 3}})

	assert.Nil(t, m.CropTargets(1))

	m.Add(1, 3)
	assert.Equal(t, []int64{3}, m.CropTargets(1))
	assert.Nil(t, m.CropTargets(2), "acting outside the selection crops alone")
}

func TestModel_ExportTargets(t *testing.T) {
	m := New(&sliceSeq{ids: []int64{1, 2, 3}})
	assert.Equal(t, []int64{1, 2, 3}, m.ExportTargets())

	m.Add(2)
	assert.Equal(t, []int64{2}, m.ExportTargets())
}

func TestModel_OnChange(t *testing.T) {
	m := New(&sliceSeq{ids: []int64{1}})
	calls := 0
	m.OnChange(func() { calls++ })

	m.Toggle(1, false)
	m.Clear()
	m.Add()

	assert.Equal(t, 2, calls)
}
