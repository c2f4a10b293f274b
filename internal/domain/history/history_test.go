package history_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/flow-api/internal/domain/flow"
	"github.com/janhq/flow-api/internal/domain/history"
)

func flowTitled(title string) *flow.Flow {
	f := flow.New(title)
	return f
}

func TestManager_Empty(t *testing.T) {
	m := history.NewManager(0)
	assert.Equal(t, -1, m.Cursor())
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.CanUndo())
	assert.False(t, m.CanRedo())

	_, ok := m.Undo()
	assert.False(t, ok)
	_, ok = m.Redo()
	assert.False(t, ok)
}

func TestManager_CapacityIsNeverExceeded(t *testing.T) {
	m := history.NewManager(5)
	for i := 0; i < 23; i++ {
		m.AddSnapshot(flowTitled(fmt.Sprintf("v%d", i)), "edit")
		assert.LessOrEqual(t, m.Len(), 5)
		assert.Equal(t, m.Len()-1, m.Cursor())
	}

	entries := m.Entries()
	require.Len(t, entries, 5)

	steps := 0
	for m.CanUndo() {
		_, ok := m.Undo()
		require.True(t, ok)
		steps++
		assert.GreaterOrEqual(t, m.Cursor(), 0)
	}
	assert.Equal(t, 4, steps)
	assert.Equal(t, 0, m.Cursor())

	_, ok := m.Undo()
	assert.False(t, ok)
	assert.Equal(t, 0, m.Cursor())
}

func TestManager_OldestIsEvicted(t *testing.T) {
	m := history.NewManager(2)
	m.AddSnapshot(flowTitled("a"), "a")
	m.AddSnapshot(flowTitled("b"), "b")
	m.AddSnapshot(flowTitled("c"), "c")

	snap, ok := m.Undo()
	require.True(t, ok)
	assert.Equal(t, "b", snap.Flow.Title)
	assert.False(t, m.CanUndo())
}

func TestManager_UndoRedo(t *testing.T) {
	m := history.NewManager(10)
	m.AddSnapshot(flowTitled("a"), "a")
	m.AddSnapshot(flowTitled("b"), "b")
	m.AddSnapshot(flowTitled("c"), "c")

	snap, ok := m.Undo()
	require.True(t, ok)
	assert.Equal(t, "b", snap.Flow.Title)
	assert.True(t, m.CanRedo())

	snap, ok = m.Redo()
	require.True(t, ok)
	assert.Equal(t, "c", snap.Flow.Title)
	assert.False(t, m.CanRedo())
	assert.True(t, m.AtTail())
}

func TestManager_WriteAfterUndoDropsRedoBranch(t *testing.T) {
	m := history.NewManager(10)
	m.AddSnapshot(flowTitled("a"), "a")
	m.AddSnapshot(flowTitled("b"), "b")
	m.AddSnapshot(flowTitled("c"), "c")
	_, _ = m.Undo()
	_, _ = m.Undo()

	m.AddSnapshot(flowTitled("d"), "d")
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 1, m.Cursor())
	assert.False(t, m.CanRedo())

	labels := []string{}
	for _, e := range m.Entries() {
		labels = append(labels, e.Label)
	}
	assert.Equal(t, []string{"a", "d"}, labels)
	assert.True(t, m.Entries()[1].Current)
}

func TestManager_SnapshotsAreIsolated(t *testing.T) {
	m := history.NewManager(10)
	f := flowTitled("a")
	m.AddSnapshot(f, "a")
	f.Title = "mutated"
	m.AddSnapshot(flowTitled("b"), "b")

	snap, ok := m.Undo()
	require.True(t, ok)
	assert.Equal(t, "a", snap.Flow.Title)

	snap.Flow.Title = "changed by caller"
	_, _ = m.Redo()
	again, _ := m.Undo()
	assert.Equal(t, "a", again.Flow.Title)
}

func TestManager_Clear(t *testing.T) {
	m := history.NewManager(10)
	m.AddSnapshot(flowTitled("a"), "a")
	m.Clear()
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, -1, m.Cursor())
}
