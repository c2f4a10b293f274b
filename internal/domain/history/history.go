// Package history keeps a bounded, cursor based stack of flow snapshots for undo and redo.
//
// A Manager is not safe for concurrent use; the session that owns it serializes access.
package history

import (
	"time"

	"github.com/janhq/flow-api/internal/domain/flow"
)

// DefaultCapacity is the number of snapshots kept when none is configured.
const DefaultCapacity = 50

// Snapshot is a deep copy of a flow captured at a point in time.
type Snapshot struct {
	Flow      *flow.Flow
	Label     string
	CreatedAt time.Time
}

// Entry describes a snapshot without its content.
type Entry struct {
	Index     int       `json:"index"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"created_at"`
	Current   bool      `json:"current"`
}

// Manager holds the snapshots and the cursor. Cursor is -1 when empty.
type Manager struct {
	snapshots []Snapshot
	cursor    int
	capacity  int
	now       func() time.Time
}

// NewManager creates an empty history. A non-positive capacity selects DefaultCapacity.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Manager{
		cursor:   -1,
		capacity: capacity,
		now:      time.Now,
	}
}

// AddSnapshot drops any redo branch, appends a copy of f and moves the cursor to it.
// The oldest entry is evicted once capacity is exceeded.
func (m *Manager) AddSnapshot(f *flow.Flow, label string) {
	m.DiscardRedo()
	m.snapshots = append(m.snapshots, Snapshot{
		Flow:      f.Clone(),
		Label:     label,
		CreatedAt: m.now().UTC(),
	})
	m.cursor = len(m.snapshots) - 1

	if len(m.snapshots) > m.capacity {
		overflow := len(m.snapshots) - m.capacity
		m.snapshots = append([]Snapshot(nil), m.snapshots[overflow:]...)
		m.cursor -= overflow
	}
}

// Undo moves the cursor back and returns the snapshot there.
func (m *Manager) Undo() (Snapshot, bool) {
	if !m.CanUndo() {
		return Snapshot{}, false
	}
	m.cursor--
	return m.at(m.cursor), true
}

// Redo moves the cursor forward and returns the snapshot there.
func (m *Manager) Redo() (Snapshot, bool) {
	if !m.CanRedo() {
		return Snapshot{}, false
	}
	m.cursor++
	return m.at(m.cursor), true
}

func (m *Manager) at(i int) Snapshot {
	s := m.snapshots[i]
	s.Flow = s.Flow.Clone()
	return s
}

// CanUndo reports whether an older snapshot exists before the cursor.
func (m *Manager) CanUndo() bool {
	return m.cursor > 0
}

// CanRedo reports whether the cursor is behind the tail.
func (m *Manager) CanRedo() bool {
	return m.cursor >= 0 && m.cursor < len(m.snapshots)-1
}

// AtTail reports whether the cursor sits on the newest snapshot.
func (m *Manager) AtTail() bool {
	return m.cursor == len(m.snapshots)-1
}

// DiscardRedo drops every snapshot after the cursor.
func (m *Manager) DiscardRedo() {
	if m.cursor < len(m.snapshots)-1 {
		m.snapshots = m.snapshots[:m.cursor+1]
	}
}

func (m *Manager) Len() int    { return len(m.snapshots) }
func (m *Manager) Cursor() int { return m.cursor }

// Entries lists labels and times, oldest first.
func (m *Manager) Entries() []Entry {
	out := make([]Entry, len(m.snapshots))
	for i, s := range m.snapshots {
		out[i] = Entry{Index: i, Label: s.Label, CreatedAt: s.CreatedAt, Current: i == m.cursor}
	}
	return out
}

// Clear forgets every snapshot.
func (m *Manager) Clear() {
	m.snapshots = nil
	m.cursor = -1
}
