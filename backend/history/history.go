// Package history keeps bounded undo and redo stacks of committed list edits.
package history

import (
	"errors"
	"sync"
	"time"

	"listdelta/backend/assembler"
)

// Common errors for history operations.
var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	ErrAttached      = errors.New("history is already attached")
)

// DefaultMaxEntries is used when the limit is not positive.
const DefaultMaxEntries = 1000

// Source publishes committed edits.
type Source interface {
	AddUndoListener(l assembler.UndoListener) (assembler.Handle, error)
	RemoveUndoListener(h assembler.Handle) error
}

type entry struct {
	edit      assembler.Edit
	timestamp time.Time
}

// Manager records edits published by a Source and undoes or redoes them on request.
type Manager struct {
	mu sync.Mutex

	undoStack []*entry
	redoStack []*entry

	maxEntries int

	src    Source
	handle assembler.Handle
}

// NewManager creates a history keeping at most maxEntries undoable edits.
func NewManager(maxEntries int) *Manager {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Manager{
		maxEntries: maxEntries,
	}
}

// Attach starts recording edits committed on src.
func (m *Manager) Attach(src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.src != nil {
		return ErrAttached
	}

	h, err := src.AddUndoListener(m.Push)
	if err != nil {
		return err
	}
	m.src = src
	m.handle = h
	return nil
}

// Detach stops recording. The stacks are kept.
func (m *Manager) Detach() error {
	m.mu.Lock()
	src, h := m.src, m.handle
	m.src = nil
	m.mu.Unlock()

	if src == nil {
		return nil
	}
	return src.RemoveUndoListener(h)
}

// Push adds an edit to the undo stack and clears the redo stack.
func (m *Manager) Push(e assembler.Edit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.undoStack = append(m.undoStack, &entry{
		edit:      e,
		timestamp: time.Now(),
	})
	m.redoStack = nil

	if excess := len(m.undoStack) - m.maxEntries; excess > 0 {
		clear(m.undoStack[:excess])
		m.undoStack = m.undoStack[excess:]
	}
}

// Undo undoes the last edit.
// The lock is not held while the edit runs, since it fires list events.
func (m *Manager) Undo() error {
	return m.move(&m.undoStack, &m.redoStack, ErrNothingToUndo, assembler.Edit.Undo)
}

// Redo redoes the last undone edit.
func (m *Manager) Redo() error {
	return m.move(&m.redoStack, &m.undoStack, ErrNothingToRedo, assembler.Edit.Redo)
}

func (m *Manager) move(from, to *[]*entry, empty error, run func(assembler.Edit) error) error {
	m.mu.Lock()
	if len(*from) == 0 {
		m.mu.Unlock()
		return empty
	}
	e := (*from)[len(*from)-1]
	*from = (*from)[:len(*from)-1]
	m.mu.Unlock()

	if err := run(e.edit); err != nil {
		m.mu.Lock()
		*from = append(*from, e)
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	*to = append(*to, e)
	m.mu.Unlock()
	return nil
}

// CanUndo returns true if undo is available.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undoStack) > 0
}

// CanRedo returns true if redo is available.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redoStack) > 0
}

// UndoCount returns the number of undo operations available.
func (m *Manager) UndoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undoStack)
}

// RedoCount returns the number of redo operations available.
func (m *Manager) RedoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redoStack)
}

// LastEditTime returns when the edit on top of the undo stack was committed.
func (m *Manager) LastEditTime() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.undoStack) == 0 {
		return time.Time{}, false
	}
	return m.undoStack[len(m.undoStack)-1].timestamp, true
}

// Clear drops both stacks.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undoStack = nil
	m.redoStack = nil
}
