package assembler

import (
	"fmt"
	"slices"

	"go.uber.org/multierr"
)

// Edit is an undoable change of a list.
type Edit interface {
	Undo() error
	Redo() error
	CanUndo() bool
	CanRedo() bool
}

type editState struct {
	undone bool
}

func (s *editState) CanUndo() bool { return !s.undone }

func (s *editState) CanRedo() bool { return s.undone }

func (s *editState) undo(apply func() error) error {
	if s.undone {
		return ErrCannotUndo
	}
	if err := apply(); err != nil {
		return err
	}
	s.undone = true
	return nil
}

func (s *editState) redo(apply func() error) error {
	if !s.undone {
		return ErrCannotRedo
	}
	if err := apply(); err != nil {
		return err
	}
	s.undone = false
	return nil
}

// AddEdit is an undoable insertion of a single value.
type AddEdit[E any] struct {
	editState
	tx    *Tx[E]
	Index int
	Value E
}

// Undo implements Edit.
func (e *AddEdit[E]) Undo() error {
	return e.undo(func() error {
		return e.tx.replay(func() error { return e.tx.live.Delete(e.Index, e.Value) })
	})
}

// Redo implements Edit.
func (e *AddEdit[E]) Redo() error {
	return e.redo(func() error {
		return e.tx.replay(func() error { return e.tx.live.Insert(e.Index, e.Value) })
	})
}

func (e *AddEdit[E]) String() string {
	return fmt.Sprintf("add %v at %d", e.Value, e.Index)
}

// RemoveEdit is an undoable removal of a single value.
type RemoveEdit[E any] struct {
	editState
	tx    *Tx[E]
	Index int
	Value E
}

// Undo implements Edit.
func (e *RemoveEdit[E]) Undo() error {
	return e.undo(func() error {
		return e.tx.replay(func() error { return e.tx.live.Insert(e.Index, e.Value) })
	})
}

// Redo implements Edit.
func (e *RemoveEdit[E]) Redo() error {
	return e.redo(func() error {
		return e.tx.replay(func() error { return e.tx.live.Delete(e.Index, e.Value) })
	})
}

func (e *RemoveEdit[E]) String() string {
	return fmt.Sprintf("remove %v at %d", e.Value, e.Index)
}

// UpdateEdit is an undoable replacement of a single value.
type UpdateEdit[E any] struct {
	editState
	tx    *Tx[E]
	Index int
	Old   E
	New   E
}

// Undo implements Edit.
func (e *UpdateEdit[E]) Undo() error {
	return e.undo(func() error {
		return e.tx.replay(func() error { return e.tx.live.Update(e.Index, e.New, e.Old) })
	})
}

// Redo implements Edit.
func (e *UpdateEdit[E]) Redo() error {
	return e.redo(func() error {
		return e.tx.replay(func() error { return e.tx.live.Update(e.Index, e.Old, e.New) })
	})
}

func (e *UpdateEdit[E]) String() string {
	return fmt.Sprintf("update %v to %v at %d", e.Old, e.New, e.Index)
}

// Composite groups edits which are undone and redone together.
// Children are undone in reverse order and redone in order.
type Composite struct {
	editState
	children []Edit
	// replay wraps the whole undo or redo so that it produces a single event.
	replay func(fn func() error) error
}

func newComposite(replay func(fn func() error) error) *Composite {
	return &Composite{replay: replay}
}

// Len returns the number of direct children.
func (c *Composite) Len() int {
	return len(c.children)
}

// Children returns a copy of the direct children.
func (c *Composite) Children() []Edit {
	return slices.Clone(c.children)
}

func (c *Composite) add(e Edit) {
	c.children = append(c.children, e)
}

func (c *Composite) removeLast(e Edit) {
	n := len(c.children)
	if n == 0 || c.children[n-1] != e {
		panic("BUG: rolled back frame is not the last edit of its parent")
	}
	c.children = c.children[:n-1]
}

// Undo implements Edit.
func (c *Composite) Undo() error {
	return c.undo(func() error {
		return c.run(func() error {
			var err error
			for _, e := range slices.Backward(c.children) {
				err = multierr.Append(err, e.Undo())
			}
			return err
		})
	})
}

// Redo implements Edit.
func (c *Composite) Redo() error {
	return c.redo(func() error {
		return c.run(func() error {
			var err error
			for _, e := range c.children {
				err = multierr.Append(err, e.Redo())
			}
			return err
		})
	})
}

func (c *Composite) run(fn func() error) error {
	if c.replay == nil {
		return fn()
	}
	return c.replay(fn)
}

// simplify returns the simplest edit equivalent to the composite:
// empty nested composites are dropped and a single child is unwrapped.
// It returns nil if nothing is left.
func (c *Composite) simplify() Edit {
	kept := c.children[:0]
	for _, e := range c.children {
		if sub, ok := e.(*Composite); ok {
			s := sub.simplify()
			if s == nil {
				continue
			}
			e = s
		}
		kept = append(kept, e)
	}
	c.children = kept

	switch len(c.children) {
	case 0:
		return nil
	case 1:
		return c.children[0]
	default:
		return c
	}
}
