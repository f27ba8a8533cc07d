package assembler

import (
	"fmt"

	"listdelta/backend/event"
)

// suppressCapture disables undo capture until the returned func is called.
// Calls nest.
func (t *Tx[E]) suppressCapture() (release func()) {
	t.ignore++
	var done bool
	return func() {
		if done {
			return
		}
		done = true
		t.ignore--
	}
}

// capture turns a live event into undoable edits.
func (t *Tx[E]) capture(ev *event.Event[E]) error {
	if t.ignore > 0 {
		return nil
	}

	c := newComposite(t.replay)
	for idx, ch := range ev.Changes() {
		switch ch.Kind {
		case event.Insert:
			if !ch.New.Known {
				return fmt.Errorf("can't capture insert at %d: %w", idx, event.ErrUnknownValue)
			}
			c.add(&AddEdit[E]{tx: t, Index: idx, Value: ch.New.V})
		case event.Delete:
			if !ch.Old.Known {
				return fmt.Errorf("can't capture delete at %d: %w", idx, event.ErrUnknownValue)
			}
			c.add(&RemoveEdit[E]{tx: t, Index: idx, Value: ch.Old.V})
		case event.Update:
			if !ch.Old.Known || !ch.New.Known {
				return fmt.Errorf("can't capture update at %d: %w", idx, event.ErrUnknownValue)
			}
			if t.Equal != nil && t.Equal(ch.Old.V, ch.New.V) {
				continue
			}
			c.add(&UpdateEdit[E]{tx: t, Index: idx, Old: ch.Old.V, New: ch.New.V})
		default:
			panic(fmt.Sprintf("BUG: unexpected kind %v in live event", ch.Kind))
		}
	}

	e := c.simplify()
	if e == nil {
		return nil
	}

	if f := t.top(); f != nil {
		f.edits.add(e)
		return nil
	}

	t.publish(e)
	return nil
}
