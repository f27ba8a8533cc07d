// Package list provides an observable list whose contents follow the events it fires.
package list

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"listdelta/backend/assembler"
	"listdelta/backend/config"
	"listdelta/backend/event"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// List is a slice-backed observable list. Every mutation goes through a transactional
// assembler, and the storage itself is updated by the first live listener, so the
// contents always match the events seen by other listeners.
//
// List is not synchronized by itself. Callers must hold the write lock across
// a whole Begin/Commit pair and the read lock for accessors.
type List[E any] struct {
	sync.RWMutex

	log  *zap.Logger
	vals []E
	tx   *assembler.Tx[E]

	// idle is signaled when the outermost transaction is closed.
	idle *sync.Cond
}

// New creates a list holding the initial values.
func New[E any](cfg config.Assembler, log *zap.Logger, initial ...E) *List[E] {
	if log == nil {
		log = zap.NewNop()
	}

	l := &List[E]{
		log:  log,
		vals: slices.Clone(initial),
		tx:   assembler.NewTx[E](cfg, log),
	}
	l.idle = sync.NewCond(&l.RWMutex)
	l.tx.SetSizeFunc(l.Len)

	if _, err := l.tx.AddListener(l.apply); err != nil {
		panic("BUG: failed to install storage listener: " + err.Error())
	}

	return l
}

func (l *List[E]) apply(ev *event.Event[E]) error {
	vals, err := ev.Apply(l.vals)
	if err != nil {
		return fmt.Errorf("BUG: list storage diverged from its events: %w", err)
	}
	l.vals = vals
	return nil
}

// Tx returns the assembler of the list.
func (l *List[E]) Tx() *assembler.Tx[E] {
	return l.tx
}

// Len returns the number of elements.
func (l *List[E]) Len() int {
	return len(l.vals)
}

// Get returns the element at index.
func (l *List[E]) Get(index int) (E, error) {
	if index < 0 || index >= len(l.vals) {
		var zero E
		return zero, fmt.Errorf("get %d of %d: %w", index, len(l.vals), event.ErrOutOfBounds)
	}
	return l.vals[index], nil
}

// Values returns a copy of the elements.
func (l *List[E]) Values() []E {
	return slices.Clone(l.vals)
}

// Insert inserts values at index.
func (l *List[E]) Insert(index int, values ...E) error {
	if index < 0 || index > len(l.vals) {
		return fmt.Errorf("insert at %d of %d: %w", index, len(l.vals), event.ErrOutOfBounds)
	}
	if len(values) == 0 {
		return nil
	}
	return l.tx.Insert(index, values...)
}

// Add appends values.
func (l *List[E]) Add(values ...E) error {
	return l.Insert(len(l.vals), values...)
}

// Delete removes count elements starting at index and returns them.
func (l *List[E]) Delete(index, count int) ([]E, error) {
	if index < 0 || count < 0 || index+count > len(l.vals) {
		return nil, fmt.Errorf("delete [%d, %d) of %d: %w", index, index+count, len(l.vals), event.ErrOutOfBounds)
	}
	if count == 0 {
		return nil, nil
	}

	olds := slices.Clone(l.vals[index : index+count])
	if err := l.tx.Delete(index, olds...); err != nil {
		return nil, err
	}
	return olds, nil
}

// Set replaces the element at index and returns the previous one.
func (l *List[E]) Set(index int, v E) (E, error) {
	prev, err := l.Get(index)
	if err != nil {
		return prev, err
	}
	return prev, l.tx.Update(index, prev, v)
}

// Sort reorders the elements stably. Listeners see it as a reordering event
// when no other change is pending.
func (l *List[E]) Sort(compare func(a, b E) int) error {
	perm := make([]int, len(l.vals))
	for i := range perm {
		perm[i] = i
	}
	slices.SortStableFunc(perm, func(a, b int) int {
		return compare(l.vals[a], l.vals[b])
	})

	return l.reorder(perm)
}

func (l *List[E]) reorder(perm []int) error {
	if len(perm) != len(l.vals) {
		return fmt.Errorf("reorder of %d elements with %d indexes: %w", len(l.vals), len(perm), assembler.ErrBadReorder)
	}

	changes := make([]event.Change[E], len(perm))
	for i, from := range perm {
		if from < 0 || from >= len(l.vals) {
			return fmt.Errorf("reorder from %d of %d: %w", from, len(l.vals), event.ErrOutOfBounds)
		}
		changes[i] = event.Updated(l.vals[i], l.vals[from])
	}
	return l.tx.Reorder(perm, changes)
}

// ApplyEvent replays an event produced by another list, as primitive edits
// inside one buffered transaction. On failure the transaction is rolled back
// if the assembler supports it and discarded otherwise.
func (l *List[E]) ApplyEvent(ev *event.Event[E]) (err error) {
	if ev.IsReorder() && l.tx.Depth() == 0 {
		return l.reorder(ev.ReorderMap())
	}

	if err := l.tx.Begin(true); err != nil {
		return err
	}
	defer func() {
		if err == nil {
			err = l.tx.Commit()
			return
		}
		if l.tx.SupportsRollback() {
			if rerr := l.tx.Rollback(); rerr != nil {
				l.log.Warn("FailedToRollBackEvent", zap.Error(rerr))
			}
			return
		}
		if derr := l.tx.Discard(); derr != nil {
			l.log.Warn("FailedToDiscardEvent", zap.Error(derr))
		}
	}()

	for idx, c := range ev.Changes() {
		switch c.Kind {
		case event.Insert:
			if !c.New.Known {
				return fmt.Errorf("insert at %d: %w", idx, event.ErrUnknownValue)
			}
			err = l.Insert(idx, c.New.V)
		case event.Delete:
			_, err = l.Delete(idx, 1)
		case event.Update:
			if !c.New.Known {
				return fmt.Errorf("update at %d: %w", idx, event.ErrUnknownValue)
			}
			_, err = l.Set(idx, c.New.V)
		default:
			panic(fmt.Sprintf("BUG: unexpected kind %v in event", c.Kind))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Replace drops all the elements and inserts values, as one buffered transaction.
func (l *List[E]) Replace(values ...E) error {
	if err := l.tx.Begin(true); err != nil {
		return err
	}
	if _, err := l.Delete(0, len(l.vals)); err != nil {
		return multierr.Append(err, l.tx.Discard())
	}
	if err := l.Insert(0, values...); err != nil {
		return multierr.Append(err, l.tx.Discard())
	}
	return l.tx.Commit()
}

// Begin opens a transaction. See assembler.Tx.Begin.
func (l *List[E]) Begin(buffered bool) error {
	return l.tx.Begin(buffered)
}

// Commit closes the innermost transaction.
func (l *List[E]) Commit() error {
	defer l.signalIdle()
	return l.tx.Commit()
}

// Rollback undoes the innermost transaction.
func (l *List[E]) Rollback() error {
	defer l.signalIdle()
	return l.tx.Rollback()
}

// Discard closes the innermost transaction without notifying buffered listeners.
func (l *List[E]) Discard() error {
	defer l.signalIdle()
	return l.tx.Discard()
}

func (l *List[E]) signalIdle() {
	if l.tx.Depth() == 0 {
		l.idle.Broadcast()
	}
}

// WaitIdle blocks until no transaction is open, so the contents don't include
// changes that listeners haven't seen yet. The caller must hold the write lock,
// which is released while waiting. Transactions must be closed through the list
// methods, not through Tx, to wake up the waiters.
func (l *List[E]) WaitIdle(ctx context.Context) error {
	if l.tx.Depth() == 0 {
		return nil
	}

	stop := context.AfterFunc(ctx, func() {
		l.Lock()
		defer l.Unlock()
		l.idle.Broadcast()
	})
	defer stop()

	for l.tx.Depth() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.idle.Wait()
	}
	return nil
}

// AddListener registers a listener called for every primitive edit.
func (l *List[E]) AddListener(fn assembler.Listener[E]) (assembler.Handle, error) {
	return l.tx.AddListener(fn)
}

// RemoveListener unregisters a live listener.
func (l *List[E]) RemoveListener(h assembler.Handle) error {
	return l.tx.RemoveListener(h)
}

// AddBufferedListener registers a listener called once per outermost buffered transaction.
func (l *List[E]) AddBufferedListener(fn assembler.Listener[E]) (assembler.Handle, error) {
	return l.tx.AddBufferedListener(fn)
}

// RemoveBufferedListener unregisters a buffered listener.
func (l *List[E]) RemoveBufferedListener(h assembler.Handle) error {
	return l.tx.RemoveBufferedListener(h)
}
