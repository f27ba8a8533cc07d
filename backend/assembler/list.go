// Package assembler turns primitive list edits into coalesced events.
//
// List is a nesting assembler: edits made between the outermost Begin and Commit
// are merged into a single event. Tx builds transactions with rollback on top of two Lists,
// one firing immediately for every edit (live) and one firing once per outermost
// buffered transaction (buffered).
package assembler

import (
	"fmt"
	"slices"

	"listdelta/backend/config"
	"listdelta/backend/delta"
	"listdelta/backend/event"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Listener receives committed events.
type Listener[E any] func(ev *event.Event[E]) error

// List accumulates changes into events. Changes go into a linear block sequence
// while they arrive in increasing order, and into a delta tree afterwards.
// Not safe for concurrent use: callers serialize access, including listener dispatch.
type List[E any] struct {
	log    *zap.Logger
	stream string

	allowContradictions bool
	dynamicSizing       bool
	// permissive > 0 temporarily allows contradictions, e.g. while replaying inverse edits.
	permissive int

	blocks  delta.BlockSequence[E]
	tree    *delta.Tree[E]
	useTree bool
	reorder []int

	// nesting holds whether nested events are allowed, per open level.
	nesting    []bool
	sourceSize int

	listeners registry[Listener[E]]

	// SizeFunc reports the current size of the list. When set and dynamic sizing
	// is disabled, the delta tree is sized from it at the outermost Begin.
	SizeFunc func() int
}

// NewList creates a new nesting assembler.
func NewList[E any](cfg config.Assembler, log *zap.Logger) *List[E] {
	if log == nil {
		log = zap.NewNop()
	}

	return &List[E]{
		log:                 log,
		stream:              "list",
		allowContradictions: cfg.AllowContradictions,
		dynamicSizing:       cfg.DynamicSizing,
		tree:                delta.NewTree[E](),
	}
}

// AddListener registers a listener for committed events.
func (a *List[E]) AddListener(l Listener[E]) (Handle, error) {
	if l == nil {
		return 0, ErrNilListener
	}
	return a.listeners.add(l), nil
}

// RemoveListener unregisters a listener.
func (a *List[E]) RemoveListener(h Handle) error {
	return a.listeners.remove(h)
}

// Depth returns the number of open nesting levels.
func (a *List[E]) Depth() int {
	return len(a.nesting)
}

// IsEmpty checks whether the current event has no changes.
func (a *List[E]) IsEmpty() bool {
	if a.useTree {
		return a.tree.IsEmpty()
	}
	return a.blocks.IsEmpty()
}

// Begin opens a nesting level. Only the outermost Commit fires an event.
// If allowNested is false, any Begin before the matching Commit fails.
func (a *List[E]) Begin(allowNested bool) error {
	if n := len(a.nesting); n > 0 && !a.nesting[n-1] {
		return ErrNestingForbidden
	}

	if len(a.nesting) == 0 {
		a.sourceSize = 0
		if a.SizeFunc != nil {
			a.sourceSize = a.SizeFunc()
		}
	}

	a.nesting = append(a.nesting, allowNested)
	return nil
}

// Commit closes the current nesting level. Closing the outermost level fires the
// accumulated event to the listeners in registration order, unless it's empty.
// The assembler is ready for a new event before listeners are called.
// Errors from the listeners are combined, and every listener is always called.
func (a *List[E]) Commit() error {
	if len(a.nesting) == 0 {
		return &ProtocolError{Op: "commit"}
	}

	a.nesting = a.nesting[:len(a.nesting)-1]
	if len(a.nesting) > 0 {
		return nil
	}

	ev := a.drain()
	if ev.IsEmpty() {
		return nil
	}

	mEventsTotal.WithLabelValues(a.stream).Inc()

	var err error
	for _, l := range a.listeners.inOrder() {
		err = multierr.Append(err, l(ev))
	}
	return err
}

// Discard closes the current nesting level without firing.
// Discarding the outermost level drops all the accumulated changes.
func (a *List[E]) Discard() error {
	if len(a.nesting) == 0 {
		return &ProtocolError{Op: "discard"}
	}

	a.nesting = a.nesting[:len(a.nesting)-1]
	if len(a.nesting) == 0 {
		a.reset()
	}
	return nil
}

func (a *List[E]) drain() *event.Event[E] {
	var blocks []event.Block[E]
	if a.useTree {
		blocks = a.tree.Blocks()
	} else {
		blocks = a.blocks.Blocks()
	}

	var ev *event.Event[E]
	if a.reorder != nil {
		ev = event.NewReorder(blocks, a.reorder)
	} else {
		ev = event.New(blocks)
	}

	a.reset()
	return ev
}

func (a *List[E]) reset() {
	a.blocks.Reset()
	a.useTree = false
	a.reorder = nil
}

// Insert records values inserted at index.
func (a *List[E]) Insert(index int, values ...E) error {
	changes := make([]event.Change[E], len(values))
	for i, v := range values {
		changes[i] = event.Inserted(v)
	}
	return a.AddChange(index, event.Insert, changes)
}

// Delete records removal of the given values, which were at index and following positions.
func (a *List[E]) Delete(index int, olds ...E) error {
	changes := make([]event.Change[E], len(olds))
	for i, v := range olds {
		changes[i] = event.Deleted(v)
	}
	return a.AddChange(index, event.Delete, changes)
}

// Update records the value at index being replaced.
func (a *List[E]) Update(index int, prev, next E) error {
	return a.AddChange(index, event.Update, []event.Change[E]{event.Updated(prev, next)})
}

// AddChange records a run of changes. Outside of Begin/Commit the change
// is fired as its own event. On error nothing is recorded.
func (a *List[E]) AddChange(start int, kind event.Kind, changes []event.Change[E]) error {
	return a.oneShot(func() error {
		return a.addChange(start, kind, changes)
	})
}

// oneShot runs fn inside the current event, or inside an implicit event if there's none.
func (a *List[E]) oneShot(fn func() error) error {
	if len(a.nesting) > 0 {
		return fn()
	}

	if err := a.Begin(false); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return multierr.Append(err, a.Discard())
	}
	return a.Commit()
}

func (a *List[E]) addChange(start int, kind event.Kind, changes []event.Change[E]) error {
	allow := a.allowContradictions || a.permissive > 0
	a.reorder = nil

	if !a.useTree {
		a.blocks.AllowContradictions = allow
		ok, err := a.blocks.AddChange(start, kind, changes)
		if err != nil || ok {
			return err
		}

		if err := a.switchToTree(); err != nil {
			return err
		}
	}

	a.tree.AllowContradictions = allow
	return a.tree.AddTargetChange(start, kind, changes)
}

func (a *List[E]) switchToTree() error {
	a.tree.DynamicSizing = a.dynamicSizing || a.SizeFunc == nil
	a.tree.Reset(a.sourceSize)
	a.tree.AllowContradictions = true
	if err := a.tree.AddAll(&a.blocks); err != nil {
		return fmt.Errorf("BUG: failed to replay block sequence into a tree: %w", err)
	}

	mTreeFallbacksTotal.Inc()
	a.log.Debug("TreeFallback", zap.String("stream", a.stream), zap.Int("blocks", a.blocks.Len()))

	a.blocks.Reset()
	a.useTree = true
	return nil
}

// Forward re-emits an upstream event. A reordering forwarded into an empty event
// stays a reordering, otherwise it becomes ordinary updates.
func (a *List[E]) Forward(ev *event.Event[E]) error {
	if err := a.Begin(true); err != nil {
		return err
	}

	if err := a.forward(ev); err != nil {
		return multierr.Append(err, a.Discard())
	}

	return a.Commit()
}

func (a *List[E]) forward(ev *event.Event[E]) error {
	if ev.IsReorder() && a.IsEmpty() {
		if bs := ev.Blocks(); len(bs) == 1 && bs[0].Start == 0 && bs[0].Kind == event.Update {
			return a.reorderChanges(ev.ReorderMap(), bs[0].Changes)
		}
	}

	for _, b := range ev.Blocks() {
		if err := a.addChange(b.Start, b.Kind, b.Changes); err != nil {
			return err
		}
	}
	return nil
}

// Reorder records a permutation of the first len(perm) elements. perm[i] is the
// previous index of the element now at i, and changes[i] holds the values previously
// and now at i. If the current event is empty the result is a reordering event,
// otherwise the permutation becomes ordinary updates.
func (a *List[E]) Reorder(perm []int, changes []event.Change[E]) error {
	return a.oneShot(func() error {
		return a.reorderChanges(perm, changes)
	})
}

func (a *List[E]) reorderChanges(perm []int, changes []event.Change[E]) error {
	if len(perm) != len(changes) {
		return fmt.Errorf("%d indexes and %d changes: %w", len(perm), len(changes), ErrBadReorder)
	}
	if len(perm) == 0 {
		return nil
	}

	pure := a.IsEmpty()
	if err := a.addChange(0, event.Update, changes); err != nil {
		return err
	}
	if pure {
		a.reorder = slices.Clone(perm)
	}
	return nil
}
