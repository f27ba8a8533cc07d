package assembler

import (
	"listdelta/backend/config"
	"listdelta/backend/event"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// UndoListener receives undoable edits as they are committed.
type UndoListener func(e Edit)

type frame struct {
	buffered bool
	edits    *Composite
}

// Tx is a transactional assembler. Every primitive edit is fired immediately to the live
// listeners, while buffered listeners receive one event per outermost buffered transaction.
// Committed edits are reported to undo listeners, and open transactions can be rolled back.
//
// Not safe for concurrent use.
type Tx[E any] struct {
	log *zap.Logger

	live     *List[E]
	buffered *List[E]

	frames   []*frame
	rollback bool

	// ignore > 0 suppresses undo capture while inverse edits are replayed.
	ignore int

	liveListeners registry[Listener[E]]
	undoListeners registry[UndoListener]
	liveHandle    Handle

	// Equal reports whether two values are the same. Updates between equal values
	// are not recorded as undoable edits. If nil, every update is recorded.
	Equal func(a, b E) bool
}

// NewTx creates a new transactional assembler.
func NewTx[E any](cfg config.Assembler, log *zap.Logger) *Tx[E] {
	if log == nil {
		log = zap.NewNop()
	}

	t := &Tx[E]{
		log:      log,
		live:     NewList[E](cfg, log),
		buffered: NewList[E](cfg, log),
		rollback: cfg.Rollback,
	}
	t.live.stream = "live"
	t.buffered.stream = "buffered"
	// Buffered input has already been validated by the live stream,
	// e.g. an element inserted and then deleted within one buffered transaction.
	t.buffered.allowContradictions = true

	h, err := t.live.AddListener(t.onLive)
	if err != nil {
		panic("BUG: failed to install live hook: " + err.Error())
	}
	t.liveHandle = h

	return t
}

// SetSizeFunc makes the live assembler size its delta tree from the list.
func (t *Tx[E]) SetSizeFunc(fn func() int) {
	t.live.SizeFunc = fn
}

// SupportsRollback reports whether Rollback is available.
func (t *Tx[E]) SupportsRollback() bool {
	return t.rollback
}

// Depth returns the number of open transactions.
func (t *Tx[E]) Depth() int {
	return len(t.frames)
}

// AddListener registers a listener for live events.
func (t *Tx[E]) AddListener(l Listener[E]) (Handle, error) {
	if l == nil {
		return 0, ErrNilListener
	}
	return t.liveListeners.add(l), nil
}

// RemoveListener unregisters a live listener.
func (t *Tx[E]) RemoveListener(h Handle) error {
	return t.liveListeners.remove(h)
}

// AddBufferedListener registers a listener for buffered events.
func (t *Tx[E]) AddBufferedListener(l Listener[E]) (Handle, error) {
	return t.buffered.AddListener(l)
}

// RemoveBufferedListener unregisters a buffered listener.
func (t *Tx[E]) RemoveBufferedListener(h Handle) error {
	return t.buffered.RemoveListener(h)
}

// AddUndoListener registers a listener for committed undoable edits.
// Undo listeners are called in reverse registration order.
func (t *Tx[E]) AddUndoListener(l UndoListener) (Handle, error) {
	if l == nil {
		return 0, ErrNilListener
	}
	return t.undoListeners.add(l), nil
}

// RemoveUndoListener unregisters an undo listener.
func (t *Tx[E]) RemoveUndoListener(h Handle) error {
	return t.undoListeners.remove(h)
}

// Begin opens a transaction. Changes of a buffered transaction reach the buffered
// listeners as a single event when the outermost buffered transaction commits.
func (t *Tx[E]) Begin(buffered bool) error {
	if buffered {
		if err := t.buffered.Begin(true); err != nil {
			return err
		}
	}

	f := &frame{buffered: buffered, edits: newComposite(t.replay)}
	if parent := t.top(); parent != nil {
		parent.edits.add(f.edits)
	}
	t.frames = append(t.frames, f)
	return nil
}

// Commit closes the innermost transaction. The transaction is closed even if listeners fail.
func (t *Tx[E]) Commit() error {
	f, err := t.pop("commit")
	if err != nil {
		return err
	}

	if f.buffered {
		err = t.buffered.Commit()
	}

	if len(t.frames) == 0 {
		if e := f.edits.simplify(); e != nil {
			t.publish(e)
		}
	}

	return err
}

// Rollback undoes every change of the innermost transaction. Live listeners
// see the rollback as one event, buffered listeners never see the transaction.
func (t *Tx[E]) Rollback() error {
	if !t.rollback {
		return ErrRollbackUnsupported
	}

	f, err := t.pop("roll back")
	if err != nil {
		return err
	}
	t.detach(f)

	mRollbacksTotal.Inc()
	t.log.Debug("TransactionRolledBack", zap.Int("depth", len(t.frames)), zap.Int("edits", f.edits.Len()))

	if f.edits.Len() > 0 {
		err = f.edits.Undo()
	}

	if f.buffered {
		err = multierr.Append(err, t.buffered.Discard())
	}
	return err
}

// Discard closes the innermost transaction dropping its buffered changes.
// Nothing is undone, and the changes are not reported to undo listeners.
func (t *Tx[E]) Discard() error {
	f, err := t.pop("discard")
	if err != nil {
		return err
	}
	t.detach(f)

	if f.buffered {
		return t.buffered.Discard()
	}
	return nil
}

// Close uninstalls undo capture and drops every listener.
func (t *Tx[E]) Close() error {
	if len(t.frames) > 0 {
		return ErrOpenTransaction
	}

	err := t.live.RemoveListener(t.liveHandle)
	t.liveListeners.clear()
	t.undoListeners.clear()
	t.buffered.listeners.clear()
	return err
}

func (t *Tx[E]) top() *frame {
	if len(t.frames) == 0 {
		return nil
	}
	return t.frames[len(t.frames)-1]
}

func (t *Tx[E]) pop(op string) (*frame, error) {
	f := t.top()
	if f == nil {
		return nil, &ProtocolError{Op: op}
	}
	t.frames = t.frames[:len(t.frames)-1]
	return f, nil
}

// detach removes an abandoned frame from its parent.
func (t *Tx[E]) detach(f *frame) {
	if parent := t.top(); parent != nil {
		parent.edits.removeLast(f.edits)
	}
}

// Insert records values inserted at index.
func (t *Tx[E]) Insert(index int, values ...E) error {
	return t.apply(func() error { return t.live.Insert(index, values...) })
}

// Delete records removal of the given values, which were at index and following positions.
func (t *Tx[E]) Delete(index int, olds ...E) error {
	return t.apply(func() error { return t.live.Delete(index, olds...) })
}

// Update records the value at index being replaced.
func (t *Tx[E]) Update(index int, prev, next E) error {
	return t.apply(func() error { return t.live.Update(index, prev, next) })
}

// AddChange records a run of changes.
func (t *Tx[E]) AddChange(start int, kind event.Kind, changes []event.Change[E]) error {
	return t.apply(func() error { return t.live.AddChange(start, kind, changes) })
}

// Reorder records a permutation of the first len(perm) elements.
func (t *Tx[E]) Reorder(perm []int, changes []event.Change[E]) error {
	return t.apply(func() error { return t.live.Reorder(perm, changes) })
}

// Forward re-emits an upstream event.
func (t *Tx[E]) Forward(ev *event.Event[E]) error {
	return t.live.Forward(ev)
}

func (t *Tx[E]) apply(fn func() error) error {
	if err := t.live.Begin(true); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return multierr.Append(err, t.live.Discard())
	}
	return t.live.Commit()
}

// replay runs fn as a single live event with undo capture suppressed
// and contradictions allowed.
func (t *Tx[E]) replay(fn func() error) (err error) {
	release := t.suppressCapture()
	defer release()

	t.live.permissive++
	t.buffered.permissive++
	defer func() {
		t.live.permissive--
		t.buffered.permissive--
	}()

	if err := t.live.Begin(true); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return multierr.Append(err, t.live.Commit())
	}
	return t.live.Commit()
}

func (t *Tx[E]) onLive(ev *event.Event[E]) error {
	var err error
	for _, l := range t.liveListeners.inOrder() {
		err = multierr.Append(err, l(ev))
	}

	err = multierr.Append(err, t.capture(ev))

	return multierr.Append(err, t.buffered.Forward(ev))
}

func (t *Tx[E]) publish(e Edit) {
	for _, l := range t.undoListeners.reversed() {
		l(e)
	}
}
