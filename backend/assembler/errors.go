package assembler

import (
	"errors"
)

// Errors returned by the assemblers.
var (
	ErrNoTransaction       = errors.New("no open transaction")
	ErrRollbackUnsupported = errors.New("assembler does not support rollback")
	ErrNestingForbidden    = errors.New("can't begin a nested event inside an event that forbids nesting")
	ErrOpenTransaction     = errors.New("transaction is still open")
	ErrNilListener         = errors.New("listener must not be nil")
	ErrUnknownListener     = errors.New("listener is not registered")
	ErrBadReorder          = errors.New("reorder permutation and changes differ in length")
	ErrCannotUndo          = errors.New("edit can't be undone")
	ErrCannotRedo          = errors.New("edit can't be redone")
)

// ProtocolError is returned when ending a transaction that was never begun.
type ProtocolError struct {
	Op string
}

func (e *ProtocolError) Error() string {
	return "no list event exists to " + e.Op
}

// Unwrap implements errors.Unwrap.
func (e *ProtocolError) Unwrap() error {
	return ErrNoTransaction
}
