package event

import (
	"errors"
	"fmt"
)

// Errors shared by the change tracking packages.
var (
	ErrOutOfBounds   = errors.New("index out of bounds")
	ErrContradiction = errors.New("contradicting change")
	ErrUnknownValue  = errors.New("value is unknown")
)

// ContradictionError is returned when a change would erase the record
// of a standing change, and contradictions are not allowed.
type ContradictionError struct {
	Index int
	Kind  Kind
}

func (e *ContradictionError) Error() string {
	return fmt.Sprintf("change at %d contradicts standing %s change", e.Index, kindName(e.Kind))
}

// Is implements errors.Is.
func (e *ContradictionError) Is(target error) bool {
	return target == ErrContradiction
}

func kindName(k Kind) string {
	switch k {
	case Insert:
		return "insert"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "no-op"
	}
}
