// Package event defines the change vocabulary shared by the delta representations,
// the assemblers and the replication layer: kinds, values, changes, blocks and committed events.
package event

import (
	"fmt"
	"iter"
	"slices"
	"strconv"
	"strings"
)

// Kind of a change.
type Kind uint8

// Change kinds. The values double as colors of the delta tree nodes.
const (
	Insert Kind = iota
	Update
	Delete
	NoChange
)

func (k Kind) String() string {
	switch k {
	case Insert:
		return "+"
	case Update:
		return "U"
	case Delete:
		return "X"
	case NoChange:
		return "_"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a list element which may be unknown,
// e.g. when a bulk operation only knows how many elements were touched.
type Value[E any] struct {
	V     E
	Known bool
}

// Known wraps a concrete value.
func Known[E any](v E) Value[E] {
	return Value[E]{V: v, Known: true}
}

// Unknown returns the unknown value marker.
func Unknown[E any]() Value[E] {
	return Value[E]{}
}

func (v Value[E]) String() string {
	if !v.Known {
		return "?"
	}
	return fmt.Sprint(v.V)
}

// Change holds the values before and after a single element change.
// The kind of the change is carried by the enclosing block.
type Change[E any] struct {
	Old Value[E]
	New Value[E]
}

// Inserted creates a change for an inserted value.
func Inserted[E any](v E) Change[E] {
	return Change[E]{Old: Unknown[E](), New: Known(v)}
}

// Deleted creates a change for a deleted value.
func Deleted[E any](v E) Change[E] {
	return Change[E]{Old: Known(v), New: Unknown[E]()}
}

// Updated creates a change for a replaced value.
func Updated[E any](prev, next E) Change[E] {
	return Change[E]{Old: Known(prev), New: Known(next)}
}

// UnknownChanges creates n changes with unknown values.
func UnknownChanges[E any](n int) []Change[E] {
	return make([]Change[E], n)
}

// Block is a contiguous run of changes of the same kind.
// Blocks of an event are applied in order. Insert and Update blocks cover
// the indexes [Start, Start+len(Changes)); a Delete block removes
// len(Changes) elements, all at Start.
type Block[E any] struct {
	Start   int
	Kind    Kind
	Changes []Change[E]
}

// End returns the index right after the block in the target sequence.
// For Delete blocks it's equal to Start.
func (b Block[E]) End() int {
	if b.Kind == Delete {
		return b.Start
	}
	return b.Start + len(b.Changes)
}

func (b Block[E]) String() string {
	switch n := len(b.Changes); n {
	case 0:
		return b.Kind.String() + strconv.Itoa(b.Start) + " (empty)"
	case 1:
		return b.Kind.String() + strconv.Itoa(b.Start)
	default:
		return b.Kind.String() + strconv.Itoa(b.Start) + "-" + strconv.Itoa(b.Start+n-1)
	}
}

// Entry is a single change together with its kind.
type Entry[E any] struct {
	Kind Kind
	Change[E]
}

// Event is an immutable description of everything that changed in one committed transaction.
type Event[E any] struct {
	blocks  []Block[E]
	reorder []int
}

// New creates an event from the given blocks. Blocks are not copied.
func New[E any](blocks []Block[E]) *Event[E] {
	return &Event[E]{blocks: blocks}
}

// NewReorder creates an event which is a pure permutation of the elements.
// It is described as an update of every element, and perm[i] is the previous index
// of the element now at index i.
func NewReorder[E any](blocks []Block[E], perm []int) *Event[E] {
	return &Event[E]{blocks: blocks, reorder: perm}
}

// Blocks returns a copy of the event blocks.
func (e *Event[E]) Blocks() []Block[E] {
	out := make([]Block[E], len(e.blocks))
	for i, b := range e.blocks {
		b.Changes = slices.Clone(b.Changes)
		out[i] = b
	}
	return out
}

// Len returns the number of changed elements.
func (e *Event[E]) Len() int {
	var n int
	for _, b := range e.blocks {
		n += len(b.Changes)
	}
	return n
}

// IsEmpty checks whether the event has no changes.
func (e *Event[E]) IsEmpty() bool {
	return len(e.blocks) == 0
}

// IsReorder checks whether the event is a pure reordering.
func (e *Event[E]) IsReorder() bool {
	return e.reorder != nil
}

// ReorderMap returns the permutation of a reordering event, or nil.
func (e *Event[E]) ReorderMap() []int {
	return slices.Clone(e.reorder)
}

// Changes iterates over all the changes in order of application.
// Indexes are ascending within every block.
func (e *Event[E]) Changes() iter.Seq2[int, Entry[E]] {
	return func(yield func(int, Entry[E]) bool) {
		for _, b := range e.blocks {
			for i, c := range b.Changes {
				idx := b.Start + i
				if b.Kind == Delete {
					idx = b.Start
				}
				if !yield(idx, Entry[E]{Kind: b.Kind, Change: c}) {
					return
				}
			}
		}
	}
}

// Apply replays the event on a copy of the sequence as it was before the event.
func (e *Event[E]) Apply(list []E) ([]E, error) {
	out := slices.Clone(list)
	for idx, c := range e.Changes() {
		switch c.Kind {
		case Insert:
			if idx < 0 || idx > len(out) {
				return nil, fmt.Errorf("insert at %d of %d: %w", idx, len(out), ErrOutOfBounds)
			}
			if !c.New.Known {
				return nil, fmt.Errorf("insert at %d: %w", idx, ErrUnknownValue)
			}
			out = slices.Insert(out, idx, c.New.V)
		case Update:
			if idx < 0 || idx >= len(out) {
				return nil, fmt.Errorf("update at %d of %d: %w", idx, len(out), ErrOutOfBounds)
			}
			if !c.New.Known {
				return nil, fmt.Errorf("update at %d: %w", idx, ErrUnknownValue)
			}
			out[idx] = c.New.V
		case Delete:
			if idx < 0 || idx >= len(out) {
				return nil, fmt.Errorf("delete at %d of %d: %w", idx, len(out), ErrOutOfBounds)
			}
			out = slices.Delete(out, idx, idx+1)
		default:
			panic(fmt.Sprintf("BUG: unexpected kind %v in event", c.Kind))
		}
	}
	return out, nil
}

func (e *Event[E]) String() string {
	parts := make([]string, len(e.blocks))
	for i, b := range e.blocks {
		parts[i] = b.String()
	}
	return strings.Join(parts, ", ")
}
