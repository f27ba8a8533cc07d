// Package delta implements the two representations of a not yet committed list change:
// a compact linear BlockSequence for edits arriving in increasing index order,
// and a Tree which absorbs edits in any order and keeps source and target indexes mapped.
package delta

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"listdelta/backend/event"
	"listdelta/backend/util/intvec"
)

// BlockSequence is a list of change blocks in increasing index order.
// It only accepts changes which don't go back before the already finalized
// part of the sequence; otherwise AddChange reports false and the caller
// is supposed to switch to a Tree.
// Zero value is ready to use. Not safe for concurrent use.
type BlockSequence[E any] struct {
	starts  intvec.Vec
	kinds   intvec.Vec
	changes [][]event.Change[E]

	// AllowContradictions makes deleting a just inserted element
	// silently drop both changes instead of failing.
	AllowContradictions bool
}

// Insert adds an insertion of the range [start, end) with unknown values.
func (s *BlockSequence[E]) Insert(start, end int) (bool, error) {
	return s.AddChange(start, event.Insert, event.UnknownChanges[E](end-start))
}

// Update adds an update of the range [start, end) with unknown values.
func (s *BlockSequence[E]) Update(start, end int) (bool, error) {
	return s.AddChange(start, event.Update, event.UnknownChanges[E](end-start))
}

// Delete adds a deletion of the range [start, end) with unknown values.
func (s *BlockSequence[E]) Delete(start, end int) (bool, error) {
	return s.AddChange(start, event.Delete, event.UnknownChanges[E](end-start))
}

// AddChange records a run of changes of the given kind starting at start.
// It returns false when the change can't be represented by the sequence,
// in which case nothing is modified.
func (s *BlockSequence[E]) AddChange(start int, kind event.Kind, changes []event.Change[E]) (bool, error) {
	if start < 0 {
		return false, fmt.Errorf("block sequence change at %d: %w", start, event.ErrOutOfBounds)
	}
	if kind > event.Delete {
		panic(fmt.Sprintf("BUG: can't add change of kind %v", kind))
	}
	if len(changes) == 0 {
		return true, nil
	}

	if s.Len() == 0 {
		s.push(start, kind, slices.Clone(changes))
		return true, nil
	}

	last := s.Len() - 1
	tail := s.block(last)
	end := start + len(changes)

	if overwriteRule[E](tail.Kind, kind) != nil && s.overlaps(tail, start, end) {
		if err := s.overwrite(tail, kind, start, changes); err != nil {
			return false, err
		}
		return true, nil
	}

	if lastChanged := tail.End(); start < lastChanged {
		return false, nil
	}

	s.push(start, kind, slices.Clone(changes))
	return true, nil
}

// overlaps checks whether [start, end) falls inside the unconsumed range of the tail block.
func (s *BlockSequence[E]) overlaps(tail event.Block[E], start, end int) bool {
	if tail.Kind == event.Delete {
		// A deleted run has no width in the target sequence, so only an insert
		// starting exactly where it was removed lines up with it.
		return start == tail.Start && end-start <= len(tail.Changes)
	}
	return tail.Start <= start && end <= tail.Start+len(tail.Changes)
}

type combineFunc[E any] func(standing, incoming event.Change[E]) (event.Change[E], bool)

func overwriteRule[E any](standing, incoming event.Kind) combineFunc[E] {
	switch {
	case standing == event.Update && incoming == event.Update:
		return func(s, in event.Change[E]) (event.Change[E], bool) {
			return event.Change[E]{Old: s.Old, New: in.New}, true
		}
	case standing == event.Insert && incoming == event.Delete:
		return func(s, in event.Change[E]) (event.Change[E], bool) {
			return event.Change[E]{}, false
		}
	case standing == event.Insert && incoming == event.Update:
		return func(s, in event.Change[E]) (event.Change[E], bool) {
			return event.Change[E]{Old: event.Unknown[E](), New: in.New}, true
		}
	case standing == event.Delete && incoming == event.Insert:
		return func(s, in event.Change[E]) (event.Change[E], bool) {
			return event.Change[E]{Old: s.Old, New: in.New}, true
		}
	default:
		return nil
	}
}

func resultKind(standing, incoming event.Kind) event.Kind {
	if standing == event.Delete && incoming == event.Insert {
		return event.Update
	}
	return standing
}

func (s *BlockSequence[E]) overwrite(tail event.Block[E], kind event.Kind, start int, changes []event.Change[E]) error {
	combine := overwriteRule[E](tail.Kind, kind)
	offset := start - tail.Start

	mid := make([]event.Change[E], 0, len(changes))
	for i, in := range changes {
		c, keep := combine(tail.Changes[offset+i], in)
		if !keep {
			if !s.AllowContradictions {
				return &event.ContradictionError{Index: start + i, Kind: tail.Kind}
			}
			continue
		}
		mid = append(mid, c)
	}

	prefix := tail.Changes[:offset]
	suffix := tail.Changes[offset+len(changes):]
	newKind := resultKind(tail.Kind, kind)

	s.pop()

	if newKind == tail.Kind {
		merged := make([]event.Change[E], 0, len(prefix)+len(mid)+len(suffix))
		merged = append(merged, prefix...)
		merged = append(merged, mid...)
		merged = append(merged, suffix...)
		s.push(tail.Start, tail.Kind, merged)
		return nil
	}

	// The kind of the overwritten slice changed, so the tail splits into
	// prefix, updated slice and suffix. Empty parts are left out.
	pos := tail.Start
	for _, part := range []event.Block[E]{
		{Kind: tail.Kind, Changes: slices.Clone(prefix)},
		{Kind: newKind, Changes: mid},
		{Kind: tail.Kind, Changes: slices.Clone(suffix)},
	} {
		part.Start = pos
		s.push(part.Start, part.Kind, part.Changes)
		pos = part.End()
	}

	return nil
}

// push appends a block, merging it into the tail when they touch and have the same kind.
// Empty blocks are dropped.
func (s *BlockSequence[E]) push(start int, kind event.Kind, changes []event.Change[E]) {
	if len(changes) == 0 {
		return
	}

	if n := s.Len(); n > 0 {
		tail := s.block(n - 1)
		if tail.Kind == kind && tail.End() == start {
			s.changes[n-1] = append(s.changes[n-1], changes...)
			return
		}
	}

	s.starts.Push(start)
	s.kinds.Push(int(kind))
	s.changes = append(s.changes, changes)
}

func (s *BlockSequence[E]) pop() {
	s.starts.Pop()
	s.kinds.Pop()
	s.changes[len(s.changes)-1] = nil
	s.changes = s.changes[:len(s.changes)-1]
}

func (s *BlockSequence[E]) block(i int) event.Block[E] {
	return event.Block[E]{
		Start:   s.starts.Get(i),
		Kind:    event.Kind(s.kinds.Get(i)),
		Changes: s.changes[i],
	}
}

// Len returns the number of blocks.
func (s *BlockSequence[E]) Len() int {
	return s.starts.Len()
}

// IsEmpty checks whether there are no changes.
func (s *BlockSequence[E]) IsEmpty() bool {
	return s.Len() == 0
}

// Reset drops all the blocks keeping the allocated storage.
func (s *BlockSequence[E]) Reset() {
	s.starts.Clear()
	s.kinds.Clear()
	clear(s.changes)
	s.changes = s.changes[:0]
}

// All iterates over the blocks in order. Blocks must not be modified.
func (s *BlockSequence[E]) All() iter.Seq[event.Block[E]] {
	return func(yield func(event.Block[E]) bool) {
		for i := range s.Len() {
			if !yield(s.block(i)) {
				return
			}
		}
	}
}

// Blocks returns a copy of the blocks.
func (s *BlockSequence[E]) Blocks() []event.Block[E] {
	out := make([]event.Block[E], 0, s.Len())
	for b := range s.All() {
		b.Changes = slices.Clone(b.Changes)
		out = append(out, b)
	}
	return out
}

func (s *BlockSequence[E]) String() string {
	parts := make([]string, 0, s.Len())
	for b := range s.All() {
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ", ")
}
