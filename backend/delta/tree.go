package delta

import (
	"fmt"

	"listdelta/backend/event"
	"listdelta/backend/util/colortree"
)

var (
	colorInsert   = colortree.Color(event.Insert)
	colorUpdate   = colortree.Color(event.Update)
	colorDelete   = colortree.Color(event.Delete)
	colorNoChange = colortree.Color(event.NoChange)

	// Nodes that exist in the sequence before the changes.
	sourceSpace = colortree.Spaces(colorUpdate, colorDelete, colorNoChange)
	// Nodes that exist in the sequence after the changes.
	targetSpace = colortree.Spaces(colorUpdate, colorInsert, colorNoChange)
	// Nodes that represent an actual change.
	changeSpace = colortree.Spaces(colorUpdate, colorInsert, colorDelete)

	colorNames = [colortree.NumColors]string{"+", "U", "X", "_"}
)

// Tree records changes of a list in any order. Each element of the list is colored by the
// kind of its change, so indexes can be counted either in the source sequence (before the
// changes) or in the target sequence (after the changes). Unchanged elements are kept as
// runs, so the cost depends on the number of changes rather than on the list size.
// Not safe for concurrent use.
type Tree[E any] struct {
	tree  *colortree.Tree[event.Change[E]]
	sized bool

	// AllowContradictions makes deleting a just inserted element
	// silently drop both changes instead of failing.
	AllowContradictions bool

	// DynamicSizing makes Reset ignore the given size. The tree then grows
	// on demand whenever a change touches indexes beyond the known ones.
	DynamicSizing bool
}

// NewTree creates an empty tree with dynamic sizing enabled.
func NewTree[E any]() *Tree[E] {
	return &Tree[E]{
		tree:          colortree.New[event.Change[E]](),
		DynamicSizing: true,
	}
}

// Reset clears all the changes. Without dynamic sizing the tree starts
// as size unchanged elements and indexes are checked against it.
func (t *Tree[E]) Reset(size int) {
	t.tree.Clear()
	t.sized = !t.DynamicSizing
	if t.sized && size > 0 {
		t.tree.Add(0, colortree.All, colorNoChange, event.Change[E]{}, size)
	}
}

// grow appends unchanged elements until the space has at least n nodes.
// Does nothing once the real size is known.
func (t *Tree[E]) grow(s colortree.Space, n int) {
	if t.sized {
		return
	}
	if missing := n - t.tree.Size(s); missing > 0 {
		t.tree.Add(t.tree.Size(colortree.All), colortree.All, colorNoChange, event.Change[E]{}, missing)
	}
}

// TargetSize returns the number of elements after the changes.
func (t *Tree[E]) TargetSize() int {
	return t.tree.Size(targetSpace)
}

// SourceSize returns the number of elements before the changes.
func (t *Tree[E]) SourceSize() int {
	return t.tree.Size(sourceSpace)
}

// IsEmpty checks whether there are no recorded changes.
func (t *Tree[E]) IsEmpty() bool {
	return t.tree.Size(changeSpace) == 0
}

// TargetToSource maps a target index to the source index of the same element.
// For inserted elements it returns the index of the closest preceding source element, possibly -1.
func (t *Tree[E]) TargetToSource(index int) int {
	t.grow(targetSpace, index+1)
	return t.tree.Convert(index, targetSpace, sourceSpace)
}

// SourceToTarget maps a source index to the target index of the same element.
// For deleted elements it returns the index of the closest preceding target element, possibly -1.
func (t *Tree[E]) SourceToTarget(index int) int {
	t.grow(sourceSpace, index+1)
	return t.tree.Convert(index, sourceSpace, targetSpace)
}

// Insert records an insertion of [start, end) with unknown values.
func (t *Tree[E]) Insert(start, end int) error {
	return t.AddTargetChange(start, event.Insert, event.UnknownChanges[E](end-start))
}

// Update records an update of [start, end) with unknown values.
func (t *Tree[E]) Update(start, end int) error {
	return t.AddTargetChange(start, event.Update, event.UnknownChanges[E](end-start))
}

// Delete records a deletion of [start, end) with unknown values.
func (t *Tree[E]) Delete(start, end int) error {
	return t.AddTargetChange(start, event.Delete, event.UnknownChanges[E](end-start))
}

// AddTargetChange records a run of changes starting at the target index start.
// On error the tree is left unchanged.
func (t *Tree[E]) AddTargetChange(start int, kind event.Kind, changes []event.Change[E]) error {
	n := len(changes)

	switch kind {
	case event.Insert:
		t.grow(targetSpace, start)
		if err := t.checkRange(kind, start, 0); err != nil {
			return err
		}
		for i, c := range changes {
			t.tree.Add(start+i, targetSpace, colorInsert, c, 1)
		}
	case event.Update:
		t.grow(targetSpace, start+n)
		if err := t.checkRange(kind, start, n); err != nil {
			return err
		}
		for i, c := range changes {
			idx := start + i
			color, standing := t.tree.Get(idx, targetSpace)
			switch color {
			case colorInsert:
				t.tree.Set(idx, targetSpace, colorInsert, event.Change[E]{Old: event.Unknown[E](), New: c.New}, 1)
			case colorUpdate:
				t.tree.Set(idx, targetSpace, colorUpdate, event.Change[E]{Old: standing.Old, New: c.New}, 1)
			default:
				t.tree.Set(idx, targetSpace, colorUpdate, c, 1)
			}
		}
	case event.Delete:
		t.grow(targetSpace, start+n)
		if err := t.checkRange(kind, start, n); err != nil {
			return err
		}
		if !t.AllowContradictions {
			for i := range n {
				if color, _ := t.tree.Get(start+i, targetSpace); color == colorInsert {
					return &event.ContradictionError{Index: start + i, Kind: event.Insert}
				}
			}
		}
		for _, c := range changes {
			color, standing := t.tree.Get(start, targetSpace)
			switch color {
			case colorInsert:
				t.tree.Remove(start, targetSpace, 1)
			case colorUpdate:
				t.tree.Set(start, targetSpace, colorDelete, event.Change[E]{Old: standing.Old, New: event.Unknown[E]()}, 1)
			default:
				t.tree.Set(start, targetSpace, colorDelete, c, 1)
			}
		}
	default:
		panic(fmt.Sprintf("BUG: can't add change of kind %v", kind))
	}

	return nil
}

func (t *Tree[E]) checkRange(kind event.Kind, start, n int) error {
	size := t.TargetSize()
	if start < 0 || start+n > size {
		return fmt.Errorf("%s at %d with %d elements out of %d: %w", kind, start, n, size, event.ErrOutOfBounds)
	}
	return nil
}

// SourceInsert records that an element was inserted in the source sequence
// and is present unchanged in the target.
func (t *Tree[E]) SourceInsert(index int) error {
	t.grow(sourceSpace, index)
	if size := t.SourceSize(); index < 0 || index > size {
		return fmt.Errorf("source insert at %d out of %d: %w", index, size, event.ErrOutOfBounds)
	}
	t.tree.Add(index, sourceSpace, colorNoChange, event.Change[E]{}, 1)
	return nil
}

// SourceDelete records that an element was removed from the source sequence.
func (t *Tree[E]) SourceDelete(index int) error {
	if err := t.checkSource(index); err != nil {
		return err
	}
	t.tree.Remove(index, sourceSpace, 1)
	return nil
}

// SourceRevert forgets the change recorded for the element at the source index.
func (t *Tree[E]) SourceRevert(index int) error {
	if err := t.checkSource(index); err != nil {
		return err
	}
	t.tree.Set(index, sourceSpace, colorNoChange, event.Change[E]{}, 1)
	return nil
}

func (t *Tree[E]) checkSource(index int) error {
	t.grow(sourceSpace, index+1)
	if size := t.SourceSize(); index < 0 || index >= size {
		return fmt.Errorf("source index %d out of %d: %w", index, size, event.ErrOutOfBounds)
	}
	return nil
}

// ChangeKind returns the kind of change recorded for the element at the source index.
func (t *Tree[E]) ChangeKind(sourceIndex int) event.Kind {
	t.grow(sourceSpace, sourceIndex+1)
	color, _ := t.tree.Get(sourceIndex, sourceSpace)
	return event.Kind(color)
}

// TargetValue returns the value the element at the target index has after the changes.
func (t *Tree[E]) TargetValue(index int) event.Value[E] {
	t.grow(targetSpace, index+1)
	_, c := t.tree.Get(index, targetSpace)
	return c.New
}

// SourceValue returns the value the element at the source index had before the changes.
func (t *Tree[E]) SourceValue(index int) event.Value[E] {
	t.grow(sourceSpace, index+1)
	_, c := t.tree.Get(index, sourceSpace)
	return c.Old
}

// AddAll replays the blocks of the sequence into the tree.
func (t *Tree[E]) AddAll(seq *BlockSequence[E]) error {
	for b := range seq.All() {
		if err := t.AddTargetChange(b.Start, b.Kind, b.Changes); err != nil {
			return err
		}
	}
	return nil
}

// Blocks returns the recorded changes as blocks to be applied in order.
// Unchanged elements are skipped without being visited.
func (t *Tree[E]) Blocks() []event.Block[E] {
	var out []event.Block[E]

	for r := range t.tree.Runs(changeSpace, targetSpace) {
		kind := event.Kind(r.Color)
		for i := range r.Len {
			idx := r.Index
			if kind != event.Delete {
				idx += i
			}

			if n := len(out); n > 0 && out[n-1].Kind == kind && out[n-1].End() == idx {
				out[n-1].Changes = append(out[n-1].Changes, r.Value)
				continue
			}
			out = append(out, event.Block[E]{Start: idx, Kind: kind, Changes: []event.Change[E]{r.Value}})
		}
	}

	return out
}

func (t *Tree[E]) String() string {
	return t.tree.Format(colorNames)
}
