// Package colortree implements an order-statistics tree over a sequence of elements tagged
// with one of a small fixed set of colors. Consecutive elements sharing a color and a value
// are stored as a single run, and every subtree caches the number of elements of each color,
// so positions can be counted in any subset of colors (a Space) in logarithmic time.
//
// The tree is an implicit treap: there are no keys, element order is determined by
// positional indexes. Runs are cut when an operation addresses the middle of one.
package colortree

import (
	"fmt"
	"iter"
	"math/bits"
	"math/rand/v2"
	"strings"
)

// NumColors is the number of distinct colors an element can have.
const NumColors = 4

// Color of an element. Must be less than NumColors.
type Color uint8

// Space is a set of colors used to count elements.
type Space uint8

// All is the space containing every color.
const All Space = 1<<NumColors - 1

// Spaces creates a space from the given colors.
func Spaces(colors ...Color) Space {
	var s Space
	for _, c := range colors {
		s |= c.Space()
	}
	return s
}

// Space returns the space containing only this color.
func (c Color) Space() Space {
	if c >= NumColors {
		panic(fmt.Sprintf("BUG: invalid color %d", c))
	}
	return 1 << c
}

// Has checks whether the color is a member of the space.
func (s Space) Has(c Color) bool {
	return s&c.Space() != 0
}

type node[V any] struct {
	left, right *node[V]
	prio        uint64
	color       Color
	value       V
	length      int
	counts      [NumColors]int
}

func (n *node[V]) count(s Space) int {
	if n == nil {
		return 0
	}
	if s == All {
		return n.counts[0] + n.counts[1] + n.counts[2] + n.counts[3]
	}
	var total int
	for c := range Color(NumColors) {
		if s.Has(c) {
			total += n.counts[c]
		}
	}
	return total
}

// own returns the number of elements of the node's run in space s.
func (n *node[V]) own(s Space) int {
	if s.Has(n.color) {
		return n.length
	}
	return 0
}

func (n *node[V]) update() {
	n.counts = [NumColors]int{}
	n.counts[n.color] = n.length
	if l := n.left; l != nil {
		for i := range n.counts {
			n.counts[i] += l.counts[i]
		}
	}
	if r := n.right; r != nil {
		for i := range n.counts {
			n.counts[i] += r.counts[i]
		}
	}
}

// Tree is a colored order-statistics tree. Zero value is not usable, use New.
// Not safe for concurrent use.
type Tree[V any] struct {
	root *node[V]
	rng  *rand.Rand
}

// New creates an empty tree.
func New[V any]() *Tree[V] {
	return &Tree[V]{
		rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // Treap priorities don't need a secure source.
	}
}

// Size returns the number of elements in the space.
func (t *Tree[V]) Size(s Space) int {
	return t.root.count(s)
}

// Clear removes all the elements.
func (t *Tree[V]) Clear() {
	t.root = nil
}

// Add inserts count elements of the given color and value before the index-th element of space s.
// When index equals Size(s) the elements are appended at the end of the tree.
// The elements are stored as a single run.
func (t *Tree[V]) Add(index int, s Space, color Color, value V, count int) {
	t.checkInsert(index, s)
	color.Space() // panics on invalid colors
	if count <= 0 {
		return
	}

	l, r := split(t.root, index, s)
	t.root = merge(merge(l, t.newRun(color, value, count)), r)
}

// Remove deletes count consecutive elements starting at the index-th element of space s.
func (t *Tree[V]) Remove(index int, s Space, count int) {
	t.checkIndex(index, s)
	l, r := split(t.root, index, s)
	m, r := split(r, count, All)
	if m.count(All) != count {
		t.root = merge(merge(l, m), r)
		panic(fmt.Sprintf("colortree: cannot remove %d elements at %d", count, index))
	}
	t.root = merge(l, r)
}

// Set replaces color and value of count consecutive elements starting at the index-th
// element of space s. The replaced elements become a single run.
func (t *Tree[V]) Set(index int, s Space, color Color, value V, count int) {
	t.checkIndex(index, s)
	color.Space() // panics on invalid colors

	l, r := split(t.root, index, s)
	m, r := split(r, count, All)
	if m.count(All) != count {
		t.root = merge(merge(l, m), r)
		panic(fmt.Sprintf("colortree: cannot set %d elements at %d", count, index))
	}
	if count > 0 {
		m = t.newRun(color, value, count)
	}
	t.root = merge(merge(l, m), r)
}

func (t *Tree[V]) newRun(color Color, value V, count int) *node[V] {
	n := &node[V]{prio: t.rng.Uint64(), color: color, value: value, length: count}
	n.update()
	return n
}

// Get returns color and value of the index-th element of space s.
func (t *Tree[V]) Get(index int, s Space) (Color, V) {
	t.checkIndex(index, s)

	n := t.root
	for n != nil {
		lc := n.left.count(s)
		switch {
		case index < lc:
			n = n.left
		case index < lc+n.own(s):
			return n.color, n.value
		default:
			index -= lc + n.own(s)
			n = n.right
		}
	}

	panic("BUG: colortree counts are inconsistent")
}

// IndexOf returns the number of elements of space to that precede the index-th element of space from.
// Index may be equal to Size(from), in which case Size(to) is returned.
func (t *Tree[V]) IndexOf(index int, from, to Space) int {
	t.checkInsert(index, from)

	var before int
	n := t.root
	for n != nil {
		lc := n.left.count(from)
		switch {
		case index < lc:
			n = n.left
		case index < lc+n.own(from):
			before += n.left.count(to)
			if to.Has(n.color) {
				before += index - lc
			}
			return before
		default:
			index -= lc + n.own(from)
			before += n.left.count(to) + n.own(to)
			n = n.right
		}
	}

	return before
}

// Convert translates the index-th element of space from into an index in space to.
// If that element is not a member of space to, the index of the nearest preceding element
// of space to is returned, which is -1 when there is none.
// Index equal to Size(from) converts to Size(to).
func (t *Tree[V]) Convert(index int, from, to Space) int {
	if index == t.Size(from) {
		t.checkInsert(index, from)
		return t.Size(to)
	}

	c, _ := t.Get(index, from)
	before := t.IndexOf(index, from, to)
	if to.Has(c) {
		return before
	}
	return before - 1
}

// All returns an iterator over colors and values of all elements in order.
// It visits every element, use Runs to skip parts of the tree.
func (t *Tree[V]) All() iter.Seq2[Color, V] {
	return func(yield func(Color, V) bool) {
		for r := range t.Runs(All, All) {
			for range r.Len {
				if !yield(r.Color, r.Value) {
					return
				}
			}
		}
	}
}

// Run is a sequence of consecutive elements with the same color and value.
type Run[V any] struct {
	// Index is the number of elements of the position space preceding the run.
	Index int
	Color Color
	Value V
	Len   int
}

// Runs returns an iterator over the runs whose color is in space s, in order.
// Subtrees without elements of s are skipped, so the cost depends on the number of
// matching runs, not on the size of the tree. Run indexes are counted in space pos.
func (t *Tree[V]) Runs(s, pos Space) iter.Seq[Run[V]] {
	return func(yield func(Run[V]) bool) {
		walkRuns(t.root, 0, s, pos, yield)
	}
}

func walkRuns[V any](n *node[V], base int, s, pos Space, yield func(Run[V]) bool) bool {
	if n == nil || n.count(s) == 0 {
		return true
	}
	if !walkRuns(n.left, base, s, pos, yield) {
		return false
	}
	idx := base + n.left.count(pos)
	if s.Has(n.color) && !yield(Run[V]{Index: idx, Color: n.color, Value: n.value, Len: n.length}) {
		return false
	}
	return walkRuns(n.right, idx+n.own(pos), s, pos, yield)
}

// Format renders the colors of all elements using the given names.
func (t *Tree[V]) Format(names [NumColors]string) string {
	var sb strings.Builder
	for c := range t.All() {
		sb.WriteString(names[c])
	}
	return sb.String()
}

// Nodes returns the number of runs stored in the tree. Useful for tests.
func (t *Tree[V]) Nodes() int {
	return nodes(t.root)
}

func nodes[V any](n *node[V]) int {
	if n == nil {
		return 0
	}
	return 1 + nodes(n.left) + nodes(n.right)
}

// Height returns the height of the tree. Useful for tests.
func (t *Tree[V]) Height() int {
	return height(t.root)
}

func height[V any](n *node[V]) int {
	if n == nil {
		return 0
	}
	return 1 + max(height(n.left), height(n.right))
}

// MaxExpectedHeight is a loose upper bound of a balanced treap height with n nodes.
func MaxExpectedHeight(n int) int {
	return 4*bits.Len(uint(n)) + 4
}

func (t *Tree[V]) checkIndex(index int, s Space) {
	if size := t.Size(s); index < 0 || index >= size {
		panic(fmt.Sprintf("colortree: index %d out of bounds for size %d", index, size))
	}
}

func (t *Tree[V]) checkInsert(index int, s Space) {
	if size := t.Size(s); index < 0 || index > size {
		panic(fmt.Sprintf("colortree: index %d out of bounds for size %d", index, size))
	}
}

// split divides the tree so that the right part starts with the k-th element of space s.
// The left part keeps every element preceding it, including elements outside of s.
// A run containing the k-th element past its start is cut in two.
func split[V any](n *node[V], k int, s Space) (*node[V], *node[V]) {
	if n == nil {
		return nil, nil
	}

	lc := n.left.count(s)
	switch {
	case k <= lc && (k < lc || s.Has(n.color)):
		l, r := split(n.left, k, s)
		n.left = r
		n.update()
		return l, n
	case k < lc+n.own(s):
		head := &node[V]{prio: n.prio, color: n.color, value: n.value, length: k - lc, left: n.left}
		head.update()
		n.left = nil
		n.length -= head.length
		n.update()
		return head, n
	}

	l, r := split(n.right, k-lc-n.own(s), s)
	n.right = l
	n.update()
	return n, r
}

func merge[V any](a, b *node[V]) *node[V] {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}

	if a.prio > b.prio {
		a.right = merge(a.right, b)
		a.update()
		return a
	}

	b.left = merge(a, b.left)
	b.update()
	return b
}
