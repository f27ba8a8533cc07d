// Package intvec provides a growable vector of ints with a pluggable growth strategy.
package intvec

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxLen is the largest number of elements a Vec can hold.
const MaxLen = math.MaxInt32 - 32

// AllocationError is returned (or used as a panic payload) when growing
// the vector would exceed MaxLen.
type AllocationError struct {
	Requested int
	Max       int
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("intvec: requested capacity %d exceeds maximum length %d", e.Requested, e.Max)
}

// Sizing decides the new capacity of the vector.
type Sizing interface {
	// Grow returns the new capacity given the current capacity, the number of
	// stored elements, and the number of extra elements requested.
	Grow(capacity, elements, requested int) (int, error)
}

// BoundedProportional grows the capacity by Ratio, clamped between MinGrow and MaxGrow.
type BoundedProportional struct {
	MinGrow int
	MaxGrow int
	Ratio   float64
}

// DefaultSizing is used by vectors created without an explicit strategy.
var DefaultSizing = BoundedProportional{
	MinGrow: 10,
	MaxGrow: MaxLen,
	Ratio:   1.5,
}

// Grow implements Sizing.
func (s BoundedProportional) Grow(capacity, elements, requested int) (int, error) {
	need := elements + requested
	if need < elements || need > MaxLen {
		return 0, &AllocationError{Requested: need, Max: MaxLen}
	}

	growBy := int(float64(capacity) * (s.Ratio - 1))
	growBy = max(growBy, s.MinGrow)
	growBy = min(growBy, s.MaxGrow)

	growTo := capacity + growBy
	if growTo > MaxLen || growTo < capacity {
		growTo = MaxLen
	}

	return max(need, growTo), nil
}

// Vec is a growable array of ints. Zero value is ready to use.
// Not safe for concurrent use.
type Vec struct {
	data   []int
	sizing Sizing
}

// New creates a vector with the given initial capacity and sizing strategy.
// Nil sizing means DefaultSizing.
func New(capacity int, sizing Sizing) *Vec {
	if capacity < 0 || capacity > MaxLen {
		panic(&AllocationError{Requested: capacity, Max: MaxLen})
	}
	return &Vec{
		data:   make([]int, 0, capacity),
		sizing: sizing,
	}
}

// Len returns the number of elements.
func (v *Vec) Len() int {
	return len(v.data)
}

// Cap returns the current capacity.
func (v *Vec) Cap() int {
	return cap(v.data)
}

// Reserve makes sure there is room for n more elements.
func (v *Vec) Reserve(n int) error {
	if len(v.data)+n <= cap(v.data) {
		return nil
	}

	s := v.sizing
	if s == nil {
		s = DefaultSizing
	}

	newCap, err := s.Grow(cap(v.data), len(v.data), n)
	if err != nil {
		return err
	}

	data := make([]int, len(v.data), newCap)
	copy(data, v.data)
	v.data = data
	return nil
}

func (v *Vec) ensure(n int) {
	if err := v.Reserve(n); err != nil {
		panic(err)
	}
}

// Push appends a value.
func (v *Vec) Push(x int) {
	v.ensure(1)
	v.data = append(v.data, x)
}

// Pop removes and returns the last value.
func (v *Vec) Pop() int {
	v.check(0, len(v.data)-1)
	x := v.data[len(v.data)-1]
	v.data = v.data[:len(v.data)-1]
	return x
}

// PeekLast returns the last value without removing it.
func (v *Vec) PeekLast() int {
	v.check(0, len(v.data)-1)
	return v.data[len(v.data)-1]
}

// Get returns the value at index.
func (v *Vec) Get(index int) int {
	v.check(index, len(v.data)-1)
	return v.data[index]
}

// Set replaces the value at index and returns the previous one.
func (v *Vec) Set(index, x int) int {
	v.check(index, len(v.data)-1)
	prev := v.data[index]
	v.data[index] = x
	return prev
}

// InsertAt inserts x at index, shifting the tail right. Index may be equal to Len.
func (v *Vec) InsertAt(index, x int) {
	v.check(index, len(v.data))
	v.ensure(1)
	v.data = append(v.data, 0)
	copy(v.data[index+1:], v.data[index:])
	v.data[index] = x
}

// RemoveAt removes and returns the value at index.
func (v *Vec) RemoveAt(index int) int {
	v.check(index, len(v.data)-1)
	x := v.data[index]
	copy(v.data[index:], v.data[index+1:])
	v.data = v.data[:len(v.data)-1]
	return x
}

// RemoveRange removes values in [from, to).
func (v *Vec) RemoveRange(from, to int) {
	if from < 0 || to > len(v.data) || from > to {
		panic(fmt.Sprintf("intvec: range [%d, %d) out of bounds for length %d", from, to, len(v.data)))
	}
	n := copy(v.data[from:], v.data[to:])
	v.data = v.data[:from+n]
}

// Resize sets the length to n. New slots are zero.
// Shrinking never reallocates.
func (v *Vec) Resize(n int) {
	if n < 0 {
		panic(fmt.Sprintf("intvec: negative size %d", n))
	}
	if n <= len(v.data) {
		v.data = v.data[:n]
		return
	}

	old := len(v.data)
	v.ensure(n - old)
	v.data = v.data[:n]
	clear(v.data[old:])
}

// Clear drops all elements but keeps the capacity.
func (v *Vec) Clear() {
	v.data = v.data[:0]
}

// Release drops all elements and the backing storage.
func (v *Vec) Release() {
	v.data = nil
}

// Slice returns the elements. Callers must not modify it.
func (v *Vec) Slice() []int {
	return v.data
}

// Clone returns an independent copy of the vector.
func (v *Vec) Clone() *Vec {
	data := make([]int, len(v.data), cap(v.data))
	copy(data, v.data)
	return &Vec{data: data, sizing: v.sizing}
}

func (v *Vec) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, x := range v.data {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(strconv.Itoa(x))
	}
	sb.WriteByte(']')
	return sb.String()
}

func (v *Vec) check(index, last int) {
	if index < 0 || index > last {
		panic(fmt.Sprintf("intvec: index %d out of bounds for length %d", index, len(v.data)))
	}
}
