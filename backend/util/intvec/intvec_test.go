package intvec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVecBasics(t *testing.T) {
	var v Vec

	for i := range 25 {
		v.Push(i)
	}
	require.Equal(t, 25, v.Len())
	require.Equal(t, 24, v.PeekLast())
	require.Equal(t, 24, v.Pop())
	require.Equal(t, 24, v.Len())

	v.InsertAt(0, -1)
	require.Equal(t, -1, v.Get(0))
	require.Equal(t, 0, v.Get(1))

	v.InsertAt(v.Len(), 100)
	require.Equal(t, 100, v.PeekLast())

	require.Equal(t, -1, v.RemoveAt(0))
	require.Equal(t, 0, v.Get(0))

	require.Equal(t, 3, v.Set(3, 33))
	require.Equal(t, 33, v.Get(3))

	v.RemoveRange(1, 4)
	require.Equal(t, []int{0, 4, 5}, v.Slice()[:3])
}

func TestVecResize(t *testing.T) {
	v := New(4, nil)
	v.Push(7)
	v.Push(8)

	v.Resize(5)
	require.Equal(t, []int{7, 8, 0, 0, 0}, v.Slice())

	capBefore := v.Cap()
	v.Resize(1)
	require.Equal(t, []int{7}, v.Slice())
	require.Equal(t, capBefore, v.Cap(), "shrinking must not reallocate")

	// Slots exposed by growing again must be zeroed.
	v.Resize(3)
	require.Equal(t, []int{7, 0, 0}, v.Slice())
}

func TestVecClearRelease(t *testing.T) {
	v := New(0, nil)
	for i := range 50 {
		v.Push(i)
	}
	c := v.Cap()

	v.Clear()
	require.Equal(t, 0, v.Len())
	require.Equal(t, c, v.Cap())

	v.Release()
	require.Equal(t, 0, v.Len())
	require.Equal(t, 0, v.Cap())

	v.Push(1)
	require.Equal(t, "[1]", v.String())
}

func TestVecClone(t *testing.T) {
	v := New(0, nil)
	v.Push(1)
	v.Push(2)

	c := v.Clone()
	c.Set(0, 10)
	require.Equal(t, 1, v.Get(0))
	require.Equal(t, 10, c.Get(0))
}

func TestVecBounds(t *testing.T) {
	var v Vec
	require.Panics(t, func() { v.Pop() })
	require.Panics(t, func() { v.PeekLast() })
	require.Panics(t, func() { v.Get(0) })
	require.Panics(t, func() { v.InsertAt(1, 0) })
	require.Panics(t, func() { v.RemoveRange(0, 1) })

	v.Push(1)
	require.Panics(t, func() { v.Get(-1) })
	require.Panics(t, func() { v.Set(1, 0) })
	require.Panics(t, func() { v.RemoveAt(1) })
	require.Panics(t, func() { v.Resize(-1) })
}

func TestBoundedProportional(t *testing.T) {
	s := DefaultSizing

	t.Run("should grow by at least min grow", func(t *testing.T) {
		n, err := s.Grow(0, 0, 1)
		require.NoError(t, err)
		require.Equal(t, 10, n)
	})

	t.Run("should grow proportionally", func(t *testing.T) {
		n, err := s.Grow(100, 100, 1)
		require.NoError(t, err)
		require.Equal(t, 150, n)
	})

	t.Run("should honor the requested size", func(t *testing.T) {
		n, err := s.Grow(100, 100, 500)
		require.NoError(t, err)
		require.Equal(t, 600, n)
	})

	t.Run("should clamp by max grow", func(t *testing.T) {
		s := BoundedProportional{MinGrow: 1, MaxGrow: 5, Ratio: 3}
		n, err := s.Grow(100, 100, 1)
		require.NoError(t, err)
		require.Equal(t, 105, n)
	})

	t.Run("should fail beyond max length", func(t *testing.T) {
		_, err := s.Grow(10, MaxLen-1, 2)
		var aerr *AllocationError
		require.True(t, errors.As(err, &aerr))
		require.Equal(t, MaxLen+1, aerr.Requested)
	})

	t.Run("should cap growth at max length", func(t *testing.T) {
		n, err := s.Grow(MaxLen-5, MaxLen-5, 1)
		require.NoError(t, err)
		require.Equal(t, MaxLen, n)
	})
}

type fixedSizing int

func (f fixedSizing) Grow(capacity, elements, requested int) (int, error) {
	if elements+requested > int(f) {
		return 0, &AllocationError{Requested: elements + requested, Max: int(f)}
	}
	return int(f), nil
}

func TestVecAllocationFailure(t *testing.T) {
	v := New(0, fixedSizing(2))
	v.Push(1)
	v.Push(2)

	err := v.Reserve(1)
	var aerr *AllocationError
	require.True(t, errors.As(err, &aerr))

	require.PanicsWithError(t, aerr.Error(), func() { v.Push(3) })
	require.Equal(t, 2, v.Len())
}
