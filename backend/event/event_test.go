package event

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventApply(t *testing.T) {
	ev := New([]Block[string]{
		{Start: 0, Kind: Update, Changes: []Change[string]{Updated("A", "B")}},
		{Start: 1, Kind: Delete, Changes: []Change[string]{Deleted("B")}},
		{Start: 2, Kind: Insert, Changes: []Change[string]{Inserted("D"), Inserted("E")}},
	})

	got, err := ev.Apply([]string{"A", "B", "C"})
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C", "D", "E"}, got)
	require.Equal(t, "U0, X1, +2-3", ev.String())
	require.Equal(t, 4, ev.Len())
	require.False(t, ev.IsEmpty())
	require.False(t, ev.IsReorder())
}

func TestEventChangesOrder(t *testing.T) {
	ev := New([]Block[int]{
		{Start: 3, Kind: Delete, Changes: UnknownChanges[int](2)},
		{Start: 3, Kind: Insert, Changes: []Change[int]{Inserted(1), Inserted(2)}},
	})

	var idx []int
	var kinds []Kind
	for i, c := range ev.Changes() {
		idx = append(idx, i)
		kinds = append(kinds, c.Kind)
	}
	require.Equal(t, []int{3, 3, 3, 4}, idx)
	require.Equal(t, []Kind{Delete, Delete, Insert, Insert}, kinds)
}

func TestEventApplyErrors(t *testing.T) {
	t.Run("should refuse unknown inserted values", func(t *testing.T) {
		ev := New([]Block[int]{{Start: 0, Kind: Insert, Changes: UnknownChanges[int](1)}})
		_, err := ev.Apply(nil)
		require.ErrorIs(t, err, ErrUnknownValue)
	})

	t.Run("should detect out of bounds deletes", func(t *testing.T) {
		ev := New([]Block[int]{{Start: 1, Kind: Delete, Changes: UnknownChanges[int](2)}})
		_, err := ev.Apply([]int{1, 2})
		require.ErrorIs(t, err, ErrOutOfBounds)
	})

	t.Run("should not modify the input", func(t *testing.T) {
		in := []int{1, 2, 3}
		ev := New([]Block[int]{{Start: 0, Kind: Update, Changes: []Change[int]{Updated(1, 10)}}})
		out, err := ev.Apply(in)
		require.NoError(t, err)
		require.Equal(t, []int{1, 2, 3}, in)
		require.Equal(t, []int{10, 2, 3}, out)
	})
}

func TestBlocksAreCopied(t *testing.T) {
	ev := New([]Block[int]{{Start: 0, Kind: Insert, Changes: []Change[int]{Inserted(1)}}})
	b := ev.Blocks()
	b[0].Changes[0] = Inserted(100)
	require.Equal(t, 1, ev.Blocks()[0].Changes[0].New.V)
}

func TestReorder(t *testing.T) {
	ev := NewReorder([]Block[int]{{Start: 0, Kind: Update, Changes: []Change[int]{Updated(1, 2), Updated(2, 1)}}}, []int{1, 0})
	require.True(t, ev.IsReorder())
	require.Equal(t, []int{1, 0}, ev.ReorderMap())

	out, err := ev.Apply([]int{1, 2})
	require.NoError(t, err)
	require.Equal(t, []int{2, 1}, out)
}

func TestContradictionError(t *testing.T) {
	var err error = &ContradictionError{Index: 2, Kind: Insert}
	require.True(t, errors.Is(err, ErrContradiction))
	require.Equal(t, "change at 2 contradicts standing insert change", err.Error())

	var cerr *ContradictionError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, 2, cerr.Index)
}

func TestValueString(t *testing.T) {
	require.Equal(t, "?", Unknown[int]().String())
	require.Equal(t, "42", Known(42).String())
	require.Equal(t, "X", Delete.String())
}

func TestBlockString(t *testing.T) {
	require.Equal(t, "+3 (empty)", Block[int]{Start: 3, Kind: Insert}.String())
	require.Equal(t, "X3", Block[int]{Start: 3, Kind: Delete, Changes: UnknownChanges[int](1)}.String())
	require.Equal(t, "U3-4", Block[int]{Start: 3, Kind: Update, Changes: UnknownChanges[int](2)}.String())
}
