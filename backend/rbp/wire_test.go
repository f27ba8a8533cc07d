package rbp

import (
	"bytes"
	"testing"

	"listdelta/backend/event"
	"listdelta/backend/testutil"

	"github.com/stretchr/testify/require"
)

func TestEventEncoding(t *testing.T) {
	ev := event.New([]event.Block[string]{
		{Start: 0, Kind: event.Update, Changes: []event.Change[string]{event.Updated("a", "A")}},
		{Start: 1, Kind: event.Insert, Changes: []event.Change[string]{event.Inserted("b"), {}}},
		{Start: 3, Kind: event.Delete, Changes: []event.Change[string]{event.Deleted("c")}},
	})

	data, err := EncodeEvent(ev)
	require.NoError(t, err)

	got, err := DecodeEvent[string](data)
	require.NoError(t, err)
	require.False(t, got.IsReorder())
	testutil.StructsEqual(ev.Blocks(), got.Blocks()).Compare(t, "decoded blocks must match")

	t.Run("should keep reorders", func(t *testing.T) {
		perm := []int{1, 0}
		ev := event.NewReorder([]event.Block[int]{
			{Start: 0, Kind: event.Update, Changes: []event.Change[int]{event.Updated(1, 2), event.Updated(2, 1)}},
		}, perm)

		data, err := EncodeEvent(ev)
		require.NoError(t, err)
		got, err := DecodeEvent[int](data)
		require.NoError(t, err)
		require.True(t, got.IsReorder())
		require.Equal(t, perm, got.ReorderMap())
	})

	t.Run("should reject invalid kinds", func(t *testing.T) {
		data, err := encMode.Marshal(wireEvent[int]{Blocks: []wireBlock[int]{{Start: 0, Kind: event.NoChange}}})
		require.NoError(t, err)
		_, err = DecodeEvent[int](data)
		require.Error(t, err)
	})
}

func TestCodec(t *testing.T) {
	var buf bytes.Buffer
	c := newCodec(&buf)

	in := Message{Type: MsgUpdate, Resource: "todo", Session: "s1", Seq: 7, Payload: []byte{0x80}}
	require.NoError(t, c.write(in))
	require.NoError(t, c.write(Message{Type: MsgUnsubscribe}))

	out, err := c.read()
	require.NoError(t, err)
	require.Equal(t, in, out)

	out, err = c.read()
	require.NoError(t, err)
	require.Equal(t, MsgUnsubscribe, out.Type)
	require.Equal(t, "Unsubscribe", out.Type.String())
}
