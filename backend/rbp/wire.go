package rbp

import (
	"fmt"
	"io"
	"strconv"

	"listdelta/backend/event"

	"github.com/fxamacker/cbor/v2"
)

// MessageType is the type of a protocol message.
type MessageType uint8

// Message types.
const (
	MsgSubscribe MessageType = iota + 1
	MsgUnsubscribe
	MsgSnapshot
	MsgUpdate
	MsgError
)

func (t MessageType) String() string {
	switch t {
	case MsgSubscribe:
		return "Subscribe"
	case MsgUnsubscribe:
		return "Unsubscribe"
	case MsgSnapshot:
		return "Snapshot"
	case MsgUpdate:
		return "Update"
	case MsgError:
		return "Error"
	default:
		return "MessageType(" + strconv.Itoa(int(t)) + ")"
	}
}

// Message is a single frame of the protocol stream.
type Message struct {
	Type     MessageType     `cbor:"t"`
	Resource string          `cbor:"r,omitempty"`
	Session  string          `cbor:"s,omitempty"`
	Seq      uint64          `cbor:"q,omitempty"`
	Payload  cbor.RawMessage `cbor:"p,omitempty"`
	Error    string          `cbor:"e,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	decMode, err = cbor.DecOptions{
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// codec reads and writes messages on a stream.
// Reads and writes may happen concurrently with each other, but not with themselves.
type codec struct {
	enc *cbor.Encoder
	dec *cbor.Decoder
}

func newCodec(rw io.ReadWriter) *codec {
	return &codec{
		enc: encMode.NewEncoder(rw),
		dec: decMode.NewDecoder(rw),
	}
}

func (c *codec) write(m Message) error {
	if err := c.enc.Encode(m); err != nil {
		return fmt.Errorf("failed to write %s message: %w", m.Type, err)
	}
	mPayloadsTotal.WithLabelValues("out").Inc()
	return nil
}

func (c *codec) read() (Message, error) {
	var m Message
	if err := c.dec.Decode(&m); err != nil {
		return m, err
	}
	mPayloadsTotal.WithLabelValues("in").Inc()
	return m, nil
}

type wireChange[E any] struct {
	Old *E `cbor:"o,omitempty"`
	New *E `cbor:"n,omitempty"`
}

type wireBlock[E any] struct {
	Start   int             `cbor:"s"`
	Kind    event.Kind      `cbor:"k"`
	Changes []wireChange[E] `cbor:"c"`
}

type wireEvent[E any] struct {
	Blocks  []wireBlock[E] `cbor:"b"`
	Reorder []int          `cbor:"o,omitempty"`
}

// EncodeEvent serializes an event. Unknown values are left out.
func EncodeEvent[E any](ev *event.Event[E]) ([]byte, error) {
	blocks := ev.Blocks()
	w := wireEvent[E]{
		Blocks:  make([]wireBlock[E], len(blocks)),
		Reorder: ev.ReorderMap(),
	}

	for i, b := range blocks {
		wb := wireBlock[E]{
			Start:   b.Start,
			Kind:    b.Kind,
			Changes: make([]wireChange[E], len(b.Changes)),
		}
		for j, c := range b.Changes {
			if c.Old.Known {
				wb.Changes[j].Old = &c.Old.V
			}
			if c.New.Known {
				wb.Changes[j].New = &c.New.V
			}
		}
		w.Blocks[i] = wb
	}

	return encMode.Marshal(w)
}

// DecodeEvent deserializes an event produced by EncodeEvent.
func DecodeEvent[E any](data []byte) (*event.Event[E], error) {
	var w wireEvent[E]
	if err := decMode.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}

	blocks := make([]event.Block[E], len(w.Blocks))
	for i, wb := range w.Blocks {
		if wb.Kind > event.Delete {
			return nil, fmt.Errorf("failed to decode event: invalid block kind %d", wb.Kind)
		}
		if wb.Start < 0 {
			return nil, fmt.Errorf("failed to decode event: block start %d: %w", wb.Start, event.ErrOutOfBounds)
		}

		b := event.Block[E]{
			Start:   wb.Start,
			Kind:    wb.Kind,
			Changes: make([]event.Change[E], len(wb.Changes)),
		}
		for j, c := range wb.Changes {
			if c.Old != nil {
				b.Changes[j].Old = event.Known(*c.Old)
			}
			if c.New != nil {
				b.Changes[j].New = event.Known(*c.New)
			}
		}
		blocks[i] = b
	}

	if w.Reorder != nil {
		return event.NewReorder(blocks, w.Reorder), nil
	}
	return event.New(blocks), nil
}
