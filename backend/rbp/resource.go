package rbp

import (
	"context"
	"fmt"

	"listdelta/backend/event"
	"listdelta/backend/list"
)

// Resource is something that can be published to and mirrored from remote peers.
type Resource interface {
	// Attach atomically takes a snapshot of the resource and starts calling fn
	// with every subsequent update. fn must not block. Calling detach stops the updates.
	// The snapshot must not include changes which are going to be reported as updates.
	Attach(ctx context.Context, fn func(update []byte)) (snapshot []byte, detach func(), err error)

	// Apply a snapshot or an update received from the publisher.
	Apply(t MessageType, payload []byte) error
}

// ListResource exposes a list as a resource. Updates are the buffered events of the list.
type ListResource[E any] struct {
	list *list.List[E]
}

// NewListResource creates a resource backed by l.
func NewListResource[E any](l *list.List[E]) *ListResource[E] {
	return &ListResource[E]{list: l}
}

// Attach implements Resource. It waits for open transactions to finish, because their
// changes are already in the list but only reach buffered listeners on commit.
func (r *ListResource[E]) Attach(ctx context.Context, fn func([]byte)) (snapshot []byte, detach func(), err error) {
	r.list.Lock()
	defer r.list.Unlock()

	if err := r.list.WaitIdle(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to wait for open transactions: %w", err)
	}

	snapshot, err = encMode.Marshal(r.list.Values())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode list snapshot: %w", err)
	}

	h, err := r.list.AddBufferedListener(func(ev *event.Event[E]) error {
		data, err := EncodeEvent(ev)
		if err != nil {
			return err
		}
		fn(data)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	detach = func() {
		r.list.Lock()
		defer r.list.Unlock()
		_ = r.list.RemoveBufferedListener(h)
	}

	return snapshot, detach, nil
}

// Apply implements Resource.
func (r *ListResource[E]) Apply(t MessageType, payload []byte) error {
	switch t {
	case MsgSnapshot:
		var vals []E
		if err := decMode.Unmarshal(payload, &vals); err != nil {
			return fmt.Errorf("failed to decode list snapshot: %w", err)
		}

		r.list.Lock()
		defer r.list.Unlock()
		return r.list.Replace(vals...)
	case MsgUpdate:
		ev, err := DecodeEvent[E](payload)
		if err != nil {
			return err
		}

		r.list.Lock()
		defer r.list.Unlock()
		return r.list.ApplyEvent(ev)
	default:
		return fmt.Errorf("can't apply %s message to a list", t)
	}
}
