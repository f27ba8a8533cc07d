package assembler

import (
	"fmt"
	"slices"
)

// Handle identifies a registered listener.
type Handle uint64

// registry is an ordered list of listeners.
type registry[L any] struct {
	last    Handle
	entries []registryEntry[L]
}

type registryEntry[L any] struct {
	h Handle
	l L
}

func (r *registry[L]) add(l L) Handle {
	r.last++
	r.entries = append(r.entries, registryEntry[L]{h: r.last, l: l})
	return r.last
}

func (r *registry[L]) remove(h Handle) error {
	idx := slices.IndexFunc(r.entries, func(e registryEntry[L]) bool { return e.h == h })
	if idx == -1 {
		return fmt.Errorf("handle %d: %w", h, ErrUnknownListener)
	}
	r.entries = slices.Delete(r.entries, idx, idx+1)
	return nil
}

func (r *registry[L]) len() int {
	return len(r.entries)
}

// inOrder returns the listeners in registration order.
// The result is a copy, so listeners may unregister during dispatch.
func (r *registry[L]) inOrder() []L {
	out := make([]L, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.l
	}
	return out
}

// reversed returns the listeners with the last registered first.
func (r *registry[L]) reversed() []L {
	out := r.inOrder()
	slices.Reverse(out)
	return out
}

func (r *registry[L]) clear() {
	r.entries = nil
}
