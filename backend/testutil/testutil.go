// Package testutil defines some useful function for testing only.
package testutil

import (
	"sync"
	"testing"
	"unicode"
	"unicode/utf8"

	"listdelta/backend/event"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Recorder collects events passed to its Listen method.
// Safe for concurrent use.
type Recorder[E any] struct {
	mu     sync.Mutex
	events []*event.Event[E]

	// Err is returned from Listen when set.
	Err error
}

// Listen records the event.
func (r *Recorder[E]) Listen(ev *event.Event[E]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.Err
}

// Events returns the recorded events.
func (r *Recorder[E]) Events() []*event.Event[E] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*event.Event[E](nil), r.events...)
}

// Len returns the number of recorded events.
func (r *Recorder[E]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Last returns the last recorded event, failing the test if there's none.
func (r *Recorder[E]) Last(t testing.TB) *event.Event[E] {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		t.Fatal("no events recorded")
	}
	return r.events[len(r.events)-1]
}

// Strings returns the string form of every recorded event.
func (r *Recorder[E]) Strings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.String()
	}
	return out
}

// Reset forgets the recorded events.
func (r *Recorder[E]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// StructsEqualBuilder is a fluent interface for comparing structs.
type StructsEqualBuilder[T any] struct {
	a    T
	b    T
	opts []cmp.Option
}

// StructsEqual compares two values of the same type for equality, ignoring unexported fields.
func StructsEqual[T any](a, b T) *StructsEqualBuilder[T] {
	return &StructsEqualBuilder[T]{a: a, b: b, opts: []cmp.Option{ExportedFieldsFilter()}}
}

// IgnoreFields allows to ignore fields on a certain type.
// Type must be non-pointer value.
func (sb *StructsEqualBuilder[T]) IgnoreFields(_type any, fields ...string) *StructsEqualBuilder[T] {
	sb.opts = append(sb.opts, cmpopts.IgnoreFields(_type, fields...))
	return sb
}

// EquateEmpty treats nil and empty slices and maps as equal.
func (sb *StructsEqualBuilder[T]) EquateEmpty() *StructsEqualBuilder[T] {
	sb.opts = append(sb.opts, cmpopts.EquateEmpty())
	return sb
}

// Diff returns a diff between the two values.
func (sb *StructsEqualBuilder[T]) Diff() string {
	return cmp.Diff(sb.a, sb.b, sb.opts...)
}

// Compare executes the final comparison.
func (sb *StructsEqualBuilder[T]) Compare(t testing.TB, msg string, format ...any) {
	t.Helper()

	diff := cmp.Diff(sb.a, sb.b, sb.opts...)
	if diff != "" {
		t.Log(diff)
		t.Fatalf(msg, format...)
	}
}

// ExportedFieldsFilter is a go-cmp Option which ignores recursively unexported fields.
func ExportedFieldsFilter() cmp.Option {
	return cmp.FilterPath(func(p cmp.Path) bool {
		sf, ok := p.Index(-1).(cmp.StructField)
		if !ok {
			return false
		}
		r, _ := utf8.DecodeRuneInString(sf.Name())
		return !unicode.IsUpper(r)
	}, cmp.Ignore())
}
