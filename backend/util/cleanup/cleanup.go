// Package cleanup provides a LIFO stack of teardown functions.
package cleanup

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"

	"go.uber.org/multierr"
)

type entry struct {
	id uint64
	c  io.Closer
}

type errFunc func() error

func (f errFunc) Close() error {
	return f()
}

// Stack of closers, closed in reverse order. Zero value is ready to use.
// Safe for concurrent use.
type Stack struct {
	mu      sync.Mutex
	done    bool
	err     error
	entries []entry
	nextID  uint64

	// IgnoreContextCanceled drops context.Canceled errors returned by closers.
	IgnoreContextCanceled bool
}

// Add closers to the stack. Closers added after Close are closed immediately.
func (s *Stack) Add(c ...io.Closer) {
	for _, cc := range c {
		s.Push(cc)
	}
}

// AddErrFunc adds teardown functions to the stack.
func (s *Stack) AddErrFunc(fn ...func() error) {
	for _, f := range fn {
		s.Add(errFunc(f))
	}
}

// Push adds a closer and returns a function which removes it from the stack
// without closing it, for resources which finish on their own.
// A closer pushed after Close is closed immediately.
func (s *Stack) Push(c io.Closer) (remove func()) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		_ = c.Close()
		return func() {}
	}
	s.nextID++
	id := s.nextID
	s.entries = append(s.entries, entry{id: id, c: c})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.entries = slices.DeleteFunc(s.entries, func(e entry) bool { return e.id == id })
	}
}

// PushFunc is like Push for a teardown function.
func (s *Stack) PushFunc(fn func() error) (remove func()) {
	return s.Push(errFunc(fn))
}

// Len returns the number of closers waiting in the stack.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close runs the closers in reverse order. Only the first call does the work,
// later calls return the same error.
func (s *Stack) Close() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return s.err
	}
	s.done = true
	entries := s.entries
	s.entries = nil
	s.mu.Unlock()

	var err error
	for _, e := range slices.Backward(entries) {
		cerr := e.c.Close()
		if s.IgnoreContextCanceled && errors.Is(cerr, context.Canceled) {
			continue
		}
		err = multierr.Append(err, cerr)
	}

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	return err
}
