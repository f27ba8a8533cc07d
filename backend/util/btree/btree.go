// Package btree wraps the tidwall B-Tree into an ordered map with a small iterator API.
package btree

import (
	"iter"

	"github.com/tidwall/btree"
)

// Map is an ordered map. Not safe for concurrent use.
type Map[K, V any] struct {
	hint btree.PathHint
	tr   *btree.BTreeG[entry[K, V]]
	cmp  func(K, K) int
}

type entry[K, V any] struct {
	k K
	v V
}

// New creates an empty map ordered by cmp.
func New[K, V any](degree int, cmp func(K, K) int) *Map[K, V] {
	tr := btree.NewBTreeGOptions(
		func(a, b entry[K, V]) bool {
			return cmp(a.k, b.k) < 0
		},
		btree.Options{
			NoLocks: true,
			Degree:  degree,
		},
	)

	return &Map[K, V]{
		tr:  tr,
		cmp: cmp,
	}
}

// Set key k to value v.
func (m *Map[K, V]) Set(k K, v V) (replaced bool) {
	_, replaced = m.tr.SetHint(entry[K, V]{k: k, v: v}, &m.hint)
	return replaced
}

// SetIfAbsent sets k only if it's not in the map yet.
func (m *Map[K, V]) SetIfAbsent(k K, v V) (set bool) {
	if _, ok := m.Get(k); ok {
		return false
	}
	m.Set(k, v)
	return true
}

// Delete key k and return its value.
func (m *Map[K, V]) Delete(k K) (v V, deleted bool) {
	old, deleted := m.tr.DeleteHint(entry[K, V]{k: k}, &m.hint)
	return old.v, deleted
}

// Get the value by key k.
func (m *Map[K, V]) Get(k K) (v V, ok bool) {
	m.tr.AscendHint(entry[K, V]{k: k}, func(item entry[K, V]) bool {
		if m.cmp(item.k, k) == 0 {
			v = item.v
			ok = true
		}
		return false
	}, &m.hint)

	return v, ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	if m == nil {
		return 0
	}
	return m.tr.Len()
}

// Items iterates over all the entries in key order.
func (m *Map[K, V]) Items() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.tr.Scan(func(item entry[K, V]) bool {
			return yield(item.k, item.v)
		})
	}
}

// Seek iterates over the entries starting from the first key >= k.
func (m *Map[K, V]) Seek(k K) iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.tr.AscendHint(entry[K, V]{k: k}, func(item entry[K, V]) bool {
			return yield(item.k, item.v)
		}, &m.hint)
	}
}

// Clear removes all the entries.
func (m *Map[K, V]) Clear() {
	m.tr.Clear()
}
