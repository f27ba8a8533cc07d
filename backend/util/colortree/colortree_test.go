package colortree

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	red Color = iota
	green
	blue
	gray
)

var names = [NumColors]string{"r", "g", "b", "_"}

type entry struct {
	c Color
	v int
}

// model is a naive slice-backed reference for the tree.
type model []entry

func (m model) size(s Space) int {
	var n int
	for _, e := range m {
		if s.Has(e.c) {
			n++
		}
	}
	return n
}

func (m model) pos(k int, s Space) int {
	for i, e := range m {
		if !s.Has(e.c) {
			continue
		}
		if k == 0 {
			return i
		}
		k--
	}
	return len(m)
}

func (m model) convert(k int, from, to Space) int {
	if k == m.size(from) {
		return m.size(to)
	}
	p := m.pos(k, from)
	before := m[:p].size(to)
	if to.Has(m[p].c) {
		return before
	}
	return before - 1
}

func TestAddGet(t *testing.T) {
	tr := New[string]()
	tr.Add(0, All, red, "a", 1)
	tr.Add(1, All, green, "b", 2)
	tr.Add(0, All, gray, "z", 1)

	require.Equal(t, 4, tr.Size(All))
	require.Equal(t, "_rgg", tr.Format(names))

	c, v := tr.Get(0, Spaces(green))
	require.Equal(t, green, c)
	require.Equal(t, "b", v)

	c, v = tr.Get(0, Spaces(red, gray))
	require.Equal(t, gray, c)
	require.Equal(t, "z", v)
}

func TestAddPlacement(t *testing.T) {
	tr := New[int]()
	tr.Add(0, All, red, 0, 1)
	tr.Add(1, All, green, 0, 1)
	tr.Add(2, All, red, 0, 1)
	require.Equal(t, "rgr", tr.Format(names))

	// Adding before the 1st red node places the new node after the green one.
	tr.Add(1, Spaces(red), blue, 0, 1)
	require.Equal(t, "rgbr", tr.Format(names))

	// Adding at the end of a space appends to the tree.
	tr.Add(tr.Size(Spaces(green)), Spaces(green), gray, 0, 2)
	require.Equal(t, "rgbr__", tr.Format(names))
}

func TestRemoveSet(t *testing.T) {
	tr := New[int]()
	for i := range 6 {
		tr.Add(i, All, Color(i%2), i, 1)
	}
	require.Equal(t, "rgrgrg", tr.Format(names))

	tr.Remove(1, Spaces(green), 1)
	require.Equal(t, "rgrrg", tr.Format(names))

	tr.Set(0, Spaces(green), blue, 100, 2)
	require.Equal(t, "rbbrg", tr.Format(names))
	_, v := tr.Get(1, All)
	require.Equal(t, 100, v)
	_, v = tr.Get(2, All)
	require.Equal(t, 100, v)

	require.Panics(t, func() { tr.Remove(5, All, 1) })
	require.Panics(t, func() { tr.Set(4, All, red, 0, 2) })
	require.Equal(t, "rbbrg", tr.Format(names), "failed operations must not change the tree")
}

func TestConvert(t *testing.T) {
	tr := New[int]()
	// r g r _ g
	for i, c := range []Color{red, green, red, gray, green} {
		tr.Add(i, All, c, i, 1)
	}
	rs := Spaces(red)
	gs := Spaces(green)

	require.Equal(t, -1, tr.Convert(0, rs, gs))
	require.Equal(t, 0, tr.Convert(1, rs, gs))
	require.Equal(t, 2, tr.Convert(2, rs, gs))
	require.Equal(t, 1, tr.Convert(1, gs, rs))
	require.Equal(t, 4, tr.Convert(4, All, All))
	require.Equal(t, 2, tr.Convert(2, gs, rs))
	require.Equal(t, 5, tr.Convert(5, All, All))

	require.Equal(t, 0, tr.IndexOf(0, rs, gs))
	require.Equal(t, 1, tr.IndexOf(1, rs, gs))
}

func TestRandomizedAgainstModel(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	spaces := []Space{All, Spaces(red), Spaces(red, green), Spaces(blue, gray), Spaces(green, blue, gray)}

	tr := New[int]()
	var m model

	for step := range 1500 {
		s := spaces[rng.IntN(len(spaces))]
		size := m.size(s)
		c := Color(rng.IntN(NumColors))

		switch op := rng.IntN(10); {
		case op < 5 || size == 0:
			k := rng.IntN(size + 1)
			count := 1 + rng.IntN(3)
			p := m.pos(k, s)
			ins := make(model, count)
			for i := range ins {
				ins[i] = entry{c, step}
			}
			m = append(m[:p], append(ins, m[p:]...)...)
			tr.Add(k, s, c, step, count)
		case op < 7:
			k := rng.IntN(size)
			p := m.pos(k, s)
			count := 1 + rng.IntN(min(3, len(m)-p))
			m = append(m[:p], m[p+count:]...)
			tr.Remove(k, s, count)
		case op < 8:
			k := rng.IntN(size)
			p := m.pos(k, s)
			count := 1 + rng.IntN(min(3, len(m)-p))
			for i := range count {
				m[p+i] = entry{c, step}
			}
			tr.Set(k, s, c, step, count)
		default:
			k := rng.IntN(size)
			p := m.pos(k, s)
			gc, gv := tr.Get(k, s)
			require.Equal(t, m[p].c, gc, "step %d", step)
			require.Equal(t, m[p].v, gv, "step %d", step)
		}

		for _, from := range spaces {
			require.Equal(t, m.size(from), tr.Size(from), "step %d", step)
		}

		if step%100 == 0 {
			for _, from := range spaces {
				for _, to := range spaces {
					n := m.size(from)
					for _, k := range []int{0, n, rng.IntN(n + 1), rng.IntN(n + 1), rng.IntN(n + 1)} {
						require.Equal(t, m.convert(k, from, to), tr.Convert(k, from, to), "step %d convert(%d)", step, k)
					}
				}
			}

			var got model
			for c, v := range tr.All() {
				got = append(got, entry{c, v})
			}
			require.True(t, slices.Equal(m, got), "step %d", step)

			for _, pos := range spaces {
				var want []Run[int]
				for i, e := range m {
					if !s.Has(e.c) {
						continue
					}
					idx := m[:i].size(pos)
					if n := len(want); n > 0 && want[n-1].Color == e.c && want[n-1].Value == e.v && want[n-1].Index+want[n-1].Len == idx && pos.Has(e.c) {
						want[n-1].Len++
						continue
					}
					want = append(want, Run[int]{Index: idx, Color: e.c, Value: e.v, Len: 1})
				}
				require.Equal(t, want, mergeRuns(slices.Collect(tr.Runs(s, pos)), pos), "step %d", step)
			}
		}
	}
}

func TestBalanced(t *testing.T) {
	tr := New[int]()
	const n = 1 << 14
	for i := range n {
		tr.Add(i, All, gray, i, 1)
	}
	require.LessOrEqual(t, tr.Height(), MaxExpectedHeight(n))

	tr.Clear()
	tr.Add(0, All, red, 0, n)
	require.Equal(t, n, tr.Size(Spaces(red)))
	require.LessOrEqual(t, tr.Height(), MaxExpectedHeight(n))
}

func TestBounds(t *testing.T) {
	tr := New[int]()
	require.Panics(t, func() { tr.Get(0, All) })
	require.Panics(t, func() { tr.Add(1, All, red, 0, 1) })
	require.Panics(t, func() { tr.Add(-1, All, red, 0, 1) })
	require.Panics(t, func() { tr.Add(0, All, Color(NumColors), 0, 1) })
	require.Equal(t, 0, tr.Convert(0, All, Spaces(red)))

	tr.Add(0, All, red, 0, 3)
	require.Panics(t, func() { tr.Set(1, All, Color(NumColors), 0, 1) })
	require.Equal(t, "rrr", tr.Format(names), "invalid color must not change the tree")
}

// mergeRuns joins adjacent runs which are indistinguishable element by element,
// so trees which cut runs differently compare equal.
func mergeRuns(runs []Run[int], pos Space) []Run[int] {
	var out []Run[int]
	for _, r := range runs {
		for i := range r.Len {
			idx := r.Index
			if pos.Has(r.Color) {
				idx += i
			}
			if n := len(out); n > 0 && out[n-1].Color == r.Color && out[n-1].Value == r.Value && out[n-1].Index+out[n-1].Len == idx && pos.Has(r.Color) {
				out[n-1].Len++
				continue
			}
			out = append(out, Run[int]{Index: idx, Color: r.Color, Value: r.Value, Len: 1})
		}
	}
	return out
}

func TestRuns(t *testing.T) {
	tr := New[int]()
	tr.Add(0, All, gray, 0, 1000)
	require.Equal(t, 1, tr.Nodes())

	tr.Set(10, All, red, 1, 1)
	tr.Set(500, All, blue, 2, 2)
	tr.Add(700, Spaces(gray), green, 3, 1)
	require.Equal(t, 1001, tr.Size(All))
	require.LessOrEqual(t, tr.Nodes(), 8, "unchanged elements must stay in a few runs")

	got := slices.Collect(tr.Runs(Spaces(red, green, blue), Spaces(gray, red)))
	require.Equal(t, []Run[int]{
		{Index: 10, Color: red, Value: 1, Len: 1},
		{Index: 500, Color: blue, Value: 2, Len: 2},
		{Index: 701, Color: green, Value: 3, Len: 1},
	}, got)

	c, v := tr.Get(501, All)
	require.Equal(t, blue, c)
	require.Equal(t, 2, v)
	require.Equal(t, 500, tr.IndexOf(501, All, Spaces(gray, red)))
	require.Equal(t, 499, tr.Convert(501, All, Spaces(gray, red)))

	t.Run("should visit only matching runs", func(t *testing.T) {
		var visited int
		for range tr.Runs(Spaces(red), All) {
			visited++
		}
		require.Equal(t, 1, visited)

		for range tr.Runs(Spaces(blue), All) {
			break
		}
	})
}

func TestLargeRuns(t *testing.T) {
	tr := New[int]()
	const n = 1_000_000
	tr.Add(0, All, gray, 0, n)
	tr.Add(n, All, gray, 0, n)
	require.Equal(t, 2*n, tr.Size(All))

	for i := range 100 {
		tr.Set(i*(2*n/100), All, red, i, 1)
	}
	tr.Remove(n/2, All, n)

	require.Equal(t, n, tr.Size(All))
	require.Equal(t, 50, tr.Size(Spaces(red)))
	require.LessOrEqual(t, tr.Nodes(), 400)
	require.LessOrEqual(t, tr.Height(), MaxExpectedHeight(tr.Nodes()))
}
