package search

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcdickinson/ferrisfind/internal/index"
	"github.com/jcdickinson/ferrisfind/internal/itemtype"
	"github.com/jcdickinson/ferrisfind/internal/query"
)

// tieCrate has four methods that only differ by parent, so the comparator
// cannot tell them apart, plus a few items it can.
func tieCrate() index.RawCrate {
	return index.RawCrate{
		Name: "p",
		Kinds: []itemtype.ItemType{
			itemtype.Method, itemtype.Method, itemtype.Method, itemtype.Method,
			itemtype.Fn, itemtype.Primitive, itemtype.Struct,
		},
		Names:   []string{"len", "len", "len", "len", "lens", "len", "Len"},
		Paths:   []string{"p::m", "", "", "", "", "p", "p::m"},
		Descs:   []string{"", "", "", "", "", "", "documented"},
		Parents: []int{1, 2, 3, 4, 0, 0, 0},
		PathTable: []index.Parent{
			{Kind: itemtype.Struct, Name: "W"},
			{Kind: itemtype.Struct, Name: "X"},
			{Kind: itemtype.Struct, Name: "Y"},
			{Kind: itemtype.Struct, Name: "Z"},
		},
	}
}

func TestSortResults_Order(t *testing.T) {
	t.Parallel()

	s := newTestSearcher(t, tieCrate())
	resp := s.Search("len", Filter{})

	var got []string
	for _, r := range resp.Others {
		got = append(got, r.DisplayPath+r.Name)
	}
	require.GreaterOrEqual(t, len(got), 7)
	// Primitive first, then the documented struct, then full ties in
	// index order.
	assert.Equal(t, []string{
		"len",
		"p::m::Len",
		"p::m::W::len",
		"p::m::X::len",
		"p::m::Y::len",
		"p::m::Z::len",
		"p::m::lens",
	}, got[:7])
}

func TestSortResults_PermutationStable(t *testing.T) {
	t.Parallel()

	s := newTestSearcher(t, tieCrate())
	q := query.Parse("len")

	base := &run{idx: s.idx, q: q, inArgs: make(results), returned: make(results), others: make(results)}
	base.scan()
	want := base.sortResults(base.others, false)
	require.NotEmpty(t, want)

	ids := make([]int, 0, len(base.others))
	for id := range base.others {
		ids = append(ids, id)
	}

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 20; i++ {
		rng.Shuffle(len(ids), func(a, b int) { ids[a], ids[b] = ids[b], ids[a] })
		r := &run{idx: s.idx, q: q}
		shuffled := make(results, len(ids))
		for _, id := range ids {
			m := *base.others[id]
			shuffled[id] = &m
		}
		assert.Equal(t, want, r.sortResults(shuffled, false))
	}
}

func TestCompare_Rules(t *testing.T) {
	t.Parallel()

	r := &run{q: &query.ParsedQuery{UserQuery: "vec"}, filter: Filter{CurrentCrate: "cur"}}
	item := func(crate string, kind itemtype.ItemType, path, desc string) *index.Item {
		return &index.Item{Crate: crate, Kind: kind, Path: path, Desc: desc}
	}
	base := func() ranked {
		return ranked{match: match{index: 0}, word: "vecs", item: item("cur", itemtype.Fn, "a", "d")}
	}

	tests := []struct {
		name   string
		better func(*ranked)
		worse  func(*ranked)
	}{
		{"exact_word", func(x *ranked) { x.word = "vec" }, func(x *ranked) {}},
		{"distance", func(x *ranked) { x.lev = 0 }, func(x *ranked) { x.lev = 1 }},
		{"current_crate", func(x *ranked) {}, func(x *ranked) { x.item.Crate = "other" }},
		{"shorter_word", func(x *ranked) { x.word = "vecs" }, func(x *ranked) { x.word = "vecss" }},
		{"word_order", func(x *ranked) { x.word = "veca" }, func(x *ranked) { x.word = "vecb" }},
		{"index_found", func(x *ranked) { x.index = 5 }, func(x *ranked) { x.index = -1 }},
		{"smaller_index", func(x *ranked) { x.index = 1 }, func(x *ranked) { x.index = 2 }},
		{"primitive", func(x *ranked) { x.item.Kind = itemtype.Primitive }, func(x *ranked) {}},
		{"keyword", func(x *ranked) { x.item.Kind = itemtype.Keyword }, func(x *ranked) { x.item.Kind = itemtype.Module }},
		{"has_desc", func(x *ranked) {}, func(x *ranked) { x.item.Desc = "" }},
		{"kind", func(x *ranked) { x.item.Kind = itemtype.Struct }, func(x *ranked) {}},
		{"path", func(x *ranked) { x.item.Path = "a" }, func(x *ranked) { x.item.Path = "b" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := base(), base()
			tt.better(&a)
			tt.worse(&b)
			assert.Negative(t, r.compare(a, b))
			assert.Positive(t, r.compare(b, a))
		})
	}

	a, b := base(), base()
	b.item.Kind = itemtype.Keyword
	a.item.Kind = itemtype.Primitive
	assert.Negative(t, r.compare(a, b), "primitive and keyword fall through to the kind order")
	assert.Zero(t, r.compare(base(), base()))
}
