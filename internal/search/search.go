// Package search runs parsed queries against an index and ranks the hits
// into three categories: matches in parameters, in return types, and by
// name.
package search

import (
	"log/slog"
	"strings"
	"time"

	"github.com/jcdickinson/ferrisfind/internal/index"
	"github.com/jcdickinson/ferrisfind/internal/itemtype"
	"github.com/jcdickinson/ferrisfind/internal/lev"
	"github.com/jcdickinson/ferrisfind/internal/query"
	"github.com/jcdickinson/ferrisfind/internal/rpc"
)

// MaxResults caps each result category.
const MaxResults = 200

type Options struct {
	// RootPath prefixes every href.
	RootPath string
}

// Filter narrows and biases one search.
type Filter struct {
	// Crate restricts results to one crate. Unknown crates are ignored.
	Crate string
	// CurrentCrate ranks its own items ahead of ties from other crates.
	CurrentCrate string
}

// Searcher executes queries against one immutable index. It is safe for
// concurrent use.
type Searcher struct {
	idx  *index.Index
	opts Options
}

func NewSearcher(idx *index.Index, opts Options) *Searcher {
	return &Searcher{idx: idx, opts: opts}
}

func (s *Searcher) Index() *index.Index {
	return s.idx
}

// Search parses raw and executes it.
func (s *Searcher) Search(raw string, f Filter) rpc.SearchResponse {
	return s.Exec(query.Parse(raw), f)
}

// Exec runs a parsed query to completion. A query with a parse error
// matches nothing but still collects aliases.
func (s *Searcher) Exec(q *query.ParsedQuery, f Filter) rpc.SearchResponse {
	start := time.Now()
	if f.Crate != "" && !s.idx.HasCrate(f.Crate) {
		slog.Debug("ignoring unknown crate filter", "crate", f.Crate)
		f.Crate = ""
	}

	r := &run{
		idx:      s.idx,
		q:        q,
		filter:   f,
		rootPath: s.opts.RootPath,
		inArgs:   make(results),
		returned: make(results),
		others:   make(results),
	}
	if q.Error == "" {
		r.scan()
	}

	resp := rpc.SearchResponse{
		InArgs:   r.sortResults(r.inArgs, true),
		Returned: r.sortResults(r.returned, true),
		Others:   r.sortResults(r.others, false),
		Query:    q,
	}
	r.prependAliases(&resp, strings.ReplaceAll(q.Original, `"`, ""))

	if q.Error != "" && len(resp.Others) > 0 {
		echo := *q
		echo.Error = ""
		echo.Err = nil
		resp.Query = &echo
	}

	slog.Debug("query executed",
		"query", q.Original,
		"in_args", len(resp.InArgs),
		"returned", len(resp.Returned),
		"others", len(resp.Others),
		"elapsed", time.Since(start))
	return resp
}

// match is the best hit recorded for one item during a query.
type match struct {
	id           int
	index        int
	lev          float64
	dontValidate bool
}

type results map[int]*match

// run holds the per-query state. Its scorer is never shared between
// queries.
type run struct {
	idx      *index.Index
	q        *query.ParsedQuery
	filter   Filter
	rootPath string
	scorer   lev.Scorer

	inArgs   results
	returned results
	others   results
}

func (r *run) scan() {
	items := r.idx.Items()
	words := r.idx.Words()

	switch {
	case r.q.FoundElems == 1 && len(r.q.Elems) == 1:
		elem := &r.q.Elems[0]
		for i := range items {
			r.singleArg(&items[i], words[i], elem)
		}
	case r.q.FoundElems == 1 && len(r.q.Returned) == 1:
		elem := &r.q.Returned[0]
		for i := range items {
			it := &items[i]
			if r.excluded(it) {
				continue
			}
			r.add(r.others, it.ID, -1, r.checkReturned(it, elem, r.q.TypeFilter))
		}
	case r.q.FoundElems > 1:
		for i := range items {
			r.args(&items[i])
		}
	}
}

func (r *run) excluded(it *index.Item) bool {
	return r.filter.Crate != "" && it.Crate != r.filter.Crate
}

// add records d for id unless it is out of range or an earlier hit is at
// least as good.
func (r *run) add(res results, id, pos int, d float64) {
	if d != 0 && (r.q.LiteralSearch || d > lev.MaxDistance) {
		return
	}
	if cur, ok := res[id]; ok && (cur.dontValidate || cur.lev <= d) {
		return
	}
	res[id] = &match{id: id, index: pos, lev: d, dontValidate: r.q.LiteralSearch}
}

// singleArg scores one item against a lone query element: by parameter
// type, by return type, and by name and path.
func (r *run) singleArg(it *index.Item, word string, elem *query.Element) {
	if r.excluded(it) {
		return
	}
	r.add(r.inArgs, it.ID, -1, r.findArg(it, elem, r.q.TypeFilter))
	r.add(r.returned, it.ID, -1, r.checkReturned(it, elem, r.q.TypeFilter))

	if !itemtype.PassesFilter(r.q.TypeFilter, it.Kind) {
		return
	}
	if r.q.LiteralSearch {
		// A quoted name must match case-sensitively.
		if (elem.Quoted && it.Name == elem.RawName) || (!elem.Quoted && word == elem.Name) {
			r.add(r.others, it.ID, -1, 0)
		}
		return
	}

	var levAdd float64
	if len(elem.FullPath) > 1 {
		d := r.checkPath(elem.PathWithoutLast, it)
		if d > lev.MaxDistance {
			return
		}
		levAdd = d / 10
	}

	pos := -1
	inWord := strings.Contains(word, elem.PathLast)
	if inWord || strings.Contains(it.NormalizedName, elem.PathLast) {
		if pos = strings.Index(it.NormalizedName, elem.PathLast); pos < 0 {
			pos = strings.Index(word, elem.PathLast)
		}
	}

	d := r.distance(word, elem.PathLast)
	if d > 0 && len(elem.PathLast) > 2 && inWord {
		if len(elem.PathLast) < 6 {
			d = 1
		} else {
			d = 0
		}
	}
	d += levAdd
	if d > lev.MaxDistance {
		return
	}
	if pos != -1 && len(elem.FullPath) < 2 {
		d--
	}
	r.add(r.others, it.ID, pos, max(d, 0))
}

// args scores one item against a multi-element query. Every element must
// match within distance 1; the item scores the rounded mean.
func (r *run) args(it *index.Item) {
	if r.excluded(it) {
		return
	}
	var total float64
	var n int
	check := func(elems []query.Element, fn func(*index.Item, *query.Element, itemtype.ItemType) float64) bool {
		for i := range elems {
			d := fn(it, &elems[i], itemtype.None)
			if d > 1 {
				return false
			}
			total += d
			n++
		}
		return true
	}
	if !check(r.q.Elems, r.findArg) || !check(r.q.Returned, r.checkReturned) || n == 0 {
		return
	}
	r.add(r.others, it.ID, 0, round(total/float64(n)))
}
