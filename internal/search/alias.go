package search

import (
	"slices"
	"strings"

	"github.com/jcdickinson/ferrisfind/internal/index"
	"github.com/jcdickinson/ferrisfind/internal/rpc"
)

// prependAliases puts items registered under the alias term at the front of
// the name category. Aliases from the current crate end up first.
func (r *run) prependAliases(resp *rpc.SearchResponse, term string) {
	key := strings.ToLower(term)

	var aliases, crateAliases []*index.Item
	if r.filter.Crate != "" {
		for _, id := range r.idx.Aliases(r.filter.Crate, key) {
			aliases = append(aliases, r.idx.Item(id))
		}
	} else {
		for _, crate := range r.idx.Crates() {
			ids := r.idx.Aliases(crate, key)
			for _, id := range ids {
				if crate == r.filter.CurrentCrate {
					crateAliases = append(crateAliases, r.idx.Item(id))
				} else {
					aliases = append(aliases, r.idx.Item(id))
				}
			}
		}
	}

	byPathDesc := func(a, b *index.Item) int { return strings.Compare(b.Path, a.Path) }
	slices.SortStableFunc(aliases, byPathDesc)
	slices.SortStableFunc(crateAliases, byPathDesc)

	push := func(it *index.Item) {
		res := r.result(it, 0)
		res.IsAlias = true
		res.Alias = term
		id := it.ID
		res.OriginalID = &id
		resp.Others = slices.Insert(resp.Others, 0, res)
		if len(resp.Others) > MaxResults {
			resp.Others = resp.Others[:MaxResults]
		}
	}
	for _, it := range aliases {
		push(it)
	}
	for _, it := range crateAliases {
		push(it)
	}
}
