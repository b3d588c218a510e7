package search

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/jcdickinson/ferrisfind/internal/index"
	"github.com/jcdickinson/ferrisfind/internal/lev"
	"github.com/jcdickinson/ferrisfind/internal/rpc"
)

type ranked struct {
	match
	word string
	item *index.Item
}

// sortResults ranks one category, drops items failing path validation and
// duplicates, and caps the output. Type categories skip validation.
func (r *run) sortResults(res results, isType bool) []rpc.ItemResult {
	out := []rpc.ItemResult{}
	if len(res) == 0 {
		return out
	}

	ids := make([]int, 0, len(res))
	for id := range res {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	words := r.idx.Words()
	list := make([]ranked, 0, len(ids))
	for _, id := range ids {
		m := res[id]
		list = append(list, ranked{match: *m, word: words[m.id], item: r.idx.Item(m.id)})
	}
	slices.SortStableFunc(list, r.compare)

	var keys []string
	if !isType {
		keys = r.q.PathPrefix()
	}
	seen := make(map[string]bool, len(list))
	for i := range list {
		m := &list[i]
		if !isType && !m.dontValidate && !r.validate(m.item, keys) {
			continue
		}
		item := r.result(m.item, m.lev)
		key := item.DisplayPath + item.Name + "|" + strconv.Itoa(int(item.Kind))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, item)
		if len(out) >= MaxResults {
			break
		}
	}
	return out
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	}
	return -1
}

// compare orders two hits. Each rule only applies when all earlier ones
// tie.
func (r *run) compare(a, b ranked) int {
	userQuery := r.q.UserQuery
	if c := cmpBool(a.word != userQuery, b.word != userQuery); c != 0 {
		return c
	}
	if c := cmp.Compare(a.lev, b.lev); c != 0 {
		return c
	}
	current := r.filter.CurrentCrate
	if c := cmpBool(a.item.Crate != current, b.item.Crate != current); c != 0 {
		return c
	}
	if c := cmp.Compare(utf8.RuneCountInString(a.word), utf8.RuneCountInString(b.word)); c != 0 {
		return c
	}
	if c := strings.Compare(a.word, b.word); c != 0 {
		return c
	}
	if c := cmpBool(a.index < 0, b.index < 0); c != 0 {
		return c
	}
	if c := cmp.Compare(a.index, b.index); c != 0 {
		return c
	}
	// Primitives and keywords come first.
	if c := cmpBool(!a.item.Kind.IsPrimitiveOrKeyword(), !b.item.Kind.IsPrimitiveOrKeyword()); c != 0 {
		return c
	}
	if c := cmpBool(a.item.Desc == "", b.item.Desc == ""); c != 0 {
		return c
	}
	if c := cmp.Compare(a.item.Kind, b.item.Kind); c != 0 {
		return c
	}
	return strings.Compare(a.item.Path, b.item.Path)
}

// validate checks every leading query path segment against the item's
// name, path, and parent.
func (r *run) validate(it *index.Item, keys []string) bool {
	if len(keys) == 0 {
		return true
	}
	name := strings.ToLower(it.Name)
	path := strings.ToLower(it.Path)
	parent := ""
	if it.Parent != nil {
		parent = strings.ToLower(it.Parent.Name)
	}
	for _, key := range keys {
		if strings.Contains(name, key) ||
			strings.Contains(path, key) ||
			(it.Parent != nil && strings.Contains(parent, key)) ||
			r.scorer.Distance(name, key) <= lev.MaxDistance {
			continue
		}
		return false
	}
	return true
}

func (r *run) result(it *index.Item, d float64) rpc.ItemResult {
	displayPath, href := hrefAndPath(r.rootPath, it)
	res := rpc.ItemResult{
		ID:          it.ID,
		Crate:       it.Crate,
		Kind:        it.Kind,
		Name:        it.Name,
		Path:        it.Path,
		DisplayPath: displayPath,
		Href:        href,
		Desc:        it.Desc,
		Distance:    d,
	}
	if it.Parent != nil {
		res.Parent = it.Parent.Name
	}
	if it.Signature != nil {
		res.Signature = it.Signature.String()
	}
	return res
}
