// Package index flattens decoded per-crate search data into one immutable,
// id-addressable item table.
package index

import (
	"strings"

	"github.com/jcdickinson/ferrisfind/internal/itemtype"
)

// Parent is an entry of a crate's path table.
type Parent struct {
	Kind itemtype.ItemType `json:"kind"`
	Name string            `json:"name"`
}

// Item is one documented entity. ID is its position in the index.
type Item struct {
	ID             int
	Crate          string
	Kind           itemtype.ItemType
	Name           string
	Path           string
	Desc           string
	Parent         *Parent
	Signature      *Signature
	NormalizedName string
}

// Index is the searchable item table. It is never modified after Build and
// may be read from many goroutines.
type Index struct {
	items      []Item
	words      []string
	crates     []string
	crateSizes map[string]int
	aliases    map[string]map[string][]int
}

// Build flattens crates, in the given order, into an Index. Every crate
// contributes a root item followed by its own items; ids are assigned
// globally in that order.
func Build(crates []RawCrate) *Index {
	idx := &Index{
		crateSizes: make(map[string]int, len(crates)),
		aliases:    make(map[string]map[string][]int),
	}

	for i := range crates {
		c := &crates[i]
		if _, ok := idx.crateSizes[c.Name]; !ok {
			idx.crates = append(idx.crates, c.Name)
		}
		idx.push(Item{
			Crate: c.Name,
			Kind:  itemtype.ExternCrate,
			Name:  c.Name,
			Desc:  c.Doc,
		})

		first := len(idx.items)
		lastPath := ""
		for j, kind := range c.Kinds {
			it := Item{
				Crate: c.Name,
				Kind:  kind,
				Name:  at(c.Names, j),
				Path:  at(c.Paths, j),
				Desc:  at(c.Descs, j),
			}
			if it.Path == "" {
				it.Path = lastPath
			}
			if j < len(c.Parents) {
				if p := c.Parents[j]; p > 0 && p <= len(c.PathTable) {
					parent := c.PathTable[p-1]
					it.Parent = &parent
				}
			}
			if j < len(c.Types) {
				it.Signature = c.Types[j]
			}
			idx.push(it)
			lastPath = it.Path
		}
		idx.crateSizes[c.Name] += len(c.Kinds) + 1

		if len(c.Aliases) == 0 {
			continue
		}
		table := idx.aliases[c.Name]
		if table == nil {
			table = make(map[string][]int, len(c.Aliases))
			idx.aliases[c.Name] = table
		}
		for alias, locals := range c.Aliases {
			key := strings.ToLower(alias)
			for _, local := range locals {
				if local >= 0 && local < len(c.Kinds) {
					table[key] = append(table[key], first+local)
				}
			}
		}
	}
	return idx
}

func (idx *Index) push(it Item) {
	word := strings.ToLower(it.Name)
	it.ID = len(idx.items)
	it.NormalizedName = strings.ReplaceAll(word, "_", "")
	idx.items = append(idx.items, it)
	idx.words = append(idx.words, word)
}

func at(s []string, i int) string {
	if i < len(s) {
		return s[i]
	}
	return ""
}

// Items returns the item table. Callers must not modify it.
func (idx *Index) Items() []Item { return idx.items }

// Words returns the lowercase item names, aligned with Items.
func (idx *Index) Words() []string { return idx.words }

// Len returns the number of items, crate roots included.
func (idx *Index) Len() int { return len(idx.items) }

// Item returns the item with the given id, or nil.
func (idx *Index) Item(id int) *Item {
	if id < 0 || id >= len(idx.items) {
		return nil
	}
	return &idx.items[id]
}

// Crates returns crate names in build order.
func (idx *Index) Crates() []string {
	out := make([]string, len(idx.crates))
	copy(out, idx.crates)
	return out
}

func (idx *Index) HasCrate(name string) bool {
	_, ok := idx.crateSizes[name]
	return ok
}

// CrateSize returns the number of items a crate contributed, its root
// included.
func (idx *Index) CrateSize(name string) int {
	return idx.crateSizes[name]
}

// Aliases returns the ids registered under alias in crate. The alias must
// already be lowercase.
func (idx *Index) Aliases(crate, alias string) []int {
	return idx.aliases[crate][alias]
}
