package search

import (
	"math"
	"strings"

	"github.com/jcdickinson/ferrisfind/internal/index"
	"github.com/jcdickinson/ferrisfind/internal/itemtype"
	"github.com/jcdickinson/ferrisfind/internal/lev"
	"github.com/jcdickinson/ferrisfind/internal/query"
)

// noMatch is the distance reported when nothing matched.
const noMatch = float64(lev.MaxDistance + 1)

// round halves away from zero for the non-negative distances used here.
func round(x float64) float64 {
	return math.Floor(x + 0.5)
}

func (r *run) distance(a, b string) float64 {
	return float64(r.scorer.Distance(a, b))
}

// checkGenerics matches elem's generics against node's generics as a
// multiset. defaultLev is returned when neither side has generics.
func (r *run) checkGenerics(node *index.TypeNode, elem *query.Element, defaultLev float64) float64 {
	if len(node.Generics) == 0 {
		if len(elem.Generics) == 0 {
			return defaultLev
		}
		return noMatch
	}
	if node.Generics[0].Wildcard {
		return r.checkGenerics(&node.Generics[0], elem, defaultLev)
	}
	if len(elem.Generics) == 0 || len(node.Generics) < len(elem.Generics) {
		return noMatch
	}

	available := make(map[string]int, len(node.Generics))
	for i := range node.Generics {
		g := &node.Generics[i]
		if g.Wildcard {
			if r.checkGenerics(g, elem, noMatch) != 0 {
				return noMatch
			}
			continue
		}
		available[g.Name]++
	}
	for _, want := range elem.Generics {
		if available[want.Name] == 0 {
			return noMatch
		}
		available[want.Name]--
	}
	return 0
}

// checkIfInGenerics returns the best literal match of elem among node's
// generics.
func (r *run) checkIfInGenerics(node *index.TypeNode, elem *query.Element) float64 {
	best := noMatch
	for i := range node.Generics {
		best = min(best, r.checkType(&node.Generics[i], elem, true))
		if best == 0 {
			break
		}
	}
	return best
}

func (r *run) checkType(node *index.TypeNode, elem *query.Element, literal bool) float64 {
	if node.Wildcard {
		if len(node.Generics) > 0 {
			return r.checkIfInGenerics(node, elem)
		}
		return noMatch
	}

	d := r.distance(node.Name, elem.Name)
	if literal {
		if d != 0 {
			if len(elem.Generics) == 0 {
				for _, g := range node.Generics {
					if !g.Wildcard && g.Name == elem.Name {
						return 0
					}
				}
			}
			return noMatch
		}
		if len(elem.Generics) > 0 {
			return r.checkGenerics(node, elem, noMatch)
		}
		return 0
	}

	if len(node.Generics) > 0 {
		if len(elem.Generics) == 0 {
			if d == 0 {
				return 0
			}
			return r.checkIfInGenerics(node, elem) + 0.5
		}
		if d > lev.MaxDistance {
			return r.checkIfInGenerics(node, elem)
		}
		g := r.checkGenerics(node, elem, d)
		if g > lev.MaxDistance {
			return noMatch
		}
		return (g + d) / 2
	}
	if len(elem.Generics) > 0 {
		return noMatch
	}
	return d
}

// findArg returns the best match of elem among the item's parameter types.
func (r *run) findArg(it *index.Item, elem *query.Element, filter itemtype.ItemType) float64 {
	if it.Signature == nil {
		return noMatch
	}
	return r.bestOf(it.Signature.Inputs, elem, filter)
}

// checkReturned returns the best match of elem among the item's return types.
func (r *run) checkReturned(it *index.Item, elem *query.Element, filter itemtype.ItemType) float64 {
	if it.Signature == nil {
		return noMatch
	}
	return r.bestOf(it.Signature.Output, elem, filter)
}

func (r *run) bestOf(nodes []index.TypeNode, elem *query.Element, filter itemtype.ItemType) float64 {
	best := noMatch
	for i := range nodes {
		if !itemtype.PassesFilter(filter, nodes[i].Kind) {
			continue
		}
		best = min(best, r.checkType(&nodes[i], elem, r.q.LiteralSearch))
		if best == 0 {
			return 0
		}
	}
	if r.q.LiteralSearch {
		return noMatch
	}
	return best
}

// checkPath slides contains over the item's path (plus its parent name) and
// returns the best average segment distance.
func (r *run) checkPath(contains []string, it *index.Item) float64 {
	if len(contains) == 0 {
		return 0
	}
	path := strings.Split(strings.ToLower(it.Path), "::")
	if it.Parent != nil && it.Parent.Name != "" {
		path = append(path, strings.ToLower(it.Parent.Name))
	}
	if len(contains) > len(path) {
		return noMatch
	}

	best := noMatch
	for i := 0; i+len(contains) <= len(path); i++ {
		total, aborted := 0, false
		for x, want := range contains {
			d := r.scorer.Distance(path[i+x], want)
			if d > lev.MaxDistance {
				aborted = true
				break
			}
			total += d
		}
		if !aborted {
			best = min(best, round(float64(total)/float64(len(contains))))
		}
	}
	return best
}
