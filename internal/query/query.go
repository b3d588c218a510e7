// Package query parses the search query language:
//
//	query      := item* ( '->' item* )?
//	item       := path ( '<' item (','|ws item)* '>' )?
//	path       := IDENT ('::' IDENT)* | '"' IDENT '"'
//	typeFilter := IDENT ':'
//
// Parsing never fails outright. A malformed query yields a ParsedQuery with
// no elements and the parser's message in Error.
package query

import (
	"strings"

	"github.com/jcdickinson/ferrisfind/internal/itemtype"
)

// Element is one path token of a query, with its nested generics. Name and
// the path fields are lowercase; RawName keeps the case as typed.
type Element struct {
	Name            string    `json:"name" yaml:"name"`
	RawName         string    `json:"raw_name" yaml:"raw_name"`
	FullPath        []string  `json:"full_path" yaml:"full_path"`
	PathWithoutLast []string  `json:"path_without_last" yaml:"path_without_last"`
	PathLast        string    `json:"path_last" yaml:"path_last"`
	Generics        []Element `json:"generics,omitempty" yaml:"generics,omitempty"`
	Quoted          bool      `json:"quoted,omitempty" yaml:"quoted,omitempty"`
}

// ParsedQuery is the structured form of a user query.
type ParsedQuery struct {
	Original      string            `json:"original" yaml:"original"`
	UserQuery     string            `json:"user_query" yaml:"user_query"`
	TypeFilter    itemtype.ItemType `json:"type_filter" yaml:"type_filter"`
	Elems         []Element         `json:"elems" yaml:"elems"`
	Returned      []Element         `json:"returned" yaml:"returned"`
	FoundElems    int               `json:"found_elems" yaml:"found_elems"`
	LiteralSearch bool              `json:"literal_search" yaml:"literal_search"`
	Error         string            `json:"error,omitempty" yaml:"error,omitempty"`

	// Err is the typed parse error behind Error; it does not survive JSON.
	Err error `json:"-" yaml:"-"`
}

func newParsedQuery(userQuery string) *ParsedQuery {
	return &ParsedQuery{
		Original:   userQuery,
		UserQuery:  strings.ToLower(userQuery),
		TypeFilter: itemtype.None,
		Elems:      []Element{},
		Returned:   []Element{},
	}
}

// Parse converts a raw query into a ParsedQuery.
func Parse(userQuery string) *ParsedQuery {
	userQuery = strings.TrimSpace(userQuery)
	p := &parser{
		q:     []rune(strings.ToLower(userQuery)),
		orig:  []rune(userQuery),
		query: newParsedQuery(userQuery),
	}

	err := p.parseInput()
	if err == nil && p.hasTypeFilter {
		name := p.typeFilter
		if name == "const" {
			name = "constant"
		}
		if t, ok := itemtype.FromName(name); ok {
			p.query.TypeFilter = t
		} else {
			err = newUnknownTypeFilterError(name)
		}
	}
	if err != nil {
		q := newParsedQuery(userQuery)
		q.Error = err.Error()
		q.Err = err
		q.TypeFilter = itemtype.Invalid
		return q
	}

	q := p.query
	if !q.LiteralSearch {
		q.LiteralSearch = p.totalElems > 1
	}
	q.FoundElems = len(q.Elems) + len(q.Returned)
	return q
}

// PathPrefix returns the leading path segments of a single-element query,
// which results must be validated against. It is nil otherwise.
func (q *ParsedQuery) PathPrefix() []string {
	if len(q.Elems) != 1 {
		return nil
	}
	return q.Elems[0].PathWithoutLast
}
