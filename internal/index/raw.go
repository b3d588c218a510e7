package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jcdickinson/ferrisfind/internal/itemtype"
)

// RawCrate is one crate record of a rustdoc search index, decoded and with
// all positional arrays aligned by item index. Name is not part of the
// record; the loader fills it from the enclosing key.
type RawCrate struct {
	Name      string
	Doc       string
	Kinds     []itemtype.ItemType
	Names     []string
	Paths     []string // "" inherits the previous item's path
	Descs     []string
	Parents   []int // 1-based into PathTable, 0 for none
	Types     []*Signature
	PathTable []Parent
	Aliases   map[string][]int
}

type rawRecord struct {
	Doc string            `json:"doc"`
	T   json.RawMessage   `json:"t"`
	N   []string          `json:"n"`
	Q   json.RawMessage   `json:"q"`
	D   []string          `json:"d"`
	I   []int             `json:"i"`
	F   []json.RawMessage `json:"f"`
	P   []json.RawMessage `json:"p"`
	A   map[string][]int  `json:"a"`
}

// UnmarshalJSON accepts both the legacy layout (numeric kinds, dense paths,
// named signature nodes) and the newer one (letter kinds, sparse paths,
// signature nodes referencing the path table).
func (c *RawCrate) UnmarshalJSON(data []byte) error {
	var rec rawRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	kinds, letters, err := decodeKinds(rec.T)
	if err != nil {
		return fmt.Errorf("field t: %w", err)
	}
	if len(rec.N) != len(kinds) {
		return fmt.Errorf("%d names for %d kinds", len(rec.N), len(kinds))
	}
	paths, err := decodePaths(rec.Q, len(kinds))
	if err != nil {
		return fmt.Errorf("field q: %w", err)
	}
	table, err := decodePathTable(rec.P, letters)
	if err != nil {
		return fmt.Errorf("field p: %w", err)
	}

	d := typeDecoder{paths: table}
	types := make([]*Signature, len(rec.F))
	for i, f := range rec.F {
		if types[i], err = d.signature(f); err != nil {
			return fmt.Errorf("field f[%d]: %w", i, err)
		}
	}

	*c = RawCrate{
		Name:      c.Name,
		Doc:       rec.Doc,
		Kinds:     kinds,
		Names:     rec.N,
		Paths:     paths,
		Descs:     rec.D,
		Parents:   rec.I,
		Types:     types,
		PathTable: table,
		Aliases:   rec.A,
	}
	return nil
}

func firstByte(raw json.RawMessage) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// decodeKinds reports letters=true when kinds came as a letter string.
func decodeKinds(raw json.RawMessage) ([]itemtype.ItemType, bool, error) {
	if isNull(raw) {
		return nil, false, nil
	}
	if firstByte(raw) == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, true, err
		}
		out := make([]itemtype.ItemType, 0, len(s))
		for _, r := range s {
			t := itemtype.FromLetterCode(int(r - 'A'))
			if t == itemtype.None {
				return nil, true, fmt.Errorf("unknown kind letter %q", r)
			}
			out = append(out, t)
		}
		return out, true, nil
	}

	var codes []int
	if err := json.Unmarshal(raw, &codes); err != nil {
		return nil, false, err
	}
	out := make([]itemtype.ItemType, len(codes))
	for i, code := range codes {
		if out[i] = itemtype.FromLegacy(code); out[i] == itemtype.None {
			return nil, false, fmt.Errorf("unknown kind code %d", code)
		}
	}
	return out, false, nil
}

func decodePaths(raw json.RawMessage, n int) ([]string, error) {
	out := make([]string, n)
	if isNull(raw) {
		return out, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	for i, e := range elems {
		switch firstByte(e) {
		case '"':
			var s string
			if err := json.Unmarshal(e, &s); err != nil {
				return nil, err
			}
			if i < n {
				out[i] = s
			}
		case '[':
			var parts []json.RawMessage
			if err := json.Unmarshal(e, &parts); err != nil {
				return nil, err
			}
			if len(parts) != 2 {
				return nil, fmt.Errorf("path entry %d: want [index, path], got %d elements", i, len(parts))
			}
			var idx int
			var path string
			if err := json.Unmarshal(parts[0], &idx); err != nil {
				return nil, fmt.Errorf("path entry %d: %w", i, err)
			}
			if err := json.Unmarshal(parts[1], &path); err != nil {
				return nil, fmt.Errorf("path entry %d: %w", i, err)
			}
			if idx >= 0 && idx < n {
				out[idx] = path
			}
		case 'n':
		default:
			return nil, fmt.Errorf("path entry %d: unexpected %s", i, e)
		}
	}
	return out, nil
}

func decodePathTable(elems []json.RawMessage, letters bool) ([]Parent, error) {
	out := make([]Parent, 0, len(elems))
	for i, e := range elems {
		var parts []json.RawMessage
		if err := json.Unmarshal(e, &parts); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if len(parts) < 2 {
			return nil, fmt.Errorf("entry %d: want [kind, name]", i)
		}
		var code int
		var p Parent
		if err := json.Unmarshal(parts[0], &code); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if err := json.Unmarshal(parts[1], &p.Name); err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if letters {
			p.Kind = itemtype.FromLetterCode(code)
		} else {
			p.Kind = itemtype.FromLegacy(code)
		}
		out = append(out, p)
	}
	return out, nil
}

type typeDecoder struct {
	paths []Parent
}

// signature decodes one `f` entry: 0 or null for none, else [inputs, output?].
func (d typeDecoder) signature(raw json.RawMessage) (*Signature, error) {
	if isNull(raw) || bytes.Equal(bytes.TrimSpace(raw), []byte("0")) {
		return nil, nil
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, err
	}
	sig := &Signature{Inputs: []TypeNode{}}
	var err error
	if len(parts) > 0 {
		if sig.Inputs, err = d.list(parts[0]); err != nil {
			return nil, fmt.Errorf("inputs: %w", err)
		}
	}
	if len(parts) > 1 {
		if sig.Output, err = d.list(parts[1]); err != nil {
			return nil, fmt.Errorf("output: %w", err)
		}
	}
	return sig, nil
}

// list decodes a type list. A bare number or a legacy [name, kind] node
// stands for a list of one.
func (d typeDecoder) list(raw json.RawMessage) ([]TypeNode, error) {
	switch c := firstByte(raw); {
	case c == 'n':
		return nil, nil
	case c == '-' || (c >= '0' && c <= '9'):
		n, err := d.node(raw)
		if err != nil {
			return nil, err
		}
		return []TypeNode{n}, nil
	case c != '[':
		return nil, fmt.Errorf("unexpected type list %s", raw)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	if len(elems) > 0 && firstByte(elems[0]) == '"' {
		n, err := d.node(raw)
		if err != nil {
			return nil, err
		}
		return []TypeNode{n}, nil
	}
	out := make([]TypeNode, 0, len(elems))
	for _, e := range elems {
		n, err := d.node(e)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (d typeDecoder) node(raw json.RawMessage) (TypeNode, error) {
	if c := firstByte(raw); c != '[' {
		var ref int
		if err := json.Unmarshal(raw, &ref); err != nil {
			return TypeNode{}, err
		}
		return d.ref(ref, nil)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return TypeNode{}, err
	}
	if len(elems) == 0 {
		return TypeNode{}, fmt.Errorf("empty type node")
	}

	if firstByte(elems[0]) != '"' {
		var ref int
		if err := json.Unmarshal(elems[0], &ref); err != nil {
			return TypeNode{}, err
		}
		var generics []TypeNode
		if len(elems) > 1 {
			var err error
			if generics, err = d.list(elems[1]); err != nil {
				return TypeNode{}, err
			}
		}
		return d.ref(ref, generics)
	}

	// Legacy [name, kind, generics?].
	var n TypeNode
	if err := json.Unmarshal(elems[0], &n.Name); err != nil {
		return TypeNode{}, err
	}
	n.Name = strings.ToLower(n.Name)
	n.Wildcard = n.Name == ""
	n.Kind = itemtype.None
	if len(elems) > 1 {
		var code int
		if err := json.Unmarshal(elems[1], &code); err != nil {
			return TypeNode{}, err
		}
		n.Kind = itemtype.FromLegacy(code)
	}
	if len(elems) > 2 {
		var err error
		if n.Generics, err = d.list(elems[2]); err != nil {
			return TypeNode{}, err
		}
	}
	return n, nil
}

// ref resolves a 1-based path table reference. Zero and negative references
// are unconstrained slots (negative ones are generic parameters).
func (d typeDecoder) ref(ref int, generics []TypeNode) (TypeNode, error) {
	if ref <= 0 {
		return TypeNode{Kind: itemtype.None, Generics: generics, Wildcard: true}, nil
	}
	if ref > len(d.paths) {
		return TypeNode{}, fmt.Errorf("type reference %d out of range (%d paths)", ref, len(d.paths))
	}
	p := d.paths[ref-1]
	return TypeNode{Name: strings.ToLower(p.Name), Kind: p.Kind, Generics: generics}, nil
}
