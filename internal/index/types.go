package index

import (
	"strings"

	"github.com/jcdickinson/ferrisfind/internal/itemtype"
)

// TypeNode is one node of a structural signature. A Wildcard node stands
// for an unconstrained slot; with generics it only wraps its children.
type TypeNode struct {
	Name     string            `json:"name,omitempty"`
	Kind     itemtype.ItemType `json:"kind"`
	Generics []TypeNode        `json:"generics,omitempty"`
	Wildcard bool              `json:"wildcard,omitempty"`
}

// Signature describes the inputs and output of a function-like item.
type Signature struct {
	Inputs []TypeNode `json:"inputs"`
	Output []TypeNode `json:"output,omitempty"`
}

// String renders the signature as `(a, b<c>) -> d`.
func (s *Signature) String() string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	b.WriteByte('(')
	writeNodes(&b, s.Inputs)
	b.WriteByte(')')
	switch len(s.Output) {
	case 0:
	case 1:
		b.WriteString(" -> ")
		writeNode(&b, s.Output[0])
	default:
		b.WriteString(" -> (")
		writeNodes(&b, s.Output)
		b.WriteByte(')')
	}
	return b.String()
}

func writeNodes(b *strings.Builder, nodes []TypeNode) {
	for i, n := range nodes {
		if i > 0 {
			b.WriteString(", ")
		}
		writeNode(b, n)
	}
}

func writeNode(b *strings.Builder, n TypeNode) {
	if n.Wildcard {
		b.WriteByte('_')
	} else {
		b.WriteString(n.Name)
	}
	if len(n.Generics) > 0 {
		b.WriteByte('<')
		writeNodes(b, n.Generics)
		b.WriteByte('>')
	}
}
