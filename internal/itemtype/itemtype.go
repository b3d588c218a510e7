package itemtype

import (
	"fmt"

	"github.com/sahilm/fuzzy"
)

// ItemType is the kind of a documented item. The numeric order matches the
// legacy rustdoc search index encoding and is used as a ranking tie-break.
type ItemType int

const (
	Module ItemType = iota
	ExternCrate
	Import
	Struct
	Enum
	Fn
	Type
	Static
	Trait
	Impl
	TyMethod
	Method
	StructField
	Variant
	Macro
	Primitive
	AssociatedType
	Constant
	AssociatedConstant
	Union
	ForeignType
	Keyword
	Existential
	Attr
	Derive
	TraitAlias
)

// None means "no type filter"; Invalid marks the filter of a query that
// failed to parse.
const (
	None    ItemType = -1
	Invalid ItemType = -2
)

var names = []string{
	"mod", "externcrate", "import", "struct", "enum", "fn", "type", "static", "trait", "impl",
	"tymethod", "method", "structfield", "variant", "macro", "primitive", "associatedtype",
	"constant", "associatedconstant", "union", "foreigntype", "keyword", "existential", "attr",
	"derive", "traitalias",
}

// letterOrder is the kind order used by newer rustdoc indexes, which encode
// kinds as letters starting at 'A'.
var letterOrder = []ItemType{
	Keyword, Primitive, Module, ExternCrate, Import, Struct, Enum, Fn, Type, Static, Trait, Impl,
	TyMethod, Method, StructField, Variant, Macro, AssociatedType, Constant, AssociatedConstant,
	Union, ForeignType, Existential, Attr, Derive, TraitAlias,
}

func (t ItemType) String() string {
	switch {
	case t == None:
		return "none"
	case t == Invalid:
		return "invalid"
	case t < 0 || int(t) >= len(names):
		return fmt.Sprintf("itemtype(%d)", int(t))
	}
	return names[t]
}

// Valid reports whether t is one of the known item kinds.
func (t ItemType) Valid() bool {
	return t >= 0 && int(t) < len(names)
}

// MarshalText renders the kind name so JSON and YAML output stay readable.
func (t ItemType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *ItemType) UnmarshalText(text []byte) error {
	switch s := string(text); s {
	case "none":
		*t = None
	case "invalid":
		*t = Invalid
	default:
		v, ok := FromName(s)
		if !ok {
			return fmt.Errorf("unknown item type %q", s)
		}
		*t = v
	}
	return nil
}

// Names returns all kind names in enum order.
func Names() []string {
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// FromName resolves a kind name. The second result is false for unknown names.
func FromName(name string) (ItemType, bool) {
	for i, n := range names {
		if n == name {
			return ItemType(i), true
		}
	}
	return None, false
}

// FromLegacy converts a legacy numeric kind code.
func FromLegacy(code int) ItemType {
	if code < 0 || code >= len(names) {
		return None
	}
	return ItemType(code)
}

// FromLetterCode converts a kind code in the newer rustdoc order, either as
// a number or as the offset of a letter from 'A'.
func FromLetterCode(code int) ItemType {
	if code < 0 || code >= len(letterOrder) {
		return None
	}
	return letterOrder[code]
}

// IsPrimitiveOrKeyword reports whether t is ranked ahead of other kinds.
func (t ItemType) IsPrimitiveOrKeyword() bool {
	return t == Primitive || t == Keyword
}

// PassesFilter reports whether an item of kind t is accepted by filter.
// Besides exact equality a few kinds are equivalent to a broader filter.
func PassesFilter(filter, t ItemType) bool {
	if filter <= None || filter == t {
		return true
	}
	switch filter {
	case Constant:
		return t == AssociatedConstant
	case Fn:
		return t == Method || t == TyMethod
	case Type:
		return t == Primitive || t == AssociatedType
	case Trait:
		return t == TraitAlias
	}
	return false
}

// Suggest returns known kind names that fuzzy-match name, best first.
func Suggest(name string) []string {
	if name == "" {
		return nil
	}
	matches := fuzzy.Find(name, names)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Str)
	}
	return out
}
