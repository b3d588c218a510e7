package query

import (
	"fmt"

	"github.com/jcdickinson/ferrisfind/internal/itemtype"
)

// ParseError is a grammar violation in a query.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string {
	return e.Msg
}

func errorf(format string, args ...any) error {
	return &ParseError{Msg: fmt.Sprintf(format, args...)}
}

// UnknownTypeFilterError reports a `name:` prefix that is not an item kind.
type UnknownTypeFilterError struct {
	ParseError
	Name        string
	Suggestions []string
}

func newUnknownTypeFilterError(name string) *UnknownTypeFilterError {
	return &UnknownTypeFilterError{
		ParseError:  ParseError{Msg: "Unknown type filter `" + name + "`"},
		Name:        name,
		Suggestions: itemtype.Suggest(name),
	}
}

func (e *UnknownTypeFilterError) Unwrap() error {
	return &e.ParseError
}
