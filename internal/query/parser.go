package query

import "strings"

type parser struct {
	q   []rune
	pos int

	// orig is the input before lowercasing, when it has the same runes.
	orig []rune

	totalElems    int
	genericsElems int

	hasTypeFilter bool
	typeFilter    string

	query *ParsedQuery
}

func isWhitespace(c rune) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isSeparator(c rune) bool {
	return c == ',' || c == ' ' || c == '\t'
}

func isSpecialStart(c rune) bool {
	return c == '<' || c == '"'
}

func isEndCharacter(c rune) bool {
	return c == ',' || c == '>' || c == '-'
}

func isStop(c rune) bool {
	return isWhitespace(c) || isEndCharacter(c)
}

func isErrorCharacter(c rune) bool {
	return c == '(' || c == ')'
}

func isIdentChar(c rune) bool {
	return c == '_' ||
		(c >= '0' && c <= '9') ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z')
}

func (p *parser) lookingAt(s string) bool {
	i := p.pos
	for _, c := range s {
		if i >= len(p.q) || p.q[i] != c {
			return false
		}
		i++
	}
	return true
}

func (p *parser) isPathStart() bool   { return p.lookingAt("::") }
func (p *parser) isReturnArrow() bool { return p.lookingAt("->") }

func (p *parser) parseInput() error {
	q := p.query
	foundStop := true

	for p.pos < len(p.q) {
		c := p.q[p.pos]
		if isStop(c) {
			foundStop = true
			if isSeparator(c) {
				p.pos++
				continue
			}
			if c == '-' || c == '>' {
				if p.isReturnArrow() {
					break
				}
				return errorf("Unexpected `%c` (did you mean `->`?)", c)
			}
			return errorf("Unexpected `%c`", c)
		} else if c == ':' && !p.isPathStart() {
			switch {
			case p.hasTypeFilter:
				return errorf("Unexpected `:`")
			case len(q.Elems) == 0:
				return errorf("Expected type filter before `:`")
			case len(q.Elems) != 1 || p.totalElems != 1:
				return errorf("Unexpected `:`")
			case q.LiteralSearch:
				return errorf("You cannot use quotes on type filter")
			}
			if err := p.checkTypeFilterCharacters(); err != nil {
				return err
			}
			p.hasTypeFilter = true
			p.typeFilter = q.Elems[0].Name
			q.Elems = q.Elems[:0]
			p.pos++
			p.totalElems = 0
			q.LiteralSearch = false
			foundStop = true
			continue
		}

		if !foundStop {
			if p.hasTypeFilter {
				return errorf("Expected `,`, ` ` or `->`, found `%c`", c)
			}
			return errorf("Expected `,`, ` `, `:` or `->`, found `%c`", c)
		}

		before := len(q.Elems)
		if err := p.nextElem(&q.Elems, false); err != nil {
			return err
		}
		if len(q.Elems) == before {
			p.pos++
		}
		foundStop = false
	}

	for p.pos < len(p.q) {
		if p.isReturnArrow() {
			p.pos += 2
			if err := p.itemsBefore(&q.Returned, 0); err != nil {
				return err
			}
			if len(q.Returned) == 0 {
				return errorf("Expected at least one item after `->`")
			}
			break
		}
		p.pos++
	}
	return nil
}

// checkTypeFilterCharacters validates everything before the `:` of a type
// filter.
func (p *parser) checkTypeFilterCharacters() error {
	for _, c := range p.q[:p.pos] {
		if !isIdentChar(c) && !isWhitespace(c) {
			return errorf("Unexpected `%c` in type filter", c)
		}
	}
	return nil
}

// itemsBefore parses elements until endChar, or the end of input when
// endChar is 0, and consumes the terminator.
func (p *parser) itemsBefore(elems *[]Element, endChar rune) error {
	foundStop := true

	for p.pos < len(p.q) {
		c := p.q[p.pos]
		switch {
		case endChar != 0 && c == endChar:
			p.pos++
			return nil
		case isSeparator(c):
			p.pos++
			foundStop = true
			continue
		case c == ':' && p.isPathStart():
			return errorf("Unexpected `::`: paths cannot start with `::`")
		case c == ':' || isEndCharacter(c):
			after := "`->`"
			if endChar == '>' {
				after = "`<`"
			}
			return errorf("Unexpected `%c` after %s", c, after)
		}

		if !foundStop {
			if endChar != 0 {
				return errorf("Expected `,`, ` ` or `%c`, found `%c`", endChar, c)
			}
			return errorf("Expected `,` or ` `, found `%c`", c)
		}

		before := p.pos
		if err := p.nextElem(elems, endChar == '>'); err != nil {
			return err
		}
		if p.pos == before {
			p.pos++
		}
		foundStop = false
	}
	p.pos++
	return nil
}

// nextElem parses one element starting at the current position and appends
// it to elems.
func (p *parser) nextElem(elems *[]Element, inGenerics bool) error {
	var generics []Element
	start := p.pos
	var end int

	quoted := p.q[p.pos] == '"'
	if quoted {
		start++
		if err := p.stringElem(inGenerics); err != nil {
			return err
		}
		end = p.pos - 1
	} else {
		var err error
		if end, err = p.identEnd(); err != nil {
			return err
		}
	}

	if p.pos < len(p.q) && p.q[p.pos] == '<' {
		if inGenerics {
			return errorf("Unexpected `<` after `<`")
		}
		if start >= end {
			return errorf("Found generics without a path")
		}
		p.pos++
		if err := p.itemsBefore(&generics, '>'); err != nil {
			return err
		}
	}

	if start >= end && len(generics) == 0 {
		return nil
	}
	name, rawName := "", ""
	if start < end {
		name = string(p.q[start:end])
		rawName = name
		if len(p.orig) == len(p.q) {
			rawName = string(p.orig[start:end])
		}
	}
	el, ok, err := p.newElement(name, rawName, generics, inGenerics)
	if err != nil {
		return err
	}
	if ok {
		el.Quoted = quoted
		*elems = append(*elems, el)
	}
	return nil
}

// stringElem consumes a quoted element. The caller positions the parser on
// the opening quote.
func (p *parser) stringElem(inGenerics bool) error {
	switch {
	case inGenerics:
		return errorf("`\"` cannot be used in generics")
	case p.query.LiteralSearch:
		return errorf("Cannot have more than one literal search element")
	case p.totalElems-p.genericsElems > 0:
		return errorf("Cannot use literal search when there is more than one element")
	}

	p.pos++
	start := p.pos
	end, err := p.identEnd()
	if err != nil {
		return err
	}
	switch {
	case p.pos >= len(p.q):
		return errorf("Unclosed `\"`")
	case p.q[end] != '"':
		return errorf("Unexpected `%c` in a string element", p.q[end])
	case start == end:
		return errorf("Cannot have empty string element")
	}
	p.pos++
	p.query.LiteralSearch = true
	return nil
}

// identEnd advances over an identifier (with `::` separators and a trailing
// `!`) and returns the index just past it.
func (p *parser) identEnd() (int, error) {
	end := p.pos
	foundExclamation := false

	for p.pos < len(p.q) {
		c := p.q[p.pos]
		if !isIdentChar(c) {
			if c == '!' {
				if foundExclamation {
					return 0, errorf("Cannot have more than one `!` in an ident")
				}
				if p.pos+1 < len(p.q) && isIdentChar(p.q[p.pos+1]) {
					return 0, errorf("`!` can only be at the end of an ident")
				}
				foundExclamation = true
			} else if isErrorCharacter(c) {
				return 0, errorf("Unexpected `%c`", c)
			} else if isStop(c) || isSpecialStart(c) || isSeparator(c) {
				break
			} else if c == ':' {
				if !p.isPathStart() {
					break
				}
				// Skip the first colon; the loop step skips the second.
				p.pos++
				foundExclamation = false
			} else {
				return 0, errorf("Unexpected `%c`", c)
			}
		}
		p.pos++
		end = p.pos
	}
	return end, nil
}

func (p *parser) newElement(name, rawName string, generics []Element, inGenerics bool) (Element, bool, error) {
	if name == "*" || (name == "" && len(generics) == 0) {
		return Element{}, false, nil
	}
	if p.query.LiteralSearch && p.totalElems-p.genericsElems > 0 {
		return Element{}, false, errorf("You cannot have more than one element if you use quotes")
	}

	path := strings.Split(name, "::")
	if len(path) > 1 {
		for i, seg := range path {
			if seg != "" {
				continue
			}
			switch i {
			case 0:
				return Element{}, false, errorf("Paths cannot start with `::`")
			case len(path) - 1:
				return Element{}, false, errorf("Paths cannot end with `::`")
			default:
				return Element{}, false, errorf("Unexpected `::::`")
			}
		}
	}

	p.totalElems++
	if inGenerics {
		p.genericsElems++
	}
	last := len(path) - 1
	return Element{
		Name:            name,
		RawName:         rawName,
		FullPath:        path,
		PathWithoutLast: path[:last:last],
		PathLast:        path[last],
		Generics:        generics,
	}, true, nil
}
