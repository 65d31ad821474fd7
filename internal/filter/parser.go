package filter

import (
	"errors"
	"fmt"
	"strings"
)

// Parser errors
var (
	ErrEmptyFilter      = errors.New("empty filter")
	ErrInvalidFilter    = errors.New("invalid filter syntax")
	ErrUnbalancedParens = errors.New("unbalanced parentheses")
	ErrMissingAttribute = errors.New("missing attribute name")
	ErrMissingValue     = errors.New("missing filter value")
	ErrInvalidValue     = errors.New("unescaped asterisk in filter value")
	ErrTrailingData     = errors.New("unexpected data after filter")
)

// ParseError describes a malformed filter string.
type ParseError struct {
	Filter string
	Pos    int
	Err    error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("filter: %v at position %d in %q", e.Err, e.Pos, e.Filter)
}

// Unwrap returns the underlying sentinel error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse parses an RFC 4515 filter string. It returns nil without an error for
// blank input. A bare item without enclosing parentheses ("uid=alice") is
// accepted.
//
//   - (attr=value), (attr~=value), (attr>=value), (attr<=value)
//   - (attr=*), (attr=ini*any*fin)
//   - (attr:dn:rule:=value), (:rule:=value)
//   - (&(f1)(f2)...), (|(f1)(f2)...), (!(f))
//   - (&) and (|) as absolute true and false
func Parse(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if s[0] != '(' {
		s = "(" + s + ")"
	}

	p := &parser{input: s}
	f, err := p.parseFilter()
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, p.fail(ErrTrailingData)
	}
	return f, nil
}

// MustParse is like Parse but panics on error. It is intended for filters
// known at compile time.
func MustParse(s string) Filter {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

type parser struct {
	input string
	pos   int
}

func (p *parser) fail(err error) error {
	return &ParseError{Filter: p.input, Pos: p.pos, Err: err}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *parser) parseFilter() (Filter, error) {
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, p.fail(ErrUnbalancedParens)
	}
	if p.input[p.pos] != '(' {
		return nil, p.fail(ErrInvalidFilter)
	}
	p.pos++
	p.skipSpace()
	if p.pos >= len(p.input) {
		return nil, p.fail(ErrUnbalancedParens)
	}

	var (
		f   Filter
		err error
	)
	switch p.input[p.pos] {
	case '&':
		p.pos++
		f, err = p.parseList(true)
	case '|':
		p.pos++
		f, err = p.parseList(false)
	case '!':
		p.pos++
		var child Filter
		if child, err = p.parseFilter(); err == nil {
			f = NewNot(child)
		}
	case ')':
		return nil, p.fail(ErrEmptyFilter)
	default:
		f, err = p.parseItem()
	}
	if err != nil {
		return nil, err
	}

	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != ')' {
		return nil, p.fail(ErrUnbalancedParens)
	}
	p.pos++
	return f, nil
}

func (p *parser) parseList(and bool) (Filter, error) {
	var children []Filter
	for {
		p.skipSpace()
		if p.pos >= len(p.input) {
			return nil, p.fail(ErrUnbalancedParens)
		}
		if p.input[p.pos] == ')' {
			break
		}
		child, err := p.parseFilter()
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}

	if len(children) == 0 {
		return NewBoolean(and), nil
	}
	if and {
		return NewAnd(children...), nil
	}
	return NewOr(children...), nil
}

// parseItem parses a single assertion. Values cannot contain unescaped
// parentheses, so the item ends at the next ')'.
func (p *parser) parseItem() (Filter, error) {
	end := strings.IndexByte(p.input[p.pos:], ')')
	if end < 0 {
		return nil, p.fail(ErrUnbalancedParens)
	}
	item := p.input[p.pos : p.pos+end]
	if strings.IndexByte(item, '(') >= 0 {
		return nil, p.fail(ErrInvalidFilter)
	}

	f, err := parseItem(item)
	if err != nil {
		return nil, p.fail(err)
	}
	p.pos += end
	return f, nil
}

func parseItem(item string) (Filter, error) {
	idx := strings.IndexByte(item, '=')
	if idx < 0 {
		return nil, ErrInvalidFilter
	}
	if idx == 0 {
		return nil, ErrMissingAttribute
	}

	raw := item[idx+1:]
	var op Operator
	var desc string
	switch item[idx-1] {
	case '~':
		op, desc = OpApprox, item[:idx-1]
	case '>':
		op, desc = OpGreaterOrEqual, item[:idx-1]
	case '<':
		op, desc = OpLessOrEqual, item[:idx-1]
	case ':':
		return parseExtensible(item[:idx-1], raw)
	default:
		op, desc = OpEqual, item[:idx]
	}

	attr := strings.TrimSpace(desc)
	if attr == "" {
		return nil, ErrMissingAttribute
	}

	if op != OpEqual {
		if strings.IndexByte(raw, '*') >= 0 {
			return nil, ErrInvalidValue
		}
		return NewSimple(attr, op, Unescape(raw)), nil
	}

	if raw == "*" {
		return NewPresent(attr), nil
	}
	if strings.IndexByte(raw, '*') >= 0 {
		return parseSubstring(attr, raw), nil
	}
	return NewEquality(attr, Unescape(raw)), nil
}

func parseSubstring(attr, raw string) *SubstringFilter {
	parts := strings.Split(raw, "*")
	sf := &SubstringFilter{
		Attribute: attr,
		Initial:   unescapeString(parts[0]),
		Final:     unescapeString(parts[len(parts)-1]),
	}
	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		sf.Any = append(sf.Any, unescapeString(part))
	}
	return sf
}

// parseExtensible parses the description of attr:dn:rule:=value. desc is the
// part before ":=".
func parseExtensible(desc, raw string) (Filter, error) {
	parts := strings.Split(desc, ":")
	f := &ExtensibleFilter{
		Attribute: strings.TrimSpace(parts[0]),
		Value:     Unescape(raw),
	}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
			return nil, ErrInvalidFilter
		case strings.EqualFold(part, "dn") && !f.DNAttributes && f.MatchingRule == "":
			f.DNAttributes = true
		case f.MatchingRule == "":
			f.MatchingRule = part
		default:
			return nil, ErrInvalidFilter
		}
	}

	if f.Attribute == "" && f.MatchingRule == "" {
		return nil, ErrMissingAttribute
	}
	return f, nil
}
