// Package filter provides LDAP search filter data structures, parsing and
// evaluation for the virtual directory.
package filter

import (
	"strings"
)

// Kind identifies the variant of a Filter node.
type Kind int

const (
	// KindSimple represents an attribute value assertion (attr=value, attr>=value, ...).
	KindSimple Kind = iota
	// KindPresent represents a presence filter (attr=*).
	KindPresent
	// KindSubstring represents a substring filter (attr=ini*any*fin).
	KindSubstring
	// KindAnd represents an AND filter (&).
	KindAnd
	// KindOr represents an OR filter (|).
	KindOr
	// KindNot represents a NOT filter (!).
	KindNot
	// KindBoolean represents a constant produced by constant folding.
	KindBoolean
	// KindExtensible represents an extensible match filter (attr:dn:rule:=value).
	KindExtensible
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "SIMPLE"
	case KindPresent:
		return "PRESENT"
	case KindSubstring:
		return "SUBSTRING"
	case KindAnd:
		return "AND"
	case KindOr:
		return "OR"
	case KindNot:
		return "NOT"
	case KindBoolean:
		return "BOOLEAN"
	case KindExtensible:
		return "EXTENSIBLE"
	default:
		return "UNKNOWN"
	}
}

// Operator is the comparison operator of a SimpleFilter.
type Operator string

const (
	OpEqual          Operator = "="
	OpApprox         Operator = "~="
	OpGreaterOrEqual Operator = ">="
	OpLessOrEqual    Operator = "<="
)

// Wildcard matches any attribute name or value when a filter is used as a
// template in Matches.
const Wildcard = "..."

// Filter is a node of a filter tree. The set of implementations is closed:
// *SimpleFilter, *PresentFilter, *SubstringFilter, *AndFilter, *OrFilter,
// *NotFilter, *BooleanFilter and *ExtensibleFilter.
//
// Trees are not safe for concurrent mutation; Clone before sharing.
type Filter interface {
	// Kind returns the variant of the node.
	Kind() Kind
	// Parent returns the enclosing container, or nil for a detached node.
	Parent() Container
	// String returns the canonical LDAP string form of the filter.
	String() string
	// Format writes the filter like String, but when args is non-nil every
	// value is replaced by a positional placeholder {n} and appended to args.
	Format(args *[]any) string
	// Clone returns a deep copy of the filter with no parent.
	Clone() Filter

	format(sb *strings.Builder, args *[]any)
	setParent(p Container)
}

// Container is a node that owns child filters and can rewrite them in place.
type Container interface {
	// Replace swaps old for replacement. A nil replacement removes old; a
	// BooleanFilter replacement is folded into the container.
	Replace(old, replacement Filter)
}

// node holds the non-owning back-link shared by all variants.
type node struct {
	parent Container
}

func (n *node) Parent() Container {
	return n.parent
}

func (n *node) setParent(p Container) {
	n.parent = p
}

// SimpleFilter is an attribute value assertion.
type SimpleFilter struct {
	node
	Attribute string
	Operator  Operator
	// Value is a string or a []byte when the unescaped value is not valid UTF-8.
	Value any
}

// NewSimple creates a new SimpleFilter.
func NewSimple(attribute string, op Operator, value any) *SimpleFilter {
	return &SimpleFilter{Attribute: attribute, Operator: op, Value: value}
}

// NewEquality creates a new equality filter.
func NewEquality(attribute string, value any) *SimpleFilter {
	return NewSimple(attribute, OpEqual, value)
}

func (f *SimpleFilter) Kind() Kind { return KindSimple }

func (f *SimpleFilter) Clone() Filter {
	return &SimpleFilter{Attribute: f.Attribute, Operator: f.Operator, Value: cloneValue(f.Value)}
}

// PresentFilter tests for the presence of an attribute.
type PresentFilter struct {
	node
	Attribute string
}

// NewPresent creates a new presence filter.
func NewPresent(attribute string) *PresentFilter {
	return &PresentFilter{Attribute: attribute}
}

func (f *PresentFilter) Kind() Kind { return KindPresent }

func (f *PresentFilter) Clone() Filter {
	return &PresentFilter{Attribute: f.Attribute}
}

// SubstringFilter matches values against initial, any and final components.
type SubstringFilter struct {
	node
	Attribute string
	Initial   string
	Any       []string
	Final     string
}

// NewSubstring creates a new substring filter.
func NewSubstring(attribute, initial string, parts []string, final string) *SubstringFilter {
	return &SubstringFilter{Attribute: attribute, Initial: initial, Any: parts, Final: final}
}

func (f *SubstringFilter) Kind() Kind { return KindSubstring }

func (f *SubstringFilter) Clone() Filter {
	var parts []string
	if f.Any != nil {
		parts = append([]string(nil), f.Any...)
	}
	return &SubstringFilter{Attribute: f.Attribute, Initial: f.Initial, Any: parts, Final: f.Final}
}

// ExtensibleFilter is an extensible match assertion.
type ExtensibleFilter struct {
	node
	Attribute    string
	MatchingRule string
	DNAttributes bool
	Value        any
}

// NewExtensible creates a new extensible match filter.
func NewExtensible(attribute, matchingRule string, dnAttributes bool, value any) *ExtensibleFilter {
	return &ExtensibleFilter{Attribute: attribute, MatchingRule: matchingRule, DNAttributes: dnAttributes, Value: value}
}

func (f *ExtensibleFilter) Kind() Kind { return KindExtensible }

func (f *ExtensibleFilter) Clone() Filter {
	return &ExtensibleFilter{
		Attribute:    f.Attribute,
		MatchingRule: f.MatchingRule,
		DNAttributes: f.DNAttributes,
		Value:        cloneValue(f.Value),
	}
}

// BooleanFilter is a constant. It renders as the RFC 4526 absolute true (&)
// and absolute false (|) filters.
type BooleanFilter struct {
	node
	Value bool
}

// NewBoolean creates a new constant filter.
func NewBoolean(value bool) *BooleanFilter {
	return &BooleanFilter{Value: value}
}

func (f *BooleanFilter) Kind() Kind { return KindBoolean }

func (f *BooleanFilter) Clone() Filter {
	return &BooleanFilter{Value: f.Value}
}

// NotFilter negates its child.
type NotFilter struct {
	node
	child Filter
}

// NewNot creates a new NOT filter owning child.
func NewNot(child Filter) *NotFilter {
	n := &NotFilter{}
	n.SetChild(child)
	return n
}

func (f *NotFilter) Kind() Kind { return KindNot }

// Child returns the negated filter.
func (f *NotFilter) Child() Filter {
	return f.child
}

// SetChild sets the negated filter and takes ownership of it.
func (f *NotFilter) SetChild(child Filter) {
	if f.child != nil {
		f.child.setParent(nil)
	}
	f.child = child
	if child != nil {
		child.setParent(f)
	}
}

func (f *NotFilter) Clone() Filter {
	if f.child == nil {
		return &NotFilter{}
	}
	return NewNot(f.child.Clone())
}

// Replace implements Container. A constant child is folded by replacing this
// filter in its parent with the inverted constant.
func (f *NotFilter) Replace(old, replacement Filter) {
	if old == nil || f.child != old {
		return
	}

	switch r := replacement.(type) {
	case nil:
		f.SetChild(nil)
		if f.parent != nil {
			f.parent.Replace(f, nil)
		}
	case *BooleanFilter:
		if f.parent != nil {
			f.parent.Replace(f, NewBoolean(!r.Value))
			return
		}
		f.SetChild(r)
	default:
		f.SetChild(replacement)
	}
}

// Root holds the top of a filter tree so that rewrites which replace the top
// node have a position to write into.
type Root struct {
	filter Filter
}

// NewRoot creates a Root owning f.
func NewRoot(f Filter) *Root {
	r := &Root{}
	r.set(f)
	return r
}

// Filter returns the current top of the tree, which may be nil after
// the whole tree was eliminated.
func (r *Root) Filter() Filter {
	return r.filter
}

// Replace implements Container.
func (r *Root) Replace(old, replacement Filter) {
	if r.filter != old {
		return
	}
	if old != nil {
		old.setParent(nil)
	}
	r.set(replacement)
}

func (r *Root) set(f Filter) {
	r.filter = f
	if f != nil {
		f.setParent(r)
	}
}

func cloneValue(v any) any {
	if b, ok := v.([]byte); ok {
		return append([]byte(nil), b...)
	}
	return v
}
