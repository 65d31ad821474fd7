package filter

import (
	"bytes"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Entry is the view of a directory entry the evaluator needs.
type Entry interface {
	// Values returns the values of an attribute, matched case-insensitively.
	Values(attribute string) []any
}

// DNEntry is an Entry that also exposes its distinguished name. It is used
// by extensible filters with the :dn flag.
type DNEntry interface {
	Entry
	DistinguishedName() string
}

// NamedEntry is an Entry that can list its attribute names. It is used by
// extensible filters without an attribute type.
type NamedEntry interface {
	Entry
	AttributeNames() []string
}

// Evaluator evaluates LDAP search filters against entries.
type Evaluator struct {
	exact map[string]bool
}

// NewEvaluator creates a new filter evaluator. Values of the given attributes
// are compared case-sensitively; all others ignore case.
func NewEvaluator(caseExact ...string) *Evaluator {
	e := &Evaluator{exact: make(map[string]bool, len(caseExact))}
	for _, attr := range caseExact {
		e.exact[strings.ToLower(attr)] = true
	}
	return e
}

// Evaluate tests whether an entry matches a filter. A nil filter matches
// every entry.
func (e *Evaluator) Evaluate(f Filter, entry Entry) bool {
	if f == nil {
		return true
	}
	if entry == nil {
		return false
	}

	switch n := f.(type) {
	case *AndFilter:
		for _, child := range n.children {
			if !e.Evaluate(child, entry) {
				return false
			}
		}
		return true
	case *OrFilter:
		for _, child := range n.children {
			if e.Evaluate(child, entry) {
				return true
			}
		}
		return false
	case *NotFilter:
		if n.child == nil {
			return false
		}
		return !e.Evaluate(n.child, entry)
	case *BooleanFilter:
		return n.Value
	case *PresentFilter:
		return len(entry.Values(n.Attribute)) > 0
	case *SubstringFilter:
		for _, v := range entry.Values(n.Attribute) {
			if matchSubstring(toString(v), n.Initial, n.Any, n.Final) {
				return true
			}
		}
		return false
	case *SimpleFilter:
		return e.evaluateSimple(n, entry)
	case *ExtensibleFilter:
		return e.evaluateExtensible(n, entry)
	}
	return false
}

func (e *Evaluator) evaluateSimple(f *SimpleFilter, entry Entry) bool {
	for _, v := range entry.Values(f.Attribute) {
		var ok bool
		switch f.Operator {
		case OpEqual:
			ok = e.equal(f.Attribute, v, f.Value)
		case OpApprox:
			ok = matchApprox(v, f.Value)
		case OpGreaterOrEqual:
			ok = compareOrdered(v, f.Value) >= 0
		case OpLessOrEqual:
			ok = compareOrdered(v, f.Value) <= 0
		}
		if ok {
			return true
		}
	}
	return false
}

// evaluateExtensible applies equality matching regardless of the matching
// rule. With :dn the RDN components of the entry's DN are considered too.
func (e *Evaluator) evaluateExtensible(f *ExtensibleFilter, entry Entry) bool {
	attrs := []string{f.Attribute}
	if f.Attribute == "" {
		named, ok := entry.(NamedEntry)
		if !ok {
			attrs = nil
		} else {
			attrs = named.AttributeNames()
		}
	}

	for _, attr := range attrs {
		for _, v := range entry.Values(attr) {
			if e.equal(attr, v, f.Value) {
				return true
			}
		}
	}

	if !f.DNAttributes {
		return false
	}
	dnEntry, ok := entry.(DNEntry)
	if !ok {
		return false
	}
	dn, err := ldap.ParseDN(dnEntry.DistinguishedName())
	if err != nil {
		return false
	}
	for _, rdn := range dn.RDNs {
		for _, ava := range rdn.Attributes {
			if f.Attribute != "" && !strings.EqualFold(ava.Type, f.Attribute) {
				continue
			}
			if e.equal(ava.Type, ava.Value, f.Value) {
				return true
			}
		}
	}
	return false
}

func (e *Evaluator) equal(attr string, value, assertion any) bool {
	if e.exact[strings.ToLower(attr)] {
		return bytes.Equal([]byte(toString(value)), []byte(toString(assertion)))
	}
	return valuesEqual(value, assertion)
}

// Evaluate tests an entry with a default Evaluator.
func Evaluate(f Filter, entry Entry) bool {
	return defaultEvaluator.Evaluate(f, entry)
}

var defaultEvaluator = NewEvaluator()
