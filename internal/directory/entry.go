// Package directory provides the entry, attribute, DN and search model shared
// by sources, the mapping tree and the synchronization job.
package directory

import (
	"fmt"
	"sort"
	"strings"
)

// Attributes maps lower-cased attribute names to their values. Values are
// strings, []byte for binary data, or whatever scalar type a source returns.
type Attributes map[string][]any

// NewAttributes creates an attribute set from name/value pairs.
func NewAttributes(pairs ...any) Attributes {
	attrs := make(Attributes, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		name, ok := pairs[i].(string)
		if !ok {
			continue
		}
		attrs.Add(name, pairs[i+1])
	}
	return attrs
}

// Get returns the values for the given attribute name.
// Returns nil if the attribute does not exist.
func (a Attributes) Get(name string) []any {
	if a == nil {
		return nil
	}
	return a[strings.ToLower(name)]
}

// Values implements filter.Entry.
func (a Attributes) Values(name string) []any {
	return a.Get(name)
}

// First returns the first value for the given attribute name, or nil.
func (a Attributes) First(name string) any {
	values := a.Get(name)
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// Has returns true if the attribute has at least one value.
func (a Attributes) Has(name string) bool {
	return len(a.Get(name)) > 0
}

// Set replaces the values of an attribute. Setting no values deletes it.
func (a Attributes) Set(name string, values ...any) {
	name = strings.ToLower(name)
	if len(values) == 0 {
		delete(a, name)
		return
	}
	a[name] = values
}

// Add appends values that are not already present. Nil values are ignored.
func (a Attributes) Add(name string, values ...any) {
	name = strings.ToLower(name)
	current := a[name]
	for _, v := range values {
		if v == nil || containsValue(current, v) {
			continue
		}
		current = append(current, v)
	}
	if len(current) > 0 {
		a[name] = current
	}
}

// Delete removes an attribute.
func (a Attributes) Delete(name string) {
	delete(a, strings.ToLower(name))
}

// DeleteValue removes a value from an attribute. If the attribute has no more
// values after removal, the attribute is deleted.
func (a Attributes) DeleteValue(name string, value any) {
	name = strings.ToLower(name)
	values := a[name]
	kept := make([]any, 0, len(values))
	for _, v := range values {
		if !ValuesEqual(v, value) {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		delete(a, name)
	} else {
		a[name] = kept
	}
}

// Merge adds every value of other to a.
func (a Attributes) Merge(other Attributes) {
	for name, values := range other {
		a.Add(name, values...)
	}
}

// Names returns the attribute names in sorted order.
func (a Attributes) Names() []string {
	names := make([]string, 0, len(a))
	for name := range a {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone creates a deep copy of the attribute set.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	clone := make(Attributes, len(a))
	for name, values := range a {
		copied := make([]any, len(values))
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				v = append([]byte(nil), b...)
			}
			copied[i] = v
		}
		clone[name] = copied
	}
	return clone
}

// Equal reports whether both sets hold the same values per attribute,
// regardless of value order.
func (a Attributes) Equal(other Attributes) bool {
	if len(a) != len(other) {
		return false
	}
	for name, values := range a {
		others, ok := other[name]
		if !ok || len(values) != len(others) {
			return false
		}
		for _, v := range values {
			if !containsValue(others, v) {
				return false
			}
		}
	}
	return true
}

// ValueString renders an attribute value as text.
func ValueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// ValuesEqual compares two attribute values by their text form. Binary values
// only equal binary values with the same bytes.
func ValuesEqual(a, b any) bool {
	_, aBinary := a.([]byte)
	_, bBinary := b.([]byte)
	if aBinary != bBinary {
		return false
	}
	return ValueString(a) == ValueString(b)
}

func containsValue(values []any, v any) bool {
	for _, existing := range values {
		if ValuesEqual(existing, v) {
			return true
		}
	}
	return false
}

// Entry is a directory entry with multi-valued attributes.
type Entry struct {
	// DN is the distinguished name of the entry.
	DN string

	// Attributes contains the entry's attribute values.
	Attributes Attributes
}

// NewEntry creates a new Entry with the given DN.
func NewEntry(dn string) *Entry {
	return &Entry{
		DN:         dn,
		Attributes: make(Attributes),
	}
}

// Values implements filter.Entry.
func (e *Entry) Values(name string) []any {
	return e.Attributes.Get(name)
}

// DistinguishedName implements filter.DNEntry.
func (e *Entry) DistinguishedName() string {
	return e.DN
}

// AttributeNames implements filter.NamedEntry.
func (e *Entry) AttributeNames() []string {
	return e.Attributes.Names()
}

// Clone creates a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	return &Entry{DN: e.DN, Attributes: e.Attributes.Clone()}
}
