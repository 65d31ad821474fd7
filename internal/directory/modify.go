package directory

import (
	"sort"
	"strings"
)

// ModificationType represents the type of modification operation.
type ModificationType int

const (
	// ModAdd adds values to an attribute.
	ModAdd ModificationType = iota
	// ModDelete removes values from an attribute.
	ModDelete
	// ModReplace replaces all values of an attribute.
	ModReplace
)

// String returns the string representation of the modification type.
func (m ModificationType) String() string {
	switch m {
	case ModAdd:
		return "add"
	case ModDelete:
		return "delete"
	case ModReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Modification represents a single modification to an entry.
type Modification struct {
	Type      ModificationType
	Attribute string
	Values    []any
}

// NewModification creates a new Modification.
func NewModification(modType ModificationType, attr string, values ...any) *Modification {
	return &Modification{
		Type:      modType,
		Attribute: strings.ToLower(attr),
		Values:    values,
	}
}

// Apply applies modifications to attrs in order.
func Apply(attrs Attributes, mods []*Modification) {
	for _, mod := range mods {
		switch mod.Type {
		case ModAdd:
			attrs.Add(mod.Attribute, mod.Values...)
		case ModDelete:
			if len(mod.Values) == 0 {
				attrs.Delete(mod.Attribute)
				continue
			}
			for _, v := range mod.Values {
				attrs.DeleteValue(mod.Attribute, v)
			}
		case ModReplace:
			attrs.Set(mod.Attribute, mod.Values...)
		}
	}
}

// CreateModifications returns the modifications turning old into new.
// Attributes only in old are deleted, attributes only in new are added and
// for attributes in both the removed values are deleted and the new values
// added. Replace is never used. Attributes are visited in sorted order.
func CreateModifications(oldAttrs, newAttrs Attributes) []*Modification {
	names := make(map[string]bool, len(oldAttrs)+len(newAttrs))
	for name := range oldAttrs {
		names[name] = true
	}
	for name := range newAttrs {
		names[name] = true
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	var mods []*Modification
	for _, name := range sorted {
		before, after := oldAttrs[name], newAttrs[name]
		switch {
		case len(after) == 0 && len(before) > 0:
			mods = append(mods, NewModification(ModDelete, name, before...))
		case len(before) == 0 && len(after) > 0:
			mods = append(mods, NewModification(ModAdd, name, after...))
		default:
			if removed := difference(before, after); len(removed) > 0 {
				mods = append(mods, NewModification(ModDelete, name, removed...))
			}
			if added := difference(after, before); len(added) > 0 {
				mods = append(mods, NewModification(ModAdd, name, added...))
			}
		}
	}
	return mods
}

// difference returns the values of a that are not in b.
func difference(a, b []any) []any {
	var out []any
	for _, v := range a {
		if !containsValue(b, v) {
			out = append(out, v)
		}
	}
	return out
}
