package filter

import (
	"sort"
	"strings"
)

// AppendAnd merges f into existing as a conjunction and returns the result.
// Nested AND filters are flattened and children structurally equal to one
// already present are skipped, so appending a filter twice is a no-op.
// Both arguments are consumed; neither may still belong to another tree.
func AppendAnd(existing, f Filter) Filter {
	if f == nil {
		return existing
	}
	if existing == nil {
		return f
	}
	if Equal(existing, f) {
		return existing
	}

	and, ok := existing.(*AndFilter)
	if !ok {
		and = NewAnd(existing)
	}
	if other, ok := f.(*AndFilter); ok {
		for _, child := range other.Children() {
			appendUnique(&and.container, and, child)
		}
		return and
	}
	appendUnique(&and.container, and, f)
	return and
}

// AppendOr is AppendAnd for disjunctions.
func AppendOr(existing, f Filter) Filter {
	if f == nil {
		return existing
	}
	if existing == nil {
		return f
	}
	if Equal(existing, f) {
		return existing
	}

	or, ok := existing.(*OrFilter)
	if !ok {
		or = NewOr(existing)
	}
	if other, ok := f.(*OrFilter); ok {
		for _, child := range other.Children() {
			appendUnique(&or.container, or, child)
		}
		return or
	}
	appendUnique(&or.container, or, f)
	return or
}

func appendUnique(c *container, self parentFilter, f Filter) {
	for _, child := range c.children {
		if Equal(child, f) {
			return
		}
	}
	c.add(self, f)
}

// FromAttributes builds an equality filter per attribute value, combined with
// AND when there is more than one. Names are visited in sorted order. It is
// used to turn the components of an RDN into a search filter.
func FromAttributes(attrs map[string][]any) Filter {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var f Filter
	for _, name := range names {
		for _, v := range attrs[name] {
			f = AppendAnd(f, NewEquality(name, v))
		}
	}
	return f
}

// Walk visits f and its descendants in depth-first order. Returning false
// from fn skips the children of the visited node.
func Walk(f Filter, fn func(Filter) bool) {
	if f == nil || !fn(f) {
		return
	}
	switch n := f.(type) {
	case *AndFilter:
		for _, child := range n.children {
			Walk(child, fn)
		}
	case *OrFilter:
		for _, child := range n.children {
			Walk(child, fn)
		}
	case *NotFilter:
		Walk(n.child, fn)
	}
}

// AttributeName returns the attribute a leaf filter asserts on, or "" for
// containers and constants.
func AttributeName(f Filter) string {
	switch n := f.(type) {
	case *SimpleFilter:
		return n.Attribute
	case *PresentFilter:
		return n.Attribute
	case *SubstringFilter:
		return n.Attribute
	case *ExtensibleFilter:
		return n.Attribute
	}
	return ""
}

// Attributes returns the lower-cased attribute names mentioned in f in
// order of first appearance.
func Attributes(f Filter) []string {
	var names []string
	seen := make(map[string]bool)
	Walk(f, func(n Filter) bool {
		name := strings.ToLower(AttributeName(n))
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		return true
	})
	return names
}

// Rename rewrites the attribute names of every leaf in f in place. Leaves
// for which fn returns "" keep their name.
func Rename(f Filter, fn func(attribute string) string) {
	Walk(f, func(n Filter) bool {
		name := AttributeName(n)
		if name == "" {
			return true
		}
		renamed := fn(name)
		if renamed == "" {
			return true
		}
		switch leaf := n.(type) {
		case *SimpleFilter:
			leaf.Attribute = renamed
		case *PresentFilter:
			leaf.Attribute = renamed
		case *SubstringFilter:
			leaf.Attribute = renamed
		case *ExtensibleFilter:
			leaf.Attribute = renamed
		}
		return true
	})
}

// Simplify returns a copy of f with constants folded into their containers
// and double negations removed. The result may be a BooleanFilter or nil.
func Simplify(f Filter) Filter {
	if f == nil {
		return nil
	}
	root := NewRoot(f.Clone())
	simplify(root.Filter())
	return root.Filter()
}

func simplify(f Filter) {
	switch n := f.(type) {
	case *AndFilter:
		for _, child := range n.Children() {
			simplify(child)
		}
	case *OrFilter:
		for _, child := range n.Children() {
			simplify(child)
		}
	case *NotFilter:
		if n.child == nil {
			return
		}
		simplify(n.child)
		inner, ok := n.child.(*NotFilter)
		if ok && inner.child != nil && n.parent != nil {
			n.parent.Replace(n, inner.child)
		}
	case *BooleanFilter:
		if _, top := n.parent.(*Root); n.parent != nil && !top {
			n.parent.Replace(n, n)
		}
	}
}
