// Package filter provides LDAP search filter data structures, parsing,
// escaping and evaluation for the virtual directory.
//
// # Overview
//
// Filters are trees of the closed set of node types SimpleFilter,
// PresentFilter, SubstringFilter, AndFilter, OrFilter, NotFilter,
// BooleanFilter and ExtensibleFilter. Containers own their children; every
// child keeps a non-owning link to its parent so that a node can be replaced
// in place:
//
//	root := filter.NewRoot(filter.MustParse("(&(uid=alice)(ou=people))"))
//	and := root.Filter().(*filter.AndFilter)
//	and.Replace(and.Children()[1], nil)
//	root.Filter().String() // (uid=alice)
//
// Replacing a child of an AND or OR by nil removes it; a container left with
// one child is replaced by that child and an empty one by nil. Replacing a
// child by a BooleanFilter folds the constant: the identity element is
// dropped and the absorbing element replaces the whole container.
//
// # Parsing and Escaping
//
// Parse accepts RFC 4515 filter strings; String renders the canonical form.
// Format renders values as {n} placeholders for parameterized queries:
//
//	var args []any
//	f.Format(&args) // (&(uid={0})(ou={1})), args = [alice people]
//
// Escape and Unescape convert assertion values. Decoded values that are not
// valid UTF-8 are returned as []byte.
//
// # Evaluation
//
// Evaluator tests entries against filters. Sources that cannot evaluate every
// assertion natively use a Planner to push down a relaxed filter and apply
// the original one to the results.
package filter
