package filter

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Matches reports whether f conforms to template. Unlike Equal, the Wildcard
// "..." in an attribute name or value of template matches anything. And and
// Or require the same number of children matching pairwise in order; any two
// BooleanFilters match.
func Matches(template, f Filter) bool {
	return compare(template, f, true)
}

// Equal reports whether a and b are structurally equal. Attribute names and
// string values are compared case-insensitively.
func Equal(a, b Filter) bool {
	return compare(a, b, false)
}

func compare(a, b Filter, wildcard bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch x := a.(type) {
	case *SimpleFilter:
		y := b.(*SimpleFilter)
		return x.Operator == y.Operator &&
			attributeMatches(x.Attribute, y.Attribute, wildcard) &&
			valueMatches(x.Value, y.Value, wildcard)
	case *PresentFilter:
		return attributeMatches(x.Attribute, b.(*PresentFilter).Attribute, wildcard)
	case *SubstringFilter:
		y := b.(*SubstringFilter)
		if !attributeMatches(x.Attribute, y.Attribute, wildcard) || len(x.Any) != len(y.Any) {
			return false
		}
		if !valueMatches(x.Initial, y.Initial, wildcard) || !valueMatches(x.Final, y.Final, wildcard) {
			return false
		}
		for i := range x.Any {
			if !valueMatches(x.Any[i], y.Any[i], wildcard) {
				return false
			}
		}
		return true
	case *ExtensibleFilter:
		y := b.(*ExtensibleFilter)
		return x.DNAttributes == y.DNAttributes &&
			attributeMatches(x.Attribute, y.Attribute, wildcard) &&
			attributeMatches(x.MatchingRule, y.MatchingRule, wildcard) &&
			valueMatches(x.Value, y.Value, wildcard)
	case *BooleanFilter:
		return wildcard || x.Value == b.(*BooleanFilter).Value
	case *NotFilter:
		return compare(x.child, b.(*NotFilter).child, wildcard)
	case *AndFilter:
		return compareChildren(x.children, b.(*AndFilter).children, wildcard)
	case *OrFilter:
		return compareChildren(x.children, b.(*OrFilter).children, wildcard)
	}
	return false
}

func compareChildren(a, b []Filter, wildcard bool) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !compare(a[i], b[i], wildcard) {
			return false
		}
	}
	return true
}

func attributeMatches(template, name string, wildcard bool) bool {
	if wildcard && template == Wildcard {
		return true
	}
	return strings.EqualFold(template, name)
}

func valueMatches(template, value any, wildcard bool) bool {
	if wildcard {
		if s, ok := template.(string); ok && s == Wildcard {
			return true
		}
	}
	return valuesEqual(template, value)
}

// valuesEqual compares two assertion values. Binary values are compared byte
// for byte, everything else as case-insensitive text.
func valuesEqual(a, b any) bool {
	ab, aBinary := a.([]byte)
	bb, bBinary := b.([]byte)
	switch {
	case aBinary && bBinary:
		return bytes.Equal(ab, bb)
	case aBinary:
		return bytes.Equal(ab, []byte(toString(b)))
	case bBinary:
		return bytes.Equal([]byte(toString(a)), bb)
	}
	return strings.EqualFold(toString(a), toString(b))
}

// toString renders an attribute or assertion value as text.
func toString(v any) string {
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

// matchSubstring checks whether value matches the initial, any and final
// components of a substring assertion, ignoring case.
func matchSubstring(value, initial string, parts []string, final string) bool {
	value = strings.ToLower(value)
	pos := 0

	if initial != "" {
		initial = strings.ToLower(initial)
		if !strings.HasPrefix(value, initial) {
			return false
		}
		pos = len(initial)
	}

	for _, part := range parts {
		if part == "" {
			continue
		}
		part = strings.ToLower(part)
		idx := strings.Index(value[pos:], part)
		if idx < 0 {
			return false
		}
		pos += idx + len(part)
	}

	if final != "" {
		return strings.HasSuffix(value[pos:], strings.ToLower(final))
	}
	return true
}

// compareOrdered compares two values numerically when both parse as numbers
// and lexicographically ignoring case otherwise.
func compareOrdered(value, threshold any) int {
	vs, ts := toString(value), toString(threshold)
	if vf, err := strconv.ParseFloat(strings.TrimSpace(vs), 64); err == nil {
		if tf, err := strconv.ParseFloat(strings.TrimSpace(ts), 64); err == nil {
			switch {
			case vf < tf:
				return -1
			case vf > tf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(strings.ToLower(vs), strings.ToLower(ts))
}

// matchApprox compares values after lowering case and collapsing whitespace.
func matchApprox(a, b any) bool {
	return normalizeForApprox(toString(a)) == normalizeForApprox(toString(b))
}

func normalizeForApprox(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
