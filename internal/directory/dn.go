package directory

import (
	"errors"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// DN errors
var (
	ErrInvalidDN  = errors.New("directory: invalid DN")
	ErrInvalidRDN = errors.New("directory: invalid RDN")
)

// AVA is one attribute type and value pair of an RDN.
type AVA struct {
	Type  string
	Value string
}

// RDN is a relative distinguished name: one or more AVAs joined by '+'.
type RDN []AVA

// String renders the RDN with escaped values.
func (r RDN) String() string {
	parts := make([]string, len(r))
	for i, ava := range r {
		parts[i] = ava.Type + "=" + EscapeDNValue(ava.Value)
	}
	return strings.Join(parts, "+")
}

// Attributes returns the AVAs of the RDN as an attribute set.
func (r RDN) Attributes() Attributes {
	attrs := make(Attributes, len(r))
	for _, ava := range r {
		attrs.Add(ava.Type, ava.Value)
	}
	return attrs
}

// Get returns the value of the first AVA with the given type.
func (r RDN) Get(attrType string) (string, bool) {
	for _, ava := range r {
		if strings.EqualFold(ava.Type, attrType) {
			return ava.Value, true
		}
	}
	return "", false
}

// ParseDN splits a DN into its RDNs. Attribute types are not validated, so
// qualified types such as "u.id" used for raw source results are accepted.
func ParseDN(dn string) ([]RDN, error) {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return nil, nil
	}

	var rdns []RDN
	for _, part := range splitEscaped(dn, ',') {
		rdn, err := ParseRDN(part)
		if err != nil {
			return nil, err
		}
		rdns = append(rdns, rdn)
	}
	return rdns, nil
}

// ParseRDN parses a single RDN such as "uid=alice" or "cn=a+sn=b".
func ParseRDN(s string) (RDN, error) {
	var rdn RDN
	for _, part := range splitEscaped(s, '+') {
		idx := strings.IndexByte(part, '=')
		if idx <= 0 {
			return nil, ErrInvalidRDN
		}
		attrType := strings.TrimSpace(part[:idx])
		if attrType == "" {
			return nil, ErrInvalidRDN
		}
		rdn = append(rdn, AVA{
			Type:  attrType,
			Value: UnescapeDNValue(trimUnescapedSpace(part[idx+1:])),
		})
	}
	if len(rdn) == 0 {
		return nil, ErrInvalidRDN
	}
	return rdn, nil
}

// FormatDN joins RDNs into a DN string.
func FormatDN(rdns []RDN) string {
	parts := make([]string, len(rdns))
	for i, rdn := range rdns {
		parts[i] = rdn.String()
	}
	return strings.Join(parts, ",")
}

// NormalizeDN returns the canonical form of dn used for comparisons:
// lower-cased types and values, no insignificant spaces.
func NormalizeDN(dn string) string {
	dn = strings.TrimSpace(dn)
	if dn == "" {
		return ""
	}

	if parsed, err := ldap.ParseDN(dn); err == nil {
		rdns := make([]RDN, len(parsed.RDNs))
		for i, rdn := range parsed.RDNs {
			for _, ava := range rdn.Attributes {
				rdns[i] = append(rdns[i], AVA{Type: ava.Type, Value: ava.Value})
			}
		}
		return normalizeRDNs(rdns)
	}

	rdns, err := ParseDN(dn)
	if err != nil {
		return strings.ToLower(dn)
	}
	return normalizeRDNs(rdns)
}

func normalizeRDNs(rdns []RDN) string {
	out := make([]RDN, len(rdns))
	for i, rdn := range rdns {
		out[i] = make(RDN, len(rdn))
		for j, ava := range rdn {
			out[i][j] = AVA{Type: strings.ToLower(ava.Type), Value: strings.ToLower(ava.Value)}
		}
	}
	return FormatDN(out)
}

// EqualDN reports whether two DNs name the same entry.
func EqualDN(a, b string) bool {
	da, errA := ldap.ParseDN(a)
	db, errB := ldap.ParseDN(b)
	if errA == nil && errB == nil {
		return da.EqualFold(db)
	}
	return NormalizeDN(a) == NormalizeDN(b)
}

// ParentDN returns the DN of the parent entry, or "" for a single RDN.
func ParentDN(dn string) string {
	parts := splitEscaped(strings.TrimSpace(dn), ',')
	if len(parts) <= 1 {
		return ""
	}
	return strings.TrimSpace(strings.Join(parts[1:], ","))
}

// FirstRDN returns the leftmost RDN of dn as written.
func FirstRDN(dn string) string {
	parts := splitEscaped(strings.TrimSpace(dn), ',')
	if len(parts) == 0 {
		return ""
	}
	return strings.TrimSpace(parts[0])
}

// JoinDN appends base to rdn.
func JoinDN(rdn, base string) string {
	switch {
	case rdn == "":
		return base
	case base == "":
		return rdn
	}
	return rdn + "," + base
}

// IsDescendant reports whether dn equals base or lies below it.
func IsDescendant(dn, base string) bool {
	if strings.TrimSpace(base) == "" {
		return true
	}
	d := reversed(dn)
	b := reversed(base)
	if len(d) < len(b) {
		return false
	}
	for i := range b {
		if d[i] != b[i] {
			return false
		}
	}
	return true
}

// InScope reports whether dn is within scope of base.
func InScope(dn, base string, scope Scope) bool {
	depth := len(reversed(dn)) - len(reversed(base))
	if depth < 0 || !IsDescendant(dn, base) {
		return false
	}
	switch scope {
	case ScopeBase:
		return depth == 0
	case ScopeOneLevel:
		return depth == 1
	default:
		return true
	}
}

// CompareDN orders DNs hierarchically: the normalized RDN sequences are
// compared from the root down, so a parent sorts before its children and
// siblings sort by RDN. It returns -1, 0 or 1.
func CompareDN(a, b string) int {
	ra, rb := reversed(a), reversed(b)
	for i := 0; i < len(ra) && i < len(rb); i++ {
		if c := strings.Compare(ra[i], rb[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(ra) < len(rb):
		return -1
	case len(ra) > len(rb):
		return 1
	}
	return 0
}

// reversed returns the normalized RDN strings of dn from the root down.
func reversed(dn string) []string {
	normalized := NormalizeDN(dn)
	if normalized == "" {
		return nil
	}
	parts := splitEscaped(normalized, ',')
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return parts
}

// splitEscaped splits s on sep, ignoring separators preceded by a backslash.
func splitEscaped(s string, sep byte) []string {
	if s == "" {
		return nil
	}
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// trimUnescapedSpace trims surrounding spaces that are not escaped.
func trimUnescapedSpace(s string) string {
	s = strings.TrimLeft(s, " ")
	for strings.HasSuffix(s, " ") && !strings.HasSuffix(s, `\ `) {
		s = s[:len(s)-1]
	}
	return s
}

// EscapeDNValue escapes special characters in a DN attribute value according
// to RFC 4514.
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var sb strings.Builder
	sb.Grow(len(value) + 8)
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c == ',' || c == '+' || c == '"' || c == '\\' || c == '<' || c == '>' || c == ';' || c == '=':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '#' && i == 0:
			sb.WriteString(`\#`)
		case c == ' ' && (i == 0 || i == len(value)-1):
			sb.WriteString(`\ `)
		case c == 0:
			sb.WriteString(`\00`)
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// UnescapeDNValue reverses EscapeDNValue, including \XX hex escapes.
func UnescapeDNValue(value string) string {
	if strings.IndexByte(value, '\\') < 0 {
		return value
	}

	buf := make([]byte, 0, len(value))
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c != '\\' || i+1 >= len(value) {
			buf = append(buf, c)
			continue
		}
		if i+2 < len(value) && isHexDigit(value[i+1]) && isHexDigit(value[i+2]) {
			buf = append(buf, hexValue(value[i+1])<<4|hexValue(value[i+2]))
			i += 2
			continue
		}
		buf = append(buf, value[i+1])
		i++
	}
	return string(buf)
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexValue(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
