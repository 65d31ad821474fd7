package directory

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDN(t *testing.T) {
	rdns, err := ParseDN(`u.id=1+u.name=Doe\, John,ou=people,dc=example`)
	require.NoError(t, err)
	require.Len(t, rdns, 3)
	assert.Equal(t, RDN{{Type: "u.id", Value: "1"}, {Type: "u.name", Value: "Doe, John"}}, rdns[0])

	v, ok := rdns[0].Get("U.NAME")
	assert.True(t, ok)
	assert.Equal(t, "Doe, John", v)
	assert.Equal(t, `u.id=1+u.name=Doe\, John,ou=people,dc=example`, FormatDN(rdns))

	_, err = ParseDN("ou=people,broken")
	assert.ErrorIs(t, err, ErrInvalidRDN)

	rdns, err = ParseDN("")
	assert.NoError(t, err)
	assert.Empty(t, rdns)
}

func TestNormalizeDN(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"UID=Alice, OU=People,DC=Example", "uid=alice,ou=people,dc=example"},
		{`cn=Doe\, John,dc=com`, `cn=doe\, john,dc=com`},
		{"u.id=1,ou=Users", "u.id=1,ou=users"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDN(tt.input), tt.input)
	}
	assert.True(t, EqualDN("uid=Alice,dc=Example", "UID=alice, dc=example"))
	assert.False(t, EqualDN("uid=alice,dc=example", "uid=bob,dc=example"))
}

func TestDNHelpers(t *testing.T) {
	assert.Equal(t, "ou=people,dc=example", ParentDN("uid=a,ou=people,dc=example"))
	assert.Equal(t, "", ParentDN("dc=example"))
	assert.Equal(t, `cn=a\,b`, FirstRDN(`cn=a\,b,dc=example`))
	assert.Equal(t, "uid=a,dc=example", JoinDN("uid=a", "dc=example"))
	assert.Equal(t, "dc=example", JoinDN("", "dc=example"))
	assert.Equal(t, "uid=a", JoinDN("uid=a", ""))
}

func TestInScope(t *testing.T) {
	base := "ou=people,dc=example"
	tests := []struct {
		dn    string
		scope Scope
		want  bool
	}{
		{"ou=people,dc=example", ScopeBase, true},
		{"uid=a,ou=people,dc=example", ScopeBase, false},
		{"uid=a,ou=people,dc=example", ScopeOneLevel, true},
		{"cn=x,uid=a,ou=people,dc=example", ScopeOneLevel, false},
		{"cn=x,uid=a,OU=People,dc=example", ScopeSubtree, true},
		{"ou=groups,dc=example", ScopeSubtree, false},
		{"dc=example", ScopeSubtree, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, InScope(tt.dn, base, tt.scope), "%s %s", tt.dn, tt.scope)
	}
	assert.True(t, IsDescendant("dc=example", ""))
}

func TestCompareDN(t *testing.T) {
	assert.Equal(t, 0, CompareDN("UID=a,dc=com", "uid=A, dc=com"))
	assert.Equal(t, -1, CompareDN("dc=com", "dc=example,dc=com"))
	assert.Equal(t, -1, CompareDN("uid=a,ou=p,dc=com", "uid=b,ou=p,dc=com"))
	assert.Equal(t, 1, CompareDN("ou=z,dc=com", "uid=a,ou=p,dc=com"))

	dns := []string{"uid=b,ou=p,dc=com", "ou=p,dc=com", "dc=com", "uid=a,ou=p,dc=com"}
	sort.Slice(dns, func(i, j int) bool { return CompareDN(dns[i], dns[j]) < 0 })
	assert.Equal(t, []string{"dc=com", "ou=p,dc=com", "uid=a,ou=p,dc=com", "uid=b,ou=p,dc=com"}, dns)
}

func TestEscapeDNValue(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"John Doe", "John Doe"},
		{"Doe, John", `Doe\, John`},
		{" John ", `\ John\ `},
		{"#123", `\#123`},
		{"John<>Doe", `John\<\>Doe`},
		{"a\x00b", `a\00b`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, EscapeDNValue(tt.input))
		assert.Equal(t, tt.input, UnescapeDNValue(tt.want))
	}
	assert.Equal(t, "é", UnescapeDNValue(`\c3\a9`))
}
