package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		name     string
		template string
		filter   string
		want     bool
	}{
		{"value wildcard", "(cn=...)", "(cn=John)", true},
		{"different value", "(cn=John)", "(cn=Jane)", false},
		{"attribute wildcard", "(...=x)", "(sn=x)", true},
		{"attribute wildcard wrong value", "(...=x)", "(sn=y)", false},
		{"case insensitive", "(CN=john)", "(cn=JOHN)", true},
		{"different operator", "(age>=...)", "(age<=3)", false},
		{"and pairwise", "(&(uid=...)(ou=...))", "(&(uid=a)(ou=b))", true},
		{"and different order", "(&(uid=...)(ou=...))", "(&(ou=b)(uid=a))", false},
		{"and different count", "(&(uid=...)(ou=...))", "(&(uid=a)(ou=b)(o=c))", false},
		{"not", "(!(uid=...))", "(!(uid=a))", true},
		{"booleans", "(&)", "(|)", true},
		{"different kinds", "(cn=...)", "(cn=*)", false},
		{"substring", "(cn=...*x)", "(cn=abc*x)", true},
		{"extensible", "(cn:dn:...:=...)", "(cn:dn:caseIgnoreMatch:=John)", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(MustParse(tt.template), MustParse(tt.filter)))
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(MustParse("(a=1)"), nil))
	assert.True(t, Equal(MustParse("(A=x)"), MustParse("(a=X)")))
	assert.False(t, Equal(MustParse("(a=...)"), MustParse("(a=1)")))
	assert.False(t, Equal(NewBoolean(true), NewBoolean(false)))
	assert.True(t, Equal(MustParse(`(g=\01\02)`), MustParse(`(g=\01\02)`)))
	assert.False(t, Equal(MustParse(`(g=\01\ff)`), MustParse(`(g=\01\fe)`)))
}
