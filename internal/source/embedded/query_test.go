package embedded

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/KilimcininKorOglu/vdir/internal/filter"
)

func TestSubstringPattern(t *testing.T) {
	tests := []struct {
		filter string
		want   string
	}{
		{"(cn=ab*)", `^ab.*$`},
		{"(cn=*yz)", `^.*yz$`},
		{"(cn=a*b.c*d)", `^a.*b\.c.*d$`},
	}
	for _, tt := range tests {
		f := filter.MustParse(tt.filter).(*filter.SubstringFilter)
		assert.Equal(t, tt.want, substringPattern(f), tt.filter)
	}
}

func TestEqualityQuery(t *testing.T) {
	q := equalityQuery("name", "a+b")
	cond := q["name"].(map[string]any)
	assert.Equal(t, true, cond["$exists"])

	re := cond["$regex"].(*regexp.Regexp)
	assert.True(t, re.MatchString("A+B"))
	assert.False(t, re.MatchString("aab"))
	assert.False(t, re.MatchString("a+bc"))
}
