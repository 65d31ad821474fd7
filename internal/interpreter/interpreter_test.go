package interpreter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEval(t *testing.T) {
	in := New()
	in.SetAll(map[string][]any{
		"u.First": {"Alice"},
		"u.last":  {"Smith"},
		"u.mail":  {"a@example.com", "alice@example.com"},
		"u.id":    {int64(7)},
	})

	tests := []struct {
		name string
		expr Expression
		want []any
	}{
		{"constant", Constant("person"), []any{"person"}},
		{"variable", Variable("U.FIRST"), []any{"Alice"}},
		{"multi-valued variable", Variable("u.mail"), []any{"a@example.com", "alice@example.com"}},
		{"missing variable", Variable("u.phone"), nil},
		{"template", Template("${u.first} ${u.last}"), []any{"Alice Smith"}},
		{"template first value", Template("mail=${u.mail}"), []any{"mail=a@example.com"}},
		{"template number", Template("uid${ u.id }"), []any{"uid7"}},
		{"template missing", Template("${u.first} ${u.phone}"), nil},
		{"template literal", Template("static"), []any{"static"}},
		{"zero", Expression{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := in.Eval(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvalErrors(t *testing.T) {
	_, err := New().Eval(Template("${u.first"))
	assert.ErrorIs(t, err, ErrUnclosedVariable)
}

func TestEvalFirstAndClear(t *testing.T) {
	in := New()
	in.Set("a", "1", "2")
	v, err := in.EvalFirst(Variable("a"))
	require.NoError(t, err)
	assert.Equal(t, "1", v)

	in.Clear()
	v, err = in.EvalFirst(Variable("a"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestExpressionHelpers(t *testing.T) {
	assert.True(t, Expression{}.IsZero())
	assert.Equal(t, []string{"u.first", "u.last"}, Template("${u.First}-${u.last}").Variables())
	assert.Equal(t, []string{"u.id"}, Variable("u.ID").Variables())
	assert.Nil(t, Constant(1).Variables())
	assert.Equal(t, `"1"`, Constant(1).String())
	assert.Equal(t, "u.id", Variable("u.id").String())
}
