package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
)

func TestTransform(t *testing.T) {
	tests := []struct {
		name   string
		dn     string
		baseDN string
		want   string
	}{
		{"qualified", "u.uid=alice", "ou=people,dc=example,dc=com", "uid=alice,ou=people,dc=example,dc=com"},
		{"composite", "m.gid=10+m.member=a\\,b", "ou=groups", "gid=10+member=a\\,b,ou=groups"},
		{"plain", "uid=bob", "ou=people", "uid=bob,ou=people"},
		{"no base", "u.id=1", "", "id=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewTransform(tt.baseDN, nil).Apply(directory.NewSearchResult(tt.dn))
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.DN)
		})
	}
}

func TestTransformFlattensSources(t *testing.T) {
	ctx := context.Background()
	sink := NewCollect(0)
	tr := NewTransform("ou=people", sink)

	in := sourceResult("u.uid=alice", "u", "uid", "alice", "cn", "Alice")
	in.Source("g").Merge(directory.NewAttributes("memberOf", "admins", "cn", "Alice"))
	require.NoError(t, tr.Add(ctx, in))
	require.NoError(t, tr.Close(ctx))

	results := sink.Results()
	require.Len(t, results, 1)
	out := results[0]
	assert.Equal(t, "uid=alice,ou=people", out.DN)
	assert.Equal(t, []any{"alice"}, out.Attributes.Get("uid"))
	assert.Equal(t, []any{"Alice"}, out.Attributes.Get("cn"))
	assert.Equal(t, []any{"admins"}, out.Attributes.Get("memberof"))
	assert.Equal(t, []any{"admins"}, out.SourceValues["g"].Get("memberOf"))
	assert.True(t, sink.Closed())
}

func TestTransformFlattensInAliasOrder(t *testing.T) {
	tr := NewTransform("ou=people", nil)
	for i := 0; i < 20; i++ {
		in := directory.NewSearchResult("u.uid=alice")
		in.Source("w").Merge(directory.NewAttributes("mail", "alice@work.example"))
		in.Source("u").Merge(directory.NewAttributes("uid", "alice", "mail", "alice@example.com"))
		in.Source("h").Merge(directory.NewAttributes("mail", "alice@home.example"))

		out, err := tr.Apply(in)
		require.NoError(t, err)
		assert.Equal(t, []any{"alice@home.example", "alice@example.com", "alice@work.example"}, out.Attributes.Get("mail"))
	}
}

func TestTransformInvalidDN(t *testing.T) {
	err := NewTransform("ou=people", NewCollect(0)).Add(context.Background(), directory.NewSearchResult("nonsense"))
	assert.ErrorIs(t, err, directory.ErrInvalidRDN)
}

func TestUnqualifiedName(t *testing.T) {
	assert.Equal(t, "id", UnqualifiedName("u.id"))
	assert.Equal(t, "id", UnqualifiedName("id"))
}
