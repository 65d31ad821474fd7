package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
)

func usersConfig() *Config {
	return &Config{
		Name:       "users",
		Connection: "db",
		Fields: []FieldConfig{
			{Name: "id", PrimaryKey: true},
			{Name: "name", OriginalName: "full_name"},
			{Name: "mail"},
		},
	}
}

func TestExpandRows(t *testing.T) {
	tests := []struct {
		name  string
		attrs directory.Attributes
		want  []Row
	}{
		{
			name:  "empty",
			attrs: directory.Attributes{},
			want:  nil,
		},
		{
			name:  "single values",
			attrs: directory.NewAttributes("id", "1", "name", "Alice"),
			want:  []Row{{"id": "1", "name": "Alice"}},
		},
		{
			name: "cartesian product",
			attrs: directory.Attributes{
				"id":   {"1"},
				"mail": {"a@x", "b@x"},
				"tel":  {"1", "2"},
			},
			want: []Row{
				{"id": "1", "mail": "a@x", "tel": "1"},
				{"id": "1", "mail": "a@x", "tel": "2"},
				{"id": "1", "mail": "b@x", "tel": "1"},
				{"id": "1", "mail": "b@x", "tel": "2"},
			},
		},
		{
			name:  "attribute without values is skipped",
			attrs: directory.Attributes{"id": {"1"}, "mail": {}},
			want:  []Row{{"id": "1"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandRows(tt.attrs))
		})
	}
}

func TestRowDN(t *testing.T) {
	cfg := usersConfig()

	dn, err := RowDN(cfg, "u", Row{"id": "1", "name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "u.id=1", dn)

	dn, err = RowDN(cfg, "", Row{"ID": 7})
	require.NoError(t, err)
	assert.Equal(t, "id=7", dn)

	_, err = RowDN(cfg, "u", Row{"name": "Alice"})
	assert.ErrorIs(t, err, ErrNoPrimaryKey)
}

func TestRowDNCompositeKey(t *testing.T) {
	cfg := &Config{
		Name: "members",
		Fields: []FieldConfig{
			{Name: "member", PrimaryKey: true},
			{Name: "gid", PrimaryKey: true},
		},
	}

	dn, err := RowDN(cfg, "m", Row{"gid": "10", "member": "a,b"})
	require.NoError(t, err)
	assert.Equal(t, `m.gid=10+m.member=a\,b`, dn)

	key, err := KeyFromDN(cfg, dn)
	require.NoError(t, err)
	assert.Equal(t, Row{"gid": "10", "member": "a,b"}, key)
}

func TestKeyFromDN(t *testing.T) {
	cfg := usersConfig()

	key, err := KeyFromDN(cfg, "u.id=1")
	require.NoError(t, err)
	assert.Equal(t, Row{"id": "1"}, key)

	key, err = KeyFromDN(cfg, "id=2,ou=people")
	require.NoError(t, err)
	assert.Equal(t, Row{"id": "2"}, key)

	_, err = KeyFromDN(cfg, "cn=nobody")
	assert.ErrorIs(t, err, ErrNoPrimaryKey)
}

func TestRowAttributes(t *testing.T) {
	cfg := usersConfig()

	attrs := RowAttributes(cfg, Row{"id": 1, "full_name": "Alice", "mail": nil, "extra": "x"})
	assert.Equal(t, directory.Attributes{"id": {1}, "name": {"Alice"}}, attrs)
}

func TestFieldRow(t *testing.T) {
	cfg := usersConfig()

	row := FieldRow(cfg, Row{"ID": "1", "Mail": "a@x", "other": "y"})
	assert.Equal(t, Row{"id": "1", "mail": "a@x"}, row)
}

func TestEvalAttributes(t *testing.T) {
	attrs := EvalAttributes("u", directory.NewAttributes("name", "Alice"))
	assert.Equal(t, []any{"Alice"}, attrs.Get("name"))
	assert.Equal(t, []any{"Alice"}, attrs.Get("u.name"))

	plain := EvalAttributes("", directory.NewAttributes("name", "Alice"))
	assert.Len(t, plain, 1)
}
