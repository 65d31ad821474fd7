package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigClone(t *testing.T) {
	cfg := usersConfig()
	cfg.SetParameter(ParamTable, "people")
	cfg.Indexes = []IndexConfig{{Name: "by_mail", Fields: []string{"mail"}}}

	clone := cfg.Clone()
	clone.SetParameter(ParamTable, "other")
	clone.Fields[0].Name = "changed"
	clone.Indexes[0].Fields[0] = "changed"

	assert.Equal(t, "people", cfg.Table())
	assert.Equal(t, "id", cfg.Fields[0].Name)
	assert.Equal(t, "mail", cfg.Indexes[0].Fields[0])
}

func TestConfigDerive(t *testing.T) {
	cfg := usersConfig()

	shadow := cfg.Derive("_tmp")
	assert.Equal(t, "users_tmp", shadow.Name)
	assert.Equal(t, "users_tmp", shadow.Table())
	assert.Equal(t, "users", cfg.Table())

	cfg.SetParameter(ParamTable, "people")
	shadow = cfg.Derive("_tmp")
	assert.Equal(t, "users_tmp", shadow.Name)
	assert.Equal(t, "people_tmp", shadow.Table())
}

func TestConfigFields(t *testing.T) {
	cfg := usersConfig()

	assert.Equal(t, []string{"id", "name", "mail"}, cfg.FieldNames())
	assert.Equal(t, []string{"id"}, cfg.PrimaryKeys())
	assert.True(t, cfg.IsPrimaryKey("ID"))
	assert.False(t, cfg.IsPrimaryKey("name"))
	assert.False(t, cfg.IsPrimaryKey("missing"))
	assert.Equal(t, "full_name", cfg.Field("NAME").Column())
	assert.Equal(t, "mail", cfg.Field("mail").Column())
	assert.Nil(t, cfg.Field("missing"))
}

func TestQueryResolve(t *testing.T) {
	users := &fakeSource{cfg: usersConfig()}
	groups := &fakeSource{cfg: &Config{Name: "groups"}}
	q := &Query{Refs: []Ref{
		{Alias: "u", Source: users},
		{Alias: "g", Source: groups, Join: map[string]string{"owner": "u.id"}},
	}}
	assert.NoError(t, q.Validate())

	tests := []struct {
		attr      string
		wantAlias string
		wantField string
	}{
		{"u.name", "u", "name"},
		{"G.cn", "g", "cn"},
		{"name", "u", "name"},
		{"x.name", "u", "x.name"},
	}
	for _, tt := range tests {
		alias, field := q.Resolve(tt.attr)
		assert.Equal(t, tt.wantAlias, alias, tt.attr)
		assert.Equal(t, tt.wantField, field, tt.attr)
	}
}

func TestQueryValidate(t *testing.T) {
	users := &fakeSource{cfg: usersConfig()}

	assert.ErrorIs(t, (&Query{}).Validate(), ErrInvalidQuery)
	assert.ErrorIs(t, (&Query{Refs: []Ref{{Alias: "u", Source: users}, {Alias: "U", Source: users}}}).Validate(), ErrInvalidQuery)
	assert.ErrorIs(t, (&Query{Refs: []Ref{{Alias: "", Source: users}}}).Validate(), ErrInvalidQuery)
	assert.NoError(t, NewQuery(users, nil).Validate())
	assert.Equal(t, "users", NewQuery(users, nil).Primary().Alias)
}

func TestFieldIsBinary(t *testing.T) {
	assert.True(t, (&FieldConfig{Type: "bytea"}).IsBinary())
	assert.True(t, (&FieldConfig{Type: "BLOB"}).IsBinary())
	assert.False(t, (&FieldConfig{Type: "VARCHAR"}).IsBinary())
	assert.False(t, (&FieldConfig{}).IsBinary())
}
