package mapping

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/filter"
	"github.com/KilimcininKorOglu/vdir/internal/interpreter"
	"github.com/KilimcininKorOglu/vdir/internal/pipeline"
	"github.com/KilimcininKorOglu/vdir/internal/source"
	"github.com/KilimcininKorOglu/vdir/internal/source/embedded"
)

func usersConfig(name string) *source.Config {
	return &source.Config{
		Name:       name,
		Connection: "mem",
		Fields: []source.FieldConfig{
			{Name: "login", PrimaryKey: true},
			{Name: "first"},
			{Name: "last"},
			{Name: "mail"},
		},
	}
}

func newManager(t *testing.T) *source.Manager {
	t.Helper()
	m := source.NewManager(nil)
	require.NoError(t, m.AddConnection(embedded.NewConnection("mem", embedded.Params{}, nil)))
	return m
}

func addUsers(t *testing.T, m *source.Manager, name string, rows ...directory.Attributes) source.Source {
	t.Helper()
	ctx := context.Background()
	src, err := m.Add(usersConfig(name))
	require.NoError(t, err)
	require.NoError(t, src.Create(ctx))
	for _, row := range rows {
		require.NoError(t, src.Add(ctx, nil, "login="+directory.ValueString(row.First("login")), row))
	}
	return src
}

func treeConfig() EntryConfig {
	return EntryConfig{
		DN:            "dc=example,dc=com",
		ObjectClasses: []string{"domain"},
		Children: []EntryConfig{{
			DN:            "ou=people,dc=example,dc=com",
			ObjectClasses: []string{"organizationalUnit"},
			Attributes:    []AttributeMapping{{Name: "description", Expression: interpreter.Template("people of ${ou}")}},
			Children: []EntryConfig{{
				DN:            "uid=...,ou=people,dc=example,dc=com",
				ObjectClasses: []string{"person", "inetOrgPerson"},
				Sources:       []SourceMapping{{Alias: "u", Source: "users"}},
				Attributes: []AttributeMapping{
					{Name: "uid", RDN: true, Expression: interpreter.Variable("u.login")},
					{Name: "cn", Expression: interpreter.Template("${u.first} ${u.last}")},
					{Name: "mail", Expression: interpreter.Variable("u.mail")},
				},
			}},
		}},
	}
}

func newTree(t *testing.T) (*Entry, *source.Manager) {
	t.Helper()
	m := newManager(t)
	addUsers(t, m, "users",
		directory.NewAttributes("login", "alice", "first", "Alice", "last", "Smith", "mail", "alice@example.com"),
		directory.NewAttributes("login", "bob", "first", "Bob", "last", "Jones"),
	)
	root, err := NewEntry(treeConfig(), m)
	require.NoError(t, err)
	return root, m
}

func searchDNs(t *testing.T, e *Entry, req *directory.SearchRequest) []string {
	t.Helper()
	sink := pipeline.NewCollect(0)
	require.NoError(t, e.Search(context.Background(), nil, req, sink))
	return sink.DNs()
}

func request(base string, scope directory.Scope, f string) *directory.SearchRequest {
	req := &directory.SearchRequest{BaseDN: base, Scope: scope}
	if f != "" {
		req.Filter = filter.MustParse(f)
	}
	return req
}

func TestEntrySearch(t *testing.T) {
	root, _ := newTree(t)
	const (
		base   = "dc=example,dc=com"
		people = "ou=people,dc=example,dc=com"
		alice  = "uid=alice,ou=people,dc=example,dc=com"
		bob    = "uid=bob,ou=people,dc=example,dc=com"
	)

	tests := []struct {
		name string
		req  *directory.SearchRequest
		want []string
	}{
		{"whole tree", request(base, directory.ScopeSubtree, ""), []string{base, people, alice, bob}},
		{"pushed down equality", request(base, directory.ScopeSubtree, "(mail=alice@example.com)"), []string{alice}},
		{"computed attribute", request(base, directory.ScopeSubtree, "(cn=bob jones)"), []string{bob}},
		{"object class", request(base, directory.ScopeSubtree, "(objectClass=organizationalUnit)"), []string{people}},
		{"persons", request(base, directory.ScopeSubtree, "(&(objectClass=person)(uid=*))"), []string{alice, bob}},
		{"one level below people", request(people, directory.ScopeOneLevel, ""), []string{alice, bob}},
		{"one level below root", request(base, directory.ScopeOneLevel, ""), []string{people}},
		{"base of people", request(people, directory.ScopeBase, ""), []string{people}},
		{"base of an entry", request(alice, directory.ScopeBase, ""), []string{alice}},
		{"outside the tree", request("dc=other", directory.ScopeSubtree, ""), nil},
		{"never matches", request(base, directory.ScopeSubtree, "(&(mail=x)(!(mail=x)))"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := searchDNs(t, root, tt.req)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEntrySearchAttributes(t *testing.T) {
	root, _ := newTree(t)
	sink := pipeline.NewCollect(0)
	req := request("dc=example,dc=com", directory.ScopeSubtree, "(|(uid=alice)(ou=people))")
	require.NoError(t, root.Search(context.Background(), nil, req, sink))

	results := sink.Results()
	require.Len(t, results, 2)

	ou := results[0].Attributes
	assert.Equal(t, []any{"organizationalUnit"}, ou.Get("objectClass"))
	assert.Equal(t, []any{"people"}, ou.Get("ou"))
	assert.Equal(t, []any{"people of people"}, ou.Get("description"))

	alice := results[1].Attributes
	assert.Equal(t, []any{"person", "inetOrgPerson"}, alice.Get("objectclass"))
	assert.Equal(t, []any{"alice"}, alice.Get("uid"))
	assert.Equal(t, []any{"Alice Smith"}, alice.Get("cn"))
	assert.Equal(t, []any{"alice@example.com"}, alice.Get("mail"))

	req.Attributes = []string{"cn"}
	sink = pipeline.NewCollect(0)
	require.NoError(t, root.Search(context.Background(), nil, req, sink))
	assert.Equal(t, directory.NewAttributes("cn", "Alice Smith"), sink.Results()[1].Attributes)
}

func TestEntrySearchStops(t *testing.T) {
	root, _ := newTree(t)
	sink := pipeline.NewCollect(3)
	require.NoError(t, root.Search(context.Background(), nil, request("dc=example,dc=com", directory.ScopeSubtree, ""), sink))
	assert.Equal(t, 3, sink.Len())
}

func TestEntrySearchMissingSource(t *testing.T) {
	root, err := NewEntry(treeConfig(), NewOverlay(nil))
	require.NoError(t, err)
	err = root.Search(context.Background(), nil, request("dc=example,dc=com", directory.ScopeSubtree, ""), pipeline.NewCollect(0))
	assert.ErrorIs(t, err, source.ErrSourceNotFound)
}

func TestEntryCloneAndRetarget(t *testing.T) {
	root, m := newTree(t)
	shadowCfg := usersConfig("users").Derive("_tmp")
	shadow, err := m.NewSource(shadowCfg)
	require.NoError(t, err)
	require.NoError(t, shadow.Create(context.Background()))
	require.NoError(t, shadow.Add(context.Background(), nil, "login=carol",
		directory.NewAttributes("login", "carol", "first", "Carol", "last", "White")))

	people := root.Find("OU=People,DC=example,DC=com")
	require.NotNil(t, people)
	clone := people.Clone()
	assert.Nil(t, clone.Parent())
	clone.RetargetSources(map[string]string{"users": "users_tmp"})
	clone.SetResolver(NewOverlay(m, shadow))

	assert.Equal(t, []string{"users_tmp"}, clone.SourceNames())
	assert.Equal(t, []string{"users"}, root.SourceNames())
	assert.Equal(t, "u", clone.Children()[0].LocalSources()[0].Alias)

	req := request("ou=people,dc=example,dc=com", directory.ScopeOneLevel, "")
	assert.Equal(t, []string{"uid=carol,ou=people,dc=example,dc=com"}, searchDNs(t, clone, req))
	assert.Equal(t, []string{
		"uid=alice,ou=people,dc=example,dc=com",
		"uid=bob,ou=people,dc=example,dc=com",
	}, searchDNs(t, people, req))
}

func TestEntryTreeOperations(t *testing.T) {
	root, err := NewEntry(EntryConfig{DN: "dc=example,dc=com"}, nil)
	require.NoError(t, err)
	assert.False(t, root.IsDynamic())
	assert.Nil(t, root.Find("ou=groups,dc=example,dc=com"))

	groups, err := NewEntry(EntryConfig{DN: "ou=groups,dc=example,dc=com"}, nil)
	require.NoError(t, err)
	require.NoError(t, root.AddChild(groups))
	assert.Same(t, root, groups.Parent())
	assert.Same(t, groups, root.Find("ou=groups,dc=example,dc=com"))
	assert.Len(t, root.Children(), 1)

	stray, err := NewEntry(EntryConfig{DN: "ou=x,dc=other"}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, root.AddChild(stray), ErrInvalidEntry)

	dynamic, err := NewEntry(EntryConfig{
		DN:      "cn=...,ou=groups,dc=example,dc=com",
		Sources: []SourceMapping{{Source: "groups"}},
	}, nil)
	require.NoError(t, err)
	assert.True(t, dynamic.IsDynamic())
	assert.Equal(t, "ou=groups,dc=example,dc=com", dynamic.BaseDN())
	require.NoError(t, groups.AddChild(dynamic))
	assert.ErrorIs(t, dynamic.AddChild(stray), ErrInvalidEntry)
}

func TestEntryConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  EntryConfig
	}{
		{"empty dn", EntryConfig{}},
		{"sources without pattern", EntryConfig{DN: "ou=x", Sources: []SourceMapping{{Source: "s"}}}},
		{"pattern without sources", EntryConfig{DN: "uid=...,ou=x"}},
		{"dynamic with children", EntryConfig{
			DN:       "uid=...,ou=x",
			Sources:  []SourceMapping{{Source: "s"}},
			Children: []EntryConfig{{DN: "cn=y,uid=...,ou=x"}},
		}},
		{"duplicate alias", EntryConfig{DN: "uid=...,ou=x", Sources: []SourceMapping{
			{Source: "s", Alias: "a"}, {Source: "t", Alias: "A", Join: map[string]string{"id": "a.id"}},
		}}},
		{"join without condition", EntryConfig{DN: "uid=...,ou=x", Sources: []SourceMapping{
			{Source: "s"}, {Source: "t"},
		}}},
		{"rdn attribute on static entry", EntryConfig{DN: "ou=x", Attributes: []AttributeMapping{{Name: "ou", RDN: true}}}},
		{"misplaced child", EntryConfig{DN: "ou=x", Children: []EntryConfig{{DN: "ou=y,ou=z"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), ErrInvalidEntry)
		})
	}
}

func TestTree(t *testing.T) {
	m := newManager(t)
	addUsers(t, m, "users", directory.NewAttributes("login", "alice", "first", "A", "last", "S"))

	tree, err := NewTree([]EntryConfig{treeConfig(), {DN: "o=other"}}, m)
	require.NoError(t, err)
	assert.Len(t, tree.Roots(), 2)

	e, err := tree.Find("o=other")
	require.NoError(t, err)
	assert.Equal(t, "o=other", e.DN())
	_, err = tree.Find("o=missing")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	sink := pipeline.NewCollect(0)
	require.NoError(t, tree.Search(context.Background(), nil, request("", directory.ScopeSubtree, "(|(uid=alice)(o=other))"), sink))
	assert.Equal(t, []string{"uid=alice,ou=people,dc=example,dc=com", "o=other"}, sink.DNs())

	_, err = NewTree([]EntryConfig{{DN: "o=a"}, {DN: "ou=b,o=a"}}, m)
	assert.ErrorIs(t, err, ErrInvalidEntry)
}
