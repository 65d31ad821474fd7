package federation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/interpreter"
	"github.com/KilimcininKorOglu/vdir/internal/mapping"
	"github.com/KilimcininKorOglu/vdir/internal/pipeline"
	"github.com/KilimcininKorOglu/vdir/internal/source"
	"github.com/KilimcininKorOglu/vdir/internal/source/embedded"
)

func tableConfig(name string) *source.Config {
	return &source.Config{
		Name:       name,
		Connection: "mem",
		Fields: []source.FieldConfig{
			{Name: "id", PrimaryKey: true},
			{Name: "name"},
		},
	}
}

type fixture struct {
	conn    *embedded.Connection
	manager *source.Manager
}

func newFixture(t *testing.T, conn source.Connection, mem *embedded.Connection) *fixture {
	t.Helper()
	m := source.NewManager(nil)
	require.NoError(t, m.AddConnection(conn))
	return &fixture{conn: mem, manager: m}
}

func newMemFixture(t *testing.T) *fixture {
	mem := embedded.NewConnection("mem", embedded.Params{}, nil)
	return newFixture(t, mem, mem)
}

func (f *fixture) table(t *testing.T, name string, rows ...directory.Attributes) source.Source {
	t.Helper()
	ctx := context.Background()
	src, err := f.manager.Add(tableConfig(name))
	require.NoError(t, err)
	require.NoError(t, src.Create(ctx))
	for _, row := range rows {
		require.NoError(t, src.Add(ctx, nil, "id="+directory.ValueString(row.First("id")), row))
	}
	return src
}

func (f *fixture) tables() []string {
	names := f.conn.Tables()
	sort.Strings(names)
	return names
}

func rows(t *testing.T, src source.Source) map[string]string {
	t.Helper()
	sink := pipeline.NewCollect(0)
	require.NoError(t, src.Search(context.Background(), nil, source.NewQuery(src, nil), sink))
	out := make(map[string]string)
	for _, r := range sink.Results() {
		values := r.Source(src.Name())
		out[directory.ValueString(values.First("id"))] = directory.ValueString(values.First("name"))
	}
	return out
}

func copyJob() JobConfig {
	return JobConfig{
		Name:    "accounts",
		Sources: []SourceRef{{Alias: "p", Source: "people"}},
		Targets: []TargetConfig{{
			Source: "accounts",
			Fields: []source.FieldMapping{
				{Name: "id", Expression: interpreter.Variable("p.id")},
				{Name: "name", Expression: interpreter.Variable("p.name")},
			},
		}},
	}
}

func TestSynchronize(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	f.table(t, "people",
		directory.NewAttributes("id", "1", "name", "a"),
		directory.NewAttributes("id", "2", "name", "b"),
	)
	accounts := f.table(t, "accounts", directory.NewAttributes("id", "9", "name", "z"))

	job, err := NewJob(copyJob(), f.manager)
	require.NoError(t, err)

	outcome, err := job.Synchronize(ctx)
	require.NoError(t, err)
	require.NoError(t, outcome.Err())

	assert.Equal(t, map[string]string{"1": "a", "2": "b"}, rows(t, accounts))
	assert.Equal(t, []string{"accounts", "people"}, f.tables())

	assert.Equal(t, Counts{Succeeded: 1}, outcome.Sources)
	assert.Equal(t, Counts{Succeeded: 1}, outcome.Targets)
	assert.Equal(t, 2, outcome.RowsLoaded)
	assert.NotEmpty(t, outcome.RunID)
	for _, stage := range []Stage{StageInit, StageCreateShadows, StageLoad, StageSwitch} {
		assert.True(t, outcome.Ran(stage), stage)
	}
	assert.False(t, outcome.Ran(StageDiff))
	assert.False(t, outcome.Finished.Before(outcome.Started))
}

func TestSynchronizeMissingTarget(t *testing.T) {
	f := newMemFixture(t)
	f.table(t, "people", directory.NewAttributes("id", "1", "name", "a"))
	_, err := f.manager.Add(tableConfig("accounts"))
	require.NoError(t, err)

	job, err := NewJob(copyJob(), f.manager)
	require.NoError(t, err)

	outcome, err := job.Synchronize(context.Background())
	require.NoError(t, err)
	require.NoError(t, outcome.Err())

	accounts, err := f.manager.Get("accounts")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "a"}, rows(t, accounts))
}

func TestSynchronizeSourceFilter(t *testing.T) {
	f := newMemFixture(t)
	f.table(t, "people",
		directory.NewAttributes("id", "1", "name", "a"),
		directory.NewAttributes("id", "2", "name", "b"),
	)
	accounts := f.table(t, "accounts")

	cfg := copyJob()
	cfg.Sources[0].Filter = "(name=b)"
	job, err := NewJob(cfg, f.manager)
	require.NoError(t, err)

	outcome, err := job.Synchronize(context.Background())
	require.NoError(t, err)
	require.NoError(t, outcome.Err())
	assert.Equal(t, map[string]string{"2": "b"}, rows(t, accounts))
}

func TestSynchronizeSkipsRowsWithoutKey(t *testing.T) {
	f := newMemFixture(t)
	f.table(t, "people",
		directory.NewAttributes("id", "1", "name", "a"),
		directory.NewAttributes("id", "2"),
	)
	accounts := f.table(t, "accounts")

	cfg := copyJob()
	// Key the target by name so that the second person has no key.
	cfg.Targets[0].Fields = []source.FieldMapping{
		{Name: "id", Expression: interpreter.Variable("p.name")},
		{Name: "name", Expression: interpreter.Template("${p.id}")},
	}
	job, err := NewJob(cfg, f.manager)
	require.NoError(t, err)

	outcome, err := job.Synchronize(context.Background())
	require.NoError(t, err)
	require.NoError(t, outcome.Err())
	assert.Equal(t, 1, outcome.RowsLoaded)
	assert.Equal(t, 1, outcome.RowsSkipped)
	assert.Equal(t, map[string]string{"a": "1"}, rows(t, accounts))
}

func TestSynchronizeUnknownSource(t *testing.T) {
	f := newMemFixture(t)
	f.table(t, "people", directory.NewAttributes("id", "1", "name", "a"))
	accounts := f.table(t, "accounts", directory.NewAttributes("id", "9", "name", "z"))

	cfg := copyJob()
	cfg.Sources = append(cfg.Sources, SourceRef{Alias: "g", Source: "groups"})
	job, err := NewJob(cfg, f.manager)
	require.NoError(t, err)

	outcome, err := job.Synchronize(context.Background())
	require.NoError(t, err)

	var stageErr *StageError
	require.True(t, errors.As(outcome.Err(), &stageErr))
	assert.Equal(t, StageInit, stageErr.Stage)
	assert.Equal(t, "groups", stageErr.Name)
	assert.Equal(t, Counts{Succeeded: 1, Failed: 1}, outcome.Sources)
	assert.Equal(t, map[string]string{"1": "a"}, rows(t, accounts))
}

func TestSynchronizeNothingToDo(t *testing.T) {
	f := newMemFixture(t)
	f.table(t, "people")

	job, err := NewJob(copyJob(), f.manager)
	require.NoError(t, err)

	outcome, err := job.Synchronize(context.Background())
	require.ErrorIs(t, err, ErrNoTargets)
	require.NotNil(t, outcome)
	assert.Equal(t, Counts{Failed: 1}, outcome.Targets)
	assert.True(t, outcome.Ran(StageInit))
	assert.False(t, outcome.Ran(StageLoad))
}

func TestLoadKeepsShadows(t *testing.T) {
	f := newMemFixture(t)
	f.table(t, "people", directory.NewAttributes("id", "1", "name", "a"))
	accounts := f.table(t, "accounts", directory.NewAttributes("id", "9", "name", "z"))

	job, err := NewJob(copyJob(), f.manager)
	require.NoError(t, err)

	outcome, err := job.Load(context.Background())
	require.NoError(t, err)
	require.NoError(t, outcome.Err())
	assert.False(t, outcome.Ran(StageSwitch))

	shadow, err := f.manager.NewSource(tableConfig("accounts").Derive(ShadowSuffix))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"1": "a"}, rows(t, shadow))
	assert.Equal(t, map[string]string{"9": "z"}, rows(t, accounts))

	// A second run replaces the leftover shadow.
	outcome, err = job.Synchronize(context.Background())
	require.NoError(t, err)
	require.NoError(t, outcome.Err())
	assert.Equal(t, map[string]string{"1": "a"}, rows(t, accounts))
	assert.Equal(t, []string{"accounts", "people"}, f.tables())
}

func TestSynchronizeStaleBackup(t *testing.T) {
	f := newMemFixture(t)
	f.table(t, "people", directory.NewAttributes("id", "1", "name", "a"))
	accounts := f.table(t, "accounts", directory.NewAttributes("id", "9", "name", "z"))
	f.table(t, "accounts_old")

	job, err := NewJob(copyJob(), f.manager)
	require.NoError(t, err)

	outcome, err := job.Synchronize(context.Background())
	require.NoError(t, err)
	require.NoError(t, outcome.Err())
	assert.Equal(t, map[string]string{"1": "a"}, rows(t, accounts))
	assert.Equal(t, []string{"accounts", "people"}, f.tables())
}

var errRename = errors.New("rename refused")

// failingShadow refuses to be renamed into place.
type failingShadow struct {
	source.Source
}

func (s failingShadow) Rename(context.Context, source.Source) error {
	return errRename
}

// shadowFailConn hands out shadows that cannot be renamed.
type shadowFailConn struct {
	*embedded.Connection
}

func (c shadowFailConn) NewSource(cfg *source.Config) (source.Source, error) {
	src, err := c.Connection.NewSource(cfg)
	if err != nil || !strings.HasSuffix(cfg.Name, ShadowSuffix) {
		return src, err
	}
	return failingShadow{src}, nil
}

func TestSynchronizeSwapRollback(t *testing.T) {
	mem := embedded.NewConnection("mem", embedded.Params{}, nil)
	f := newFixture(t, shadowFailConn{mem}, mem)
	f.table(t, "people", directory.NewAttributes("id", "1", "name", "a"))
	accounts := f.table(t, "accounts", directory.NewAttributes("id", "9", "name", "z"))

	job, err := NewJob(copyJob(), f.manager)
	require.NoError(t, err)

	outcome, err := job.Synchronize(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, outcome.Err(), errRename)
	assert.Equal(t, Counts{Failed: 1}, outcome.Targets)

	var stageErr *StageError
	require.True(t, errors.As(outcome.Err(), &stageErr))
	assert.Equal(t, StageSwitch, stageErr.Stage)

	assert.Equal(t, map[string]string{"9": "z"}, rows(t, accounts))
	assert.NotContains(t, f.tables(), "accounts_old")
}

func TestSynchronizeCanceled(t *testing.T) {
	f := newMemFixture(t)
	f.table(t, "people", directory.NewAttributes("id", "1", "name", "a"))
	accounts := f.table(t, "accounts", directory.NewAttributes("id", "9", "name", "z"))

	job, err := NewJob(copyJob(), f.manager)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = job.Synchronize(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, map[string]string{"9": "z"}, rows(t, accounts))
}

func TestSynchronizeLoadFailureKeepsTarget(t *testing.T) {
	f := newMemFixture(t)
	people := f.table(t, "people", directory.NewAttributes("id", "1", "name", "a"))
	accounts := f.table(t, "accounts", directory.NewAttributes("id", "9", "name", "z"))
	require.NoError(t, people.Drop(context.Background()))

	job, err := NewJob(copyJob(), f.manager)
	require.NoError(t, err)

	outcome, err := job.Synchronize(context.Background())
	require.NoError(t, err)
	require.ErrorIs(t, outcome.Err(), source.ErrTableNotFound)
	assert.Equal(t, Counts{Failed: 1}, outcome.Sources)
	assert.Equal(t, Counts{Failed: 1}, outcome.Targets)
	assert.Equal(t, map[string]string{"9": "z"}, rows(t, accounts))
	assert.Equal(t, []string{"accounts"}, f.tables())
}

func accountsTree() mapping.EntryConfig {
	return mapping.EntryConfig{
		DN:            "dc=example,dc=com",
		ObjectClasses: []string{"domain"},
		Children: []mapping.EntryConfig{{
			DN:            "ou=accounts,dc=example,dc=com",
			ObjectClasses: []string{"organizationalUnit"},
			Children: []mapping.EntryConfig{{
				DN:            "uid=...,ou=accounts,dc=example,dc=com",
				ObjectClasses: []string{"account"},
				Sources:       []mapping.SourceMapping{{Alias: "a", Source: "accounts"}},
				Attributes: []mapping.AttributeMapping{
					{Name: "uid", RDN: true, Expression: interpreter.Variable("a.id")},
					{Name: "cn", Expression: interpreter.Variable("a.name")},
				},
			}},
		}},
	}
}

func TestSynchronizeChangeLog(t *testing.T) {
	ctx := context.Background()
	f := newMemFixture(t)
	f.table(t, "people",
		directory.NewAttributes("id", "1", "name", "a"),
		directory.NewAttributes("id", "2", "name", "b"),
	)
	f.table(t, "accounts",
		directory.NewAttributes("id", "1", "name", "old"),
		directory.NewAttributes("id", "9", "name", "z"),
	)
	changes, err := f.manager.Add(&source.Config{Name: "changes", Connection: "mem", Fields: ChangeLogFields()})
	require.NoError(t, err)
	require.NoError(t, changes.Create(ctx))

	tree, err := mapping.NewTree([]mapping.EntryConfig{accountsTree()}, f.manager)
	require.NoError(t, err)

	cfg := copyJob()
	cfg.BaseDN = "ou=accounts,dc=example,dc=com"
	cfg.ChangeLog = "changes"
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	job, err := NewJob(cfg, f.manager, WithTree(tree), WithClock(func() time.Time { return at }))
	require.NoError(t, err)

	outcome, err := job.Synchronize(ctx)
	require.NoError(t, err)
	require.NoError(t, outcome.Err())
	assert.True(t, outcome.Ran(StageDiff))
	assert.Equal(t, 3, outcome.Changes)

	sink := pipeline.NewCollect(0)
	require.NoError(t, changes.Search(ctx, nil, source.NewQuery(changes, nil), sink))
	got := make(map[string]directory.Attributes)
	for _, r := range sink.Results() {
		values := r.Source("changes")
		got[directory.ValueString(values.First(FieldTargetDN))] = values
	}
	require.Len(t, got, 3)

	modify := got["uid=1,ou=accounts,dc=example,dc=com"]
	require.NotNil(t, modify)
	assert.Equal(t, "modify", directory.ValueString(modify.First(FieldChangeType)))
	assert.Equal(t, "delete: cn\ncn: old\n-\nadd: cn\ncn: a\n-\n", directory.ValueString(modify.First(FieldChanges)))
	assert.Equal(t, "20240501120000Z", directory.ValueString(modify.First(FieldChangeTime)))

	add := got["uid=2,ou=accounts,dc=example,dc=com"]
	require.NotNil(t, add)
	assert.Equal(t, "add", directory.ValueString(add.First(FieldChangeType)))
	assert.Contains(t, directory.ValueString(add.First(FieldChanges)), "cn: b\n")

	del := got["uid=9,ou=accounts,dc=example,dc=com"]
	require.NotNil(t, del)
	assert.Equal(t, "delete", directory.ValueString(del.First(FieldChangeType)))
}

func TestBatches(t *testing.T) {
	join := map[string]string{"owner": "u.id"}
	sources := []*primary{
		{alias: "u", connection: "db", supportsJoin: true},
		{alias: "g", connection: "db", supportsJoin: true, ref: SourceRef{Join: join}},
		{alias: "m", connection: "mem", ref: SourceRef{Join: join}},
		{alias: "n", connection: "mem", ref: SourceRef{Join: join}},
		{alias: "x", connection: "db", supportsJoin: true},
	}

	var got [][]string
	for _, batch := range batches(sources) {
		var aliases []string
		for _, p := range batch {
			aliases = append(aliases, p.alias)
		}
		got = append(got, aliases)
	}
	assert.Equal(t, [][]string{{"u", "g"}, {"m"}, {"n"}, {"x"}}, got)
}

func TestRelations(t *testing.T) {
	u := &primary{alias: "u"}
	g := &primary{alias: "G"}
	users := &target{cfg: TargetConfig{Source: "users", Fields: []source.FieldMapping{
		{Name: "id", Expression: interpreter.Variable("u.id")},
		{Name: "cn", Expression: interpreter.Template("${U.first} ${u.last}")},
	}}}
	groups := &target{cfg: TargetConfig{Source: "groups", Fields: []source.FieldMapping{
		{Name: "id", Expression: interpreter.Variable("g.id")},
	}}}
	all := &target{cfg: TargetConfig{Source: "all", Fields: []source.FieldMapping{
		{Name: "id", Expression: interpreter.Constant("1")},
	}}}

	rel := relations([]*primary{u, g}, []*target{users, groups, all})
	assert.Equal(t, []*target{users, all}, rel["u"])
	assert.Equal(t, []*target{groups, all}, rel["g"])
}

func TestNewJobInvalid(t *testing.T) {
	m := source.NewManager(nil)
	_, err := NewJob(JobConfig{Name: "x"}, m)
	assert.ErrorIs(t, err, ErrInvalidJob)
}

func TestJobAccessors(t *testing.T) {
	cfg := copyJob()
	cfg.Interval = time.Minute
	job, err := NewJob(cfg, source.NewManager(nil))
	require.NoError(t, err)
	assert.Equal(t, "accounts", job.Name())
	assert.Equal(t, time.Minute, job.Interval())
	assert.Equal(t, []string{"accounts"}, job.Config().TargetNames())
}
