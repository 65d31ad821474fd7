package source

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/logging"
)

type fakeConnection struct {
	name     string
	closeErr error
	closed   bool
}

func (c *fakeConnection) Name() string       { return c.name }
func (c *fakeConnection) Adapter() string    { return "fake" }
func (c *fakeConnection) SupportsJoin() bool { return false }
func (c *fakeConnection) Close() error {
	c.closed = true
	return c.closeErr
}

func (c *fakeConnection) NewSource(cfg *Config) (Source, error) {
	if len(cfg.Fields) == 0 {
		return nil, errors.New("no fields")
	}
	return &fakeSource{cfg: cfg}, nil
}

type fakeSource struct {
	cfg *Config
}

func (s *fakeSource) Name() string                     { return s.cfg.Name }
func (s *fakeSource) Config() *Config                  { return s.cfg.Clone() }
func (s *fakeSource) Parameter(name string) string     { return s.cfg.Parameter(name) }
func (s *fakeSource) Create(context.Context) error     { return nil }
func (s *fakeSource) Drop(context.Context) error       { return nil }
func (s *fakeSource) Clear(context.Context, *Session) error {
	return nil
}
func (s *fakeSource) Rename(context.Context, Source) error { return nil }
func (s *fakeSource) Search(context.Context, *Session, *Query, directory.SearchResponse) error {
	return nil
}
func (s *fakeSource) Add(context.Context, *Session, string, directory.Attributes) error {
	return nil
}
func (s *fakeSource) Delete(context.Context, *Session, string) error { return nil }

func newTestManager(t *testing.T) (*Manager, *fakeConnection) {
	t.Helper()
	m := NewManager(logging.NewNop())
	conn := &fakeConnection{name: "db"}
	require.NoError(t, m.AddConnection(conn))
	return m, conn
}

func TestManagerAdd(t *testing.T) {
	m, _ := newTestManager(t)

	src, err := m.Add(usersConfig())
	require.NoError(t, err)
	assert.Equal(t, "users", src.Name())

	got, err := m.Get("users")
	require.NoError(t, err)
	assert.Same(t, src, got)

	_, err = m.Add(usersConfig())
	assert.ErrorIs(t, err, ErrSourceExists)

	assert.Equal(t, []string{"users"}, m.Names())
}

func TestManagerAddErrors(t *testing.T) {
	m, _ := newTestManager(t)

	cfg := usersConfig()
	cfg.Connection = "missing"
	_, err := m.Add(cfg)
	assert.ErrorIs(t, err, ErrConnectionNotFound)

	_, err = m.Add(&Config{Name: "empty", Connection: "db"})
	assert.Error(t, err)
	assert.Empty(t, m.Names())

	_, err = m.Get("users")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	assert.ErrorIs(t, m.AddConnection(&fakeConnection{name: "db"}), ErrConnectionExists)
}

func TestManagerConfigIsCopy(t *testing.T) {
	m, _ := newTestManager(t)

	cfg := usersConfig()
	_, err := m.Add(cfg)
	require.NoError(t, err)

	cfg.Description = "changed after add"
	stored, err := m.Config("users")
	require.NoError(t, err)
	assert.Empty(t, stored.Description)

	stored.Description = "changed copy"
	again, err := m.Config("users")
	require.NoError(t, err)
	assert.Empty(t, again.Description)
}

func TestManagerUpdateRemove(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.Update(usersConfig())
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = m.Add(usersConfig())
	require.NoError(t, err)

	cfg := usersConfig()
	cfg.Description = "people"
	src, err := m.Update(cfg)
	require.NoError(t, err)
	assert.Equal(t, "people", src.Config().Description)

	require.NoError(t, m.Remove("users"))
	assert.ErrorIs(t, m.Remove("users"), ErrSourceNotFound)
	assert.Empty(t, m.Names())
}

func TestManagerNewSourceIsUnregistered(t *testing.T) {
	m, _ := newTestManager(t)

	shadow, err := m.NewSource(usersConfig().Derive("_tmp"))
	require.NoError(t, err)
	assert.Equal(t, "users_tmp", shadow.Name())
	assert.Empty(t, m.Names())
}

func TestManagerClose(t *testing.T) {
	m, conn := newTestManager(t)
	failing := &fakeConnection{name: "ldap", closeErr: errors.New("boom")}
	require.NoError(t, m.AddConnection(failing))

	err := m.Close(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close connection ldap")
	assert.True(t, conn.closed)
	assert.True(t, failing.closed)

	_, err = m.Connection("db")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
}
