// Package embedded implements sources stored in embedded gedb datastores,
// one datastore per table. Without a directory parameter every table lives
// in memory only; with one each table is persisted as <directory>/<table>.db.
package embedded

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vinicius-lino-figueiredo/gedb"

	"github.com/KilimcininKorOglu/vdir/internal/logging"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Adapter is the adapter name of embedded connections.
const Adapter = "embedded"

// Params are the connection parameters of the embedded adapter.
type Params struct {
	// Directory holds the datastore files. Empty means in-memory only.
	Directory string `mapstructure:"directory"`
}

// Connection owns the datastores of one embedded connection.
type Connection struct {
	name   string
	params Params
	logger logging.Logger

	mu     sync.Mutex
	tables map[string]gedb.GEDB
}

// Open is the source.Factory of the embedded adapter.
func Open(_ context.Context, cfg *source.ConnectionConfig, logger logging.Logger) (source.Connection, error) {
	var params Params
	if err := source.DecodeParameters(cfg.Parameters, &params); err != nil {
		return nil, fmt.Errorf("embedded connection %s: %w", cfg.Name, err)
	}
	if params.Directory != "" {
		if err := os.MkdirAll(params.Directory, 0o750); err != nil {
			return nil, fmt.Errorf("embedded connection %s: %w", cfg.Name, err)
		}
	}
	return NewConnection(cfg.Name, params, logger), nil
}

// NewConnection creates a connection without touching the filesystem.
func NewConnection(name string, params Params, logger logging.Logger) *Connection {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Connection{
		name:   name,
		params: params,
		logger: logger,
		tables: make(map[string]gedb.GEDB),
	}
}

// Name implements source.Connection.
func (c *Connection) Name() string { return c.name }

// Adapter implements source.Connection.
func (c *Connection) Adapter() string { return Adapter }

// SupportsJoin implements source.Connection.
func (c *Connection) SupportsJoin() bool { return false }

// NewSource implements source.Connection.
func (c *Connection) NewSource(cfg *source.Config) (source.Source, error) {
	if len(cfg.Fields) == 0 {
		return nil, fmt.Errorf("embedded source %s: no fields", cfg.Name)
	}
	return &Source{conn: c, cfg: cfg}, nil
}

// Close forgets every open datastore. Persisted files stay on disk.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables = make(map[string]gedb.GEDB)
	return nil
}

// Tables returns the names of the open tables.
func (c *Connection) Tables() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}

func (c *Connection) inMemory() bool {
	return c.params.Directory == ""
}

func (c *Connection) filename(table string) string {
	return filepath.Join(c.params.Directory, table+".db")
}

// exists reports whether table is open or persisted. Callers hold c.mu.
func (c *Connection) exists(table string) bool {
	if _, ok := c.tables[key(table)]; ok {
		return true
	}
	if c.inMemory() {
		return false
	}
	_, err := os.Stat(c.filename(table))
	return err == nil
}

// open returns the datastore of table, loading a persisted one on first use.
func (c *Connection) open(ctx context.Context, table string) (gedb.GEDB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if db, ok := c.tables[key(table)]; ok {
		return db, nil
	}
	if !c.exists(table) {
		return nil, fmt.Errorf("%w: %s", source.ErrTableNotFound, table)
	}
	db, err := c.load(ctx, table)
	if err != nil {
		return nil, err
	}
	c.tables[key(table)] = db
	return db, nil
}

// load opens a datastore. Callers hold c.mu.
func (c *Connection) load(ctx context.Context, table string) (gedb.GEDB, error) {
	if c.inMemory() {
		return gedb.NewDB(gedb.WithInMemoryOnly(true))
	}
	db, err := gedb.NewDB(gedb.WithFilename(c.filename(table)))
	if err != nil {
		return nil, err
	}
	if err := db.LoadDatabase(ctx); err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	return db, nil
}

func (c *Connection) create(ctx context.Context, cfg *source.Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	table := cfg.Table()
	if c.exists(table) {
		return fmt.Errorf("%w: %s", source.ErrTableExists, table)
	}
	db, err := c.load(ctx, table)
	if err != nil {
		return err
	}
	if err := ensureIndexes(ctx, db, cfg); err != nil {
		_ = db.DropDatabase(ctx)
		return err
	}
	c.tables[key(table)] = db
	c.logger.Debug("table created", "table", table)
	return nil
}

func ensureIndexes(ctx context.Context, db gedb.GEDB, cfg *source.Config) error {
	if keys := columns(cfg, cfg.PrimaryKeys()); len(keys) > 0 {
		if err := db.EnsureIndex(ctx, gedb.WithFields(keys...), gedb.WithUnique(true)); err != nil {
			return fmt.Errorf("primary key index on %s: %w", cfg.Table(), err)
		}
	}
	for _, f := range cfg.Fields {
		if f.PrimaryKey || !(f.Unique || f.Index) {
			continue
		}
		if err := db.EnsureIndex(ctx, gedb.WithFields(f.Column()), gedb.WithUnique(f.Unique)); err != nil {
			return fmt.Errorf("index on %s.%s: %w", cfg.Table(), f.Name, err)
		}
	}
	for _, idx := range cfg.Indexes {
		if err := db.EnsureIndex(ctx, gedb.WithFields(columns(cfg, idx.Fields)...), gedb.WithUnique(idx.Unique)); err != nil {
			return fmt.Errorf("index %s on %s: %w", idx.Name, cfg.Table(), err)
		}
	}
	return nil
}

func (c *Connection) drop(ctx context.Context, table string) error {
	db, err := c.open(ctx, table)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := db.DropDatabase(ctx); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	delete(c.tables, key(table))
	if !c.inMemory() {
		if err := os.Remove(c.filename(table)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("drop %s: %w", table, err)
		}
	}
	c.logger.Debug("table dropped", "table", table)
	return nil
}

// rename moves table from to the table of cfg. In-memory datastores change
// hands; persisted ones are copied into a new file, indexed like cfg, before
// the old one is dropped.
func (c *Connection) rename(ctx context.Context, from string, cfg *source.Config) error {
	to := cfg.Table()
	db, err := c.open(ctx, from)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.exists(to) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", source.ErrTableExists, to)
	}
	if c.inMemory() {
		delete(c.tables, key(from))
		c.tables[key(to)] = db
		c.mu.Unlock()
		c.logger.Debug("table renamed", "from", from, "to", to)
		return nil
	}

	target, err := c.load(ctx, to)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if err := ensureIndexes(ctx, target, cfg); err != nil {
		_ = target.DropDatabase(ctx)
		_ = os.Remove(c.filename(to))
		c.mu.Unlock()
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}
	c.tables[key(to)] = target
	c.mu.Unlock()

	docs, err := allDocuments(ctx, db)
	if err == nil && len(docs) > 0 {
		var cur gedb.Cursor
		if cur, err = target.Insert(ctx, docs...); err == nil {
			_ = cur.Close()
		}
	}
	if err != nil {
		_ = c.drop(ctx, to)
		return fmt.Errorf("rename %s to %s: %w", from, to, err)
	}
	c.logger.Debug("table renamed", "from", from, "to", to, "rows", len(docs))
	return c.drop(ctx, from)
}

func allDocuments(ctx context.Context, db gedb.GEDB) ([]any, error) {
	cur, err := db.GetAllData(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close() }()

	var docs []any
	for cur.Next() {
		doc := make(map[string]any)
		if err := cur.Scan(ctx, &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, cur.Err()
}

func columns(cfg *source.Config, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if f := cfg.Field(name); f != nil {
			out = append(out, f.Column())
		} else {
			out = append(out, name)
		}
	}
	return out
}

func key(table string) string {
	return strings.ToLower(table)
}
