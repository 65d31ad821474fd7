// Package sqlsource implements sources stored in SQL tables. Several sources
// of one connection can be searched with a single LEFT JOIN query.
package sqlsource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/KilimcininKorOglu/vdir/internal/logging"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Adapter is the adapter name of SQL connections.
const Adapter = "jdbc"

// PostgreSQL error codes mapped to source errors.
const (
	codeDuplicateTable = "42P07"
	codeUndefinedTable = "42P01"
)

// Params are the connection parameters of the SQL adapter.
type Params struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

// Connection is a pooled database handle.
type Connection struct {
	name   string
	db     *sqlx.DB
	logger logging.Logger
}

// Open is the source.Factory of the SQL adapter.
func Open(ctx context.Context, cfg *source.ConnectionConfig, logger logging.Logger) (source.Connection, error) {
	params := Params{Driver: "postgres"}
	if err := source.DecodeParameters(cfg.Parameters, &params); err != nil {
		return nil, fmt.Errorf("sql connection %s: %w", cfg.Name, err)
	}
	if params.URL == "" {
		return nil, fmt.Errorf("sql connection %s: url is required", cfg.Name)
	}

	db, err := sqlx.ConnectContext(ctx, params.Driver, params.URL)
	if err != nil {
		return nil, fmt.Errorf("sql connection %s: %w", cfg.Name, err)
	}
	if params.MaxOpenConns > 0 {
		db.SetMaxOpenConns(params.MaxOpenConns)
	}
	if params.MaxIdleConns > 0 {
		db.SetMaxIdleConns(params.MaxIdleConns)
	}
	if params.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(params.ConnMaxLifetime)
	}
	return NewConnection(cfg.Name, db, logger), nil
}

// NewConnection wraps an open database handle.
func NewConnection(name string, db *sqlx.DB, logger logging.Logger) *Connection {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Connection{name: name, db: db, logger: logger}
}

// Name implements source.Connection.
func (c *Connection) Name() string { return c.name }

// Adapter implements source.Connection.
func (c *Connection) Adapter() string { return Adapter }

// SupportsJoin implements source.Connection.
func (c *Connection) SupportsJoin() bool { return true }

// NewSource implements source.Connection.
func (c *Connection) NewSource(cfg *source.Config) (source.Source, error) {
	if len(cfg.Fields) == 0 {
		return nil, fmt.Errorf("sql source %s: no fields", cfg.Name)
	}
	return &Source{conn: c, cfg: cfg}, nil
}

// Close closes the database handle.
func (c *Connection) Close() error {
	return c.db.Close()
}

func (c *Connection) rebind(query string) string {
	return c.db.Rebind(query)
}

func (c *Connection) exec(ctx context.Context, query string, args ...any) error {
	query = c.rebind(query)
	c.logger.Debug("exec", "sql", query)
	_, err := c.db.ExecContext(ctx, query, args...)
	return translateError(err)
}

// translateError maps table existence errors of the server to source errors.
func translateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeDuplicateTable:
		return fmt.Errorf("%w: %s", source.ErrTableExists, pqErr.Message)
	case codeUndefinedTable:
		return fmt.Errorf("%w: %s", source.ErrTableNotFound, pqErr.Message)
	}
	return err
}
