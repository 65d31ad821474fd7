// Package source defines the capability interfaces of connected data stores
// and the configuration, session and row helpers shared by their
// implementations.
package source

import (
	"context"
	"errors"
	"strings"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/filter"
)

// Source errors
var (
	ErrSourceNotFound     = errors.New("source: source not found")
	ErrSourceExists       = errors.New("source: source already exists")
	ErrConnectionNotFound = errors.New("source: connection not found")
	ErrConnectionExists   = errors.New("source: connection already exists")
	ErrUnknownAdapter     = errors.New("source: unknown adapter")
	ErrNotSupported       = errors.New("source: operation not supported")
	ErrJoinUnsupported    = errors.New("source: joins not supported by connection")
	ErrTableNotFound      = errors.New("source: table not found")
	ErrTableExists        = errors.New("source: table already exists")
	ErrNoPrimaryKey       = errors.New("source: no primary key value")
	ErrSessionClosed      = errors.New("source: session closed")
	ErrInvalidQuery       = errors.New("source: invalid query")
)

// Source is a configured, connected backing store holding rows (or entries)
// described by its Config.
type Source interface {
	// Name returns the configured source name.
	Name() string
	// Config returns a copy of the source configuration.
	Config() *Config
	// Parameter returns a configuration parameter.
	Parameter(name string) string

	// Create creates the physical storage (table, datastore).
	Create(ctx context.Context) error
	// Drop removes the physical storage.
	Drop(ctx context.Context) error
	// Clear removes every row while keeping the storage.
	Clear(ctx context.Context, session *Session) error
	// Rename moves the physical storage of this source to the storage name
	// of target. target must not exist.
	Rename(ctx context.Context, target Source) error

	// Search streams the rows matching q to resp. Result DNs are the primary
	// key RDN qualified by the primary alias, for example "u.id=1", and each
	// result carries the values of every joined source keyed by alias.
	Search(ctx context.Context, session *Session, q *Query, resp directory.SearchResponse) error
	// Add stores attrs. Multi-valued attributes of row stores are expanded
	// into the cartesian product of rows.
	Add(ctx context.Context, session *Session, dn string, attrs directory.Attributes) error
	// Delete removes the rows identified by the primary key values of dn.
	Delete(ctx context.Context, session *Session, dn string) error
}

// Connection is a live connection to a backing system that creates sources.
type Connection interface {
	Name() string
	Adapter() string
	// SupportsJoin reports whether several sources of this connection can be
	// searched with one server-side join.
	SupportsJoin() bool
	NewSource(cfg *Config) (Source, error)
	Close() error
}

// Ref names a source taking part in a search. The first Ref of a Query is
// the primary source; the others are left-joined to it on Join.
type Ref struct {
	Alias  string
	Source Source
	// Join lists the conditions of a joined ref as pairs of its own field and
	// a qualified field of an earlier ref, for example {"owner": "u.id"}.
	Join map[string]string
}

// Query describes a search against one source or a join of sources of the
// same connection.
type Query struct {
	Refs []Ref
	// Filter uses field names qualified by alias ("u.name"); unqualified
	// names refer to the primary source.
	Filter     filter.Filter
	Attributes []string
	SizeLimit  int
}

// NewQuery creates a query on a single source with alias equal to its name.
func NewQuery(src Source, f filter.Filter) *Query {
	return &Query{Refs: []Ref{{Alias: src.Name(), Source: src}}, Filter: f}
}

// Primary returns the primary ref.
func (q *Query) Primary() Ref {
	if len(q.Refs) == 0 {
		return Ref{}
	}
	return q.Refs[0]
}

// Validate checks that the query has a primary source and unique aliases.
func (q *Query) Validate() error {
	if len(q.Refs) == 0 || q.Refs[0].Source == nil {
		return ErrInvalidQuery
	}
	seen := make(map[string]bool, len(q.Refs))
	for _, ref := range q.Refs {
		alias := strings.ToLower(ref.Alias)
		if alias == "" || seen[alias] || ref.Source == nil {
			return ErrInvalidQuery
		}
		seen[alias] = true
	}
	return nil
}

// Resolve splits an attribute of the query filter into a ref alias and a
// field name.
func (q *Query) Resolve(attribute string) (alias, field string) {
	if idx := strings.IndexByte(attribute, '.'); idx > 0 {
		prefix := attribute[:idx]
		for _, ref := range q.Refs {
			if strings.EqualFold(ref.Alias, prefix) {
				return ref.Alias, attribute[idx+1:]
			}
		}
	}
	return q.Primary().Alias, attribute
}
