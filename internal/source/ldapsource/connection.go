// Package ldapsource implements sources backed by a subtree of a remote LDAP
// server. Rows are the entries directly below the configured base DN and
// fields are their attributes.
package ldapsource

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"

	"github.com/KilimcininKorOglu/vdir/internal/logging"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Adapter is the adapter name of LDAP connections.
const Adapter = "ldap"

// Parameters of LDAP sources.
const (
	// ParamObjectClasses lists the object classes of added entries and
	// restricts searches, comma separated.
	ParamObjectClasses = "objectClasses"
	// ParamScope is the search scope below the base DN: "one" (default) or
	// "sub".
	ParamScope = "scope"
)

// Params are the connection parameters of the LDAP adapter.
type Params struct {
	URL                string        `mapstructure:"url"`
	BindDN             string        `mapstructure:"bindDn"`
	Password           string        `mapstructure:"password"`
	StartTLS           bool          `mapstructure:"startTls"`
	InsecureSkipVerify bool          `mapstructure:"insecureSkipVerify"`
	Timeout            time.Duration `mapstructure:"timeout"`
	PageSize           uint32        `mapstructure:"pageSize"`

	// KerberosRealm enables a GSSAPI bind with BindDN as principal.
	KerberosRealm  string `mapstructure:"kerberosRealm"`
	KerberosConfig string `mapstructure:"kerberosConfig"`
	KerberosKeytab string `mapstructure:"kerberosKeytab"`
	KerberosCCache string `mapstructure:"kerberosCCache"`
	KerberosSPN    string `mapstructure:"kerberosSpn"`
}

// Directory is the subset of an LDAP client used by sources. *ldap.Conn
// implements it.
type Directory interface {
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
	Del(req *ldap.DelRequest) error
	Close() error
}

// Connection is a bound connection to an LDAP server. go-ldap connections
// serialize requests themselves; mu only guards Close.
type Connection struct {
	name     string
	dir      Directory
	pageSize uint32
	logger   logging.Logger

	mu     sync.Mutex
	closed bool
}

// Open is the source.Factory of the LDAP adapter.
func Open(_ context.Context, cfg *source.ConnectionConfig, logger logging.Logger) (source.Connection, error) {
	params := Params{Timeout: 30 * time.Second}
	if err := source.DecodeParameters(cfg.Parameters, &params); err != nil {
		return nil, fmt.Errorf("ldap connection %s: %w", cfg.Name, err)
	}
	if params.URL == "" {
		return nil, fmt.Errorf("ldap connection %s: url is required", cfg.Name)
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: params.InsecureSkipVerify} //nolint:gosec // opt-in via configuration
	conn, err := ldap.DialURL(params.URL,
		ldap.DialWithDialer(&net.Dialer{Timeout: params.Timeout}),
		ldap.DialWithTLSConfig(tlsConfig))
	if err != nil {
		return nil, fmt.Errorf("ldap connection %s: %w", cfg.Name, err)
	}
	conn.SetTimeout(params.Timeout)

	if params.StartTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ldap connection %s: start tls: %w", cfg.Name, err)
		}
	}
	switch {
	case params.KerberosRealm != "":
		if err := kerberosBind(conn, &params); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ldap connection %s: %w", cfg.Name, err)
		}
	case params.BindDN != "":
		if err := conn.Bind(params.BindDN, params.Password); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("ldap connection %s: bind: %w", cfg.Name, err)
		}
	}
	return NewConnection(cfg.Name, conn, params.PageSize, logger), nil
}

// NewConnection wraps a bound directory client.
func NewConnection(name string, dir Directory, pageSize uint32, logger logging.Logger) *Connection {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Connection{name: name, dir: dir, pageSize: pageSize, logger: logger}
}

// Name implements source.Connection.
func (c *Connection) Name() string { return c.name }

// Adapter implements source.Connection.
func (c *Connection) Adapter() string { return Adapter }

// SupportsJoin implements source.Connection.
func (c *Connection) SupportsJoin() bool { return false }

// NewSource implements source.Connection.
func (c *Connection) NewSource(cfg *source.Config) (source.Source, error) {
	if cfg.Parameter(source.ParamBaseDN) == "" {
		return nil, fmt.Errorf("ldap source %s: %s is required", cfg.Name, source.ParamBaseDN)
	}
	if len(cfg.Fields) == 0 {
		return nil, fmt.Errorf("ldap source %s: no fields", cfg.Name)
	}
	return &Source{conn: c, cfg: cfg}, nil
}

// Close unbinds and closes the connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.dir.Close()
}

func (c *Connection) search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	if c.pageSize > 0 {
		return c.dir.SearchWithPaging(req, c.pageSize)
	}
	return c.dir.Search(req)
}
