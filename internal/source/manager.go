package source

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/KilimcininKorOglu/vdir/internal/logging"
)

// Manager holds the connections, source configurations and live sources of
// a partition. It is safe for concurrent use.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]Connection
	configs     map[string]*Config
	sources     map[string]Source
	logger      logging.Logger
}

// NewManager creates an empty manager.
func NewManager(logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		connections: make(map[string]Connection),
		configs:     make(map[string]*Config),
		sources:     make(map[string]Source),
		logger:      logger,
	}
}

// AddConnection registers a live connection.
func (m *Manager) AddConnection(conn Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.connections[conn.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrConnectionExists, conn.Name())
	}
	m.connections[conn.Name()] = conn
	return nil
}

// Connection returns a registered connection.
func (m *Manager) Connection(name string) (Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, name)
	}
	return conn, nil
}

// Add creates a source from cfg on its connection and registers it. The
// manager keeps its own copy of cfg.
func (m *Manager) Add(cfg *Config) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.configs[cfg.Name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSourceExists, cfg.Name)
	}
	src, err := m.newSource(cfg)
	if err != nil {
		return nil, err
	}
	m.configs[cfg.Name] = cfg.Clone()
	m.sources[cfg.Name] = src
	m.logger.Debug("source added", "source", cfg.Name, "connection", cfg.Connection)
	return src, nil
}

// NewSource creates a source for cfg without registering it. It is used for
// shadow and backup copies of registered sources.
func (m *Manager) NewSource(cfg *Config) (Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.newSource(cfg)
}

func (m *Manager) newSource(cfg *Config) (Source, error) {
	conn, ok := m.connections[cfg.Connection]
	if !ok {
		return nil, fmt.Errorf("%w: %s (source %s)", ErrConnectionNotFound, cfg.Connection, cfg.Name)
	}
	src, err := conn.NewSource(cfg.Clone())
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", cfg.Name, err)
	}
	return src, nil
}

// Get returns a registered source.
func (m *Manager) Get(name string) (Source, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src, ok := m.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	return src, nil
}

// Config returns a copy of a registered source configuration.
func (m *Manager) Config(name string) (*Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	return cfg.Clone(), nil
}

// Update replaces the configuration of a registered source and rebuilds it.
func (m *Manager) Update(cfg *Config) (Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.configs[cfg.Name]; !exists {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, cfg.Name)
	}
	src, err := m.newSource(cfg)
	if err != nil {
		return nil, err
	}
	m.configs[cfg.Name] = cfg.Clone()
	m.sources[cfg.Name] = src
	return src, nil
}

// Remove unregisters a source. The physical storage is left untouched.
func (m *Manager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.configs[name]; !exists {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, name)
	}
	delete(m.configs, name)
	delete(m.sources, name)
	return nil
}

// Names returns the names of the registered sources, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.configs))
	for name := range m.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes every connection and returns the combined errors.
func (m *Manager) Close(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result *multierror.Error
	for name, conn := range m.connections {
		if err := conn.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close connection %s: %w", name, err))
		}
	}
	m.connections = make(map[string]Connection)
	m.sources = make(map[string]Source)
	return result.ErrorOrNil()
}
