package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/KilimcininKorOglu/vdir/internal/logging"
)

// Factory opens a connection for an adapter.
type Factory func(ctx context.Context, cfg *ConnectionConfig, logger logging.Logger) (Connection, error)

// Registry maps adapter names to connection factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory of an adapter. Adapter names are
// case-insensitive.
func (r *Registry) Register(adapter string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(adapter)] = f
}

// Adapters returns the registered adapter names, sorted.
func (r *Registry) Adapters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens a connection with the factory of cfg.Adapter.
func (r *Registry) Open(ctx context.Context, cfg *ConnectionConfig, logger logging.Logger) (Connection, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(cfg.Adapter)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (connection %s)", ErrUnknownAdapter, cfg.Adapter, cfg.Name)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return f(ctx, cfg.Clone(), logger.WithFields("connection", cfg.Name, "adapter", cfg.Adapter))
}

// DecodeParameters decodes string parameters into the struct pointed to by
// out. Values are converted to the field types ("true", "30s", "10").
func DecodeParameters(params map[string]string, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(params); err != nil {
		return fmt.Errorf("decode parameters: %w", err)
	}
	return nil
}
