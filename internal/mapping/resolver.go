package mapping

import (
	"fmt"

	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Resolver looks up sources by name. *source.Manager is a Resolver.
type Resolver interface {
	Get(name string) (source.Source, error)
}

// Overlay resolves a fixed set of sources and defers every other name to
// its fallback. It is used to point an entry tree at unregistered shadow
// sources.
type Overlay struct {
	sources  map[string]source.Source
	fallback Resolver
}

// NewOverlay creates an overlay over fallback, which may be nil.
func NewOverlay(fallback Resolver, sources ...source.Source) *Overlay {
	o := &Overlay{sources: make(map[string]source.Source, len(sources)), fallback: fallback}
	for _, src := range sources {
		o.sources[src.Name()] = src
	}
	return o
}

// Get implements Resolver.
func (o *Overlay) Get(name string) (source.Source, error) {
	if src, ok := o.sources[name]; ok {
		return src, nil
	}
	if o.fallback == nil {
		return nil, fmt.Errorf("%w: %s", source.ErrSourceNotFound, name)
	}
	return o.fallback.Get(name)
}
