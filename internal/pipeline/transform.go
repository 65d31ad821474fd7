package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
)

// Transform turns raw source results into directory results. The
// alias qualification of the RDN attribute types is stripped ("u.id=1"
// becomes "id=1"), the RDN is re-based onto the configured base DN and the
// per-source attribute sets are flattened into the result attributes. The
// per-source values are kept for attribute computation downstream.
type Transform struct {
	next   directory.SearchResponse
	baseDN string
}

// NewTransform creates a Transform stage re-basing results onto baseDN.
func NewTransform(baseDN string, next directory.SearchResponse) *Transform {
	return &Transform{next: next, baseDN: baseDN}
}

// Add implements directory.SearchResponse.
func (t *Transform) Add(ctx context.Context, result *directory.SearchResult) error {
	out, err := t.Apply(result)
	if err != nil {
		return err
	}
	return t.next.Add(ctx, out)
}

// Close implements directory.SearchResponse.
func (t *Transform) Close(ctx context.Context) error {
	return t.next.Close(ctx)
}

// Apply returns the transformed copy of result.
func (t *Transform) Apply(result *directory.SearchResult) (*directory.SearchResult, error) {
	rdn, err := directory.ParseRDN(directory.FirstRDN(result.DN))
	if err != nil {
		return nil, fmt.Errorf("transform %q: %w", result.DN, err)
	}
	for i := range rdn {
		rdn[i].Type = UnqualifiedName(rdn[i].Type)
	}

	out := directory.NewSearchResult(directory.JoinDN(rdn.String(), t.baseDN))
	out.Attributes = result.Attributes.Clone()
	if out.Attributes == nil {
		out.Attributes = make(directory.Attributes)
	}
	aliases := make([]string, 0, len(result.SourceValues))
	for alias := range result.SourceValues {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		attrs := result.SourceValues[alias]
		for _, name := range attrs.Names() {
			out.Attributes.Add(name, attrs[name]...)
		}
		out.SourceValues[alias] = attrs.Clone()
	}
	return out, nil
}

// UnqualifiedName strips an "alias." prefix from name.
func UnqualifiedName(name string) string {
	if idx := strings.LastIndexByte(name, '.'); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
