package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/vdir/internal/filter"
)

// ErrStop is returned by SearchResponse.Add to ask the producer to stop
// sending results. Producers treat it as a normal end of the search.
var ErrStop = errors.New("directory: stop search")

// ErrInvalidScope is returned when a scope string cannot be parsed.
var ErrInvalidScope = errors.New("directory: invalid scope")

// Scope represents the LDAP search scope.
type Scope int

// Scope constants.
const (
	// ScopeBase returns only the base entry itself.
	ScopeBase Scope = iota
	// ScopeOneLevel returns only the immediate children of the base entry.
	ScopeOneLevel
	// ScopeSubtree returns the base entry and all its descendants.
	ScopeSubtree
)

// String returns the string representation of the scope.
func (s Scope) String() string {
	switch s {
	case ScopeBase:
		return "base"
	case ScopeOneLevel:
		return "one"
	case ScopeSubtree:
		return "sub"
	default:
		return "unknown"
	}
}

// ParseScope parses "base", "one" or "sub" (and their long forms).
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "base", "object", "baseobject":
		return ScopeBase, nil
	case "one", "onelevel", "singlelevel":
		return ScopeOneLevel, nil
	case "sub", "subtree", "wholesubtree", "":
		return ScopeSubtree, nil
	}
	return ScopeSubtree, fmt.Errorf("%w: %q", ErrInvalidScope, s)
}

// SearchRequest describes a search against the directory or a source.
type SearchRequest struct {
	BaseDN     string
	Scope      Scope
	Filter     filter.Filter
	Attributes []string
	SizeLimit  int
}

// NewSearchRequest creates a subtree search for every entry below baseDN.
func NewSearchRequest(baseDN string) *SearchRequest {
	return &SearchRequest{BaseDN: baseDN, Scope: ScopeSubtree}
}

// Clone returns a copy of the request with its own filter tree.
func (r *SearchRequest) Clone() *SearchRequest {
	clone := *r
	if r.Filter != nil {
		clone.Filter = r.Filter.Clone()
	}
	clone.Attributes = append([]string(nil), r.Attributes...)
	return &clone
}

// SearchResult is one result of a search. Results of raw source searches
// carry the values of every joined source keyed by source alias; mapped
// directory results carry the flattened attribute set.
type SearchResult struct {
	DN           string
	Attributes   Attributes
	SourceValues map[string]Attributes
}

// NewSearchResult creates an empty result for dn.
func NewSearchResult(dn string) *SearchResult {
	return &SearchResult{
		DN:           dn,
		Attributes:   make(Attributes),
		SourceValues: make(map[string]Attributes),
	}
}

// Values implements filter.Entry.
func (r *SearchResult) Values(name string) []any {
	return r.Attributes.Get(name)
}

// DistinguishedName implements filter.DNEntry.
func (r *SearchResult) DistinguishedName() string {
	return r.DN
}

// AttributeNames implements filter.NamedEntry.
func (r *SearchResult) AttributeNames() []string {
	return r.Attributes.Names()
}

// Source returns the values of one joined source, creating the set on
// first use.
func (r *SearchResult) Source(alias string) Attributes {
	if r.SourceValues == nil {
		r.SourceValues = make(map[string]Attributes)
	}
	attrs, ok := r.SourceValues[alias]
	if !ok {
		attrs = make(Attributes)
		r.SourceValues[alias] = attrs
	}
	return attrs
}

// MergeSources adds the per-source values of other into r.
func (r *SearchResult) MergeSources(other *SearchResult) {
	for alias, attrs := range other.SourceValues {
		r.Source(alias).Merge(attrs)
	}
}

// QualifiedValues returns every source value keyed as "alias.field".
func (r *SearchResult) QualifiedValues() map[string][]any {
	out := make(map[string][]any)
	for alias, attrs := range r.SourceValues {
		for name, values := range attrs {
			out[alias+"."+name] = values
		}
	}
	return out
}

// Entry converts the result into an Entry.
func (r *SearchResult) Entry() *Entry {
	return &Entry{DN: r.DN, Attributes: r.Attributes.Clone()}
}

// Clone creates a deep copy of the result.
func (r *SearchResult) Clone() *SearchResult {
	clone := &SearchResult{DN: r.DN, Attributes: r.Attributes.Clone()}
	if r.SourceValues != nil {
		clone.SourceValues = make(map[string]Attributes, len(r.SourceValues))
		for alias, attrs := range r.SourceValues {
			clone.SourceValues[alias] = attrs.Clone()
		}
	}
	return clone
}

// SearchResponse is a streaming sink for search results. Add returns ErrStop
// to end the search early; Close marks the end of the stream.
type SearchResponse interface {
	Add(ctx context.Context, result *SearchResult) error
	Close(ctx context.Context) error
}

// ResponseFunc adapts a function to a SearchResponse with a no-op Close.
type ResponseFunc func(ctx context.Context, result *SearchResult) error

// Add implements SearchResponse.
func (f ResponseFunc) Add(ctx context.Context, result *SearchResult) error {
	return f(ctx, result)
}

// Close implements SearchResponse.
func (f ResponseFunc) Close(context.Context) error {
	return nil
}

// IsStop reports whether err is the stop signal.
func IsStop(err error) bool {
	return errors.Is(err, ErrStop)
}
