package mapping

import (
	"context"
	"fmt"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Tree holds the root entries of a partition.
type Tree struct {
	roots []*Entry
}

// NewTree builds a tree from root entry configurations.
func NewTree(configs []EntryConfig, resolver Resolver) (*Tree, error) {
	t := &Tree{}
	for _, cfg := range configs {
		root, err := NewEntry(cfg, resolver)
		if err != nil {
			return nil, err
		}
		for _, other := range t.roots {
			if directory.IsDescendant(root.DN(), other.DN()) || directory.IsDescendant(other.DN(), root.DN()) {
				return nil, fmt.Errorf("%w: root %s overlaps %s", ErrInvalidEntry, root.DN(), other.DN())
			}
		}
		t.roots = append(t.roots, root)
	}
	return t, nil
}

// Roots returns the root entries.
func (t *Tree) Roots() []*Entry {
	return append([]*Entry(nil), t.roots...)
}

// Find returns the entry with the given DN.
func (t *Tree) Find(dn string) (*Entry, error) {
	for _, root := range t.roots {
		if e := root.Find(dn); e != nil {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, dn)
}

// Search searches every root entry. It does not close resp.
func (t *Tree) Search(ctx context.Context, session *source.Session, req *directory.SearchRequest, resp directory.SearchResponse) error {
	stopper := &stopWatch{next: resp}
	for _, root := range t.roots {
		if err := root.Search(ctx, session, req, stopper); err != nil {
			return err
		}
		if stopper.stopped {
			return nil
		}
	}
	return nil
}

// stopWatch remembers whether the response asked to stop.
type stopWatch struct {
	next    directory.SearchResponse
	stopped bool
}

func (s *stopWatch) Add(ctx context.Context, result *directory.SearchResult) error {
	err := s.next.Add(ctx, result)
	if directory.IsStop(err) {
		s.stopped = true
	}
	return err
}

func (s *stopWatch) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}
