package pipeline

import (
	"context"
	"sort"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
)

// Sort buffers every result and emits them in directory.CompareDN order when
// closed. Results with equal DNs keep their arrival order.
type Sort struct {
	next    directory.SearchResponse
	results []*directory.SearchResult
}

// NewSort creates a Sort stage feeding next.
func NewSort(next directory.SearchResponse) *Sort {
	return &Sort{next: next}
}

// Add implements directory.SearchResponse.
func (s *Sort) Add(_ context.Context, result *directory.SearchResult) error {
	s.results = append(s.results, result)
	return nil
}

// Close sorts the buffered results, sends them downstream and closes it.
func (s *Sort) Close(ctx context.Context) error {
	results := s.results
	s.results = nil
	sort.SliceStable(results, func(i, j int) bool {
		return directory.CompareDN(results[i].DN, results[j].DN) < 0
	})

	for _, result := range results {
		if err := s.next.Add(ctx, result); err != nil {
			if directory.IsStop(err) {
				break
			}
			_ = s.next.Close(ctx)
			return err
		}
	}
	return s.next.Close(ctx)
}
