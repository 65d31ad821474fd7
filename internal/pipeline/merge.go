package pipeline

import (
	"context"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
)

// Merge buffers the current result and merges every following result with
// the same DN into it. A result with a different DN flushes the buffer
// downstream. Upstream results must be grouped by DN.
type Merge struct {
	next    directory.SearchResponse
	current *directory.SearchResult
	merged  int
	stopped bool
}

// NewMerge creates a Merge stage feeding next.
func NewMerge(next directory.SearchResponse) *Merge {
	return &Merge{next: next}
}

// Add implements directory.SearchResponse.
func (m *Merge) Add(ctx context.Context, result *directory.SearchResult) error {
	if m.stopped {
		return directory.ErrStop
	}
	if m.current != nil && directory.EqualDN(m.current.DN, result.DN) {
		m.current.MergeSources(result)
		m.current.Attributes.Merge(result.Attributes)
		m.merged++
		return nil
	}

	pending := m.current
	m.current = result.Clone()
	if pending == nil {
		return nil
	}
	if err := m.next.Add(ctx, pending); err != nil {
		m.current = nil
		m.stopped = directory.IsStop(err)
		return err
	}
	return nil
}

// Close flushes the buffered result and closes the downstream stage.
func (m *Merge) Close(ctx context.Context) error {
	if m.current != nil {
		pending := m.current
		m.current = nil
		if err := m.next.Add(ctx, pending); err != nil && !directory.IsStop(err) {
			_ = m.next.Close(ctx)
			return err
		}
	}
	return m.next.Close(ctx)
}

// Merged returns the number of results folded into a previous one.
func (m *Merge) Merged() int {
	return m.merged
}
