package pipeline

import (
	"context"
	"sync"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
)

// Collect is a terminal stage accumulating results. With a positive limit
// it asks the producer to stop once the limit is reached.
type Collect struct {
	mu      sync.Mutex
	limit   int
	results []*directory.SearchResult
	closed  bool
}

// NewCollect creates a collector. A limit of zero collects everything.
func NewCollect(limit int) *Collect {
	return &Collect{limit: limit}
}

// Add implements directory.SearchResponse.
func (c *Collect) Add(_ context.Context, result *directory.SearchResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.limit > 0 && len(c.results) >= c.limit {
		return directory.ErrStop
	}
	c.results = append(c.results, result)
	if c.limit > 0 && len(c.results) >= c.limit {
		return directory.ErrStop
	}
	return nil
}

// Close implements directory.SearchResponse.
func (c *Collect) Close(context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

// Results returns the collected results in arrival order.
func (c *Collect) Results() []*directory.SearchResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*directory.SearchResult(nil), c.results...)
}

// DNs returns the DNs of the collected results.
func (c *Collect) DNs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	dns := make([]string, len(c.results))
	for i, r := range c.results {
		dns[i] = r.DN
	}
	return dns
}

// Len returns the number of collected results.
func (c *Collect) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Closed reports whether Close has been called.
func (c *Collect) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
