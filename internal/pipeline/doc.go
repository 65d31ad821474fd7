// Package pipeline provides the search-response stages used to move results
// between sources: Merge coalesces consecutive results sharing a DN, Split
// writes computed rows into target sources, Transform turns raw source
// results into directory entries, Sort orders results by DN and Collect
// accumulates them.
//
// Every stage implements directory.SearchResponse. A stage forwards the
// directory.ErrStop signal of its downstream to its producer so that a
// search can end early without an error.
package pipeline
