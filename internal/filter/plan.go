package filter

// Plan is the result of splitting a filter into the part a source can
// evaluate natively and the part that has to be evaluated afterwards.
type Plan struct {
	// Pushdown is the filter to hand to the source. It matches a superset of
	// the entries matched by the original filter. A nil Pushdown or a true
	// BooleanFilter means every entry.
	Pushdown Filter

	// PostFilter is the filter to apply to the source's results, or nil when
	// Pushdown is exact.
	PostFilter Filter

	// Relaxed counts the leaves that could not be pushed down.
	Relaxed int

	// Original is the filter the plan was built from.
	Original Filter
}

// IsFullScan reports whether the source has to return every entry.
func (p *Plan) IsFullScan() bool {
	if p.Pushdown == nil {
		return true
	}
	b, ok := p.Pushdown.(*BooleanFilter)
	return ok && b.Value
}

// IsEmpty reports whether the filter can never match, so the source does not
// need to be searched at all.
func (p *Plan) IsEmpty() bool {
	b, ok := p.Pushdown.(*BooleanFilter)
	return ok && !b.Value
}

// HasPostFilter returns true if post-filtering is required.
func (p *Plan) HasPostFilter() bool {
	return p.PostFilter != nil
}

// String returns a human-readable description of the plan.
func (p *Plan) String() string {
	var result string
	switch {
	case p.IsEmpty():
		return "NONE"
	case p.IsFullScan():
		result = "FULL_SCAN"
	default:
		result = "PUSHDOWN" + p.Pushdown.String()
	}
	if p.PostFilter != nil {
		result += " + POST_FILTER"
	}
	return result
}
