package filter

// Planner decides which parts of a filter a source can evaluate.
type Planner struct {
	supported func(leaf Filter) bool
}

// NewPlanner creates a Planner. supported reports whether the source can
// evaluate a leaf (a simple, present, substring or extensible filter)
// natively; a nil function accepts everything.
func NewPlanner(supported func(leaf Filter) bool) *Planner {
	return &Planner{supported: supported}
}

// Plan splits f. Unsupported leaves are replaced by the constant that keeps
// the pushed-down filter a superset of f: true where the leaf is under an
// even number of negations and false under an odd number. The rewritten tree
// is then folded, so a relaxed AND child disappears and a relaxed OR child
// widens the whole OR.
func (p *Planner) Plan(f Filter) *Plan {
	if f == nil {
		return &Plan{}
	}

	root := NewRoot(f.Clone())
	type relaxed struct {
		leaf    Filter
		negated bool
	}
	var leaves []relaxed
	collectLeaves(root.Filter(), false, func(leaf Filter, negated bool) {
		if !p.canPush(leaf) {
			leaves = append(leaves, relaxed{leaf: leaf, negated: negated})
		}
	})

	for _, r := range leaves {
		if parent := r.leaf.Parent(); parent != nil {
			parent.Replace(r.leaf, NewBoolean(!r.negated))
		}
	}

	plan := &Plan{
		Pushdown: Simplify(root.Filter()),
		Relaxed:  len(leaves),
		Original: f,
	}
	if len(leaves) > 0 {
		plan.PostFilter = f.Clone()
	}
	return plan
}

func (p *Planner) canPush(leaf Filter) bool {
	if p.supported == nil {
		return true
	}
	return p.supported(leaf)
}

func collectLeaves(f Filter, negated bool, fn func(Filter, bool)) {
	switch n := f.(type) {
	case nil:
	case *AndFilter:
		for _, child := range n.children {
			collectLeaves(child, negated, fn)
		}
	case *OrFilter:
		for _, child := range n.children {
			collectLeaves(child, negated, fn)
		}
	case *NotFilter:
		collectLeaves(n.child, !negated, fn)
	case *BooleanFilter:
	default:
		fn(f, negated)
	}
}
