package filter

// container holds the ordered children shared by AndFilter and OrFilter.
type container struct {
	node
	children []Filter
}

// Children returns a copy of the child list.
func (c *container) Children() []Filter {
	out := make([]Filter, len(c.children))
	copy(out, c.children)
	return out
}

// Len returns the number of children.
func (c *container) Len() int {
	return len(c.children)
}

func (c *container) indexOf(f Filter) int {
	for i, child := range c.children {
		if child == f {
			return i
		}
	}
	return -1
}

func (c *container) removeAt(i int) {
	c.children[i].setParent(nil)
	c.children = append(c.children[:i], c.children[i+1:]...)
}

// replace applies the collapse rules for self. identity is the constant that
// leaves the container's result unchanged: true for AND, false for OR.
//
// Removing a child leaves a single remaining child promoted into the parent
// and an empty container eliminated (replaced by nil). Folding the identity
// constant until nothing is left replaces the container by that constant.
// The absorbing constant replaces the whole container.
func (c *container) replace(self parentFilter, old, replacement Filter, identity bool) {
	i := c.indexOf(old)
	if i < 0 || old == replacement {
		if b, ok := replacement.(*BooleanFilter); ok && i >= 0 {
			c.fold(self, i, b, identity)
		}
		return
	}

	if b, ok := replacement.(*BooleanFilter); ok {
		c.fold(self, i, b, identity)
		return
	}

	if replacement == nil {
		c.removeAt(i)
		switch len(c.children) {
		case 0:
			c.replaceSelf(self, nil)
		case 1:
			c.replaceSelf(self, c.children[0])
		}
		return
	}

	old.setParent(nil)
	replacement.setParent(self)
	c.children[i] = replacement
}

func (c *container) fold(self parentFilter, i int, b *BooleanFilter, identity bool) {
	if b.Value != identity {
		c.replaceSelf(self, NewBoolean(b.Value))
		return
	}

	c.removeAt(i)
	switch len(c.children) {
	case 0:
		c.replaceSelf(self, NewBoolean(identity))
	case 1:
		c.replaceSelf(self, c.children[0])
	}
}

func (c *container) replaceSelf(self parentFilter, replacement Filter) {
	if c.parent == nil {
		return
	}
	if replacement != nil && replacement.Parent() == Container(self) {
		c.children = nil
	}
	c.parent.Replace(self, replacement)
}

func (c *container) add(self parentFilter, child Filter) {
	if child == nil {
		return
	}
	child.setParent(self)
	c.children = append(c.children, child)
}

func (c *container) cloneChildren() []Filter {
	out := make([]Filter, len(c.children))
	for i, child := range c.children {
		out[i] = child.Clone()
	}
	return out
}

type parentFilter interface {
	Filter
	Container
}

// AndFilter is the conjunction of its children.
type AndFilter struct {
	container
}

// NewAnd creates a new AND filter owning children.
func NewAnd(children ...Filter) *AndFilter {
	f := &AndFilter{}
	for _, child := range children {
		f.Add(child)
	}
	return f
}

func (f *AndFilter) Kind() Kind { return KindAnd }

// Add appends child and takes ownership of it.
func (f *AndFilter) Add(child Filter) {
	f.add(f, child)
}

// Replace implements Container.
func (f *AndFilter) Replace(old, replacement Filter) {
	f.replace(f, old, replacement, true)
}

func (f *AndFilter) Clone() Filter {
	return NewAnd(f.cloneChildren()...)
}

// OrFilter is the disjunction of its children.
type OrFilter struct {
	container
}

// NewOr creates a new OR filter owning children.
func NewOr(children ...Filter) *OrFilter {
	f := &OrFilter{}
	for _, child := range children {
		f.Add(child)
	}
	return f
}

func (f *OrFilter) Kind() Kind { return KindOr }

// Add appends child and takes ownership of it.
func (f *OrFilter) Add(child Filter) {
	f.add(f, child)
}

// Replace implements Container.
func (f *OrFilter) Replace(old, replacement Filter) {
	f.replace(f, old, replacement, false)
}

func (f *OrFilter) Clone() Filter {
	return NewOr(f.cloneChildren()...)
}
