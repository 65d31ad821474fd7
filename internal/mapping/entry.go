package mapping

import (
	"context"
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/filter"
	"github.com/KilimcininKorOglu/vdir/internal/interpreter"
	"github.com/KilimcininKorOglu/vdir/internal/logging"
	"github.com/KilimcininKorOglu/vdir/internal/pipeline"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Entry is a node of the entry tree. An Entry is not safe for concurrent
// modification; searches may run concurrently once the tree is built.
type Entry struct {
	dn            string
	objectClasses []string
	attributes    []AttributeMapping
	sources       []SourceMapping

	parent   *Entry
	children []*Entry
	resolver Resolver
}

// NewEntry builds the entry described by cfg and its children. Source names
// are resolved through resolver when the entry is searched.
func NewEntry(cfg EntryConfig, resolver Resolver) (*Entry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return build(cfg, resolver), nil
}

func build(cfg EntryConfig, resolver Resolver) *Entry {
	e := &Entry{
		dn:            cfg.DN,
		objectClasses: append([]string(nil), cfg.ObjectClasses...),
		attributes:    append([]AttributeMapping(nil), cfg.Attributes...),
		sources:       cloneSources(cfg.Sources),
		resolver:      resolver,
	}
	for _, childCfg := range cfg.Children {
		child := build(childCfg, resolver)
		child.parent = e
		e.children = append(e.children, child)
	}
	return e
}

// DN returns the DN of the entry. Dynamic entries return their pattern.
func (e *Entry) DN() string {
	return e.dn
}

// BaseDN returns the DN below which the entry presents its entries: the DN
// itself for static entries and the parent DN for dynamic ones.
func (e *Entry) BaseDN() string {
	if e.IsDynamic() {
		return directory.ParentDN(e.dn)
	}
	return e.dn
}

// IsDynamic reports whether the entry is backed by sources.
func (e *Entry) IsDynamic() bool {
	return len(e.sources) > 0
}

// Parent returns the parent entry, or nil for a root.
func (e *Entry) Parent() *Entry {
	return e.parent
}

// ObjectClasses returns the object classes of the entry.
func (e *Entry) ObjectClasses() []string {
	return append([]string(nil), e.objectClasses...)
}

// LocalSources returns the source mappings of this entry only.
func (e *Entry) LocalSources() []SourceMapping {
	return cloneSources(e.sources)
}

// Children returns the direct children.
func (e *Entry) Children() []*Entry {
	return append([]*Entry(nil), e.children...)
}

// AddChild attaches child below e. The child DN must be directly below the
// DN of e.
func (e *Entry) AddChild(child *Entry) error {
	if e.IsDynamic() {
		return fmt.Errorf("%w: dynamic entry %s cannot have children", ErrInvalidEntry, e.dn)
	}
	if !directory.EqualDN(directory.ParentDN(child.dn), e.dn) {
		return fmt.Errorf("%w: %s is not a child of %s", ErrInvalidEntry, child.dn, e.dn)
	}
	child.parent = e
	e.children = append(e.children, child)
	return nil
}

// Find returns the entry of the subtree whose DN equals dn, or nil.
func (e *Entry) Find(dn string) *Entry {
	var found *Entry
	e.Walk(func(n *Entry) bool {
		if found == nil && directory.EqualDN(n.dn, dn) {
			found = n
		}
		return found == nil
	})
	return found
}

// Walk visits e and its descendants depth first until fn returns false.
func (e *Entry) Walk(fn func(*Entry) bool) bool {
	if !fn(e) {
		return false
	}
	for _, child := range e.children {
		if !child.Walk(fn) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the subtree rooted at e. The copy has no
// parent and shares the resolver of e.
func (e *Entry) Clone() *Entry {
	clone := &Entry{
		dn:            e.dn,
		objectClasses: append([]string(nil), e.objectClasses...),
		attributes:    append([]AttributeMapping(nil), e.attributes...),
		sources:       cloneSources(e.sources),
		resolver:      e.resolver,
	}
	for _, child := range e.children {
		c := child.Clone()
		c.parent = clone
		clone.children = append(clone.children, c)
	}
	return clone
}

// RetargetSources replaces source names throughout the subtree according to
// names (old name to new name). Aliases are kept, so attribute expressions
// stay valid.
func (e *Entry) RetargetSources(names map[string]string) {
	e.Walk(func(n *Entry) bool {
		for i := range n.sources {
			m := &n.sources[i]
			renamed, ok := names[m.Source]
			if !ok {
				continue
			}
			if m.Alias == "" {
				m.Alias = m.Source
			}
			m.Source = renamed
		}
		return true
	})
}

// SetResolver changes the resolver of the whole subtree.
func (e *Entry) SetResolver(r Resolver) {
	e.Walk(func(n *Entry) bool {
		n.resolver = r
		return true
	})
}

// SourceNames returns the names of every source referenced in the subtree,
// in order of first appearance.
func (e *Entry) SourceNames() []string {
	var names []string
	seen := make(map[string]bool)
	e.Walk(func(n *Entry) bool {
		for _, m := range n.sources {
			if !seen[m.Source] {
				seen[m.Source] = true
				names = append(names, m.Source)
			}
		}
		return true
	})
	return names
}

// Search sends the entries of the subtree matching req to resp. It does not
// close resp. An ErrStop from resp ends the search without an error.
func (e *Entry) Search(ctx context.Context, session *source.Session, req *directory.SearchRequest, resp directory.SearchResponse) error {
	err := e.search(ctx, session, req, resp)
	if directory.IsStop(err) {
		return nil
	}
	return err
}

func (e *Entry) search(ctx context.Context, session *source.Session, req *directory.SearchRequest, resp directory.SearchResponse) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !e.reachable(req.BaseDN) {
		return nil
	}
	if e.IsDynamic() {
		return e.searchSources(ctx, session, req, resp)
	}

	if directory.InScope(e.dn, req.BaseDN, req.Scope) {
		result := e.staticResult()
		if filter.Evaluate(req.Filter, result) {
			result.Attributes = project(result.Attributes, req.Attributes)
			if err := resp.Add(ctx, result); err != nil {
				return err
			}
		}
	}
	for _, child := range e.children {
		if err := child.search(ctx, session, req, resp); err != nil {
			return err
		}
	}
	return nil
}

// reachable reports whether the subtree of e can hold entries below base.
func (e *Entry) reachable(base string) bool {
	own := e.BaseDN()
	return directory.IsDescendant(own, base) || directory.IsDescendant(base, own)
}

func (e *Entry) staticResult() *directory.SearchResult {
	in := interpreter.New()
	var naming directory.Attributes
	if rdns, err := directory.ParseDN(e.dn); err == nil && len(rdns) > 0 {
		naming = rdns[0].Attributes()
		in.SetAll(naming)
	}

	attrs := e.computeAttributes(in, nil)
	attrs.Merge(naming)

	result := directory.NewSearchResult(e.dn)
	result.Attributes = attrs
	return result
}

// computeAttributes evaluates the attribute mappings. Evaluation errors are
// logged and the attribute is left out.
func (e *Entry) computeAttributes(in *interpreter.Interpreter, logger logging.Logger) directory.Attributes {
	attrs := make(directory.Attributes, len(e.attributes)+1)
	if len(e.objectClasses) > 0 {
		classes := make([]any, len(e.objectClasses))
		for i, class := range e.objectClasses {
			classes[i] = class
		}
		attrs.Add("objectClass", classes...)
	}
	for _, m := range e.attributes {
		values, err := in.Eval(m.Expression)
		if err != nil {
			if logger != nil {
				logger.Warn("attribute not computed", "entry", e.dn, "attribute", m.Name, "error", err)
			}
			continue
		}
		attrs.Add(m.Name, values...)
	}
	return attrs
}

// searchSources searches the primary source of a dynamic entry and turns
// its rows into entries below the parent DN.
func (e *Entry) searchSources(ctx context.Context, session *source.Session, req *directory.SearchRequest, resp directory.SearchResponse) error {
	if req.Scope == directory.ScopeBase && directory.EqualDN(req.BaseDN, e.BaseDN()) {
		return nil
	}
	q, err := e.query(req)
	if err != nil {
		return err
	}
	if q == nil {
		return nil
	}

	stage := &entryStage{entry: e, req: req, next: resp, logger: logging.FromContext(ctx)}
	merge := pipeline.NewMerge(pipeline.NewTransform(e.BaseDN(), stage))
	if err := q.Primary().Source.Search(ctx, session, q, merge); err != nil && !directory.IsStop(err) {
		return fmt.Errorf("entry %s: %w", e.dn, err)
	}
	if err := merge.Close(ctx); err != nil {
		return err
	}
	if stage.stopped {
		return directory.ErrStop
	}
	return nil
}

// query builds the source query of a dynamic entry. The part of the request
// filter on attributes mapped straight to a source field is pushed down.
// It returns nil when the filter can never match.
func (e *Entry) query(req *directory.SearchRequest) (*source.Query, error) {
	if e.resolver == nil {
		return nil, fmt.Errorf("%w: %s has no source resolver", ErrInvalidEntry, e.dn)
	}
	q := &source.Query{}
	for _, m := range e.sources {
		src, err := e.resolver.Get(m.Source)
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.dn, err)
		}
		q.Refs = append(q.Refs, source.Ref{Alias: m.AliasOrName(), Source: src, Join: m.Join})
	}

	plan := filter.NewPlanner(func(leaf filter.Filter) bool {
		if ext, ok := leaf.(*filter.ExtensibleFilter); ok && ext.DNAttributes {
			return false
		}
		return e.variable(filter.AttributeName(leaf)) != ""
	}).Plan(req.Filter)
	if plan.IsEmpty() {
		return nil, nil
	}
	if !plan.IsFullScan() {
		q.Filter = plan.Pushdown
		filter.Rename(q.Filter, e.variable)
	}
	return q, nil
}

// variable returns the source field an attribute is copied from, or "".
func (e *Entry) variable(attribute string) string {
	for _, m := range e.attributes {
		if strings.EqualFold(m.Name, attribute) && m.Constant == nil && m.Variable != "" {
			return m.Variable
		}
	}
	return ""
}

// entryResult computes the directory entry of one transformed source row.
func (e *Entry) entryResult(row *directory.SearchResult, logger logging.Logger) (*directory.SearchResult, error) {
	in := interpreter.New()
	in.SetAll(row.QualifiedValues())
	for name, values := range row.Attributes {
		if len(in.Get(name)) == 0 {
			in.Set(name, values...)
		}
	}
	attrs := e.computeAttributes(in, logger)

	dn := row.DN
	var rdn directory.RDN
	for _, m := range e.attributes {
		if !m.RDN {
			continue
		}
		v := attrs.First(m.Name)
		if v == nil {
			return nil, fmt.Errorf("%w: rdn attribute %s of %s has no value", source.ErrNoPrimaryKey, m.Name, row.DN)
		}
		rdn = append(rdn, directory.AVA{Type: m.Name, Value: directory.ValueString(v)})
	}
	if len(rdn) > 0 {
		dn = directory.JoinDN(rdn.String(), e.BaseDN())
	}

	result := directory.NewSearchResult(dn)
	result.Attributes = attrs
	return result, nil
}

// entryStage is the last stage of a dynamic entry search. It applies the
// request scope and filter. Close does not close next, which receives the
// entries of the whole tree.
type entryStage struct {
	entry   *Entry
	req     *directory.SearchRequest
	next    directory.SearchResponse
	logger  logging.Logger
	stopped bool
}

func (s *entryStage) Add(ctx context.Context, row *directory.SearchResult) error {
	result, err := s.entry.entryResult(row, s.logger)
	if err != nil {
		s.logger.Warn("row skipped", "entry", s.entry.dn, "error", err)
		return nil
	}
	if !directory.InScope(result.DN, s.req.BaseDN, s.req.Scope) || !filter.Evaluate(s.req.Filter, result) {
		return nil
	}
	result.Attributes = project(result.Attributes, s.req.Attributes)
	if err := s.next.Add(ctx, result); err != nil {
		if directory.IsStop(err) {
			s.stopped = true
		}
		return err
	}
	return nil
}

func (s *entryStage) Close(context.Context) error {
	return nil
}

// project keeps the requested attributes. No names or "*" keep everything.
func project(attrs directory.Attributes, names []string) directory.Attributes {
	if len(names) == 0 {
		return attrs
	}
	out := make(directory.Attributes, len(names))
	for _, name := range names {
		if name == "*" {
			return attrs
		}
		if values := attrs.Get(name); len(values) > 0 {
			out.Set(name, values...)
		}
	}
	return out
}

func cloneSources(in []SourceMapping) []SourceMapping {
	if in == nil {
		return nil
	}
	out := make([]SourceMapping, len(in))
	for i, m := range in {
		m.Join = cloneMap(m.Join)
		out[i] = m
	}
	return out
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
