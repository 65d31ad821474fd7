package embedded

import (
	"regexp"
	"strings"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/filter"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// pushable accepts equality, presence and substring leaves on text fields of
// the primary source. Ordering and approximate matching are left to the
// evaluator since the datastore compares text case-sensitively.
func (s *Source) pushable(q *source.Query) func(filter.Filter) bool {
	return func(leaf filter.Filter) bool {
		f := s.field(q, filter.AttributeName(leaf))
		if f == nil || f.IsBinary() {
			return false
		}
		switch n := leaf.(type) {
		case *filter.SimpleFilter:
			return n.Operator == filter.OpEqual
		case *filter.PresentFilter, *filter.SubstringFilter:
			return true
		}
		return false
	}
}

func (s *Source) field(q *source.Query, attribute string) *source.FieldConfig {
	alias, name := q.Resolve(attribute)
	if !strings.EqualFold(alias, q.Primary().Alias) {
		return nil
	}
	return s.cfg.Field(name)
}

// translate converts a pushdown filter into a gedb query document.
func (s *Source) translate(q *source.Query, f filter.Filter) map[string]any {
	switch n := f.(type) {
	case nil:
		return map[string]any{}
	case *filter.BooleanFilter:
		if n.Value {
			return map[string]any{}
		}
		return map[string]any{"$where": func(any) (bool, error) { return false, nil }}
	case *filter.AndFilter:
		return map[string]any{"$and": s.translateAll(q, n.Children())}
	case *filter.OrFilter:
		return map[string]any{"$or": s.translateAll(q, n.Children())}
	case *filter.NotFilter:
		return map[string]any{"$not": s.translate(q, n.Child())}
	case *filter.PresentFilter:
		return map[string]any{s.column(q, n.Attribute): map[string]any{"$exists": true}}
	case *filter.SimpleFilter:
		return equalityQuery(s.column(q, n.Attribute), directory.ValueString(n.Value))
	case *filter.SubstringFilter:
		return regexQuery(s.column(q, n.Attribute), substringPattern(n))
	}
	return map[string]any{}
}

func (s *Source) translateAll(q *source.Query, children []filter.Filter) []any {
	out := make([]any, len(children))
	for i, child := range children {
		out[i] = s.translate(q, child)
	}
	return out
}

func (s *Source) column(q *source.Query, attribute string) string {
	if f := s.field(q, attribute); f != nil {
		return f.Column()
	}
	_, name := q.Resolve(attribute)
	return name
}

// equalityQuery matches value ignoring case. $exists is required since a
// regular expression also accepts documents without the field.
func equalityQuery(column, value string) map[string]any {
	return regexQuery(column, "^"+regexp.QuoteMeta(value)+"$")
}

func regexQuery(column, pattern string) map[string]any {
	return map[string]any{column: map[string]any{
		"$exists": true,
		"$regex":  regexp.MustCompile("(?is)" + pattern),
	}}
}

func substringPattern(f *filter.SubstringFilter) string {
	var sb strings.Builder
	sb.WriteString("^")
	sb.WriteString(regexp.QuoteMeta(f.Initial))
	for _, part := range f.Any {
		sb.WriteString(".*")
		sb.WriteString(regexp.QuoteMeta(part))
	}
	sb.WriteString(".*")
	sb.WriteString(regexp.QuoteMeta(f.Final))
	sb.WriteString("$")
	return sb.String()
}
