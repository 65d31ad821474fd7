package sqlsource

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/filter"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Statements are built with '?' placeholders and rebound to the driver's
// bind style before execution.

func quote(name string) string {
	return pq.QuoteIdentifier(name)
}

func columnType(f *source.FieldConfig) string {
	if f.IsBinary() {
		return "BYTEA"
	}
	t := strings.ToUpper(f.Type)
	if t == "" {
		t = "VARCHAR"
	}
	switch t {
	case "VARCHAR", "CHAR", "CHARACTER VARYING":
		length := f.Length
		if length <= 0 {
			length = 255
		}
		return fmt.Sprintf("%s(%d)", t, length)
	}
	return t
}

func isNumeric(f *source.FieldConfig) bool {
	switch strings.ToUpper(f.Type) {
	case "INTEGER", "INT", "BIGINT", "SMALLINT", "NUMERIC", "DECIMAL", "REAL", "DOUBLE", "DOUBLE PRECISION", "FLOAT":
		return true
	}
	return false
}

func createTableSQL(cfg *source.Config) string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE ")
	sb.WriteString(quote(cfg.Table()))
	sb.WriteString(" (")
	for i := range cfg.Fields {
		f := &cfg.Fields[i]
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quote(f.Column()))
		sb.WriteString(" ")
		sb.WriteString(columnType(f))
		if f.PrimaryKey {
			sb.WriteString(" NOT NULL")
		}
	}
	if keys := cfg.PrimaryKeys(); len(keys) > 0 {
		sb.WriteString(", PRIMARY KEY (")
		sb.WriteString(quoteColumns(cfg, keys))
		sb.WriteString(")")
	}
	sb.WriteString(")")
	return sb.String()
}

// createIndexSQL leaves index names to the server: a renamed table keeps
// the names of its indexes.
func createIndexSQL(cfg *source.Config) []string {
	table := cfg.Table()
	var stmts []string
	add := func(unique bool, fields []string) {
		kind := "INDEX"
		if unique {
			kind = "UNIQUE INDEX"
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %s ON %s (%s)",
			kind, quote(table), quoteColumns(cfg, fields)))
	}
	for _, f := range cfg.Fields {
		if !f.PrimaryKey && (f.Unique || f.Index) {
			add(f.Unique, []string{f.Name})
		}
	}
	for _, idx := range cfg.Indexes {
		add(idx.Unique, idx.Fields)
	}
	return stmts
}

func dropTableSQL(table string) string {
	return "DROP TABLE " + quote(table)
}

func renameTableSQL(from, to string) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(from), quote(to))
}

func clearSQL(table string) string {
	return "DELETE FROM " + quote(table)
}

// insertSQL builds an INSERT for the fields present in row, in field order.
func insertSQL(cfg *source.Config, row source.Row) (string, []any) {
	var cols, marks []string
	var args []any
	for i := range cfg.Fields {
		f := &cfg.Fields[i]
		v, ok := row[f.Name]
		if !ok || v == nil {
			continue
		}
		cols = append(cols, quote(f.Column()))
		marks = append(marks, "?")
		args = append(args, bindValue(f, v))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(cfg.Table()), strings.Join(cols, ", "), strings.Join(marks, ", ")), args
}

// deleteSQL builds a DELETE matching the primary key values of key.
func deleteSQL(cfg *source.Config, key source.Row) (string, []any) {
	names := make([]string, 0, len(key))
	for name := range key {
		names = append(names, name)
	}
	sort.Strings(names)

	conds := make([]string, len(names))
	args := make([]any, len(names))
	for i, name := range names {
		f := cfg.Field(name)
		conds[i] = quote(f.Column()) + " = ?"
		args[i] = bindValue(f, key[name])
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s", quote(cfg.Table()), strings.Join(conds, " AND ")), args
}

func bindValue(f *source.FieldConfig, v any) any {
	if f.IsBinary() {
		if b, ok := v.([]byte); ok {
			return b
		}
		return []byte(directory.ValueString(v))
	}
	switch v.(type) {
	case string, int, int32, int64, float32, float64, bool:
		return v
	}
	return directory.ValueString(v)
}

func quoteColumns(cfg *source.Config, names []string) string {
	cols := make([]string, len(names))
	for i, name := range names {
		if f := cfg.Field(name); f != nil {
			cols[i] = quote(f.Column())
		} else {
			cols[i] = quote(name)
		}
	}
	return strings.Join(cols, ", ")
}

// selectedRef is a source taking part in a SELECT with its configuration.
type selectedRef struct {
	alias string
	cfg   *source.Config
	join  map[string]string
}

// selection builds SELECT statements for a query.
type selection struct {
	query *source.Query
	refs  []selectedRef
}

func newSelection(q *source.Query) *selection {
	s := &selection{query: q, refs: make([]selectedRef, len(q.Refs))}
	for i, ref := range q.Refs {
		s.refs[i] = selectedRef{alias: ref.Alias, cfg: ref.Source.Config(), join: ref.Join}
	}
	return s
}

func (s *selection) ref(alias string) (selectedRef, bool) {
	for _, ref := range s.refs {
		if strings.EqualFold(ref.alias, alias) {
			return ref, true
		}
	}
	return selectedRef{}, false
}

// field resolves a filter attribute to its ref and field.
func (s *selection) field(attribute string) (selectedRef, *source.FieldConfig) {
	alias, name := s.query.Resolve(attribute)
	ref, ok := s.ref(alias)
	if !ok {
		return ref, nil
	}
	return ref, ref.cfg.Field(name)
}

func (s *selection) column(ref selectedRef, f *source.FieldConfig) string {
	return quote(ref.alias) + "." + quote(f.Column())
}

// pushable accepts leaves the database evaluates like the filter evaluator:
// equality, presence and substrings on text fields, and equality and
// ordering with numeric assertions on numeric fields.
func (s *selection) pushable(leaf filter.Filter) bool {
	_, f := s.field(filter.AttributeName(leaf))
	if f == nil || f.IsBinary() {
		return false
	}
	switch n := leaf.(type) {
	case *filter.PresentFilter:
		return true
	case *filter.SubstringFilter:
		return !isNumeric(f)
	case *filter.SimpleFilter:
		if isNumeric(f) {
			if _, err := strconv.ParseFloat(directory.ValueString(n.Value), 64); err != nil {
				return false
			}
			return n.Operator != filter.OpApprox
		}
		return n.Operator == filter.OpEqual
	}
	return false
}

// where renders a pushdown filter. Every leaf yields TRUE or FALSE, never
// NULL, so negation keeps rows without a value.
func (s *selection) where(f filter.Filter, args *[]any) string {
	switch n := f.(type) {
	case nil:
		return "1=1"
	case *filter.BooleanFilter:
		if n.Value {
			return "1=1"
		}
		return "1=0"
	case *filter.AndFilter:
		return s.join(n.Children(), " AND ", args)
	case *filter.OrFilter:
		return s.join(n.Children(), " OR ", args)
	case *filter.NotFilter:
		return "NOT (" + s.where(n.Child(), args) + ")"
	}

	ref, field := s.field(filter.AttributeName(f))
	if field == nil {
		return "1=1"
	}
	col := s.column(ref, field)
	switch n := f.(type) {
	case *filter.PresentFilter:
		return col + " IS NOT NULL"
	case *filter.SubstringFilter:
		*args = append(*args, likePattern(n))
		return fmt.Sprintf(`(%s IS NOT NULL AND LOWER(%s) LIKE LOWER(?) ESCAPE '\')`, col, col)
	case *filter.SimpleFilter:
		*args = append(*args, directory.ValueString(n.Value))
		if isNumeric(field) {
			return fmt.Sprintf("(%s IS NOT NULL AND %s %s ?)", col, col, sqlOperator(n.Operator))
		}
		return fmt.Sprintf("(%s IS NOT NULL AND LOWER(%s) = LOWER(?))", col, col)
	}
	return "1=1"
}

func (s *selection) join(children []filter.Filter, sep string, args *[]any) string {
	parts := make([]string, len(children))
	for i, child := range children {
		parts[i] = s.where(child, args)
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func sqlOperator(op filter.Operator) string {
	switch op {
	case filter.OpGreaterOrEqual:
		return ">="
	case filter.OpLessOrEqual:
		return "<="
	}
	return "="
}

// likePattern converts a substring assertion to a LIKE pattern with '\' as
// escape character.
func likePattern(f *filter.SubstringFilter) string {
	escape := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	var sb strings.Builder
	sb.WriteString(escape.Replace(f.Initial))
	for _, part := range f.Any {
		sb.WriteString("%")
		sb.WriteString(escape.Replace(part))
	}
	sb.WriteString("%")
	sb.WriteString(escape.Replace(f.Final))
	return sb.String()
}

// selectSQL builds the SELECT of the query. Columns are labelled
// "alias.field"; rows are ordered by the primary keys of every ref so the
// rows of one primary row are adjacent.
func (s *selection) selectSQL(pushdown filter.Filter, limit int) (string, []any) {
	var cols, order []string
	for _, ref := range s.refs {
		for i := range ref.cfg.Fields {
			f := &ref.cfg.Fields[i]
			cols = append(cols, s.column(ref, f)+" AS "+quote(ref.alias+"."+f.Name))
		}
		keys := ref.cfg.PrimaryKeys()
		if len(keys) == 0 {
			keys = ref.cfg.FieldNames()
		}
		for _, key := range keys {
			order = append(order, s.column(ref, ref.cfg.Field(key)))
		}
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(cols, ", "))
	primary := s.refs[0]
	sb.WriteString(" FROM ")
	sb.WriteString(quote(primary.cfg.Table()) + " " + quote(primary.alias))

	for _, ref := range s.refs[1:] {
		sb.WriteString(" LEFT JOIN ")
		sb.WriteString(quote(ref.cfg.Table()) + " " + quote(ref.alias))
		sb.WriteString(" ON ")
		sb.WriteString(s.joinCondition(ref))
	}

	var args []any
	if pushdown != nil {
		if b, ok := pushdown.(*filter.BooleanFilter); !ok || !b.Value {
			sb.WriteString(" WHERE ")
			sb.WriteString(s.where(pushdown, &args))
		}
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(strings.Join(order, ", "))
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}
	return sb.String(), args
}

func (s *selection) joinCondition(ref selectedRef) string {
	own := make([]string, 0, len(ref.join))
	for name := range ref.join {
		own = append(own, name)
	}
	sort.Strings(own)
	if len(own) == 0 {
		return "1=1"
	}

	conds := make([]string, 0, len(own))
	for _, name := range own {
		left := quote(ref.alias) + "." + quote(name)
		if f := ref.cfg.Field(name); f != nil {
			left = s.column(ref, f)
		}
		other, field := s.field(ref.join[name])
		right := quote(ref.join[name])
		if field != nil {
			right = s.column(other, field)
		}
		conds = append(conds, left+" = "+right)
	}
	return strings.Join(conds, " AND ")
}
