package embedded

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/vinicius-lino-figueiredo/gedb"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/filter"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Source is a table of an embedded connection. Values are stored as text;
// binary fields are stored base64 encoded.
type Source struct {
	conn *Connection
	cfg  *source.Config
}

var _ source.Source = (*Source)(nil)

// Name implements source.Source.
func (s *Source) Name() string { return s.cfg.Name }

// Config implements source.Source.
func (s *Source) Config() *source.Config { return s.cfg.Clone() }

// Parameter implements source.Source.
func (s *Source) Parameter(name string) string { return s.cfg.Parameter(name) }

// Create implements source.Source.
func (s *Source) Create(ctx context.Context) error {
	return s.conn.create(ctx, s.cfg)
}

// Drop implements source.Source.
func (s *Source) Drop(ctx context.Context) error {
	return s.conn.drop(ctx, s.cfg.Table())
}

// Clear implements source.Source.
func (s *Source) Clear(ctx context.Context, session *source.Session) error {
	if err := source.CheckSession(session); err != nil {
		return err
	}
	db, err := s.conn.open(ctx, s.cfg.Table())
	if err != nil {
		return err
	}
	if _, err := db.Remove(ctx, map[string]any{}, gedb.WithRemoveMulti(true)); err != nil {
		return fmt.Errorf("clear %s: %w", s.cfg.Table(), err)
	}
	return nil
}

// Rename implements source.Source.
func (s *Source) Rename(ctx context.Context, target source.Source) error {
	return s.conn.rename(ctx, s.cfg.Table(), target.Config())
}

// Add implements source.Source. Primary key values missing from attrs are
// taken from the RDN of dn.
func (s *Source) Add(ctx context.Context, session *source.Session, dn string, attrs directory.Attributes) error {
	if err := source.CheckSession(session); err != nil {
		return err
	}

	values := make(directory.Attributes, len(attrs))
	for name, vals := range attrs {
		if f := s.cfg.Field(name); f != nil {
			values.Add(f.Name, vals...)
		}
	}
	if key, err := source.KeyFromDN(s.cfg, dn); err == nil {
		for name, v := range key {
			if !values.Has(name) {
				values.Add(name, v)
			}
		}
	}

	rows := source.ExpandRows(values)
	if len(rows) == 0 {
		return nil
	}
	docs := make([]any, len(rows))
	for i, row := range rows {
		docs[i] = s.encode(row)
	}

	db, err := s.conn.open(ctx, s.cfg.Table())
	if err != nil {
		return err
	}
	cur, err := db.Insert(ctx, docs...)
	if err != nil {
		return fmt.Errorf("add %s to %s: %w", dn, s.cfg.Name, err)
	}
	return cur.Close()
}

// Delete implements source.Source.
func (s *Source) Delete(ctx context.Context, session *source.Session, dn string) error {
	if err := source.CheckSession(session); err != nil {
		return err
	}
	key, err := source.KeyFromDN(s.cfg, dn)
	if err != nil {
		return err
	}

	clauses := make([]any, 0, len(key))
	for name, v := range key {
		clauses = append(clauses, equalityQuery(s.cfg.Field(name).Column(), directory.ValueString(v)))
	}

	db, err := s.conn.open(ctx, s.cfg.Table())
	if err != nil {
		return err
	}
	if _, err := db.Remove(ctx, map[string]any{"$and": clauses}, gedb.WithRemoveMulti(true)); err != nil {
		return fmt.Errorf("delete %s from %s: %w", dn, s.cfg.Name, err)
	}
	return nil
}

// Search implements source.Source. The pushed down part of the filter is
// translated into a gedb query; the rest is evaluated on the returned rows.
// Results are sorted by primary key.
func (s *Source) Search(ctx context.Context, session *source.Session, q *source.Query, resp directory.SearchResponse) error {
	if err := source.CheckSession(session); err != nil {
		return err
	}
	if q == nil {
		q = source.NewQuery(s, nil)
	}
	if err := q.Validate(); err != nil {
		return err
	}
	if len(q.Refs) > 1 {
		return source.ErrJoinUnsupported
	}
	alias := q.Primary().Alias

	plan := filter.NewPlanner(s.pushable(q)).Plan(q.Filter)
	if plan.IsEmpty() {
		return nil
	}
	query := s.translate(q, plan.Pushdown)

	db, err := s.conn.open(ctx, s.cfg.Table())
	if err != nil {
		return err
	}
	opts := []gedb.FindOption{gedb.WithSort(s.sortOrder())}
	if q.SizeLimit > 0 && !plan.HasPostFilter() {
		opts = append(opts, gedb.WithLimit(int64(q.SizeLimit)))
	}
	cur, err := db.Find(ctx, query, opts...)
	if err != nil {
		return fmt.Errorf("search %s: %w", s.cfg.Name, err)
	}
	defer func() { _ = cur.Close() }()

	count := 0
	for cur.Next() {
		doc := make(map[string]any)
		if err := cur.Scan(ctx, &doc); err != nil {
			return fmt.Errorf("search %s: %w", s.cfg.Name, err)
		}
		attrs := source.RowAttributes(s.cfg, s.decode(doc))
		if plan.HasPostFilter() && !filter.Evaluate(plan.PostFilter, source.EvalAttributes(alias, attrs)) {
			continue
		}
		dn, err := source.RowDN(s.cfg, alias, attrsRow(attrs))
		if err != nil {
			return err
		}

		result := directory.NewSearchResult(dn)
		result.Source(alias).Merge(attrs)
		if err := resp.Add(ctx, result); err != nil {
			if directory.IsStop(err) {
				return nil
			}
			return err
		}
		count++
		if q.SizeLimit > 0 && count >= q.SizeLimit {
			return nil
		}
	}
	return cur.Err()
}

func (s *Source) sortOrder() gedb.Sort {
	keys := s.cfg.PrimaryKeys()
	if len(keys) == 0 {
		keys = s.cfg.FieldNames()
	}
	order := make(gedb.Sort, 0, len(keys))
	for _, col := range columns(s.cfg, keys) {
		order = append(order, gedb.SortName{Key: col, Order: 1})
	}
	return order
}

func (s *Source) encode(row source.Row) map[string]any {
	doc := make(map[string]any, len(row))
	for name, v := range row {
		f := s.cfg.Field(name)
		if f == nil || v == nil {
			continue
		}
		if f.IsBinary() {
			b, ok := v.([]byte)
			if !ok {
				b = []byte(directory.ValueString(v))
			}
			doc[f.Column()] = base64.StdEncoding.EncodeToString(b)
			continue
		}
		doc[f.Column()] = directory.ValueString(v)
	}
	return doc
}

func (s *Source) decode(doc map[string]any) source.Row {
	row := make(source.Row, len(doc))
	for _, f := range s.cfg.Fields {
		v, ok := doc[f.Column()]
		if !ok || v == nil {
			continue
		}
		if text, isText := v.(string); isText && f.IsBinary() {
			if b, err := base64.StdEncoding.DecodeString(text); err == nil {
				v = b
			}
		}
		row[f.Column()] = v
	}
	return row
}

// attrsRow picks the first value of every attribute.
func attrsRow(attrs directory.Attributes) source.Row {
	row := make(source.Row, len(attrs))
	for name := range attrs {
		row[name] = attrs.First(name)
	}
	return row
}
