package sqlsource

import (
	"context"
	"fmt"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/filter"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Source is a table of a SQL connection.
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
	if err := s.conn.exec(ctx, createTableSQL(s.cfg)); err != nil {
		return fmt.Errorf("create %s: %w", s.cfg.Table(), err)
	}
	for _, stmt := range createIndexSQL(s.cfg) {
		if err := s.conn.exec(ctx, stmt); err != nil {
			return fmt.Errorf("create index on %s: %w", s.cfg.Table(), err)
		}
	}
	return nil
}

// Drop implements source.Source.
func (s *Source) Drop(ctx context.Context) error {
	if err := s.conn.exec(ctx, dropTableSQL(s.cfg.Table())); err != nil {
		return fmt.Errorf("drop %s: %w", s.cfg.Table(), err)
	}
	return nil
}

// Clear implements source.Source.
func (s *Source) Clear(ctx context.Context, session *source.Session) error {
	if err := source.CheckSession(session); err != nil {
		return err
	}
	if err := s.conn.exec(ctx, clearSQL(s.cfg.Table())); err != nil {
		return fmt.Errorf("clear %s: %w", s.cfg.Table(), err)
	}
	return nil
}

// Rename implements source.Source.
func (s *Source) Rename(ctx context.Context, target source.Source) error {
	to := target.Config().Table()
	if err := s.conn.exec(ctx, renameTableSQL(s.cfg.Table(), to)); err != nil {
		return fmt.Errorf("rename %s to %s: %w", s.cfg.Table(), to, err)
	}
	return nil
}

// Add implements source.Source. The expanded rows are inserted in one
// transaction.
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

	tx, err := s.conn.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	for _, row := range rows {
		query, args := insertSQL(s.cfg, row)
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("add %s to %s: %w", dn, s.cfg.Name, translateError(err))
		}
	}
	return tx.Commit()
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
	query, args := deleteSQL(s.cfg, key)
	if err := s.conn.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete %s from %s: %w", dn, s.cfg.Name, err)
	}
	return nil
}

// Search implements source.Source. Joined refs must belong to the same
// connection. One result is produced per joined row; rows of the same
// primary row share a DN and are adjacent.
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
	for _, ref := range q.Refs[1:] {
		other, ok := ref.Source.(*Source)
		if !ok || other.conn != s.conn {
			return fmt.Errorf("%w: %s", source.ErrJoinUnsupported, ref.Source.Name())
		}
	}

	sel := newSelection(q)
	plan := filter.NewPlanner(sel.pushable).Plan(q.Filter)
	if plan.IsEmpty() {
		return nil
	}
	limit := 0
	if len(q.Refs) == 1 && !plan.HasPostFilter() {
		limit = q.SizeLimit
	}
	query, args := sel.selectSQL(plan.Pushdown, limit)
	query = s.conn.rebind(query)

	var placeholders []any
	s.conn.logger.Debug("search", "source", s.cfg.Name, "plan", plan.String(), "filter", formatFilter(q.Filter, &placeholders))

	rows, err := s.conn.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("search %s: %w", s.cfg.Name, translateError(err))
	}
	defer rows.Close()

	primary := sel.refs[0]
	count := 0
	for rows.Next() {
		record := make(map[string]any)
		if err := rows.MapScan(record); err != nil {
			return fmt.Errorf("search %s: %w", s.cfg.Name, err)
		}

		result, err := sel.result(primary, record)
		if err != nil {
			return err
		}
		if plan.HasPostFilter() && !filter.Evaluate(plan.PostFilter, evalAttributes(result)) {
			continue
		}
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
	return rows.Err()
}

// result splits a labelled record into per-alias attribute sets.
func (s *selection) result(primary selectedRef, record map[string]any) (*directory.SearchResult, error) {
	perAlias := make(map[string]source.Row, len(s.refs))
	for _, ref := range s.refs {
		row := make(source.Row)
		for i := range ref.cfg.Fields {
			f := &ref.cfg.Fields[i]
			v, ok := record[ref.alias+"."+f.Name]
			if !ok || v == nil {
				continue
			}
			if b, isBytes := v.([]byte); isBytes && !f.IsBinary() {
				v = string(b)
			}
			row[f.Name] = v
		}
		perAlias[ref.alias] = row
	}

	dn, err := source.RowDN(primary.cfg, primary.alias, perAlias[primary.alias])
	if err != nil {
		return nil, err
	}
	result := directory.NewSearchResult(dn)
	for _, ref := range s.refs {
		attrs := source.RowAttributes(ref.cfg, perAlias[ref.alias])
		if len(attrs) > 0 {
			result.Source(ref.alias).Merge(attrs)
		}
	}
	return result, nil
}

func evalAttributes(result *directory.SearchResult) directory.Attributes {
	attrs := make(directory.Attributes)
	for alias, values := range result.SourceValues {
		attrs.Merge(source.EvalAttributes(alias, values))
	}
	return attrs
}

// formatFilter renders f with its values replaced by placeholders, so
// assertion values stay out of the log.
func formatFilter(f filter.Filter, args *[]any) string {
	if f == nil {
		return ""
	}
	return f.Format(args)
}
