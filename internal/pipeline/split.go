package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/interpreter"
	"github.com/KilimcininKorOglu/vdir/internal/logging"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Target is a destination of Split: a source and the mappings computing the
// values of its fields.
type Target struct {
	Source source.Source
	Fields []source.FieldMapping
}

// Stats counts what Split did for one target.
type Stats struct {
	Added   int
	Skipped int
	Failed  int
}

// Split evaluates the field mappings of every target against each incoming
// result and stores one row per target right away. A mapping of a primary
// key field that yields no value skips the row for that target; other
// missing values are left out of the row. Failures to store a row are
// logged and counted but do not end the stream.
type Split struct {
	session *source.Session
	targets []Target
	logger  logging.Logger

	mu    sync.Mutex
	stats map[string]*Stats
	errs  *multierror.Error
}

// NewSplit creates a Split stage writing to targets within session.
func NewSplit(session *source.Session, targets []Target, logger logging.Logger) *Split {
	if logger == nil {
		logger = logging.NewNop()
	}
	stats := make(map[string]*Stats, len(targets))
	for _, t := range targets {
		stats[t.Source.Name()] = &Stats{}
	}
	return &Split{session: session, targets: targets, logger: logger, stats: stats}
}

// Add implements directory.SearchResponse.
func (s *Split) Add(ctx context.Context, result *directory.SearchResult) error {
	in := interpreter.New()
	in.SetAll(result.QualifiedValues())
	for name, values := range result.Attributes {
		if len(in.Get(name)) == 0 {
			in.Set(name, values...)
		}
	}

	for _, target := range s.targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.write(ctx, in, target, result.DN)
	}
	return nil
}

// Close implements directory.SearchResponse.
func (s *Split) Close(context.Context) error {
	return nil
}

func (s *Split) write(ctx context.Context, in *interpreter.Interpreter, target Target, origin string) {
	name := target.Source.Name()
	cfg := target.Source.Config()

	attrs, ok, err := Evaluate(in, cfg, target.Fields)
	if err != nil {
		s.fail(name, origin, err)
		return
	}
	if !ok {
		s.count(name, func(st *Stats) { st.Skipped++ })
		s.logger.Debug("row skipped, primary key incomplete", "target", name, "dn", origin)
		return
	}

	dn, err := source.RowDN(cfg, name, attrsRow(attrs))
	if err != nil {
		s.fail(name, origin, err)
		return
	}
	if err := target.Source.Add(ctx, s.session, dn, attrs); err != nil {
		s.fail(name, origin, err)
		return
	}
	s.count(name, func(st *Stats) { st.Added++ })
}

func (s *Split) fail(target, origin string, err error) {
	s.logger.Warn("failed to write row", "target", target, "dn", origin, "error", err)
	s.count(target, func(st *Stats) { st.Failed++ })
	s.mu.Lock()
	s.errs = multierror.Append(s.errs, fmt.Errorf("target %s: %s: %w", target, origin, err))
	s.mu.Unlock()
}

func (s *Split) count(target string, fn func(*Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[target]
	if !ok {
		st = &Stats{}
		s.stats[target] = st
	}
	fn(st)
}

// Stats returns a copy of the per-target counters keyed by target name.
func (s *Split) Stats() map[string]Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Stats, len(s.stats))
	for name, st := range s.stats {
		out[name] = *st
	}
	return out
}

// Err returns the combined write errors, or nil.
func (s *Split) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errs.ErrorOrNil()
}

// Evaluate computes the attributes of one target row. It returns false when
// a primary key field of cfg has no value.
func Evaluate(in *interpreter.Interpreter, cfg *source.Config, fields []source.FieldMapping) (directory.Attributes, bool, error) {
	attrs := make(directory.Attributes, len(fields))
	for _, m := range fields {
		values, err := in.Eval(m.Expression)
		if err != nil {
			return nil, false, fmt.Errorf("field %s: %w", m.Name, err)
		}
		if len(values) == 0 {
			if cfg.IsPrimaryKey(m.Name) {
				return nil, false, nil
			}
			continue
		}
		attrs.Add(m.Name, values...)
	}
	for _, key := range cfg.PrimaryKeys() {
		if !attrs.Has(key) {
			return nil, false, nil
		}
	}
	return attrs, true, nil
}

func attrsRow(attrs directory.Attributes) source.Row {
	row := make(source.Row, len(attrs))
	for name := range attrs {
		row[name] = attrs.First(name)
	}
	return row
}
