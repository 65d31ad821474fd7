// Package federation implements the synchronization job. A run loads the
// primary sources into fresh shadow copies of the targets, optionally
// records the differences between the live and the shadow directory trees
// in a change log, and finally swaps the shadows into place.
//
// Failures of a single source or target are logged and recorded in the
// run Outcome; they never abort the run for the others.
package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/filter"
	"github.com/KilimcininKorOglu/vdir/internal/logging"
	"github.com/KilimcininKorOglu/vdir/internal/mapping"
	"github.com/KilimcininKorOglu/vdir/internal/pipeline"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Job synchronizes the targets of one JobConfig.
type Job struct {
	cfg      JobConfig
	filters  map[string]filter.Filter
	manager  *source.Manager
	tree     *mapping.Tree
	sessions *source.SessionTracker
	locker   Locker
	logger   logging.Logger
	now      func() time.Time
}

// Option configures a Job.
type Option func(*Job)

// WithTree sets the entry tree used by the change log.
func WithTree(tree *mapping.Tree) Option {
	return func(j *Job) { j.tree = tree }
}

// WithSessions sets the tracker creating the administrative sessions.
func WithSessions(t *source.SessionTracker) Option {
	return func(j *Job) { j.sessions = t }
}

// WithLocker sets the locker shared with other jobs.
func WithLocker(l Locker) Option {
	return func(j *Job) { j.locker = l }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(j *Job) { j.logger = l }
}

// WithClock sets the time source of change records and timings.
func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// NewJob creates a job over the sources of manager.
func NewJob(cfg JobConfig, manager *source.Manager, opts ...Option) (*Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	j := &Job{
		cfg:     cfg,
		filters: make(map[string]filter.Filter),
		manager: manager,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.sessions == nil {
		j.sessions = source.NewSessionTracker()
	}
	if j.locker == nil {
		j.locker = NewLocks()
	}
	if j.logger == nil {
		j.logger = logging.NewNop()
	}
	j.logger = j.logger.WithFields("job", cfg.Name)

	for _, ref := range cfg.Sources {
		if ref.Filter == "" {
			continue
		}
		f, err := filter.Parse(ref.Filter)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidJob, cfg.Name, err)
		}
		j.filters[strings.ToLower(ref.AliasOrName())] = f
	}
	return j, nil
}

// Name returns the job name.
func (j *Job) Name() string { return j.cfg.Name }

// Config returns the job configuration.
func (j *Job) Config() JobConfig { return j.cfg }

// Interval returns the scheduling period.
func (j *Job) Interval() time.Duration { return j.cfg.Interval }

// Synchronize runs every stage: INIT, CREATE_SHADOWS, LOAD, DIFF when a
// change log is configured, and SWITCH. The returned error is set only when
// the run could not start or nothing could be prepared; per-source and
// per-target failures are reported by Outcome.Err.
func (j *Job) Synchronize(ctx context.Context) (*Outcome, error) {
	return j.execute(ctx, true)
}

// Load runs INIT, CREATE_SHADOWS and LOAD only. The populated shadows are
// left in place and the targets are not touched.
func (j *Job) Load(ctx context.Context) (*Outcome, error) {
	return j.execute(ctx, false)
}

func (j *Job) execute(ctx context.Context, full bool) (*Outcome, error) {
	unlock, err := j.locker.Lock(ctx, j.cfg.TargetNames())
	if err != nil {
		return nil, fmt.Errorf("job %s: lock targets: %w", j.cfg.Name, err)
	}
	defer unlock()

	r := j.newRun()
	ctx = logging.NewContext(ctx, r.logger)
	r.logger.Info("synchronization started", "full", full)

	if err := r.stage(ctx, StageInit, r.init); err != nil {
		r.finish()
		return r.outcome, err
	}
	_ = r.stage(ctx, StageCreateShadows, r.createShadows)
	_ = r.stage(ctx, StageLoad, r.load)
	if full {
		if r.changeLog != nil && r.entry != nil {
			_ = r.stage(ctx, StageDiff, r.diff)
		}
		_ = r.stage(ctx, StageSwitch, r.swap)
	}
	r.finish()
	return r.outcome, nil
}

// primary is a resolved primary source.
type primary struct {
	ref          SourceRef
	alias        string
	src          source.Source
	connection   string
	supportsJoin bool
	filter       filter.Filter
}

// target is a resolved target with its shadow and backup copies.
type target struct {
	cfg    TargetConfig
	live   source.Source
	shadow source.Source
	backup source.Source
	failed error
}

func (t *target) name() string { return t.cfg.Source }

// run is the working set of one synchronization run.
type run struct {
	job     *Job
	logger  logging.Logger
	outcome *Outcome

	sources   []*primary
	targets   []*target
	relations map[string][]*target
	changeLog source.Source

	entry    *mapping.Entry
	tmpEntry *mapping.Entry
}

func (j *Job) newRun() *run {
	id := uuid.NewString()
	return &run{
		job:    j,
		logger: j.logger.WithRequestID(id),
		outcome: &Outcome{
			RunID:   id,
			Job:     j.cfg.Name,
			Started: j.now(),
		},
	}
}

func (r *run) stage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	start := r.job.now()
	err := fn(ctx)
	elapsed := r.job.now().Sub(start)
	r.outcome.Stages = append(r.outcome.Stages, StageTiming{Stage: stage, Duration: elapsed})
	r.logger.Debug("stage finished", "stage", stage, "duration", elapsed)
	return err
}

func (r *run) fail(stage Stage, name string, err error) {
	r.logger.Warn("synchronization step failed", "stage", stage, "name", name, "error", err)
	r.outcome.record(stage, name, err)
}

func (r *run) finish() {
	r.outcome.Finished = r.job.now()
	if err := r.outcome.Err(); err != nil {
		r.logger.Warn("synchronization finished with errors", "outcome", r.outcome.String())
		return
	}
	r.logger.Info("synchronization finished", "outcome", r.outcome.String())
}

// init resolves the sources and targets, derives the shadow and backup
// copies of the targets and builds the shadow entry tree.
func (r *run) init(context.Context) error {
	m := r.job.manager

	for _, ref := range r.job.cfg.Sources {
		src, err := m.Get(ref.Source)
		if err != nil {
			r.fail(StageInit, ref.Source, err)
			r.outcome.Sources.Failed++
			continue
		}
		p := &primary{
			ref:    ref,
			alias:  ref.AliasOrName(),
			src:    src,
			filter: r.job.filters[strings.ToLower(ref.AliasOrName())],
		}
		if cfg, err := m.Config(ref.Source); err == nil {
			p.connection = cfg.Connection
			if conn, err := m.Connection(cfg.Connection); err == nil {
				p.supportsJoin = conn.SupportsJoin()
			}
		}
		r.sources = append(r.sources, p)
	}

	renames := make(map[string]string)
	var shadows []source.Source
	for _, tc := range r.job.cfg.Targets {
		t, err := r.prepareTarget(tc)
		if err != nil {
			r.fail(StageInit, tc.Source, err)
			r.outcome.Targets.Failed++
			continue
		}
		r.targets = append(r.targets, t)
		renames[t.live.Name()] = t.shadow.Name()
		shadows = append(shadows, t.shadow)
	}

	if len(r.targets) == 0 {
		return ErrNoTargets
	}
	if len(r.sources) == 0 {
		return ErrNoSources
	}
	r.relations = relations(r.sources, r.targets)

	if name := r.job.cfg.ChangeLog; name != "" {
		src, err := m.Get(name)
		if err != nil {
			r.fail(StageInit, name, err)
		} else {
			r.changeLog = src
		}
	}

	if base := r.job.cfg.BaseDN; base != "" && r.job.tree != nil {
		entry, err := r.job.tree.Find(base)
		if err != nil {
			r.fail(StageInit, base, err)
			return nil
		}
		r.entry = entry
		r.tmpEntry = entry.Clone()
		r.tmpEntry.RetargetSources(renames)
		r.tmpEntry.SetResolver(mapping.NewOverlay(m, shadows...))
	}
	return nil
}

func (r *run) prepareTarget(tc TargetConfig) (*target, error) {
	m := r.job.manager
	live, err := m.Get(tc.Source)
	if err != nil {
		return nil, err
	}
	cfg, err := m.Config(tc.Source)
	if err != nil {
		return nil, err
	}
	shadow, err := m.NewSource(cfg.Derive(ShadowSuffix))
	if err != nil {
		return nil, err
	}
	backup, err := m.NewSource(cfg.Derive(BackupSuffix))
	if err != nil {
		return nil, err
	}
	return &target{cfg: tc, live: live, shadow: shadow, backup: backup}, nil
}

// relations maps each source alias to the targets whose field mappings
// read it. A target reading no qualified value depends on every source.
func relations(sources []*primary, targets []*target) map[string][]*target {
	out := make(map[string][]*target)
	for _, t := range targets {
		aliases := make(map[string]bool)
		for _, f := range t.cfg.Fields {
			for _, v := range f.Variables() {
				if idx := strings.IndexByte(v, '.'); idx > 0 {
					aliases[strings.ToLower(v[:idx])] = true
				}
			}
		}
		for _, p := range sources {
			alias := strings.ToLower(p.alias)
			if len(aliases) == 0 || aliases[alias] {
				out[alias] = append(out[alias], t)
			}
		}
	}
	return out
}

// createShadows creates every shadow. A leftover shadow of an earlier run
// is dropped and the creation retried once.
func (r *run) createShadows(ctx context.Context) error {
	for _, t := range r.targets {
		err := t.shadow.Create(ctx)
		if err != nil {
			r.logger.Debug("shadow creation failed, retrying after drop", "target", t.name(), "error", err)
			if dropErr := t.shadow.Drop(ctx); dropErr != nil {
				r.logger.Debug("shadow drop failed", "target", t.name(), "error", dropErr)
			}
			err = t.shadow.Create(ctx)
		}
		if err != nil {
			t.failed = err
			r.fail(StageCreateShadows, t.name(), err)
		}
	}
	return nil
}

// load searches every batch of primary sources and writes the computed
// rows into the shadows.
func (r *run) load(ctx context.Context) error {
	session := r.job.sessions.NewSession(true)
	defer session.Close()

	for _, batch := range batches(r.sources) {
		if err := ctx.Err(); err != nil {
			r.fail(StageLoad, "", err)
			r.outcome.Sources.Failed += len(batch)
			continue
		}
		r.loadBatch(ctx, session, batch)
	}
	return nil
}

// batches groups consecutive sources that can be searched with one join:
// a source with join conditions joins the preceding batch when both share
// a connection supporting joins.
func batches(sources []*primary) [][]*primary {
	var out [][]*primary
	for _, p := range sources {
		if n := len(out); n > 0 {
			head := out[n-1][0]
			if len(p.ref.Join) > 0 && p.supportsJoin && head.connection == p.connection {
				out[n-1] = append(out[n-1], p)
				continue
			}
		}
		out = append(out, []*primary{p})
	}
	return out
}

func (r *run) loadBatch(ctx context.Context, session *source.Session, batch []*primary) {
	names := make([]string, len(batch))
	for i, p := range batch {
		names[i] = p.alias
	}
	name := strings.Join(names, "+")

	var targets []pipeline.Target
	var affected []*target
	seen := make(map[*target]bool)
	for _, p := range batch {
		for _, t := range r.relations[strings.ToLower(p.alias)] {
			if seen[t] || t.failed != nil {
				continue
			}
			seen[t] = true
			affected = append(affected, t)
			targets = append(targets, pipeline.Target{Source: t.shadow, Fields: t.cfg.Fields})
		}
	}
	if len(targets) == 0 {
		r.logger.Debug("no target to load", "sources", name)
		r.outcome.Sources.Succeeded += len(batch)
		return
	}

	q := &source.Query{}
	for _, p := range batch {
		q.Refs = append(q.Refs, source.Ref{Alias: p.alias, Source: p.src, Join: p.ref.Join})
		if p.filter != nil {
			own := p.filter.Clone()
			alias := p.alias
			filter.Rename(own, func(attribute string) string { return alias + "." + attribute })
			q.Filter = filter.AppendAnd(q.Filter, own)
		}
	}

	split := pipeline.NewSplit(session, targets, r.logger)
	merge := pipeline.NewMerge(split)

	searchCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout := r.job.cfg.SearchTimeout; timeout > 0 {
		searchCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	err := batch[0].src.Search(searchCtx, session, q, merge)
	if err == nil {
		err = merge.Close(searchCtx)
	}
	cancel()

	for _, st := range split.Stats() {
		r.outcome.RowsLoaded += st.Added
		r.outcome.RowsSkipped += st.Skipped
		r.outcome.RowsFailed += st.Failed
	}
	if werr := split.Err(); werr != nil {
		r.fail(StageLoad, name, werr)
	}

	if err != nil {
		r.fail(StageLoad, name, err)
		r.outcome.Sources.Failed += len(batch)
		for _, t := range affected {
			t.failed = fmt.Errorf("source %s not loaded: %w", name, err)
		}
		return
	}
	r.outcome.Sources.Succeeded += len(batch)
	r.logger.Debug("sources loaded", "sources", name, "merged", merge.Merged())
}

// diff compares the live and shadow entry trees and appends the change
// records to the change log.
func (r *run) diff(ctx context.Context) error {
	session := r.job.sessions.NewSession(true)
	defer session.Close()

	failedShadows := make(map[string]bool)
	for _, t := range r.targets {
		if t.failed != nil {
			failedShadows[t.shadow.Name()] = true
		}
	}

	live, shadow := topLevel(r.entry), topLevel(r.tmpEntry)
	for i := range live {
		if uses(shadow[i], failedShadows) {
			r.logger.Info("entry skipped, target not loaded", "entry", live[i].DN())
			continue
		}
		if err := r.diffEntry(ctx, session, live[i], shadow[i]); err != nil {
			r.fail(StageDiff, live[i].DN(), err)
		}
	}
	return nil
}

// topLevel returns the entries diffed one by one: the children of a static
// entry with children, or the entry itself.
func topLevel(e *mapping.Entry) []*mapping.Entry {
	if children := e.Children(); !e.IsDynamic() && len(children) > 0 {
		return children
	}
	return []*mapping.Entry{e}
}

func uses(e *mapping.Entry, names map[string]bool) bool {
	for _, name := range e.SourceNames() {
		if names[name] {
			return true
		}
	}
	return false
}

func (r *run) diffEntry(ctx context.Context, session *source.Session, live, shadow *mapping.Entry) error {
	before, err := sortedEntries(ctx, session, live)
	if err != nil {
		return fmt.Errorf("search live entries: %w", err)
	}
	after, err := sortedEntries(ctx, session, shadow)
	if err != nil {
		return fmt.Errorf("search shadow entries: %w", err)
	}

	var errs *multierror.Error
	for _, rec := range Diff(before, after) {
		number := uuid.NewString()
		err := r.changeLog.Add(ctx, session, FieldChangeNumber+"="+number, rec.Entry(number, r.job.now()))
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s %s: %w", rec.Type, rec.TargetDN, err))
			continue
		}
		r.outcome.Changes++
	}
	return errs.ErrorOrNil()
}

// sortedEntries returns every entry of the subtree of e in DN order.
func sortedEntries(ctx context.Context, session *source.Session, e *mapping.Entry) ([]*directory.SearchResult, error) {
	sink := pipeline.NewCollect(0)
	sorter := pipeline.NewSort(sink)
	req := directory.NewSearchRequest(e.BaseDN())
	if err := e.Search(ctx, session, req, sorter); err != nil {
		return nil, err
	}
	if err := sorter.Close(ctx); err != nil {
		return nil, err
	}
	return sink.Results(), nil
}

// swap moves every loaded shadow into place. Shadows of failed targets are
// dropped.
func (r *run) swap(ctx context.Context) error {
	for _, t := range r.targets {
		if t.failed != nil {
			if err := t.shadow.Drop(ctx); err != nil {
				r.logger.Debug("shadow drop failed", "target", t.name(), "error", err)
			}
			r.outcome.Targets.Failed++
			continue
		}
		if err := r.swapTarget(ctx, t); err != nil {
			r.fail(StageSwitch, t.name(), err)
			r.outcome.Targets.Failed++
			continue
		}
		r.outcome.Targets.Succeeded++
	}
	return nil
}

// swapTarget renames the target aside, renames the shadow to the target and
// drops the old data. When the shadow cannot be renamed the old data is
// moved back.
func (r *run) swapTarget(ctx context.Context, t *target) error {
	if err := t.backup.Drop(ctx); err == nil {
		r.logger.Info("stale backup dropped", "target", t.name(), "backup", t.backup.Name())
	}

	moved := true
	if err := t.live.Rename(ctx, t.backup); err != nil {
		if !errors.Is(err, source.ErrTableNotFound) {
			return fmt.Errorf("move target aside: %w", err)
		}
		moved = false
	}

	if err := t.shadow.Rename(ctx, t.live); err != nil {
		err = fmt.Errorf("rename shadow: %w", err)
		if moved {
			if restoreErr := t.backup.Rename(ctx, t.live); restoreErr != nil {
				return multierror.Append(err, fmt.Errorf("restore target: %w", restoreErr))
			}
		}
		return err
	}

	if moved {
		if err := t.backup.Drop(ctx); err != nil {
			r.fail(StageSwitch, t.backup.Name(), err)
		}
	}
	return nil
}
