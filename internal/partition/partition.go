// Package partition assembles a virtual directory from configuration: the
// connections and sources, the entry tree presenting them and the
// synchronization jobs.
package partition

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hashicorp/go-multierror"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/federation"
	"github.com/KilimcininKorOglu/vdir/internal/logging"
	"github.com/KilimcininKorOglu/vdir/internal/mapping"
	"github.com/KilimcininKorOglu/vdir/internal/source"
	"github.com/KilimcininKorOglu/vdir/internal/source/embedded"
	"github.com/KilimcininKorOglu/vdir/internal/source/ldapsource"
	"github.com/KilimcininKorOglu/vdir/internal/source/sqlsource"
)

// ErrJobNotFound is returned for an unknown job name.
var ErrJobNotFound = errors.New("partition: job not found")

// Config describes a partition.
type Config struct {
	Name        string                    `yaml:"name" default:"default"`
	Connections []source.ConnectionConfig `yaml:"connections,omitempty"`
	Sources     []source.Config           `yaml:"sources,omitempty"`
	Entries     []mapping.EntryConfig     `yaml:"entries,omitempty"`
	Jobs        []federation.JobConfig    `yaml:"jobs,omitempty"`
	Locks       LockConfig                `yaml:"locks"`
}

// LockConfig selects the job locks. Without a Redis address jobs are only
// serialized within the process.
type LockConfig struct {
	Redis    string        `yaml:"redis,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Database int           `yaml:"database,omitempty"`
	Prefix   string        `yaml:"prefix" default:"vdir:lock:"`
	TTL      time.Duration `yaml:"ttl" default:"1h"`
}

// DefaultRegistry returns a registry with the embedded, jdbc and ldap
// adapters.
func DefaultRegistry() *source.Registry {
	r := source.NewRegistry()
	r.Register(embedded.Adapter, embedded.Open)
	r.Register(sqlsource.Adapter, sqlsource.Open)
	r.Register(ldapsource.Adapter, ldapsource.Open)
	return r
}

// Partition is a running virtual directory.
type Partition struct {
	name     string
	manager  *source.Manager
	tree     *mapping.Tree
	sessions *source.SessionTracker
	jobs     map[string]*federation.Job
	order    []string
	redis    *redis.Client
	logger   logging.Logger
}

// New opens the connections of cfg and builds the partition. Connections
// opened before a failure are closed again.
func New(ctx context.Context, cfg *Config, registry *source.Registry, logger logging.Logger) (*Partition, error) {
	if registry == nil {
		registry = DefaultRegistry()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithFields("partition", cfg.Name)

	p := &Partition{
		name:     cfg.Name,
		manager:  source.NewManager(logger),
		sessions: source.NewSessionTracker(),
		jobs:     make(map[string]*federation.Job),
		logger:   logger,
	}
	if err := p.build(ctx, cfg, registry); err != nil {
		_ = p.Close(ctx)
		return nil, err
	}
	logger.Info("partition ready",
		"connections", len(cfg.Connections), "sources", len(cfg.Sources),
		"entries", len(cfg.Entries), "jobs", len(cfg.Jobs))
	return p, nil
}

func (p *Partition) build(ctx context.Context, cfg *Config, registry *source.Registry) error {
	for i := range cfg.Connections {
		conn, err := registry.Open(ctx, &cfg.Connections[i], p.logger)
		if err != nil {
			return err
		}
		if err := p.manager.AddConnection(conn); err != nil {
			_ = conn.Close()
			return err
		}
	}

	for i := range cfg.Sources {
		if _, err := p.manager.Add(&cfg.Sources[i]); err != nil {
			return err
		}
	}

	tree, err := mapping.NewTree(cfg.Entries, p.manager)
	if err != nil {
		return err
	}
	p.tree = tree

	locker := p.locker(cfg.Locks)
	for _, jc := range cfg.Jobs {
		job, err := federation.NewJob(jc, p.manager,
			federation.WithTree(tree),
			federation.WithSessions(p.sessions),
			federation.WithLocker(locker),
			federation.WithLogger(p.logger))
		if err != nil {
			return err
		}
		p.jobs[jc.Name] = job
		p.order = append(p.order, jc.Name)
	}
	return nil
}

func (p *Partition) locker(cfg LockConfig) federation.Locker {
	if cfg.Redis == "" {
		return federation.NewLocks()
	}
	p.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis,
		Password: cfg.Password,
		DB:       cfg.Database,
	})
	p.logger.Info("using redis job locks", "address", cfg.Redis)
	return federation.NewRedisLocks(p.redis, cfg.Prefix, cfg.TTL, p.logger)
}

// Name returns the partition name.
func (p *Partition) Name() string { return p.name }

// Manager returns the source manager.
func (p *Partition) Manager() *source.Manager { return p.manager }

// Tree returns the entry tree.
func (p *Partition) Tree() *mapping.Tree { return p.tree }

// NewAdminSession opens an administrative session. Callers close it.
func (p *Partition) NewAdminSession() *source.Session {
	return p.sessions.NewSession(true)
}

// NewSession opens a regular session. Callers close it.
func (p *Partition) NewSession() *source.Session {
	return p.sessions.NewSession(false)
}

// OpenSessions returns the IDs of sessions not closed yet.
func (p *Partition) OpenSessions() []string {
	return p.sessions.Open()
}

// Search searches the entry tree and closes resp once done.
func (p *Partition) Search(ctx context.Context, session *source.Session, req *directory.SearchRequest, resp directory.SearchResponse) error {
	err := p.tree.Search(ctx, session, req, resp)
	if closeErr := resp.Close(ctx); err == nil {
		err = closeErr
	}
	return err
}

// Job returns a job by name.
func (p *Partition) Job(name string) (*federation.Job, error) {
	job, ok := p.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	return job, nil
}

// Jobs returns the jobs in configuration order.
func (p *Partition) Jobs() []*federation.Job {
	jobs := make([]*federation.Job, len(p.order))
	for i, name := range p.order {
		jobs[i] = p.jobs[name]
	}
	return jobs
}

// JobNames returns the sorted job names.
func (p *Partition) JobNames() []string {
	names := append([]string(nil), p.order...)
	sort.Strings(names)
	return names
}

// Scheduler returns a scheduler over every job of the partition.
func (p *Partition) Scheduler() *federation.Scheduler {
	runners := make([]federation.Runner, 0, len(p.order))
	for _, job := range p.Jobs() {
		runners = append(runners, job)
	}
	return federation.NewScheduler(p.logger, runners...)
}

// CreateSources creates the storage of the named sources, or of every
// source when names is empty. Existing storage and adapters without
// storage management are skipped.
func (p *Partition) CreateSources(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		names = p.manager.Names()
	}
	var errs *multierror.Error
	for _, name := range names {
		src, err := p.manager.Get(name)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		err = src.Create(ctx)
		switch {
		case err == nil:
			p.logger.Info("source created", "source", name)
		case errors.Is(err, source.ErrTableExists), errors.Is(err, source.ErrNotSupported):
			p.logger.Debug("source not created", "source", name, "reason", err)
		default:
			errs = multierror.Append(errs, fmt.Errorf("create %s: %w", name, err))
		}
	}
	return errs.ErrorOrNil()
}

// Close closes every connection.
func (p *Partition) Close(ctx context.Context) error {
	var errs *multierror.Error
	if err := p.manager.Close(ctx); err != nil {
		errs = multierror.Append(errs, err)
	}
	if p.redis != nil {
		if err := p.redis.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("close redis: %w", err))
		}
		p.redis = nil
	}
	if open := p.sessions.Open(); len(open) > 0 {
		p.logger.Warn("sessions still open at close", "sessions", open)
	}
	return errs.ErrorOrNil()
}
