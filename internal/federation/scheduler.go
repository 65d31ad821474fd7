package federation

import (
	"context"
	"sync"
	"time"

	"github.com/KilimcininKorOglu/vdir/internal/logging"
)

// Runner is the part of a Job the Scheduler drives.
type Runner interface {
	Name() string
	Interval() time.Duration
	Synchronize(ctx context.Context) (*Outcome, error)
}

// Scheduler runs jobs periodically. Each job with a positive interval gets
// its own ticker; a run that is still going when the next tick fires delays
// that tick instead of overlapping.
type Scheduler struct {
	jobs      []Runner
	logger    logging.Logger
	mu        sync.Mutex
	onOutcome []func(*Outcome, error)
}

// NewScheduler creates a scheduler for jobs.
func NewScheduler(logger logging.Logger, jobs ...Runner) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{jobs: jobs, logger: logger}
}

// OnOutcome registers fn to be called after every scheduled run.
func (s *Scheduler) OnOutcome(fn func(*Outcome, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onOutcome = append(s.onOutcome, fn)
}

// Run blocks until ctx ends. Jobs without an interval are not scheduled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		if job.Interval() <= 0 {
			s.logger.Debug("job not scheduled", "job", job.Name())
			continue
		}
		wg.Add(1)
		go func(job Runner) {
			defer wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Runner) {
	ticker := time.NewTicker(job.Interval())
	defer ticker.Stop()

	s.logger.Info("job scheduled", "job", job.Name(), "interval", job.Interval())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			outcome, err := job.Synchronize(ctx)
			if err != nil {
				s.logger.Error("scheduled synchronization failed", "job", job.Name(), "error", err)
			}
			s.notify(outcome, err)
		}
	}
}

func (s *Scheduler) notify(outcome *Outcome, err error) {
	s.mu.Lock()
	fns := make([]func(*Outcome, error), len(s.onOutcome))
	copy(fns, s.onOutcome)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(outcome, err)
	}
}
