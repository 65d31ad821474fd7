package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/KilimcininKorOglu/vdir/internal/config"
	"github.com/KilimcininKorOglu/vdir/internal/federation"
)

func syncCmd(args []string) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configFile := fs.String("config", "", "Path to configuration file")
	jobName := fs.String("job", "", "Run only this job")
	loadOnly := fs.Bool("load-only", false, "Load shadows without switching")
	schedule := fs.Bool("schedule", false, "Synchronize jobs at their interval")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		printSyncUsage(stdout)
		return 0
	}

	if *schedule && (*jobName != "" || *loadOnly) {
		fmt.Fprintln(stderr, "Error: -schedule cannot be combined with -job or -load-only")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *schedule {
		return runScheduled(ctx, *configFile)
	}
	return runOnce(ctx, *configFile, *jobName, *loadOnly)
}

// runOnce runs the selected jobs one after the other.
func runOnce(ctx context.Context, path, jobName string, loadOnly bool) int {
	cfg, err := loadConfig(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	p, _, err := openPartition(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closePartition(p)

	jobs := p.Jobs()
	if jobName != "" {
		job, err := p.Job(jobName)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		jobs = []*federation.Job{job}
	}
	if len(jobs) == 0 {
		fmt.Fprintln(stderr, "Error: no jobs configured")
		return 1
	}

	exitCode := 0
	for _, job := range jobs {
		var outcome *federation.Outcome
		if loadOnly {
			outcome, err = job.Load(ctx)
		} else {
			outcome, err = job.Synchronize(ctx)
		}
		printOutcome(stdout, job.Name(), outcome, err)
		if !succeeded(outcome, err) {
			exitCode = 1
		}
	}
	return exitCode
}

// runScheduled keeps the jobs running at their interval until ctx ends.
// A changed configuration file restarts the partition with the new
// configuration.
func runScheduled(ctx context.Context, path string) int {
	cfg, err := loadConfig(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	reloads := make(chan *config.Config, 1)
	watcher, err := config.NewConfigWatcher(&config.WatcherConfig{
		FilePath: path,
		OnChange: func(_, newCfg *config.Config) {
			// Keep only the latest pending configuration.
			for {
				select {
				case reloads <- newCfg:
					return
				default:
				}
				select {
				case <-reloads:
				default:
				}
			}
		},
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	watcher.Start()
	defer watcher.Stop()

	var mu sync.Mutex
	for {
		p, logger, err := openPartition(ctx, cfg)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}

		scheduler := p.Scheduler()
		scheduler.OnOutcome(func(outcome *federation.Outcome, err error) {
			mu.Lock()
			defer mu.Unlock()
			name := ""
			if outcome != nil {
				name = outcome.Job
			}
			printOutcome(stdout, name, outcome, err)
		})

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			scheduler.Run(runCtx)
		}()
		logger.Info("scheduler started", "jobs", len(p.Jobs()))

		select {
		case <-ctx.Done():
			cancel()
			<-done
			closePartition(p)
			logger.Info("scheduler stopped")
			return 0
		case cfg = <-reloads:
			logger.Info("configuration changed, restarting jobs")
			cancel()
			<-done
			closePartition(p)
		}
	}
}
