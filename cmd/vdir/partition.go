package main

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/KilimcininKorOglu/vdir/internal/config"
	"github.com/KilimcininKorOglu/vdir/internal/logging"
	"github.com/KilimcininKorOglu/vdir/internal/partition"
)

// loadConfig loads and validates a configuration file.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("-config is required")
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if errs := config.ValidateConfig(cfg); len(errs) > 0 {
		return nil, multierror.Append(fmt.Errorf("invalid configuration %s", path), errs...)
	}
	return cfg, nil
}

// openPartition builds the partition described by cfg.
func openPartition(ctx context.Context, cfg *config.Config) (*partition.Partition, logging.Logger, error) {
	logger := logging.New(cfg.Logging)
	p, err := partition.New(ctx, cfg.Partition(), partition.DefaultRegistry(), logger)
	if err != nil {
		return nil, nil, err
	}
	return p, logger, nil
}

// closePartition closes p and reports a failure on stderr.
func closePartition(p *partition.Partition) {
	if err := p.Close(context.Background()); err != nil {
		fmt.Fprintf(stderr, "Error closing partition: %v\n", err)
	}
}
