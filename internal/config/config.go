package config

import (
	"github.com/KilimcininKorOglu/vdir/internal/logging"
	"github.com/KilimcininKorOglu/vdir/internal/partition"
)

// Config holds the complete configuration: logging settings and the
// partition.
type Config struct {
	Logging          logging.Config `yaml:"logging"`
	partition.Config `yaml:",inline"`
}

// Partition returns the partition part of the configuration.
func (c *Config) Partition() *partition.Config {
	return &c.Config
}
