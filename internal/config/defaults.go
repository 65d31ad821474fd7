package config

import (
	"github.com/creasty/defaults"
)

// DefaultConfig returns an empty configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// Only malformed default tags fail.
		panic(err)
	}
	return cfg
}
