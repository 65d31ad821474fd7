package federation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KilimcininKorOglu/vdir/internal/filter"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// Job configuration errors
var (
	ErrInvalidJob = errors.New("federation: invalid job")
	ErrNoTargets  = errors.New("federation: no target could be prepared")
	ErrNoSources  = errors.New("federation: no source could be resolved")
)

// Suffixes of the derived copies of a target.
const (
	ShadowSuffix = "_tmp"
	BackupSuffix = "_old"
)

// SourceRef names a primary source of a job. A source with Join conditions
// is joined to the preceding sources when they share a connection that
// supports joins; otherwise it is loaded on its own.
type SourceRef struct {
	Alias  string            `yaml:"alias,omitempty" mapstructure:"alias"`
	Source string            `yaml:"source" mapstructure:"source"`
	Join   map[string]string `yaml:"join,omitempty" mapstructure:"join"`
	// Filter restricts the rows loaded from the source. Attribute names are
	// field names of the source.
	Filter string `yaml:"filter,omitempty" mapstructure:"filter"`
}

// AliasOrName returns the alias, defaulting to the source name.
func (r SourceRef) AliasOrName() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Source
}

// TargetConfig describes a destination of a job and how its fields are
// computed from the values of the primary sources ("u.name").
type TargetConfig struct {
	Source string                `yaml:"source" mapstructure:"source"`
	Fields []source.FieldMapping `yaml:"fields" mapstructure:"fields"`
}

// JobConfig describes a synchronization job.
type JobConfig struct {
	Name    string         `yaml:"name" mapstructure:"name"`
	Sources []SourceRef    `yaml:"sources" mapstructure:"sources"`
	Targets []TargetConfig `yaml:"targets" mapstructure:"targets"`

	// BaseDN is the entry subtree presenting the targets. It is required
	// for the change log.
	BaseDN string `yaml:"baseDn,omitempty" mapstructure:"baseDn"`

	// ChangeLog names the source receiving change records.
	ChangeLog string `yaml:"changeLog,omitempty" mapstructure:"changeLog"`

	// SearchTimeout bounds every source search of the load stage.
	SearchTimeout time.Duration `yaml:"searchTimeout,omitempty" mapstructure:"searchTimeout" default:"5m"`

	// Interval is the period of scheduled runs. Zero disables scheduling.
	Interval time.Duration `yaml:"interval,omitempty" mapstructure:"interval"`
}

// Validate checks the job configuration.
func (c *JobConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidJob)
	}
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: %s has no sources", ErrInvalidJob, c.Name)
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("%w: %s has no targets", ErrInvalidJob, c.Name)
	}
	if c.ChangeLog != "" && c.BaseDN == "" {
		return fmt.Errorf("%w: %s: changeLog requires baseDn", ErrInvalidJob, c.Name)
	}

	aliases := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Source == "" {
			return fmt.Errorf("%w: %s: source without name", ErrInvalidJob, c.Name)
		}
		alias := strings.ToLower(s.AliasOrName())
		if aliases[alias] {
			return fmt.Errorf("%w: %s: duplicate alias %s", ErrInvalidJob, c.Name, alias)
		}
		aliases[alias] = true
		if s.Filter != "" {
			if _, err := filter.Parse(s.Filter); err != nil {
				return fmt.Errorf("%w: %s: source %s: %w", ErrInvalidJob, c.Name, alias, err)
			}
		}
	}

	targets := make(map[string]bool, len(c.Targets))
	for _, t := range c.Targets {
		if t.Source == "" {
			return fmt.Errorf("%w: %s: target without name", ErrInvalidJob, c.Name)
		}
		if targets[t.Source] {
			return fmt.Errorf("%w: %s: duplicate target %s", ErrInvalidJob, c.Name, t.Source)
		}
		targets[t.Source] = true
		if len(t.Fields) == 0 {
			return fmt.Errorf("%w: %s: target %s has no fields", ErrInvalidJob, c.Name, t.Source)
		}
	}
	return nil
}

// TargetNames returns the names of the targets in configuration order.
func (c JobConfig) TargetNames() []string {
	names := make([]string, len(c.Targets))
	for i, t := range c.Targets {
		names[i] = t.Source
	}
	return names
}
