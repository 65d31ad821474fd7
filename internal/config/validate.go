package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/logging"
	"github.com/KilimcininKorOglu/vdir/internal/mapping"
	"github.com/KilimcininKorOglu/vdir/internal/partition"
	"github.com/KilimcininKorOglu/vdir/internal/source"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig validates the configuration and returns a list of validation errors.
// An empty slice indicates the configuration is valid.
func ValidateConfig(config *Config) []error {
	var errs []error
	errs = append(errs, validateLogConfig(&config.Logging)...)

	p := config.Partition()
	connections := make(map[string]bool, len(p.Connections))
	errs = append(errs, validateConnections(p.Connections, connections)...)

	sources := make(map[string]*source.Config, len(p.Sources))
	errs = append(errs, validateSources(p.Sources, connections, sources)...)

	errs = append(errs, validateEntries(p.Entries, sources)...)
	errs = append(errs, validateJobs(p, sources)...)
	return errs
}

func validateLogConfig(config *logging.Config) []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if config.Level != "" && !validLevels[strings.ToLower(config.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be debug, info, warn, or error",
		})
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if config.Format != "" && !validFormats[strings.ToLower(config.Format)] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be text or json",
		})
	}

	if config.Output != "" && config.Output != "stdout" && config.Output != "stderr" {
		dir := filepath.Dir(config.Output)
		if !filepath.IsAbs(config.Output) {
			errs = append(errs, ValidationError{
				Field:   "logging.output",
				Message: "must be stdout, stderr, or an absolute file path",
			})
		} else if _, err := os.Stat(dir); os.IsNotExist(err) {
			errs = append(errs, ValidationError{
				Field:   "logging.output",
				Message: fmt.Sprintf("directory %s does not exist", dir),
			})
		}
	}

	return errs
}

func validateConnections(conns []source.ConnectionConfig, names map[string]bool) []error {
	var errs []error
	adapters := partition.DefaultRegistry().Adapters()
	for i, c := range conns {
		field := fmt.Sprintf("connections[%d]", i)
		switch {
		case c.Name == "":
			errs = append(errs, ValidationError{Field: field + ".name", Message: "is required"})
		case names[c.Name]:
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate connection %s", c.Name)})
		}
		names[c.Name] = true
		if !contains(adapters, strings.ToLower(c.Adapter)) {
			errs = append(errs, ValidationError{
				Field:   field + ".adapter",
				Message: fmt.Sprintf("must be one of %s", strings.Join(adapters, ", ")),
			})
		}
	}
	return errs
}

func validateSources(configs []source.Config, connections map[string]bool, sources map[string]*source.Config) []error {
	var errs []error
	for i := range configs {
		s := &configs[i]
		field := fmt.Sprintf("sources[%d]", i)
		switch {
		case s.Name == "":
			errs = append(errs, ValidationError{Field: field + ".name", Message: "is required"})
		case sources[s.Name] != nil:
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate source %s", s.Name)})
		default:
			sources[s.Name] = s
		}
		if !connections[s.Connection] {
			errs = append(errs, ValidationError{Field: field + ".connection", Message: fmt.Sprintf("unknown connection %q", s.Connection)})
		}
		if len(s.Fields) == 0 {
			errs = append(errs, ValidationError{Field: field + ".fields", Message: "at least one field is required"})
		}
		seen := make(map[string]bool, len(s.Fields))
		for j, f := range s.Fields {
			name := strings.ToLower(f.Name)
			if name == "" || seen[name] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.fields[%d].name", field, j),
					Message: "must be unique and not empty",
				})
			}
			seen[name] = true
		}
		for j, idx := range s.Indexes {
			for _, name := range idx.Fields {
				if s.Field(name) == nil {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("%s.indexes[%d]", field, j),
						Message: fmt.Sprintf("unknown field %s", name),
					})
				}
			}
		}
	}
	return errs
}

func validateEntries(entries []mapping.EntryConfig, sources map[string]*source.Config) []error {
	var errs []error
	for i := range entries {
		field := fmt.Sprintf("entries[%d]", i)
		if err := entries[i].Validate(); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
			continue
		}
		walkEntries(&entries[i], func(e *mapping.EntryConfig) {
			for _, s := range e.Sources {
				if sources[s.Source] == nil {
					errs = append(errs, ValidationError{
						Field:   field,
						Message: fmt.Sprintf("%s: unknown source %q", e.DN, s.Source),
					})
				}
			}
		})
		for j := 0; j < i; j++ {
			if directory.IsDescendant(entries[i].DN, entries[j].DN) || directory.IsDescendant(entries[j].DN, entries[i].DN) {
				errs = append(errs, ValidationError{
					Field:   field + ".dn",
					Message: fmt.Sprintf("overlaps entries[%d]", j),
				})
			}
		}
	}
	return errs
}

func walkEntries(e *mapping.EntryConfig, fn func(*mapping.EntryConfig)) {
	fn(e)
	for i := range e.Children {
		walkEntries(&e.Children[i], fn)
	}
}

func validateJobs(p *partition.Config, sources map[string]*source.Config) []error {
	var errs []error
	names := make(map[string]bool, len(p.Jobs))
	for i := range p.Jobs {
		job := &p.Jobs[i]
		field := fmt.Sprintf("jobs[%d]", i)
		if err := job.Validate(); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
			continue
		}
		if names[job.Name] {
			errs = append(errs, ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate job %s", job.Name)})
		}
		names[job.Name] = true

		for j, s := range job.Sources {
			if sources[s.Source] == nil {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.sources[%d]", field, j),
					Message: fmt.Sprintf("unknown source %q", s.Source),
				})
			}
		}
		for j, t := range job.Targets {
			cfg := sources[t.Source]
			if cfg == nil {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.targets[%d]", field, j),
					Message: fmt.Sprintf("unknown source %q", t.Source),
				})
				continue
			}
			for k, f := range t.Fields {
				if cfg.Field(f.Name) == nil {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("%s.targets[%d].fields[%d]", field, j, k),
						Message: fmt.Sprintf("%s has no field %s", t.Source, f.Name),
					})
				}
			}
		}
		if job.ChangeLog != "" && sources[job.ChangeLog] == nil {
			errs = append(errs, ValidationError{Field: field + ".changeLog", Message: fmt.Sprintf("unknown source %q", job.ChangeLog)})
		}
		if job.BaseDN != "" && !hasEntry(p.Entries, job.BaseDN) {
			errs = append(errs, ValidationError{Field: field + ".baseDn", Message: fmt.Sprintf("no entry %s", job.BaseDN)})
		}
	}
	return errs
}

func hasEntry(entries []mapping.EntryConfig, dn string) bool {
	found := false
	for i := range entries {
		walkEntries(&entries[i], func(e *mapping.EntryConfig) {
			if directory.EqualDN(e.DN, dn) {
				found = true
			}
		})
	}
	return found
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
