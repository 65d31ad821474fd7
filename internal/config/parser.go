package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Parser errors.
var (
	ErrInvalidYAML       = errors.New("config: invalid YAML")
	ErrFileNotFound      = errors.New("config: configuration file not found")
	ErrMissingConfigFile = errors.New("config: config file path is required")
	ErrMissingOnChange   = errors.New("config: onChange callback is required")
)

// EnvFile is the name of the optional environment file loaded from the
// directory of the configuration file.
const EnvFile = ".env"

// envPattern matches ${VAR} and ${VAR:-default} with upper-case names.
var envPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(?::-([^}]*))?\}`)

// LoadConfig loads configuration from a file path. Variables of a .env file
// next to it are added to the environment without overriding variables
// that are already set.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, ErrMissingConfigFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, err
	}

	envFile := filepath.Join(filepath.Dir(path), EnvFile)
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	return ParseConfig(data)
}

// ParseConfig parses configuration from YAML data. It substitutes
// environment variables and applies defaults for missing values. Unknown
// keys are rejected.
func ParseConfig(data []byte) (*Config, error) {
	data = substituteEnvVars(data)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return cfg, nil
}

// substituteEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment variable values. The default applies when the variable is
// unset or empty.
func substituteEnvVars(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		groups := envPattern.FindSubmatch(match)
		if val := os.Getenv(string(groups[1])); val != "" {
			return []byte(val)
		}
		return groups[2]
	})
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
