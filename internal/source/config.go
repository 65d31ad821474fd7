package source

import (
	"strings"

	"github.com/KilimcininKorOglu/vdir/internal/interpreter"
)

// Parameter names understood by every adapter.
const (
	// ParamTable names the physical table or datastore of a source.
	ParamTable = "table"
	// ParamBaseDN names the subtree of an LDAP source.
	ParamBaseDN = "baseDn"
)

// FieldConfig describes one field of a source.
type FieldConfig struct {
	Name         string `yaml:"name" mapstructure:"name"`
	OriginalName string `yaml:"originalName,omitempty" mapstructure:"originalName"`
	Type         string `yaml:"type,omitempty" mapstructure:"type" default:"VARCHAR"`
	Length       int    `yaml:"length,omitempty" mapstructure:"length" default:"255"`
	PrimaryKey   bool   `yaml:"primaryKey,omitempty" mapstructure:"primaryKey"`
	Unique       bool   `yaml:"unique,omitempty" mapstructure:"unique"`
	Index        bool   `yaml:"index,omitempty" mapstructure:"index"`
	Searchable   bool   `yaml:"searchable" mapstructure:"searchable" default:"true"`
}

// Column returns the physical column name of the field.
func (f *FieldConfig) Column() string {
	if f.OriginalName != "" {
		return f.OriginalName
	}
	return f.Name
}

// IsBinary reports whether the field holds binary data.
func (f *FieldConfig) IsBinary() bool {
	switch strings.ToUpper(f.Type) {
	case "BINARY", "VARBINARY", "BLOB", "BYTEA", "LONGVARBINARY":
		return true
	}
	return false
}

// IndexConfig describes an index over fields of a source.
type IndexConfig struct {
	Name   string   `yaml:"name" mapstructure:"name"`
	Fields []string `yaml:"fields" mapstructure:"fields"`
	Unique bool     `yaml:"unique,omitempty" mapstructure:"unique"`
}

// Config describes a source.
type Config struct {
	Name        string            `yaml:"name" mapstructure:"name"`
	Connection  string            `yaml:"connection" mapstructure:"connection"`
	Description string            `yaml:"description,omitempty" mapstructure:"description"`
	Parameters  map[string]string `yaml:"parameters,omitempty" mapstructure:"parameters"`
	Fields      []FieldConfig     `yaml:"fields" mapstructure:"fields"`
	Indexes     []IndexConfig     `yaml:"indexes,omitempty" mapstructure:"indexes"`
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Parameters != nil {
		clone.Parameters = make(map[string]string, len(c.Parameters))
		for k, v := range c.Parameters {
			clone.Parameters[k] = v
		}
	}
	clone.Fields = append([]FieldConfig(nil), c.Fields...)
	clone.Indexes = make([]IndexConfig, len(c.Indexes))
	for i, idx := range c.Indexes {
		idx.Fields = append([]string(nil), idx.Fields...)
		clone.Indexes[i] = idx
	}
	return &clone
}

// Parameter returns a parameter value, or "".
func (c *Config) Parameter(name string) string {
	return c.Parameters[name]
}

// SetParameter sets a parameter value.
func (c *Config) SetParameter(name, value string) {
	if c.Parameters == nil {
		c.Parameters = make(map[string]string)
	}
	c.Parameters[name] = value
}

// Table returns the physical table name: the table parameter or the source
// name.
func (c *Config) Table() string {
	if t := c.Parameter(ParamTable); t != "" {
		return t
	}
	return c.Name
}

// Field returns the field with the given name, matched case-insensitively.
func (c *Config) Field(name string) *FieldConfig {
	for i := range c.Fields {
		if strings.EqualFold(c.Fields[i].Name, name) {
			return &c.Fields[i]
		}
	}
	return nil
}

// FieldNames returns the names of all fields in declaration order.
func (c *Config) FieldNames() []string {
	names := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		names[i] = f.Name
	}
	return names
}

// PrimaryKeys returns the names of the primary key fields.
func (c *Config) PrimaryKeys() []string {
	var names []string
	for _, f := range c.Fields {
		if f.PrimaryKey {
			names = append(names, f.Name)
		}
	}
	return names
}

// IsPrimaryKey reports whether name is a primary key field.
func (c *Config) IsPrimaryKey(name string) bool {
	f := c.Field(name)
	return f != nil && f.PrimaryKey
}

// Derive returns a copy of the configuration named name+suffix whose table
// parameter carries the same suffix. It is used for shadow and backup
// copies of a source.
func (c *Config) Derive(suffix string) *Config {
	clone := c.Clone()
	clone.SetParameter(ParamTable, c.Table()+suffix)
	clone.Name = c.Name + suffix
	return clone
}

// ConnectionConfig describes a connection.
type ConnectionConfig struct {
	Name       string            `yaml:"name" mapstructure:"name"`
	Adapter    string            `yaml:"adapter" mapstructure:"adapter"`
	Parameters map[string]string `yaml:"parameters,omitempty" mapstructure:"parameters"`
}

// Clone returns a deep copy of the configuration.
func (c *ConnectionConfig) Clone() *ConnectionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Parameters != nil {
		clone.Parameters = make(map[string]string, len(c.Parameters))
		for k, v := range c.Parameters {
			clone.Parameters[k] = v
		}
	}
	return &clone
}

// FieldMapping computes the value of a target field.
type FieldMapping struct {
	Name                   string `yaml:"name" mapstructure:"name"`
	interpreter.Expression `yaml:",inline" mapstructure:",squash"`
}
