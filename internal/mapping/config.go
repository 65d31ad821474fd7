// Package mapping implements the directory entry tree. Static entries are
// fixed nodes such as "ou=people,dc=example,dc=com". A dynamic entry has a
// DN pattern such as "uid=...,ou=people,dc=example,dc=com" and presents the
// rows of its sources below its parent, computing the attributes of each
// entry from the source values.
package mapping

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KilimcininKorOglu/vdir/internal/directory"
	"github.com/KilimcininKorOglu/vdir/internal/interpreter"
)

// Mapping errors
var (
	ErrInvalidEntry  = errors.New("mapping: invalid entry")
	ErrEntryNotFound = errors.New("mapping: entry not found")
)

// Wildcard is the RDN value of a dynamic entry DN.
const Wildcard = "..."

// AttributeMapping computes a directory attribute. RDN attributes of a
// dynamic entry form the RDN of every presented entry.
type AttributeMapping struct {
	Name                   string `yaml:"name" mapstructure:"name"`
	RDN                    bool   `yaml:"rdn,omitempty" mapstructure:"rdn"`
	interpreter.Expression `yaml:",inline" mapstructure:",squash"`
}

// SourceMapping binds a source to an entry under an alias. The first
// source of an entry is its primary source; later ones are joined to it
// on Join, which maps their own fields to qualified fields of earlier
// sources ({"owner": "u.id"}).
type SourceMapping struct {
	Alias  string            `yaml:"alias,omitempty" mapstructure:"alias"`
	Source string            `yaml:"source" mapstructure:"source"`
	Join   map[string]string `yaml:"join,omitempty" mapstructure:"join"`
}

// AliasOrName returns the alias, defaulting to the source name.
func (m SourceMapping) AliasOrName() string {
	if m.Alias != "" {
		return m.Alias
	}
	return m.Source
}

// EntryConfig describes an entry and its children.
type EntryConfig struct {
	DN            string             `yaml:"dn" mapstructure:"dn"`
	ObjectClasses []string           `yaml:"objectClasses,omitempty" mapstructure:"objectClasses"`
	Attributes    []AttributeMapping `yaml:"attributes,omitempty" mapstructure:"attributes"`
	Sources       []SourceMapping    `yaml:"sources,omitempty" mapstructure:"sources"`
	Children      []EntryConfig      `yaml:"children,omitempty" mapstructure:"children"`
}

// Validate checks the entry and its children.
func (c *EntryConfig) Validate() error {
	rdns, err := directory.ParseDN(c.DN)
	if err != nil || len(rdns) == 0 {
		return fmt.Errorf("%w: dn %q", ErrInvalidEntry, c.DN)
	}

	dynamic := len(c.Sources) > 0
	pattern := isPattern(rdns[0])
	switch {
	case dynamic && !pattern:
		return fmt.Errorf("%w: %s has sources but no %s RDN", ErrInvalidEntry, c.DN, Wildcard)
	case !dynamic && pattern:
		return fmt.Errorf("%w: %s has a %s RDN but no sources", ErrInvalidEntry, c.DN, Wildcard)
	case dynamic && len(c.Children) > 0:
		return fmt.Errorf("%w: dynamic entry %s cannot have children", ErrInvalidEntry, c.DN)
	}

	aliases := make(map[string]bool, len(c.Sources))
	for i, s := range c.Sources {
		if s.Source == "" {
			return fmt.Errorf("%w: %s: source %d has no name", ErrInvalidEntry, c.DN, i)
		}
		alias := strings.ToLower(s.AliasOrName())
		if aliases[alias] {
			return fmt.Errorf("%w: %s: duplicate alias %s", ErrInvalidEntry, c.DN, alias)
		}
		aliases[alias] = true
		if i > 0 && len(s.Join) == 0 {
			return fmt.Errorf("%w: %s: source %s has no join condition", ErrInvalidEntry, c.DN, alias)
		}
	}

	for _, a := range c.Attributes {
		if a.Name == "" {
			return fmt.Errorf("%w: %s: attribute without name", ErrInvalidEntry, c.DN)
		}
		if a.RDN && !dynamic {
			return fmt.Errorf("%w: %s: rdn attribute %s on a static entry", ErrInvalidEntry, c.DN, a.Name)
		}
	}

	for i := range c.Children {
		child := &c.Children[i]
		if !directory.EqualDN(directory.ParentDN(child.DN), c.DN) {
			return fmt.Errorf("%w: %s is not a child of %s", ErrInvalidEntry, child.DN, c.DN)
		}
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func isPattern(rdn directory.RDN) bool {
	for _, ava := range rdn {
		if ava.Value == Wildcard {
			return true
		}
	}
	return false
}
