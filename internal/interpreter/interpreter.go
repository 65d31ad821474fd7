// Package interpreter evaluates the field expressions of source and entry
// mappings against a set of named attribute values.
package interpreter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnclosedVariable is returned for a template with "${" but no "}".
var ErrUnclosedVariable = errors.New("interpreter: unclosed variable reference")

var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Expression computes a value. Exactly one of its fields is normally set;
// when several are, Constant wins over Variable and Variable over Template.
type Expression struct {
	// Constant is used as is.
	Constant any `yaml:"constant,omitempty" mapstructure:"constant"`

	// Variable names a value, for example "u.name".
	Variable string `yaml:"variable,omitempty" mapstructure:"variable"`

	// Template is text with ${name} references, for example "${u.first} ${u.last}".
	Template string `yaml:"expression,omitempty" mapstructure:"expression"`
}

// Constant returns an expression with a constant value.
func Constant(v any) Expression { return Expression{Constant: v} }

// Variable returns an expression that reads a named value.
func Variable(name string) Expression { return Expression{Variable: name} }

// Template returns an expression that substitutes ${name} references.
func Template(text string) Expression { return Expression{Template: text} }

// IsZero reports whether the expression has nothing to evaluate.
func (e Expression) IsZero() bool {
	return e.Constant == nil && e.Variable == "" && e.Template == ""
}

// Variables returns the lower-cased names the expression reads.
func (e Expression) Variables() []string {
	switch {
	case e.Constant != nil:
		return nil
	case e.Variable != "":
		return []string{strings.ToLower(e.Variable)}
	}
	var names []string
	for _, m := range variablePattern.FindAllStringSubmatch(e.Template, -1) {
		names = append(names, strings.ToLower(strings.TrimSpace(m[1])))
	}
	return names
}

// String returns a readable form of the expression.
func (e Expression) String() string {
	switch {
	case e.Constant != nil:
		return fmt.Sprintf("%q", fmt.Sprint(e.Constant))
	case e.Variable != "":
		return e.Variable
	default:
		return e.Template
	}
}

// Interpreter holds named values and evaluates expressions against them.
// Names are matched case-insensitively. An Interpreter is not safe for
// concurrent use.
type Interpreter struct {
	values map[string][]any
}

// New creates an empty interpreter.
func New() *Interpreter {
	return &Interpreter{values: make(map[string][]any)}
}

// Set binds name to values, replacing previous values.
func (i *Interpreter) Set(name string, values ...any) {
	i.values[strings.ToLower(name)] = values
}

// SetAll binds every entry of values.
func (i *Interpreter) SetAll(values map[string][]any) {
	for name, v := range values {
		i.Set(name, v...)
	}
}

// Get returns the values bound to name.
func (i *Interpreter) Get(name string) []any {
	return i.values[strings.ToLower(name)]
}

// Clear removes every binding.
func (i *Interpreter) Clear() {
	i.values = make(map[string][]any)
}

// Eval evaluates e. It returns nil when the expression references a name
// without values. A template produces a single string; a reference to a
// multi-valued name uses its first value.
func (i *Interpreter) Eval(e Expression) ([]any, error) {
	switch {
	case e.Constant != nil:
		return []any{e.Constant}, nil
	case e.Variable != "":
		values := i.Get(e.Variable)
		if len(values) == 0 {
			return nil, nil
		}
		return values, nil
	case e.Template != "":
		return i.evalTemplate(e.Template)
	}
	return nil, nil
}

// EvalFirst evaluates e and returns its first value, or nil.
func (i *Interpreter) EvalFirst(e Expression) (any, error) {
	values, err := i.Eval(e)
	if err != nil || len(values) == 0 {
		return nil, err
	}
	return values[0], nil
}

func (i *Interpreter) evalTemplate(text string) ([]any, error) {
	stripped := variablePattern.ReplaceAllString(text, "")
	if strings.Contains(stripped, "${") {
		return nil, fmt.Errorf("%w: %q", ErrUnclosedVariable, text)
	}

	missing := false
	result := variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-1])
		values := i.Get(name)
		if len(values) == 0 || values[0] == nil {
			missing = true
			return ""
		}
		return toString(values[0])
	})
	if missing {
		return nil, nil
	}
	return []any{result}, nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
