// Package pattern extracts structured fields from log lines using an
// ordered list of matchers. The first matcher that accepts a line governs.
package pattern

import (
	"errors"
	"fmt"
	"strings"
)

// Matcher kinds accepted by Compile.
const (
	KindGrok  = "grok"
	KindRegex = "regex"
	KindJSON  = "json"
)

var (
	ErrUnknownPattern = errors.New("unknown grok pattern")
	ErrUnknownKind    = errors.New("unknown matcher kind")
)

// Result is the outcome of one extraction attempt. A zero Result is NoMatch.
type Result struct {
	Matched   bool
	Fields    map[string]string
	Remainder string
}

// NoMatch is returned by matchers that do not accept the input.
var NoMatch = Result{}

// Matcher attempts extraction on one line. Implementations are pure and
// safe for concurrent use.
type Matcher interface {
	Name() string
	Match(text string) Result
}

// Definition is the configuration form of a matcher.
type Definition struct {
	Name    string `yaml:"name" json:"name"`
	Kind    string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
}

// Set is an immutable, ordered list of matchers.
type Set struct {
	matchers []Matcher
}

// NewSet builds a Set that tries matchers in the given order.
func NewSet(matchers ...Matcher) *Set {
	return &Set{matchers: append([]Matcher(nil), matchers...)}
}

// Compile builds a Set from definitions, failing on the first invalid one.
func Compile(defs []Definition) (*Set, error) {
	matchers := make([]Matcher, 0, len(defs))
	seen := make(map[string]struct{}, len(defs))
	for i, def := range defs {
		if strings.TrimSpace(def.Name) == "" {
			return nil, fmt.Errorf("pattern #%d: name is required", i+1)
		}
		if _, dup := seen[def.Name]; dup {
			return nil, fmt.Errorf("pattern %q: duplicate name", def.Name)
		}
		seen[def.Name] = struct{}{}

		var (
			m   Matcher
			err error
		)
		switch strings.ToLower(def.Kind) {
		case "", KindGrok:
			m, err = NewGrok(def.Name, def.Pattern)
		case KindRegex:
			m, err = NewRegex(def.Name, def.Pattern)
		case KindJSON:
			m = NewJSON(def.Name)
		default:
			err = fmt.Errorf("%w: %q", ErrUnknownKind, def.Kind)
		}
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", def.Name, err)
		}
		matchers = append(matchers, m)
	}
	return NewSet(matchers...), nil
}

// Match returns the name and result of the first matcher that accepts text.
// When none does, it returns an empty name and NoMatch.
func (s *Set) Match(text string) (string, Result) {
	for _, m := range s.matchers {
		if res := m.Match(text); res.Matched {
			return m.Name(), res
		}
	}
	return "", NoMatch
}

// Len returns the number of matchers in the set.
func (s *Set) Len() int { return len(s.matchers) }

// Names lists matcher names in evaluation order.
func (s *Set) Names() []string {
	names := make([]string, len(s.matchers))
	for i, m := range s.matchers {
		names[i] = m.Name()
	}
	return names
}
