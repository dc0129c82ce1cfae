// Package predicate implements the boolean expression language used by
// classification and routing rules.
//
// Grammar:
//
//	expr    := and ( ('or' | '||') and )*
//	and     := unary ( ('and' | '&&') unary )*
//	unary   := ('not' | '!') unary | primary
//	primary := '(' expr ')' | term
//	term    := 'tag:' NAME
//	         | 'field:' NAME [ op value ]
//	         | 'true' | 'false' | 'always'
//	op      := '==' | '!=' | '=~' | 'contains'
//	value   := 'quoted' | "quoted" | bareword
//
// A bare 'field:NAME' term tests for presence of the field. Expressions are
// parsed once; a compiled Predicate is immutable and safe for concurrent use.
package predicate

import (
	"fmt"
	"regexp"
	"strings"
)

// Subject is anything a predicate can be evaluated against.
type Subject interface {
	HasTag(tag string) bool
	Field(name string) (string, bool)
}

// Predicate is a compiled boolean expression over tags and fields.
type Predicate interface {
	Eval(s Subject) bool
	String() string
}

type constNode bool

func (c constNode) Eval(Subject) bool { return bool(c) }
func (c constNode) String() string {
	if c {
		return "true"
	}
	return "false"
}

type tagNode string

func (t tagNode) Eval(s Subject) bool { return s.HasTag(string(t)) }
func (t tagNode) String() string      { return "tag:" + string(t) }

type existsNode string

func (f existsNode) Eval(s Subject) bool {
	_, ok := s.Field(string(f))
	return ok
}
func (f existsNode) String() string { return "field:" + string(f) }

type compareNode struct {
	field string
	op    string
	value string
	re    *regexp.Regexp
}

func (c *compareNode) Eval(s Subject) bool {
	v, ok := s.Field(c.field)
	switch c.op {
	case "==":
		return ok && v == c.value
	case "!=":
		return !ok || v != c.value
	case "=~":
		return ok && c.re.MatchString(v)
	case "contains":
		return ok && strings.Contains(v, c.value)
	}
	return false
}

func (c *compareNode) String() string {
	return fmt.Sprintf("field:%s %s %q", c.field, c.op, c.value)
}

type notNode struct{ inner Predicate }

func (n notNode) Eval(s Subject) bool { return !n.inner.Eval(s) }
func (n notNode) String() string      { return "not " + n.inner.String() }

type andNode struct{ left, right Predicate }

func (n andNode) Eval(s Subject) bool { return n.left.Eval(s) && n.right.Eval(s) }
func (n andNode) String() string {
	return "(" + n.left.String() + " and " + n.right.String() + ")"
}

type orNode struct{ left, right Predicate }

func (n orNode) Eval(s Subject) bool { return n.left.Eval(s) || n.right.Eval(s) }
func (n orNode) String() string {
	return "(" + n.left.String() + " or " + n.right.String() + ")"
}

// Always is a predicate that accepts every subject.
var Always Predicate = constNode(true)

// MustParse is like Parse but panics on error. Intended for tests and
// package-level defaults.
func MustParse(expr string) Predicate {
	p, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return p
}
