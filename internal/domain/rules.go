package domain

import "github.com/V4T54L/logflow/internal/pkg/predicate"

// ClassificationRule adds Tag to every event its predicate accepts.
type ClassificationRule struct {
	Expr      string
	Predicate predicate.Predicate
	Tag       string
}

// RoutingRule sends events accepted by its predicate to Stream.
type RoutingRule struct {
	Expr      string
	Predicate predicate.Predicate
	Stream    string
}

// RoutingTable is the immutable classification and routing configuration.
// Rules are evaluated top to bottom; the first matching route wins.
type RoutingTable struct {
	Classifiers   []ClassificationRule
	Routes        []RoutingRule
	DefaultStream string
}

// Classify returns the tags added by every matching classification rule.
func (t *RoutingTable) Classify(s predicate.Subject) []string {
	var tags []string
	for _, c := range t.Classifiers {
		if c.Predicate.Eval(s) {
			tags = append(tags, c.Tag)
		}
	}
	return tags
}

// Resolve returns the destination stream for s.
func (t *RoutingTable) Resolve(s predicate.Subject) string {
	for _, r := range t.Routes {
		if r.Predicate.Eval(s) {
			return r.Stream
		}
	}
	return t.DefaultStream
}
