// Package rules decides which derived records a source record should have and
// what they look like.
package rules

import (
	"context"
	"regexp"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizer"
	"github.com/Ramsey-B/fern/pkg/summary"
)

// CreateHook wraps the creation of a target that does not exist yet. It must
// call create exactly once, optionally with extra fields to store.
type CreateHook func(ctx context.Context, create func(extra map[string]any) error) error

// Target is the derived record a rule wants to exist.
type Target struct {
	ID   string
	Type string
	// Fields are supplied by the source. Only non-empty values are present.
	Fields map[string]any
	// CreateFields are written only when the target is created and never
	// override Fields.
	CreateFields map[string]any
	// OnCreate runs around the create call when set.
	OnCreate CreateHook
}

// Decision is the outcome of evaluating a rule against a source record.
type Decision struct {
	Triggered bool
	// Reason explains why the rule did not trigger.
	Reason string
	Target Target
	// BackReference is the source field that should point at the target.
	BackReference string
}

// Rule is the relationship policy for one source type.
type Rule interface {
	SourceType() string
	TargetType() string
	Evaluate(source models.Document, sourceID string, canonical normalizer.Canonical) Decision
}

// Registry holds one rule per source type.
type Registry struct {
	rules map[string]Rule
}

// NewRegistry creates a registry from rules. Later rules replace earlier ones
// for the same source type.
func NewRegistry(rules ...Rule) *Registry {
	r := &Registry{rules: make(map[string]Rule)}
	for _, rule := range rules {
		r.Register(rule)
	}
	return r
}

// DefaultRegistry wires the order, invoice and product rules.
func DefaultRegistry(policy Policy, numberer *Numberer) *Registry {
	return NewRegistry(
		NewOrderInvoiceRule(policy, numberer),
		NewInvoiceShippingLabelRule(policy),
		NewProductMapRule(),
	)
}

// Register adds or replaces the rule for its source type.
func (r *Registry) Register(rule Rule) {
	r.rules[rule.SourceType()] = rule
}

// For returns the rule for a source type.
func (r *Registry) For(sourceType string) (Rule, bool) {
	rule, ok := r.rules[sourceType]
	return rule, ok
}

var idSegmentPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// idSegment returns the first candidate usable inside a document id.
func idSegment(candidates ...string) string {
	for _, c := range candidates {
		if c != "" && idSegmentPattern.MatchString(c) {
			return c
		}
	}
	return ""
}

// compact drops empty values from a field set.
func compact(fields map[string]any) map[string]any {
	cleaned, _ := summary.Clean(fields).(map[string]any)
	if cleaned == nil {
		return map[string]any{}
	}
	return cleaned
}

// copyValue returns a deep copy of a nested value taken from a source record.
func copyValue(v any) any {
	if v == nil {
		return nil
	}
	return models.Document{"v": v}.Clone()["v"]
}
