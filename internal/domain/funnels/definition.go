// Package funnels provides the published funnel snapshot model, the pure
// rule matcher, and the per-visitor progression state machine.
package funnels

import (
	"errors"
	"fmt"
	"time"
)

// ErrVersionExists is returned when a (funnel, version) snapshot was already
// published. Snapshots are immutable; a change requires a new version.
var ErrVersionExists = errors.New("funnel snapshot version already published")

// StepType classifies a funnel step.
type StepType string

const (
	StepStart      StepType = "start"
	StepPage       StepType = "page"
	StepEvent      StepType = "event"
	StepDecision   StepType = "decision"
	StepConversion StepType = "conversion"
)

// RuleKind selects which side of an event a match rule inspects.
type RuleKind string

const (
	RulePage  RuleKind = "page"
	RuleEvent RuleKind = "event"
)

// URLOperator compares a page URL against a rule value.
type URLOperator string

const (
	URLExact    URLOperator = "exact"
	URLContains URLOperator = "contains"
	URLPrefix   URLOperator = "prefix"
	URLRegex    URLOperator = "regex"
)

// PropOperator compares an event property against a rule value.
type PropOperator string

const (
	PropEq       PropOperator = "eq"
	PropNeq      PropOperator = "neq"
	PropContains PropOperator = "contains"
	PropGt       PropOperator = "gt"
	PropGte      PropOperator = "gte"
	PropLt       PropOperator = "lt"
	PropLte      PropOperator = "lte"
)

// PropFilter is one key/operator/value triple; a rule's filters are
// AND-combined.
type PropFilter struct {
	Key      string       `json:"key"`
	Operator PropOperator `json:"operator"`
	Value    any          `json:"value"`
}

// MatchRule is a single condition a step can match on. A page rule matches
// on URL, an event rule on event name plus optional property filters.
type MatchRule struct {
	Kind        RuleKind     `json:"kind"`
	URLOperator URLOperator  `json:"urlOperator,omitempty"`
	URLValue    string       `json:"urlValue,omitempty"`
	EventName   string       `json:"eventName,omitempty"`
	PropFilters []PropFilter `json:"propFilters,omitempty"`
}

// Step is one ordered milestone of a funnel. Its rules are OR-combined.
type Step struct {
	Index      int         `json:"index"`
	Title      string      `json:"title"`
	Type       StepType    `json:"type"`
	MatchRules []MatchRule `json:"matchRules"`
}

// Definition is a published funnel snapshot. Snapshots are immutable once
// published; this engine only ever reads them.
type Definition struct {
	FunnelID      string    `json:"funnelId"`
	WorkspaceID   string    `json:"workspaceId"`
	Version       int       `json:"version"`
	Title         string    `json:"title"`
	Steps         []Step    `json:"steps"`
	WindowSeconds int64     `json:"windowSeconds"`
	PublishedAt   time.Time `json:"publishedAt"`
}

// Window returns the completion window, or fallback when the snapshot does
// not carry one.
func (d *Definition) Window(fallback time.Duration) time.Duration {
	if d.WindowSeconds <= 0 {
		return fallback
	}
	return time.Duration(d.WindowSeconds) * time.Second
}

// LastStepIndex returns the index of the final step.
func (d *Definition) LastStepIndex() int {
	return len(d.Steps) - 1
}

// ValidateSnapshot checks a snapshot before it is accepted into the
// snapshot store. Publishing malformed definitions is the one failure we can
// reject up front instead of discovering per event.
func ValidateSnapshot(d *Definition) error {
	if d.FunnelID == "" {
		return fmt.Errorf("funnel id is required")
	}
	if d.Version <= 0 {
		return fmt.Errorf("funnel %s: version must be positive", d.FunnelID)
	}
	if len(d.Steps) < 2 {
		return fmt.Errorf("funnel %s: at least two steps required", d.FunnelID)
	}
	for i, step := range d.Steps {
		if step.Index != i {
			return fmt.Errorf("funnel %s: step %d carries index %d", d.FunnelID, i, step.Index)
		}
		if len(step.MatchRules) == 0 {
			return fmt.Errorf("funnel %s: step %d has no match rules", d.FunnelID, i)
		}
		for _, rule := range step.MatchRules {
			switch rule.Kind {
			case RulePage:
				if rule.URLValue == "" {
					return fmt.Errorf("funnel %s: step %d page rule missing url value", d.FunnelID, i)
				}
			case RuleEvent:
				if rule.EventName == "" {
					return fmt.Errorf("funnel %s: step %d event rule missing event name", d.FunnelID, i)
				}
			default:
				return fmt.Errorf("funnel %s: step %d unknown rule kind %q", d.FunnelID, i, rule.Kind)
			}
		}
	}
	return nil
}
