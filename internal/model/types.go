package model

import (
	"maps"
	"time"
)

// Trend is the direction a metric is moving under the applied treatments
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Metric is one tracked physiological quantity
type Metric struct {
	Name string `json:"name" yaml:"name"`
	Unit string `json:"unit,omitempty" yaml:"unit,omitempty"`

	// Derived from Baseline, Target and ImpactScore
	Current float64 `json:"current" yaml:"-"`

	// Fixed at creation
	Baseline float64 `json:"baseline" yaml:"baseline"`
	Target   float64 `json:"target" yaml:"target"`

	// Net effect of the applied treatments, always within [-100, 100]
	ImpactScore float64 `json:"impact_score" yaml:"-"`
	Trend       Trend   `json:"trend" yaml:"-"`
}

// Treatment is a recommendation the operator may apply to the session
type Treatment struct {
	ID          int    `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Metric key -> per-application nudge to that metric's impact score
	ExpectedImpact map[string]float64 `json:"expected_impact" yaml:"expected_impact"`

	// Set when the treatment is applied
	Implemented  bool               `json:"implemented" yaml:"-"`
	Timestamp    *time.Time         `json:"timestamp,omitempty" yaml:"-"`
	ActualImpact map[string]float64 `json:"actual_impact,omitempty" yaml:"-"`

	// Recommendation metadata, opaque to the model
	Priority        string `json:"priority,omitempty" yaml:"priority,omitempty"`     // high, medium, low
	Confidence      int    `json:"confidence,omitempty" yaml:"confidence,omitempty"` // 0-100
	ExpectedOutcome string `json:"expected_outcome,omitempty" yaml:"expected_outcome,omitempty"`
	Timeline        string `json:"timeline,omitempty" yaml:"timeline,omitempty"`
	Evidence        string `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	Status          string `json:"status,omitempty" yaml:"status,omitempty"` // urgent, recommended, pending, suggested
}

// Clone returns a copy that shares no maps or pointers with t
func (t Treatment) Clone() Treatment {
	out := t
	out.ExpectedImpact = maps.Clone(t.ExpectedImpact)
	out.ActualImpact = maps.Clone(t.ActualImpact)
	if t.Timestamp != nil {
		ts := *t.Timestamp
		out.Timestamp = &ts
	}
	return out
}

// Snapshot is a read-only copy of the model state
type Snapshot struct {
	Metrics       map[string]Metric `json:"metrics"`
	Applied       []Treatment       `json:"applied"`
	OverallHealth int               `json:"overall_health"`
	Status        string            `json:"status"`
}

// DuplicatePolicy decides what happens when an already applied id is applied again
type DuplicatePolicy int

const (
	// DuplicateStack keeps every application: the id contributes once per
	// application and each revert removes one instance.
	DuplicateStack DuplicatePolicy = iota
	// DuplicateReject leaves the model unchanged when the id is already applied.
	DuplicateReject
)

func (p DuplicatePolicy) String() string {
	switch p {
	case DuplicateReject:
		return "reject"
	default:
		return "stack"
	}
}

// ParseDuplicatePolicy parses "stack" or "reject"; anything else is stack
func ParseDuplicatePolicy(s string) DuplicatePolicy {
	if s == "reject" {
		return DuplicateReject
	}
	return DuplicateStack
}
