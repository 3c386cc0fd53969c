// Package model implements the health-impact accumulation model: applied
// treatments nudge per-metric impact scores, from which each metric's current
// value, trend and the aggregate health score are derived.
package model

import (
	"maps"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	MinImpact = -100.0
	MaxImpact = 100.0

	// Impact beyond which a metric counts as improving or declining
	TrendThreshold = 10.0

	// Overall score beyond which the patient counts as improving or declining
	StatusThreshold = 20.0

	// Share of the baseline-to-target gap reached at full impact
	TargetShare = 0.3
)

const (
	StatusImproving = "Improving"
	StatusStable    = "Stable"
	StatusDeclining = "Declining"
)

// Model owns the metric state and the applied treatments of one session.
// It is not safe for concurrent use; callers serialize apply and revert.
type Model struct {
	metrics map[string]Metric
	applied []Treatment
	overall int

	policy DuplicatePolicy
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Model
type Option func(*Model)

// WithClock sets the clock used to stamp applied treatments
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Model) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithDuplicatePolicy sets how re-applying an applied id is handled
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(m *Model) {
		m.policy = p
	}
}

// New creates a model over the given metrics. Impact scores are clamped and
// current values and trends derived from them.
func New(metrics map[string]Metric, opts ...Option) *Model {
	m := &Model{
		metrics: make(map[string]Metric, len(metrics)),
		applied: make([]Treatment, 0),
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}

	for key, metric := range metrics {
		m.metrics[key] = withImpact(metric, metric.ImpactScore)
	}
	m.overall = m.meanImpact()

	return m
}

// ApplyTreatment stamps t as implemented, adds it to the applied set and
// accumulates its expected impact into the known metrics. Unknown metric keys
// are skipped. The returned bool is false only when the duplicate policy
// rejected the treatment, in which case the model is unchanged.
func (m *Model) ApplyTreatment(t Treatment) (Treatment, bool) {
	if m.policy == DuplicateReject && m.IsApplied(t.ID) {
		m.logger.Debug("Treatment already applied",
			zap.Int("treatment_id", t.ID),
		)
		return t.Clone(), false
	}

	stamped := t.Clone()
	ts := m.now()
	stamped.Implemented = true
	stamped.Timestamp = &ts
	stamped.ActualImpact = maps.Clone(t.ExpectedImpact)
	if stamped.ActualImpact == nil {
		stamped.ActualImpact = map[string]float64{}
	}

	m.applied = append(m.applied, stamped)
	m.accumulate(stamped.ExpectedImpact, 1)

	m.logger.Debug("Treatment applied",
		zap.Int("treatment_id", stamped.ID),
		zap.String("name", stamped.Name),
		zap.Int("overall_health", m.overall),
	)

	return stamped.Clone(), true
}

// RevertTreatment removes the most recently applied instance of id and undoes
// its contribution. It reports false and changes nothing when id is not applied.
// Reverting is exact unless a metric was clamped at ±100 on the way.
func (m *Model) RevertTreatment(id int) (Treatment, bool) {
	idx := -1
	for i := len(m.applied) - 1; i >= 0; i-- {
		if m.applied[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Treatment{}, false
	}

	removed := m.applied[idx]
	m.applied = append(m.applied[:idx:idx], m.applied[idx+1:]...)
	m.accumulate(removed.ExpectedImpact, -1)

	m.logger.Debug("Treatment reverted",
		zap.Int("treatment_id", removed.ID),
		zap.Int("overall_health", m.overall),
	)

	return removed, true
}

// accumulate adds sign*delta to every known metric, then derives the overall
// score from the committed metric state. Non-finite deltas are skipped.
func (m *Model) accumulate(impact map[string]float64, sign float64) {
	for key, delta := range impact {
		metric, ok := m.metrics[key]
		if !ok || math.IsNaN(delta) || math.IsInf(delta, 0) {
			continue
		}
		m.metrics[key] = withImpact(metric, metric.ImpactScore+sign*delta)
	}
	m.overall = m.meanImpact()
}

func (m *Model) meanImpact() int {
	if len(m.metrics) == 0 {
		return 0
	}
	var sum float64
	for _, metric := range m.metrics {
		sum += metric.ImpactScore
	}
	return int(RoundHalfUp(sum / float64(len(m.metrics))))
}

// HealthMetrics returns a copy of the metric state
func (m *Model) HealthMetrics() map[string]Metric {
	return maps.Clone(m.metrics)
}

// Metric returns one metric by key
func (m *Model) Metric(key string) (Metric, bool) {
	metric, ok := m.metrics[key]
	return metric, ok
}

// MetricKeys returns the tracked metric keys in sorted order
func (m *Model) MetricKeys() []string {
	keys := make([]string, 0, len(m.metrics))
	for k := range m.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AppliedTreatments returns the applied treatments in application order
func (m *Model) AppliedTreatments() []Treatment {
	out := make([]Treatment, len(m.applied))
	for i, t := range m.applied {
		out[i] = t.Clone()
	}
	return out
}

// IsApplied reports whether at least one instance of id is applied
func (m *Model) IsApplied(id int) bool {
	for _, t := range m.applied {
		if t.ID == id {
			return true
		}
	}
	return false
}

// OverallHealth returns the rounded mean impact score across all metrics
func (m *Model) OverallHealth() int {
	return m.overall
}

// Policy returns the duplicate policy in effect
func (m *Model) Policy() DuplicatePolicy {
	return m.policy
}

// Snapshot returns a copy of the whole model state
func (m *Model) Snapshot() Snapshot {
	return Snapshot{
		Metrics:       m.HealthMetrics(),
		Applied:       m.AppliedTreatments(),
		OverallHealth: m.overall,
		Status:        HealthStatus(m.overall),
	}
}

func withImpact(metric Metric, impact float64) Metric {
	metric.ImpactScore = Clamp(impact)
	metric.Current = DeriveCurrent(metric.Baseline, metric.Target, metric.ImpactScore)
	metric.Trend = DeriveTrend(metric.ImpactScore)
	return metric
}

// Clamp bounds an impact score to [MinImpact, MaxImpact]. NaN maps to 0.
func Clamp(impact float64) float64 {
	if math.IsNaN(impact) {
		return 0
	}
	return math.Max(MinImpact, math.Min(MaxImpact, impact))
}

// DeriveCurrent moves the baseline toward the target by TargetShare of the gap
// at full impact, rounded to one decimal.
func DeriveCurrent(baseline, target, impact float64) float64 {
	impactFactor := impact / 100
	targetDiff := target - baseline
	return Round1(baseline + targetDiff*impactFactor*TargetShare)
}

// DeriveTrend classifies an impact score
func DeriveTrend(impact float64) Trend {
	switch {
	case impact > TrendThreshold:
		return TrendImproving
	case impact < -TrendThreshold:
		return TrendDeclining
	default:
		return TrendStable
	}
}

// HealthStatus labels an overall health score
func HealthStatus(score int) string {
	switch {
	case float64(score) > StatusThreshold:
		return StatusImproving
	case float64(score) < -StatusThreshold:
		return StatusDeclining
	default:
		return StatusStable
	}
}

// RoundHalfUp rounds to the nearest integer, halves toward +Inf
func RoundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

// Round1 rounds to one decimal place, halves toward +Inf
func Round1(v float64) float64 {
	return RoundHalfUp(v*10) / 10
}
