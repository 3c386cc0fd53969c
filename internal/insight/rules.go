package insight

import (
	"fmt"
	"math"

	"github.com/gmsas95/medtwin/internal/model"
)

// Rule evaluates a snapshot and returns any signals it raises.
type Rule func(snap model.Snapshot) []Signal

// Impact at or below which a declining metric is critical
const criticalImpact = -50.0

// ---------- RULES ----------

// DecliningMetricRule flags metrics whose impact has turned negative.
func DecliningMetricRule(snap model.Snapshot) []Signal {
	var out []Signal
	for _, key := range sortedKeys(snap.Metrics) {
		m := snap.Metrics[key]
		if m.Trend != model.TrendDeclining {
			continue
		}

		sig := Signal{
			Severity:       SeverityWarning,
			Metric:         key,
			Title:          m.Name + " Trending Down",
			Message:        fmt.Sprintf("%s impact is %s, current value %s %s", m.Name, num(m.ImpactScore), num(m.Current), m.Unit),
			Recommendation: fmt.Sprintf("Review active treatments affecting %s", m.Name),
			ActionRequired: true,
		}
		if m.ImpactScore <= criticalImpact {
			sig.Severity = SeverityCritical
			sig.Title = m.Name + " Alert"
		}
		out = append(out, sig)
	}
	return out
}

// ImprovingMetricRule reports metrics moving toward their target.
func ImprovingMetricRule(snap model.Snapshot) []Signal {
	var out []Signal
	for _, key := range sortedKeys(snap.Metrics) {
		m := snap.Metrics[key]
		if m.Trend != model.TrendImproving {
			continue
		}
		out = append(out, Signal{
			Severity: SeveritySuccess,
			Metric:   key,
			Title:    m.Name + " Improving",
			Message:  fmt.Sprintf("%s moved from %s to %s toward target %s", m.Name, num(m.Baseline), num(m.Current), num(m.Target)),
		})
	}
	return out
}

// SaturatedMetricRule flags metrics pinned at the impact bounds. Reverting a
// treatment from a clamped metric does not restore the earlier value.
func SaturatedMetricRule(snap model.Snapshot) []Signal {
	var out []Signal
	for _, key := range sortedKeys(snap.Metrics) {
		m := snap.Metrics[key]
		if math.Abs(m.ImpactScore) < model.MaxImpact {
			continue
		}
		out = append(out, Signal{
			Severity:       SeverityWarning,
			Metric:         key,
			Title:          m.Name + " Impact Saturated",
			Message:        fmt.Sprintf("%s impact is clamped at %s", m.Name, num(m.ImpactScore)),
			Recommendation: "Reverting treatments will not fully restore this metric",
		})
	}
	return out
}

// OverallDecliningRule escalates when the aggregate status is declining.
func OverallDecliningRule(snap model.Snapshot) []Signal {
	if model.HealthStatus(snap.OverallHealth) != model.StatusDeclining {
		return nil
	}
	return []Signal{{
		Severity:       SeverityCritical,
		Title:          "Overall Health Declining",
		Message:        fmt.Sprintf("Overall health score is %d", snap.OverallHealth),
		Recommendation: "Reassess the treatment plan with the care team",
		ActionRequired: true,
	}}
}

// NoActiveTreatmentsRule notes an empty treatment plan.
func NoActiveTreatmentsRule(snap model.Snapshot) []Signal {
	if len(snap.Applied) > 0 {
		return nil
	}
	return []Signal{{
		Severity:       SeverityInfo,
		Title:          "No Active Treatments",
		Message:        "No treatments are currently applied",
		Recommendation: "Consider applying a recommended treatment",
	}}
}

func num(v float64) string {
	return fmt.Sprintf("%g", v)
}
