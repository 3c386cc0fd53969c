// Package insight derives advisory signals from a model snapshot and
// periodically logs them.
package insight

import (
	"sort"

	"github.com/gmsas95/medtwin/internal/model"
	"go.uber.org/zap"
)

// Analyzer converts a snapshot into an insight report.
type Analyzer struct {
	rules  []Rule
	logger *zap.Logger
}

// NewAnalyzer creates an analyzer with the built-in rules.
func NewAnalyzer(logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		logger: logger,
		rules: []Rule{
			OverallDecliningRule,
			DecliningMetricRule,
			SaturatedMetricRule,
			ImprovingMetricRule,
			NoActiveTreatmentsRule,
		},
	}
}

// Analyze evaluates every rule against snap.
func (a *Analyzer) Analyze(snap model.Snapshot) Report {
	var (
		signals         = []Signal{}
		recommendations = []string{}
		seen            = map[string]bool{}
		status          = StatusOK
	)

	for _, rule := range a.rules {
		for _, sig := range rule(snap) {
			signals = append(signals, sig)

			if sig.Recommendation != "" && !seen[sig.Recommendation] {
				seen[sig.Recommendation] = true
				recommendations = append(recommendations, sig.Recommendation)
			}

			// Escalate status
			if sig.Severity == SeverityCritical {
				status = StatusCritical
			} else if sig.Severity == SeverityWarning && status == StatusOK {
				status = StatusWarning
			}
		}
	}

	summary := "Patient trajectory is on track"
	if status != StatusOK {
		summary = "Patient trajectory needs attention"
	}

	return Report{
		OverallStatus:   status,
		OverallHealth:   snap.OverallHealth,
		Summary:         summary,
		Signals:         signals,
		Recommendations: recommendations,
	}
}

// Sweep returns a job that analyzes the snapshot from source and logs the
// result at a level matching its status.
func (a *Analyzer) Sweep(source func() model.Snapshot) func() {
	return func() {
		rep := a.Analyze(source())

		fields := []zap.Field{
			zap.String("status", string(rep.OverallStatus)),
			zap.Int("overall_health", rep.OverallHealth),
			zap.Int("critical", rep.Count(SeverityCritical)),
			zap.Int("warnings", rep.Count(SeverityWarning)),
		}

		switch rep.OverallStatus {
		case StatusCritical:
			a.logger.Error("Insight sweep", fields...)
		case StatusWarning:
			a.logger.Warn("Insight sweep", fields...)
		default:
			a.logger.Info("Insight sweep", fields...)
		}
	}
}

func sortedKeys(m map[string]model.Metric) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
