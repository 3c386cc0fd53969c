package insight

import (
	"testing"

	"github.com/gmsas95/medtwin/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testModel() *model.Model {
	return model.New(map[string]model.Metric{
		"glucose":  {Name: "Blood Glucose", Unit: "mg/dL", Baseline: 145, Target: 120},
		"activity": {Name: "Physical Activity", Unit: "min/week", Baseline: 45, Target: 70},
	})
}

func titles(r Report) []string {
	out := make([]string, len(r.Signals))
	for i, s := range r.Signals {
		out[i] = s.Title
	}
	return out
}

func TestAnalyze_Baseline(t *testing.T) {
	report := NewAnalyzer(nil).Analyze(testModel().Snapshot())

	assert.Equal(t, StatusOK, report.OverallStatus)
	assert.Equal(t, "Patient trajectory is on track", report.Summary)
	assert.Equal(t, []string{"No Active Treatments"}, titles(report))
	assert.Equal(t, 1, report.Count(SeverityInfo))
}

func TestAnalyze_DecliningMetric(t *testing.T) {
	m := testModel()
	m.ApplyTreatment(model.Treatment{ID: 1, ExpectedImpact: map[string]float64{"glucose": -25}})

	report := NewAnalyzer(nil).Analyze(m.Snapshot())

	assert.Equal(t, StatusWarning, report.OverallStatus)
	assert.Equal(t, "Patient trajectory needs attention", report.Summary)
	require.Len(t, report.Signals, 1)
	sig := report.Signals[0]
	assert.Equal(t, SeverityWarning, sig.Severity)
	assert.Equal(t, "glucose", sig.Metric)
	assert.Equal(t, "Blood Glucose impact is -25, current value 146.9 mg/dL", sig.Message)
	assert.True(t, sig.ActionRequired)
}

func TestAnalyze_CriticalEscalation(t *testing.T) {
	m := testModel()
	m.ApplyTreatment(model.Treatment{ID: 1, ExpectedImpact: map[string]float64{"glucose": -60, "activity": -60}})

	report := NewAnalyzer(nil).Analyze(m.Snapshot())

	assert.Equal(t, StatusCritical, report.OverallStatus)
	assert.Equal(t, "Overall Health Declining", report.Signals[0].Title)
	assert.Contains(t, titles(report), "Blood Glucose Alert")
	assert.Equal(t, 3, report.Count(SeverityCritical))
}

func TestAnalyze_Saturated(t *testing.T) {
	m := testModel()
	m.ApplyTreatment(model.Treatment{ID: 2, ExpectedImpact: map[string]float64{"activity": 70}})
	m.ApplyTreatment(model.Treatment{ID: 2, ExpectedImpact: map[string]float64{"activity": 70}})

	report := NewAnalyzer(nil).Analyze(m.Snapshot())

	assert.Equal(t, StatusWarning, report.OverallStatus)
	assert.Contains(t, titles(report), "Physical Activity Impact Saturated")
	assert.Contains(t, titles(report), "Physical Activity Improving")
	assert.Contains(t, report.Recommendations, "Reverting treatments will not fully restore this metric")
	assert.Equal(t, 1, report.Count(SeveritySuccess))
}

func TestAnalyze_RecommendationsDeduplicated(t *testing.T) {
	m := model.New(map[string]model.Metric{
		"a": {Name: "A", Baseline: 1, Target: 2},
		"b": {Name: "B", Baseline: 1, Target: 2},
	})
	m.ApplyTreatment(model.Treatment{ID: 1, ExpectedImpact: map[string]float64{"a": 150, "b": 150}})

	report := NewAnalyzer(nil).Analyze(m.Snapshot())

	assert.Equal(t, 2, report.Count(SeverityWarning))
	assert.Len(t, report.Recommendations, 1)
}

func TestSweep_LogsAtStatusLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	analyzer := NewAnalyzer(zap.New(core))

	m := testModel()
	analyzer.Sweep(m.Snapshot)()

	m.ApplyTreatment(model.Treatment{ID: 1, ExpectedImpact: map[string]float64{"glucose": -25}})
	analyzer.Sweep(m.Snapshot)()

	entries := logs.FilterMessage("Insight sweep").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "WARNING", entries[1].ContextMap()["status"])
}
