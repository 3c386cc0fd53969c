package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gmsas95/medtwin/internal/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medtwin"

// Advice outcomes
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder receives session and advisor events
type Recorder interface {
	TreatmentApplied(id int)
	TreatmentReverted(id int)
	TreatmentRejected(id int)
	StateChanged(snap model.Snapshot)
	AdviceRequest(outcome string, d time.Duration)
}

type Metrics struct {
	registry *prometheus.Registry

	applied  *prometheus.CounterVec
	reverted *prometheus.CounterVec
	rejected *prometheus.CounterVec

	overallHealth  prometheus.Gauge
	impactScore    *prometheus.GaugeVec
	currentValue   *prometheus.GaugeVec
	activeTreats   prometheus.Gauge
	adviceRequests *prometheus.CounterVec
	adviceDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "treatments_applied_total",
			Help:      "Treatments applied to the session",
		}, []string{"treatment"}),
		reverted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "treatments_reverted_total",
			Help:      "Treatments reverted from the session",
		}, []string{"treatment"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "treatments_rejected_total",
			Help:      "Treatment applications rejected as duplicates",
		}, []string{"treatment"}),
		overallHealth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overall_health",
			Help:      "Rounded mean impact score across all metrics",
		}),
		impactScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_impact_score",
			Help:      "Accumulated impact score per metric",
		}, []string{"metric"}),
		currentValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_current_value",
			Help:      "Derived current value per metric",
		}, []string{"metric"}),
		activeTreats: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_treatments",
			Help:      "Treatments currently applied",
		}),
		adviceRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "advice_requests_total",
			Help:      "Advisory text generation requests",
		}, []string{"outcome"}),
		adviceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "advice_duration_seconds",
			Help:      "Latency of advisory text generation requests",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
	}

	m.registry.MustRegister(
		m.applied,
		m.reverted,
		m.rejected,
		m.overallHealth,
		m.impactScore,
		m.currentValue,
		m.activeTreats,
		m.adviceRequests,
		m.adviceDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) TreatmentApplied(id int) {
	m.applied.WithLabelValues(strconv.Itoa(id)).Inc()
}

func (m *Metrics) TreatmentReverted(id int) {
	m.reverted.WithLabelValues(strconv.Itoa(id)).Inc()
}

func (m *Metrics) TreatmentRejected(id int) {
	m.rejected.WithLabelValues(strconv.Itoa(id)).Inc()
}

func (m *Metrics) StateChanged(snap model.Snapshot) {
	m.overallHealth.Set(float64(snap.OverallHealth))
	m.activeTreats.Set(float64(len(snap.Applied)))

	// Metric keys may change on catalog reload
	m.impactScore.Reset()
	m.currentValue.Reset()
	for key, metric := range snap.Metrics {
		m.impactScore.WithLabelValues(key).Set(metric.ImpactScore)
		m.currentValue.WithLabelValues(key).Set(metric.Current)
	}
}

func (m *Metrics) AdviceRequest(outcome string, d time.Duration) {
	m.adviceRequests.WithLabelValues(outcome).Inc()
	m.adviceDuration.Observe(d.Seconds())
}

// Nop discards everything
type Nop struct{}

func (Nop) TreatmentApplied(int)                {}
func (Nop) TreatmentReverted(int)               {}
func (Nop) TreatmentRejected(int)               {}
func (Nop) StateChanged(model.Snapshot)         {}
func (Nop) AdviceRequest(string, time.Duration) {}
