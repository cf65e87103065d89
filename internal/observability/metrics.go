// Package observability exposes Prometheus instrumentation for the analysis
// pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"coursebot/internal/nlu"
)

// Metrics implements nlu.MetricsRecorder on a Prometheus registry.
type Metrics struct {
	analyses *prometheus.CounterVec
	duration prometheus.Histogram
	tokens   prometheus.Counter
}

// NewMetrics registers the pipeline collectors on reg. A nil registry uses
// the default one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coursebot",
			Name:      "analyses_total",
			Help:      "Analyses by resolution method and intent.",
		}, []string{"method", "intent"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "coursebot",
			Name:      "analysis_duration_seconds",
			Help:      "End-to-end analysis latency.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		tokens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "coursebot",
			Name:      "llm_tokens_total",
			Help:      "Model tokens consumed by intent analysis calls.",
		}),
	}
	reg.MustRegister(m.analyses, m.duration, m.tokens)
	return m
}

// ObserveAnalysis records one pipeline outcome.
func (m *Metrics) ObserveAnalysis(method nlu.AnalysisMethod, intent nlu.Intent, duration time.Duration) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(string(method), string(intent)).Inc()
	m.duration.Observe(duration.Seconds())
}

// AddTokens accumulates model token consumption.
func (m *Metrics) AddTokens(total int) {
	if m == nil || total <= 0 {
		return
	}
	m.tokens.Add(float64(total))
}
