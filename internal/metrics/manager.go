// Package metrics holds the Prometheus collectors of the service. Collectors are registered on an explicit registry
// so that tests and multiple servers in one process never share state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "liftguard"

// Manager groups the collectors.
type Manager struct {
	// Verdicts counts validation results by plan source and verdict.
	Verdicts *prometheus.CounterVec
	// Violations counts violations by exceeded limit and severity.
	Violations *prometheus.CounterVec
	// Suggestions counts analyzer suggestions by type and confidence.
	Suggestions *prometheus.CounterVec
	// Generations counts plan generations by source and fallback reason.
	Generations *prometheus.CounterVec
	// GenerationDuration observes plan generation latency including retries.
	GenerationDuration prometheus.Histogram

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Panics          prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewManager registers the collectors on reg, which also serves them from [Manager.Handler].
func NewManager(reg *prometheus.Registry) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "validations_total",
			Help:      "Validated plans by source and verdict",
		}, []string{"source", "verdict"}),
		Violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "safety",
			Name:      "violations_total",
			Help:      "Safety violations by exceeded limit and severity",
		}, []string{"limit", "severity"}),
		Suggestions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "progression",
			Name:      "suggestions_total",
			Help:      "Analyzer suggestions by type and confidence",
		}, []string{"type", "confidence"}),
		Generations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "generations_total",
			Help:      "Plan generations by source and fallback reason",
		}, []string{"source", "reason"}),
		GenerationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ai",
			Name:      "generation_duration_seconds",
			Help:      "Duration of plan generation including retries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern and status code",
		}, []string{"pattern", "status"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration by route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"pattern"}),
		Panics: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "panics_total",
			Help:      "Recovered handler panics",
		}),
		gatherer: reg,
	}
}

// NewProcessManager is [NewManager] on a fresh registry that also exports Go runtime and process metrics.
func NewProcessManager() *Manager {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), //nolint:exhaustruct // defaults.
	)
	return NewManager(reg)
}

// NewTestManagerAndRegistry returns a manager on a fresh registry for tests.
func NewTestManagerAndRegistry() (*Manager, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewManager(reg), reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}) //nolint:exhaustruct // defaults.
}
