// Package metrics exposes Prometheus instrumentation for the chat service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Completion outcomes.
const (
	OutcomeOK                = "ok"
	OutcomeTransportError    = "transport_error"
	OutcomeMissingCredential = "missing_credential"
	OutcomeRefused           = "refused"
)

// Metrics groups the service collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	messagesPersisted  prometheus.Counter
	repliesFiltered    *prometheus.CounterVec
	completionRequests *prometheus.CounterVec
	completionDuration prometheus.Histogram
	persistenceErrors  *prometheus.CounterVec
	openSurfaces       prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messagesPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "doubtsolver_messages_persisted_total",
			Help: "Total number of chat messages written to history",
		}),
		repliesFiltered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doubtsolver_replies_filtered_total",
				Help: "Total number of replies shown but kept out of history",
			},
			[]string{"rule"},
		),
		completionRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doubtsolver_completion_requests_total",
				Help: "Total number of completion requests",
			},
			[]string{"outcome"},
		),
		completionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "doubtsolver_completion_duration_seconds",
			Help:    "Completion request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		persistenceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "doubtsolver_persistence_errors_total",
				Help: "Total number of failed history operations",
			},
			[]string{"op"},
		),
		openSurfaces: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "doubtsolver_open_surfaces",
			Help: "Number of chat surfaces currently open",
		}),
	}

	m.registry.MustRegister(
		m.messagesPersisted,
		m.repliesFiltered,
		m.completionRequests,
		m.completionDuration,
		m.persistenceErrors,
		m.openSurfaces,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MessagesPersisted counts n messages written to history.
func (m *Metrics) MessagesPersisted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.messagesPersisted.Add(float64(n))
}

// ReplyFiltered counts a reply withheld from history by rule.
func (m *Metrics) ReplyFiltered(rule string) {
	if m == nil {
		return
	}
	m.repliesFiltered.WithLabelValues(rule).Inc()
}

// CompletionRequest records one completion call.
func (m *Metrics) CompletionRequest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.completionRequests.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.completionDuration.Observe(d.Seconds())
	}
}

// PersistenceError counts a failed history operation.
func (m *Metrics) PersistenceError(op string) {
	if m == nil {
		return
	}
	m.persistenceErrors.WithLabelValues(op).Inc()
}

// SurfaceOpened increments the open surface gauge.
func (m *Metrics) SurfaceOpened() {
	if m == nil {
		return
	}
	m.openSurfaces.Inc()
}

// SurfaceClosed decrements the open surface gauge.
func (m *Metrics) SurfaceClosed() {
	if m == nil {
		return
	}
	m.openSurfaces.Dec()
}
