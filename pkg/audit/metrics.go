package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the run counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Reports        *prometheus.CounterVec
	RemoteAttempts *prometheus.CounterVec
	RemoteLatency  *prometheus.HistogramVec
	Ontologies     *prometheus.CounterVec
}

// NewMetrics registers all metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Reports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ontaudit_reports_total",
				Help: "Report steps by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		RemoteAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ontaudit_remote_attempts_total",
				Help: "Requests sent to remote assessment services",
			},
			[]string{"service", "result"},
		),
		RemoteLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ontaudit_remote_request_seconds",
				Help:    "Remote assessment request latency in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"service"},
		),
		Ontologies: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ontaudit_ontologies_total",
				Help: "Ontologies processed by final status",
			},
			[]string{"status"},
		),
	}
}

// Registry exposes the underlying gatherer.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordReport counts one report step outcome.
func (m *Metrics) RecordReport(kind ReportKind, outcome Status) {
	if m == nil {
		return
	}
	m.Reports.WithLabelValues(string(kind), string(outcome)).Inc()
}

// ObserveRemote records one request to a remote service.
func (m *Metrics) ObserveRemote(service string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.RemoteAttempts.WithLabelValues(service, result).Inc()
	m.RemoteLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}

// RecordOntology counts one finished ontology.
func (m *Metrics) RecordOntology(status Status) {
	if m == nil {
		return
	}
	m.Ontologies.WithLabelValues(string(status)).Inc()
}

// WriteTextfile dumps all metrics in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
