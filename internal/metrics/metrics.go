// Package metrics exposes Prometheus counters for workflow operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hazardline/internal/errclass"
)

const namespace = "hazardline"

type Metrics struct {
	registry    *prometheus.Registry
	operations  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	events      *prometheus.CounterVec
}

// New registers the workflow collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Workflow operations by name and result code.",
		}, []string{"operation", "result"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_transitions_total",
			Help:      "Stage changes by source, target and kind (advance, navigate, reject).",
		}, []string{"from", "to", "kind"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_recorded_total",
			Help:      "Workflow events by type and outcome.",
		}, []string{"type", "outcome"}),
	}
}

// Operation counts one engine call; result is "ok" or the error class code.
func (m *Metrics) Operation(name string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = errclass.Code(err)
		if result == "" {
			result = "error"
		}
	}
	m.operations.WithLabelValues(name, result).Inc()
}

func (m *Metrics) Transition(from, to, kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, kind).Inc()
}

func (m *Metrics) Event(evtType string, err error) {
	if m == nil {
		return
	}
	outcome := "recorded"
	if err != nil {
		outcome = "failed"
	}
	m.events.WithLabelValues(evtType, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
