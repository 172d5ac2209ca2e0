// Package metrics exposes workflow counters for Prometheus. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderline"

type Metrics struct {
	registry *prometheus.Registry

	transitions     *prometheus.CounterVec
	assignments     *prometheus.CounterVec
	failures        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed status transitions.",
		},
		[]string{"kind", "from", "to"},
	)
	m.assignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_total",
			Help:      "Assignment operations by outcome.",
		},
		[]string{"kind", "op", "outcome"},
	)
	m.failures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Rejected workflow operations by error kind.",
		},
		[]string{"op", "error"},
	)
	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)
	m.registry.MustRegister(m.transitions, m.assignments, m.failures, m.requestDuration)
	return m
}

func (m *Metrics) Transition(kind, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind, from, to).Inc()
}

// Assignment records a claim, release, assign, unassign or reassign attempt.
// outcome is "ok" or the error kind.
func (m *Metrics) Assignment(kind, op, outcome string) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(kind, op, outcome).Inc()
}

func (m *Metrics) Failure(op, errKind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(op, errKind).Inc()
}

func (m *Metrics) ObserveRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(d.Seconds())
}

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
