package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for successful invocations. Failed invocations are
// labelled with their engine error kind.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Ability metrics
	InvocationsTotal      *prometheus.CounterVec
	InvocationDuration    *prometheus.HistogramVec
	InvocationErrorsTotal *prometheus.CounterVec

	// Tool server metrics
	BoundTools *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ability_invocations_total",
				Help: "Total number of ability invocations by outcome",
			},
			[]string{"ability", "outcome"},
		),
		InvocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ability_invocation_duration_seconds",
				Help:    "Duration of ability invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"ability"},
		),
		InvocationErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ability_invocation_errors_total",
				Help: "Total number of failed ability invocations by error kind",
			},
			[]string{"ability", "kind"},
		),

		BoundTools: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "toolserver_bound_tools",
				Help: "Number of abilities bound as tools per server",
			},
			[]string{"server"},
		),
	}

	m.registry.MustRegister(m.InvocationsTotal)
	m.registry.MustRegister(m.InvocationDuration)
	m.registry.MustRegister(m.InvocationErrorsTotal)
	m.registry.MustRegister(m.BoundTools)

	return m
}

// RecordInvocation records one invocation. outcome is OutcomeSuccess,
// OutcomeFailure, or an engine error kind.
func (m *Metrics) RecordInvocation(abilityID string, duration time.Duration, outcome string) {
	m.InvocationsTotal.WithLabelValues(abilityID, outcome).Inc()
	m.InvocationDuration.WithLabelValues(abilityID).Observe(duration.Seconds())
	if outcome != OutcomeSuccess && outcome != OutcomeFailure {
		m.InvocationErrorsTotal.WithLabelValues(abilityID, outcome).Inc()
	}
}

// SetBoundTools records how many tools a server has bound
func (m *Metrics) SetBoundTools(serverID string, count int) {
	m.BoundTools.WithLabelValues(serverID).Set(float64(count))
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
