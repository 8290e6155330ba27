// Package metrics records broker activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder matches linkauth.Recorder so either implementation can be
// handed to a Broker.
type Recorder interface {
	RecordDecision(operation, outcome string, elapsed time.Duration)
	RecordTokenIssued()
	RecordTokenValidation(valid bool)
	RecordStoreError(kind string)
}

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds the broker's Prometheus collectors on its own registry.
type Metrics struct {
	Registry *prometheus.Registry

	DecisionsTotal       *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	TokensIssuedTotal    prometheus.Counter
	TokenValidationTotal *prometheus.CounterVec
	StoreErrorsTotal     *prometheus.CounterVec
}

// Init returns Prometheus metrics when enabled and a no-op recorder otherwise.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}
	return New()
}

// New registers a fresh set of collectors on a new registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkauth_decisions_total",
			Help: "Authentication decisions by operation and outcome.",
		}, []string{"operation", "outcome"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "linkauth_operation_duration_seconds",
			Help:    "Time spent deciding and persisting an authentication event.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		TokensIssuedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "linkauth_tokens_issued_total",
			Help: "Bearer tokens issued.",
		}),
		TokenValidationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkauth_token_validation_total",
			Help: "Bearer token validations by result.",
		}, []string{"result"}),
		StoreErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "linkauth_store_errors_total",
			Help: "Account store failures by kind.",
		}, []string{"kind"}),
	}
}

func (m *Metrics) RecordDecision(operation, outcome string, elapsed time.Duration) {
	m.DecisionsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordTokenIssued() {
	m.TokensIssuedTotal.Inc()
}

func (m *Metrics) RecordTokenValidation(valid bool) {
	result := "invalid"
	if valid {
		result = "valid"
	}
	m.TokenValidationTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordStoreError(kind string) {
	m.StoreErrorsTotal.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
