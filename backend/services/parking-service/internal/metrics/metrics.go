// Package metrics exposes Prometheus instruments for the parking engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"smartparking/backend/services/parking-service/internal/service"
)

const namespace = "parking"

// Metrics records operation outcomes, latencies and revenue.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	revenue    prometheus.Counter
}

var _ service.Recorder = (*Metrics)(nil)

// New registers instruments on a private registry together with the Go and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by outcome.",
		}, []string{"operation", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_total",
			Help:      "Sum of fares charged at exit.",
		}),
	}
	registry.MustRegister(
		m.operations,
		m.duration,
		m.revenue,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Observe counts one operation and its latency.
func (m *Metrics) Observe(operation, result string, elapsed time.Duration) {
	m.operations.WithLabelValues(operation, result).Inc()
	m.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// Charged adds a collected fare.
func (m *Metrics) Charged(amount decimal.Decimal) {
	if amount.IsNegative() {
		return
	}
	m.revenue.Add(amount.InexactFloat64())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
