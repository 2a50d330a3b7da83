// Package metrics provides Prometheus collectors for store operations.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Zereker/storekit/pkg/errdefs"
)

// StoreBuckets covers in-memory lookups up to slow remote k-NN searches, 1ms to 10s.
var StoreBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 10}

// Config 指标配置
type Config struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Enabled && c.Path == "" {
		c.Path = "/metrics"
	}
	return nil
}

// Collectors groups the store metrics so tests can use a private registry.
type Collectors struct {
	// Operations counts store calls by store, backend, operation and outcome.
	Operations *prometheus.CounterVec

	// Duration records store call latency in seconds.
	Duration *prometheus.HistogramVec

	// QueryResults records how many hits each query returned.
	QueryResults *prometheus.HistogramVec
}

// New creates unregistered collectors.
func New() *Collectors {
	return &Collectors{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storekit_store_operations_total",
				Help: "Store operations",
			},
			[]string{"store", "backend", "op", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storekit_store_operation_duration_seconds",
				Help:    "Store operation duration",
				Buckets: StoreBuckets,
			},
			[]string{"store", "backend", "op"},
		),
		QueryResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storekit_query_results",
				Help:    "Hits returned per query",
				Buckets: prometheus.LinearBuckets(0, 5, 10),
			},
			[]string{"store", "backend"},
		),
	}
}

// MustRegister registers every collector with reg.
func (c *Collectors) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(c.Operations, c.Duration, c.QueryResults)
}

// Observe records one finished operation.
func (c *Collectors) Observe(store, backend, op string, start time.Time, err error) {
	c.Operations.WithLabelValues(store, backend, op, Status(err)).Inc()
	c.Duration.WithLabelValues(store, backend, op).Observe(time.Since(start).Seconds())
}

// ObserveResults records the size of a query result.
func (c *Collectors) ObserveResults(store, backend string, n int) {
	c.QueryResults.WithLabelValues(store, backend).Observe(float64(n))
}

// Status maps an error to a low-cardinality label value.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errdefs.ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, errdefs.ErrQuery), errors.Is(err, errdefs.ErrDimensionMismatch):
		return "invalid"
	default:
		return "error"
	}
}
