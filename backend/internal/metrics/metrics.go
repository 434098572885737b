package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fractal"

// Metrics contains the store and HTTP metrics of the service
type Metrics struct {
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
}

// NewMetrics creates unregistered metric collectors
func NewMetrics() *Metrics {
	return &Metrics{
		StoreOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Total number of graph store operations",
			},
			[]string{"operation", "status"},
		),

		StoreDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "operation_duration_seconds",
				Help:      "Graph store operation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
	}
}

// ObserveStoreOperation records the outcome and latency of one store call.
// Safe on a nil receiver.
func (m *Metrics) ObserveStoreOperation(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreOperations.WithLabelValues(operation, status).Inc()
	m.StoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveHTTPRequest counts one served request. Safe on a nil receiver.
func (m *Metrics) ObserveHTTPRequest(method, route string, status int) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.StoreOperations, m.StoreDuration, m.HTTPRequests}
}

// Registry owns a private prometheus registry holding the service metrics
// and the Go runtime collectors
type Registry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
}

// NewRegistry creates a registry with all service metrics registered
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	m := NewMetrics()

	reg.MustRegister(m.collectors()...)
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		prometheusRegistry: reg,
		Metrics:            m,
	}
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prometheusRegistry, promhttp.HandlerOpts{})
}
