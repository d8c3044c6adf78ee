// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gengate"

// Buckets sized for LLM generation latencies, which routinely run into tens
// of seconds.
var durationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Collector registers and records the gateway's metrics. All metrics live in
// a private registry, so tests can construct collectors freely without
// tripping duplicate-registration panics.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	upstreamRequests *prometheus.CounterVec
}

// NewCollector constructs a Collector with all metrics registered.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of generation requests processed.",
		},
		[]string{"provider", "model", "status"},
	)
	c.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Duration of generation requests in seconds.",
			Buckets:   durationBuckets,
		},
		[]string{"provider", "model"},
	)
	c.upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of upstream responses by HTTP status code.",
		},
		[]string{"provider", "code"},
	)

	c.registry.MustRegister(c.requestsTotal, c.requestDuration, c.upstreamRequests)
	return c
}

// RecordRequest records one completed generation request.
func (c *Collector) RecordRequest(provider, model, status string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(provider, model, status).Inc()
	c.requestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordUpstream counts one upstream response by status code.
func (c *Collector) RecordUpstream(provider string, code int) {
	c.upstreamRequests.WithLabelValues(provider, strconv.Itoa(code)).Inc()
}

// Handler serves the collector's registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
