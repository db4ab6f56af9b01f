// Package metrics provides Prometheus instrumentation for revealer.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Request registry metrics
	requestCreateTotal *prometheus.CounterVec
	requestCancelTotal *prometheus.CounterVec
	fulfillmentTotal   *prometheus.CounterVec

	// Oracle gateway metrics
	dispatchTotal *prometheus.CounterVec

	// Admin metrics
	adminUpdateTotal *prometheus.CounterVec

	// Event metrics
	eventPublishTotal *prometheus.CounterVec

	rateLimitedTotal *prometheus.CounterVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled || httpRequestsTotal != nil {
		return
	}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	requestCreateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_request_total",
			Help: "Total number of verification requests created",
		},
		[]string{"status"},
	)

	requestCancelTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_cancel_total",
			Help: "Total number of verification request cancellations",
		},
		[]string{"status"},
	)

	fulfillmentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_fulfillment_total",
			Help: "Total number of fulfillments delivered by the oracle",
		},
		[]string{"result"},
	)

	dispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "oracle_dispatch_total",
			Help: "Total number of request descriptors dispatched to the oracle",
		},
		[]string{"status"},
	)

	adminUpdateTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admin_update_total",
			Help: "Total number of admin parameter updates",
		},
		[]string{"param", "status"},
	)

	eventPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "event_publish_total",
			Help: "Total number of events published per sink",
		},
		[]string{"sink", "status"},
	)

	rateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Total number of requests rejected by a rate limiter",
		},
		[]string{"scope"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
