package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks the number of outbound API calls to Expander.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "expander_api_requests_total",
			Help: "Total number of Expander API requests made (by endpoint, method, and status).",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration measures the duration of outbound Expander API calls.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "expander_api_request_duration_seconds",
			Help:    "Duration of Expander API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms → ~16s
		},
		[]string{"endpoint", "method"},
	)

	// TokenRefreshesTotal counts successful ID token logins.
	TokenRefreshesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "expander_token_refreshes_total",
			Help: "Number of successful Expander ID token logins.",
		},
	)

	// AuthRetriesTotal counts forced refresh-and-retry cycles after a 401.
	AuthRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "expander_auth_retries_total",
			Help: "Number of requests retried after a 401 forced a token refresh.",
		},
	)

	// NATSPublishErrors tracks NATS publish failures by subject.
	NATSPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Number of NATS publish failures by subject.",
		},
		[]string{"subject"},
	)
)

// IncRequest increments the Expander API request counter.
func IncRequest(endpoint, method, status string) {
	RequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}

// IncNATSPublishError increments the NATS publish error counter for the given subject.
func IncNATSPublishError(subject string) {
	NATSPublishErrors.WithLabelValues(subject).Inc()
}
