package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for search requests and retries.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_requests_total",
		Help: "Total Jira search requests by partition and status",
	}, []string{"partition", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jira_request_duration_seconds",
		Help:    "Jira search request duration in seconds by partition",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"partition"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_errors_total",
		Help: "Total failed Jira search attempts by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jira_retry_backoff_seconds",
		Help:    "Delay before retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)
