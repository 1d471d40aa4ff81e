package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsign_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docsign_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	// SignaturesTotal counts signing attempts by kind and outcome.
	SignaturesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsign_signatures_total",
			Help: "Signing attempts by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsign_verifications_total",
			Help: "Signature verifications by result",
		},
		[]string{"result"},
	)
	WorkflowTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docsign_workflow_transitions_total",
			Help: "Workflow status transitions",
		},
		[]string{"status"},
	)
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docsign_rate_limited_total",
			Help: "Requests refused by the rate limiter",
		},
	)
)
