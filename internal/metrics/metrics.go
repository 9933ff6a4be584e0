package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	KernelEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kos_kernel_events_total",
		Help: "Decision-log events appended, by event type.",
	}, []string{"event_type"})

	OutboxDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kos_outbox_delivered_total",
		Help: "Outbox events handled by workers, by event type and result.",
	}, []string{"event_type", "result"})

	RestructureActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kos_restructure_actions_total",
		Help: "Restructure actions applied or reverted, by action and direction.",
	}, []string{"action", "direction"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kos_http_requests_total",
		Help: "HTTP requests served, by method, route and status class.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kos_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)
