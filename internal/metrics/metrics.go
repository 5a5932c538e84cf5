// Package metrics exposes the prometheus collectors of the service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregate_transitions_total",
			Help: "Aggregate transitions by aggregate, operation and result",
		},
		[]string{"aggregate", "operation", "result"},
	)

	eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domain_events_published_total",
			Help: "Domain events handed to publishers",
		},
		[]string{"event_type", "result"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound gateway and carrier webhook events by outcome (applied, duplicate, noop, error)",
		},
		[]string{"source", "outcome"},
	)

	refundedAmountTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_refunded_amount_total",
			Help: "Sum of refunded amounts in minor currency units",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(transitionsTotal)
	prometheus.MustRegister(eventsPublishedTotal)
	prometheus.MustRegister(webhookEventsTotal)
	prometheus.MustRegister(refundedAmountTotal)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordHTTPRequest(method, endpoint, status string, seconds float64) {
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(seconds)
}

// RecordTransition counts an aggregate command; err decides the result label.
func RecordTransition(aggregate, operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	transitionsTotal.WithLabelValues(aggregate, operation, result).Inc()
}

func RecordEventPublished(eventType string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	eventsPublishedTotal.WithLabelValues(eventType, result).Inc()
}

func RecordWebhookEvent(source, outcome string) {
	webhookEventsTotal.WithLabelValues(source, outcome).Inc()
}

func RecordRefundedAmount(units float64) {
	refundedAmountTotal.Add(units)
}
