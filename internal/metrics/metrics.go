package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arriendo",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)

	visitsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arriendo",
			Name:      "visits_created_total",
			Help:      "Visits booked by channel.",
		},
		[]string{"channel"},
	)

	visitsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "arriendo",
			Name:      "visits_rejected_total",
			Help:      "Visit submissions rejected by error code.",
		},
		[]string{"code"},
	)

	idempotentReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "arriendo",
			Name:      "visits_idempotent_replays_total",
			Help:      "Visit submissions answered from an earlier request with the same key.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, visitsCreated, visitsRejected, idempotentReplays)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint, status string) {
	httpRequests.WithLabelValues(endpoint, status).Inc()
}

func IncVisitCreated(channel string) {
	if channel == "" {
		channel = "unknown"
	}
	visitsCreated.WithLabelValues(channel).Inc()
}

func IncVisitRejected(code string) {
	if code == "" {
		code = "INTERNAL"
	}
	visitsRejected.WithLabelValues(code).Inc()
}

func IncIdempotentReplay() {
	idempotentReplays.Inc()
}
