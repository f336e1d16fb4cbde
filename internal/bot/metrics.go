package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics структура для метрик Prometheus
type Metrics struct {
	UpdateProcessingTime prometheus.Histogram
	ErrorsTotal          prometheus.Counter
	WizardsOpened        prometheus.Counter
	VisitsBooked         prometheus.Counter
	BookingFailures      *prometheus.CounterVec
	RateLimited          prometheus.Counter
}

// NewMetrics registers the bot metrics in reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UpdateProcessingTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "arriendo_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),
		ErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "arriendo_bot_errors_total",
			Help: "Panics recovered while handling updates",
		}),
		WizardsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "arriendo_bot_wizards_opened_total",
			Help: "Visit wizards opened from chat",
		}),
		VisitsBooked: f.NewCounter(prometheus.CounterOpts{
			Name: "arriendo_bot_visits_booked_total",
			Help: "Visits booked from chat",
		}),
		BookingFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arriendo_bot_booking_failures_total",
			Help: "Failed bookings by error code",
		}, []string{"code"}),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "arriendo_bot_rate_limited_total",
			Help: "Updates dropped by the per-chat limiter",
		}),
	}
}
