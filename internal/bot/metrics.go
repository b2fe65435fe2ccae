package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	UpdatesTotal         *prometheus.CounterVec
	ActionsTotal         *prometheus.CounterVec
	DialogTurns          *prometheus.CounterVec
	BookingsCreated      *prometheus.CounterVec
	RateLimited          prometheus.Counter
	ErrorsTotal          prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
}

// NewMetrics registers the bot collectors on reg. Tests pass a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		UpdatesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditorium_bot_updates_total",
			Help: "Telegram updates received, by kind",
		}, []string{"kind"}),

		ActionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditorium_bot_actions_total",
			Help: "Menu actions pressed, by action",
		}, []string{"action"}),

		DialogTurns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditorium_bot_dialog_turns_total",
			Help: "Booking dialog turns, by outcome",
		}, []string{"outcome"}),

		BookingsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditorium_bot_bookings_created_total",
			Help: "Reservations created through the bot",
		}, []string{"room"}),

		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "auditorium_bot_rate_limited_total",
			Help: "Updates dropped by the per-user rate limit",
		}),

		ErrorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "auditorium_bot_errors_total",
			Help: "Panics recovered while handling updates",
		}),

		UpdateProcessingTime: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditorium_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
