package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auditorium",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status class.",
		},
		[]string{"route", "code"},
	)

	reservationOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auditorium",
			Name:      "reservation_operations_total",
			Help:      "Reservation create/cancel attempts by outcome.",
		},
		[]string{"op", "outcome"},
	)
)

// Register registers the shared collectors with the default registry. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, reservationOps)
	})
}

// IncHTTP counts one served request. code is a class like "2xx".
func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}

func IncReservation(op, outcome string) {
	reservationOps.WithLabelValues(op, outcome).Inc()
}

// StatusClass maps an HTTP status to its Nxx label.
func StatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
