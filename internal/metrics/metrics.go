package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "recolha"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsAdmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_admitted_total",
			Help:      "Bookings accepted and persisted.",
		},
	)

	bookingsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_rejected_total",
			Help:      "Booking requests rejected by reason.",
		},
		[]string{"reason"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Status transitions attempted, by target status and result.",
		},
		[]string{"status", "result"},
	)

	municipalityRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "municipality_refresh_total",
			Help:      "Municipality directory refreshes by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsAdmitted,
			bookingsRejected,
			bookingTransitions,
			municipalityRefreshes,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncAdmitted() {
	bookingsAdmitted.Inc()
}

// IncRejected counts a refused booking; reason is "validation", "capacity" or "unavailable".
func IncRejected(reason string) {
	bookingsRejected.WithLabelValues(reason).Inc()
}

func IncTransition(status string, applied bool) {
	result := "rejected"
	if applied {
		result = "applied"
	}
	bookingTransitions.WithLabelValues(status, result).Inc()
}

func IncMunicipalityRefresh(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	municipalityRefreshes.WithLabelValues(result).Inc()
}
