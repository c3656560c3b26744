package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DriversAvailable = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "drivers_available", Help: "Drivers currently available for matching"})
	WSConnections    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "ws_connections", Help: "Open websocket connections"})

	DispatchesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "dispatches_total", Help: "Ride requests fanned out to drivers"})
	DriversNotified = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ride_dispatch",
		Name:      "drivers_notified_per_dispatch",
		Help:      "Drivers individually notified per dispatch pass",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
	})

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "ride_transitions_total", Help: "Successful ride status transitions"},
		[]string{"to"},
	)
	InvalidTransitions = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "ride_invalid_transitions_total", Help: "Rejected ride status transitions"})

	BookingsReserved = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "bookings_reserved_total", Help: "Bookings successfully reserved"})
	BookingsReleased = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "bookings_released_total", Help: "Bookings released back to the pool"})
	SeatsCommitted   = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_dispatch", Name: "seats_committed", Help: "Seats currently committed across trips"})

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "notifications_total", Help: "Durable notifications emitted"},
		[]string{"kind"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
