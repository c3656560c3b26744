package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/booking"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/locations"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/presence"
)

// LocationPublisher matches the Kafka producer; optional.
type LocationPublisher interface {
	PublishLocation(loc models.DriverLocation) error
}

type Server struct {
	engine    *lifecycle.Engine
	allocator *booking.Allocator
	disp      *dispatch.Dispatcher
	registry  *presence.Registry
	gateway   http.Handler
	producer  LocationPublisher      // nil: ingest disabled
	mirror    *locations.RedisMirror // nil: location lookups disabled
	logger    *slog.Logger
	mux       *mux.Router
}

func NewServer(engine *lifecycle.Engine, allocator *booking.Allocator, disp *dispatch.Dispatcher, registry *presence.Registry, gateway http.Handler, producer LocationPublisher, mirror *locations.RedisMirror, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	s := &Server{
		engine:    engine,
		allocator: allocator,
		disp:      disp,
		registry:  registry,
		gateway:   gateway,
		producer:  producer,
		mirror:    mirror,
		logger:    logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides", s.handleCreateRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{id}/status", s.handleRideStatus).Methods("PUT")

	s.mux.HandleFunc("/api/v1/trips", s.handleCreateTrip).Methods("POST")
	s.mux.HandleFunc("/api/v1/trips/{id}", s.handleGetTrip).Methods("GET")
	s.mux.HandleFunc("/api/v1/bookings", s.handleCreateBooking).Methods("POST")
	s.mux.HandleFunc("/api/v1/bookings/{id}/cancel", s.handleCancelBooking).Methods("PUT")

	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/internal/driver/locations/{id}", s.handleLastKnownLocation).Methods("GET")

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	if s.gateway != nil {
		s.mux.Handle("/ws", s.gateway)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }
