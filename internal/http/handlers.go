package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/example/ride-dispatch/internal/booking"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var req models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	ride, err := s.engine.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, lifecycle.ErrBadRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("create ride failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	notified := s.disp.Dispatch(r.Context(), ride)
	writeJSON(w, http.StatusCreated, map[string]any{
		"ride":             ride,
		"drivers_notified": notified,
	})
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.engine.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "ride not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

type transitionRequest struct {
	Status  models.RideStatus `json:"status"`
	ActorID string            `json:"actor_id"`
	Reason  string            `json:"reason,omitempty"`
	Rating  float64           `json:"rating,omitempty"`
}

func (s *Server) handleRideStatus(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	ride, err := s.engine.Transition(r.Context(), mux.Vars(r)["id"], req.Status, req.ActorID,
		lifecycle.Opts{Reason: req.Reason, Rating: req.Rating})
	if err != nil {
		var ite *lifecycle.InvalidTransitionError
		switch {
		case errors.As(err, &ite):
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error: "invalid transition",
				From:  string(ite.From),
				To:    string(ite.To),
			})
		case errors.Is(err, lifecycle.ErrReasonRequired), errors.Is(err, lifecycle.ErrDriverRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "ride not found")
		default:
			s.logger.Error("transition failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

type createTripRequest struct {
	Origin      models.Place `json:"origin"`
	Destination models.Place `json:"destination"`
	DepartAt    time.Time    `json:"depart_at"`
	SeatsTotal  int          `json:"seats_total"`
}

func (s *Server) handleCreateTrip(w http.ResponseWriter, r *http.Request) {
	var req createTripRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	trip, err := s.allocator.CreateTrip(r.Context(), &models.Trip{
		Origin:      req.Origin,
		Destination: req.Destination,
		DepartAt:    req.DepartAt,
		SeatsTotal:  req.SeatsTotal,
	})
	if err != nil {
		if errors.Is(err, booking.ErrInvalidSeats) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("create trip failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusCreated, trip)
}

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	trip, err := s.allocator.GetTrip(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "trip not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, trip)
}

type createBookingRequest struct {
	TripID string `json:"trip_id"`
	UserID string `json:"user_id"`
	Seats  int    `json:"seats"`
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	b, err := s.allocator.Reserve(r.Context(), req.TripID, req.UserID, req.Seats)
	if err != nil {
		switch {
		case errors.Is(err, booking.ErrInsufficientCapacity),
			errors.Is(err, booking.ErrTripNotBookable),
			errors.Is(err, booking.ErrInvalidSeats):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, storage.ErrNotFound):
			writeError(w, http.StatusNotFound, "trip not found")
		default:
			s.logger.Error("reserve failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.allocator.Release(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "booking not found")
			return
		}
		s.logger.Error("release failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	b, err := s.allocator.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var loc models.DriverLocation
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if loc.DriverID == "" || !loc.Loc.Valid() {
		writeError(w, http.StatusBadRequest, "driver_id and valid coordinates required")
		return
	}
	if loc.Updated.IsZero() {
		loc.Updated = time.Now()
	}
	loc.Online = true
	if s.producer != nil {
		if err := s.producer.PublishLocation(loc); err != nil {
			s.logger.Warn("location publish failed", "driver_id", loc.DriverID, "error", err)
		}
	}
	s.registry.Touch(loc.DriverID, &loc.Loc)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLastKnownLocation(w http.ResponseWriter, r *http.Request) {
	if s.mirror == nil {
		writeError(w, http.StatusServiceUnavailable, "location mirror not configured")
		return
	}
	loc, ok, err := s.mirror.LastKnown(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.logger.Warn("location lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no known location")
		return
	}
	writeJSON(w, http.StatusOK, loc)
}
