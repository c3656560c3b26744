package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/booking"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/presence"
	"github.com/example/ride-dispatch/internal/storage"
)

func newTestServer(t *testing.T) (*Server, *presence.Registry) {
	t.Helper()
	reg := presence.NewRegistry(time.Second)
	t.Cleanup(reg.Close)
	store := storage.NewMemoryStore()
	relay := notify.NewRelay(store, nil, nil, nil)
	engine := lifecycle.NewEngine(store, reg, relay, nil, nil)
	alloc := booking.NewAllocator(booking.NewMemoryStore(), nil)
	disp := dispatch.NewDispatcher(reg, relay, nil, nil)
	return NewServer(engine, alloc, disp, reg, nil, nil, nil, nil), reg
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func rideBody() map[string]any {
	return map[string]any{
		"passenger_id":  "p1",
		"pickup":        map[string]any{"lat": 43.23, "lon": 76.88, "name": "Center"},
		"dropoff":       map[string]any{"lat": 43.35, "lon": 77.04, "name": "Airport"},
		"vehicle_class": "economy",
	}
}

func TestCreateRideReturnsFare(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, "POST", "/api/v1/rides", rideBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Ride            models.Ride `json:"ride"`
		DriversNotified int         `json:"drivers_notified"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Ride.ID == "" || resp.Ride.Fare <= 0 {
		t.Fatalf("incomplete ride: %+v", resp.Ride)
	}
	if resp.Ride.Status != models.RideRequested {
		t.Fatalf("status %s", resp.Ride.Status)
	}
	if resp.DriversNotified != 0 {
		t.Fatalf("notified %d with no drivers connected", resp.DriversNotified)
	}
}

func TestCreateRideMalformed(t *testing.T) {
	srv, _ := newTestServer(t)

	body := rideBody()
	body["pickup"] = map[string]any{"lat": 200, "lon": 76.88}
	if rec := doJSON(t, srv, "POST", "/api/v1/rides", body); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad coords: status %d", rec.Code)
	}

	body = rideBody()
	body["vehicle_class"] = "zeppelin"
	if rec := doJSON(t, srv, "POST", "/api/v1/rides", body); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad class: status %d", rec.Code)
	}
}

func createRide(t *testing.T, srv *Server) models.Ride {
	t.Helper()
	rec := doJSON(t, srv, "POST", "/api/v1/rides", rideBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create ride: %d %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Ride models.Ride `json:"ride"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Ride
}

func TestRideStatusTransitions(t *testing.T) {
	srv, _ := newTestServer(t)
	ride := createRide(t, srv)

	rec := doJSON(t, srv, "PUT", "/api/v1/rides/"+ride.ID+"/status",
		map[string]any{"status": "accepted", "actor_id": "d1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", rec.Code, rec.Body.String())
	}
	var updated models.Ride
	_ = json.Unmarshal(rec.Body.Bytes(), &updated)
	if updated.DriverID != "d1" || updated.Status != models.RideAccepted {
		t.Fatalf("accept result: %+v", updated)
	}

	// illegal jump is a 400 naming both statuses
	rec = doJSON(t, srv, "PUT", "/api/v1/rides/"+ride.ID+"/status",
		map[string]any{"status": "completed", "actor_id": "d1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("accepted -> completed: %d", rec.Code)
	}
	var er errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &er)
	if er.From != "accepted" || er.To != "completed" {
		t.Fatalf("error response %+v", er)
	}
}

func TestRideStatusUnknownRide(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, "PUT", "/api/v1/rides/missing/status",
		map[string]any{"status": "accepted", "actor_id": "d1"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestGetRide(t *testing.T) {
	srv, _ := newTestServer(t)
	ride := createRide(t, srv)
	if rec := doJSON(t, srv, "GET", "/api/v1/rides/"+ride.ID, nil); rec.Code != http.StatusOK {
		t.Fatalf("get: %d", rec.Code)
	}
	if rec := doJSON(t, srv, "GET", "/api/v1/rides/none", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get missing: %d", rec.Code)
	}
}

func TestBookingFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv, "POST", "/api/v1/trips", map[string]any{
		"origin":      map[string]any{"lat": 43.2, "lon": 76.9, "name": "A"},
		"destination": map[string]any{"lat": 43.3, "lon": 77.0, "name": "B"},
		"seats_total": 2,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create trip: %d %s", rec.Code, rec.Body.String())
	}
	var trip models.Trip
	_ = json.Unmarshal(rec.Body.Bytes(), &trip)

	rec = doJSON(t, srv, "POST", "/api/v1/bookings",
		map[string]any{"trip_id": trip.ID, "user_id": "u1", "seats": 2})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reserve: %d %s", rec.Code, rec.Body.String())
	}
	var b models.Booking
	_ = json.Unmarshal(rec.Body.Bytes(), &b)

	rec = doJSON(t, srv, "POST", "/api/v1/bookings",
		map[string]any{"trip_id": trip.ID, "user_id": "u2", "seats": 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("overbook: %d", rec.Code)
	}

	rec = doJSON(t, srv, "PUT", fmt.Sprintf("/api/v1/bookings/%s/cancel", b.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, "POST", "/api/v1/bookings",
		map[string]any{"trip_id": trip.ID, "user_id": "u2", "seats": 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("reserve after release: %d %s", rec.Code, rec.Body.String())
	}
}

func TestBookingUnknownTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, "POST", "/api/v1/bookings",
		map[string]any{"trip_id": "none", "user_id": "u1", "seats": 1})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestDriverLocationIngest(t *testing.T) {
	srv, reg := newTestServer(t)
	reg.Register("d1", presence.RoleDriver, nil)

	rec := doJSON(t, srv, "POST", "/internal/driver/locations", map[string]any{
		"driver_id": "d1",
		"loc":       map[string]any{"lat": 43.25, "lon": 76.95},
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status %d %s", rec.Code, rec.Body.String())
	}
	e, ok := reg.Lookup("d1")
	if !ok || e.Location == nil || e.Location.Lat != 43.25 {
		t.Fatalf("presence not touched: %+v", e)
	}

	rec = doJSON(t, srv, "POST", "/internal/driver/locations", map[string]any{
		"driver_id": "",
		"loc":       map[string]any{"lat": 1, "lon": 1},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing driver_id: %d", rec.Code)
	}
}

func TestLocationLookupWithoutMirror(t *testing.T) {
	srv, _ := newTestServer(t)
	if rec := doJSON(t, srv, "GET", "/internal/driver/locations/d1", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
}
