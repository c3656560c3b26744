package ws

import (
	"encoding/json"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Envelope is the wire frame for every realtime message, both
// directions: {"type": ..., "payload": ..., "timestamp": ...}.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Client -> server event types.
const (
	EvAuthenticate             = "authenticate"
	EvDriverAvailable          = "driver_available"
	EvDriverAvailabilityUpdate = "driver_availability_update"
	EvRideRequested            = "ride_requested"
	EvRideAccepted             = "ride_accepted"
	EvRideStatusUpdated        = "ride_status_updated"
	EvDriverLocationUpdate     = "driver_location_update"
	EvJoinRideRoom             = "join_ride_room"
)

// Server -> client event types.
const (
	EvConnectionAcknowledged = "connection_acknowledged"
	EvNewRideRequest         = "new_ride_request"
	EvDriverRideRequest      = "driver_ride_request"
	EvDriversNotified        = "drivers_notified"
	EvRideStatusChanged      = "ride_status_changed"
	EvDriverLocationChanged  = "driver_location_changed"
	EvError                  = "error"
)

type AuthenticatePayload struct {
	Token    string `json:"token,omitempty"`
	Identity string `json:"identity,omitempty"`
	Role     string `json:"role,omitempty"`
}

type DriverAvailablePayload struct {
	VehicleClass models.VehicleClass `json:"vehicle_class"`
	Location     *models.Coord       `json:"location,omitempty"`
}

type AvailabilityUpdatePayload struct {
	Available bool          `json:"available"`
	Location  *models.Coord `json:"location,omitempty"`
}

type RideAcceptedPayload struct {
	RideID   string `json:"ride_id"`
	DriverID string `json:"driver_id,omitempty"`
}

type RideStatusUpdatePayload struct {
	RideID string            `json:"ride_id"`
	Status models.RideStatus `json:"status"`
	Reason string            `json:"reason,omitempty"`
}

type LocationUpdatePayload struct {
	RideID   string       `json:"ride_id,omitempty"`
	Location models.Coord `json:"location"`
}

type JoinRideRoomPayload struct {
	RideID string `json:"ride_id"`
}

// ConnectionAck is sent once after a successful authenticate.
type ConnectionAck struct {
	Identity string `json:"identity"`
	Role     string `json:"role"`
}
