package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the coordinate is inside the WGS84 range.
func (c Coord) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Place is a coordinate plus the display name shown to riders and drivers.
type Place struct {
	Coord
	Name string `json:"name"`
}

type VehicleClass string

const (
	VehicleEconomy VehicleClass = "economy"
	VehiclePremium VehicleClass = "premium"
	VehicleXL      VehicleClass = "xl"
)

func (v VehicleClass) Valid() bool {
	switch v {
	case VehicleEconomy, VehiclePremium, VehicleXL:
		return true
	}
	return false
}

type RideStatus string

const (
	RideRequested RideStatus = "requested"
	RideAccepted  RideStatus = "accepted"
	RidePickedUp  RideStatus = "picked_up"
	RideCompleted RideStatus = "completed"
	RideCanceled  RideStatus = "canceled"
	RideRejected  RideStatus = "rejected"
)

// Terminal reports whether the status has no outgoing transitions.
func (s RideStatus) Terminal() bool {
	switch s {
	case RideCompleted, RideCanceled, RideRejected:
		return true
	}
	return false
}

type Ride struct {
	ID            string       `json:"id"`
	PassengerID   string       `json:"passenger_id"`
	DriverID      string       `json:"driver_id,omitempty"` // empty until accepted
	Pickup        Place        `json:"pickup"`
	Dropoff       Place        `json:"dropoff"`
	VehicleClass  VehicleClass `json:"vehicle_class"`
	DistanceKm    float64      `json:"distance_km"`
	Fare          float64      `json:"fare"`
	PaymentMethod string       `json:"payment_method,omitempty"`
	PaymentRef    string       `json:"payment_ref,omitempty"` // gateway hold reference
	Status        RideStatus   `json:"status"`
	CancelReason  string       `json:"cancel_reason,omitempty"`
	Rating        float64      `json:"rating,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// RideRequest is the inbound payload for creating a ride.
type RideRequest struct {
	PassengerID   string       `json:"passenger_id"`
	Pickup        Place        `json:"pickup"`
	Dropoff       Place        `json:"dropoff"`
	VehicleClass  VehicleClass `json:"vehicle_class"`
	PaymentMethod string       `json:"payment_method,omitempty"`
}

type TripStatus string

const (
	TripScheduled TripStatus = "scheduled"
	TripDeparted  TripStatus = "departed"
	TripCanceled  TripStatus = "canceled"
)

// Trip is a bookable scheduled journey with a fixed seat pool.
type Trip struct {
	ID             string     `json:"id"`
	Origin         Place      `json:"origin"`
	Destination    Place      `json:"destination"`
	DepartAt       time.Time  `json:"depart_at"`
	SeatsTotal     int        `json:"seats_total"`
	SeatsAvailable int        `json:"seats_available"`
	Status         TripStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
}

type BookingStatus string

const (
	BookingActive    BookingStatus = "booked"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type Booking struct {
	ID            string        `json:"id"`
	TripID        string        `json:"trip_id"`
	UserID        string        `json:"user_id"`
	Seats         int           `json:"seats"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// DriverLocation is the ingest payload flowing driver app -> Kafka -> Redis.
type DriverLocation struct {
	DriverID string    `json:"driver_id"`
	Loc      Coord     `json:"loc"`
	Online   bool      `json:"online"`
	Updated  time.Time `json:"updated"`
}
