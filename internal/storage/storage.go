package storage

import (
	"context"
	"errors"

	"github.com/example/ride-dispatch/internal/models"
)

// ErrNotFound is returned for unknown ride/trip/booking/notification ids.
var ErrNotFound = errors.New("not found")

// RideStore defines persistence operations for rides. Rides are never
// deleted, only transitioned to a terminal status.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	UpdateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, id string) (*models.Ride, error)
	ListRidesByStatus(ctx context.Context, status models.RideStatus) ([]*models.Ride, error)
}

// Notification is the durable record the relay persists before any
// best-effort forwarding happens.
type Notification struct {
	ID          string         `json:"id"`
	RecipientID string         `json:"recipient_id"`
	Kind        string         `json:"kind"`
	RideID      string         `json:"ride_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Delivered   bool           `json:"delivered"`
	CreatedAt   int64          `json:"created_at"` // unix seconds
}

type NotificationStore interface {
	InsertNotification(ctx context.Context, n *Notification) error
	MarkDelivered(ctx context.Context, id string) error
}
