// Package notify is the notification relay: every dispatch and every
// ride transition produces one durable record per recipient, which is
// then forwarded best-effort to the recipient's live connection and
// published to the message broker for out-of-process consumers.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/ids"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

// Forwarder pushes an event to a connected recipient; false means the
// recipient is not reachable right now. The websocket hub implements
// this.
type Forwarder interface {
	SendTo(identity, msgType string, payload any) bool
}

// Publisher hands the notification to a broker for durable fan-out
// beyond this process.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

type Relay struct {
	store     storage.NotificationStore
	publisher Publisher // optional
	forwarder Forwarder // optional
	logger    *slog.Logger
}

func NewRelay(store storage.NotificationStore, publisher Publisher, forwarder Forwarder, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{store: store, publisher: publisher, forwarder: forwarder, logger: logger}
}

// Notify persists the record, publishes it and forwards it if the
// recipient is reachable. The returned boolean is the live-delivery
// verdict; persistence or broker trouble is logged, never surfaced,
// because notifications degrade rather than fail operations.
func (r *Relay) Notify(ctx context.Context, recipientID, kind, rideID string, payload map[string]any) bool {
	n := &storage.Notification{
		ID:          ids.New(),
		RecipientID: recipientID,
		Kind:        kind,
		RideID:      rideID,
		Payload:     payload,
		CreatedAt:   time.Now().Unix(),
	}
	if err := r.store.InsertNotification(ctx, n); err != nil {
		r.logger.Error("notification not persisted", "kind", kind, "recipient_id", recipientID, "error", err)
	}
	if r.publisher != nil {
		if body, err := encode(n); err == nil {
			if err := r.publisher.Publish(ctx, "ride."+kind, body); err != nil {
				r.logger.Warn("notification publish failed", "kind", kind, "error", err)
			}
		}
	}
	delivered := r.forwarder != nil && r.forwarder.SendTo(recipientID, kind, payload)
	if delivered {
		if err := r.store.MarkDelivered(ctx, n.ID); err != nil {
			r.logger.Warn("delivered flag not persisted", "notification_id", n.ID, "error", err)
		}
	}
	observability.NotificationsTotal.WithLabelValues(kind).Inc()
	return delivered
}

// RideStatusChanged adapts a ride transition into a notification; it is
// the lifecycle engine's Notifier.
func (r *Relay) RideStatusChanged(ctx context.Context, recipientID string, ride *models.Ride, previous models.RideStatus) {
	payload := map[string]any{
		"ride_id":         ride.ID,
		"status":          string(ride.Status),
		"previous_status": string(previous),
	}
	if ride.DriverID != "" {
		payload["driver_id"] = ride.DriverID
	}
	if ride.CancelReason != "" {
		payload["reason"] = ride.CancelReason
	}
	if ride.Status == models.RideCompleted {
		payload["fare"] = ride.Fare
	}
	r.Notify(ctx, recipientID, "ride_status_changed", ride.ID, payload)
}
