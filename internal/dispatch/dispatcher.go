// Package dispatch fans a new ride request out to every available
// driver. It is matching without reservation: many drivers may see the
// same request, and the lifecycle engine is the single place that
// enforces at-most-one acceptance.
package dispatch

import (
	"context"
	"log/slog"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/presence"
)

// Registry is the slice of the presence registry the dispatcher reads.
type Registry interface {
	ListAvailable(role presence.Role, class models.VehicleClass) []presence.Entry
}

// Relay produces one durable notification per driver and reports
// whether it reached a live connection.
type Relay interface {
	Notify(ctx context.Context, recipientID, kind, rideID string, payload map[string]any) bool
}

// Broadcaster covers the race between socket connect and presence
// registration: drivers connected but not yet registered still hear
// about the request on the role channel.
type Broadcaster interface {
	BroadcastToRole(role presence.Role, msgType string, payload any)
}

type Dispatcher struct {
	registry  Registry
	relay     Relay
	broadcast Broadcaster
	logger    *slog.Logger
}

func NewDispatcher(registry Registry, relay Relay, broadcast Broadcaster, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, relay: relay, broadcast: broadcast, logger: logger}
}

// Dispatch notifies every driver in a point-in-time snapshot of the
// registry exactly once and returns how many were actually reached.
// A driver whose connection died mid-send is excluded from the count,
// not treated as a failure; presence is best-effort.
func (d *Dispatcher) Dispatch(ctx context.Context, ride *models.Ride) int {
	summary := Summary(ride)
	entries := d.registry.ListAvailable(presence.RoleDriver, ride.VehicleClass)

	notified := 0
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		if d.relay.Notify(ctx, e.ID, "new_ride_request", ride.ID, summary) {
			notified++
		}
	}

	if d.broadcast != nil {
		d.broadcast.BroadcastToRole(presence.RoleDriver, "driver_ride_request", summary)
	}

	d.relay.Notify(ctx, ride.PassengerID, "drivers_notified", ride.ID, map[string]any{
		"ride_id": ride.ID,
		"count":   notified,
	})

	observability.DispatchesTotal.Inc()
	observability.DriversNotified.Observe(float64(notified))
	d.logger.Info("ride dispatched", "ride_id", ride.ID, "eligible", len(entries), "notified", notified)
	return notified
}

// Summary is the per-driver view of a ride request.
func Summary(ride *models.Ride) map[string]any {
	return map[string]any{
		"ride_id":       ride.ID,
		"passenger_id":  ride.PassengerID,
		"pickup":        ride.Pickup,
		"dropoff":       ride.Dropoff,
		"vehicle_class": string(ride.VehicleClass),
		"fare":          ride.Fare,
		"distance_km":   ride.DistanceKm,
	}
}
