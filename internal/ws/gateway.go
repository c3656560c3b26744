package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/auth"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/presence"
)

// LocationPublisher feeds driver coordinates into the ingest pipeline.
type LocationPublisher interface {
	PublishLocation(loc models.DriverLocation) error
}

// Gateway turns inbound websocket events into calls on the presence
// registry, the dispatcher and the lifecycle engine. Each connection's
// events are handled by its own read pump goroutine, one at a time, so
// per-client handling is serialized by construction.
type Gateway struct {
	hub      *Hub
	registry *presence.Registry
	engine   *lifecycle.Engine
	disp     *dispatch.Dispatcher
	verifier *auth.Verifier     // nil: trust the identity field (dev mode)
	producer LocationPublisher  // optional
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewGateway(hub *Hub, registry *presence.Registry, engine *lifecycle.Engine, disp *dispatch.Dispatcher, verifier *auth.Verifier, producer LocationPublisher, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		hub:      hub,
		registry: registry,
		engine:   engine,
		disp:     disp,
		verifier: verifier,
		producer: producer,
		logger:   logger,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and runs the session pumps.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	c := newClient(conn)
	go c.writePump()
	go c.readPump(g.handle, g.onClose)
}

func (g *Gateway) onClose(c *Client) {
	if !c.authenticated() {
		return
	}
	if !g.hub.remove(c) {
		// a replacement connection owns this identity; its presence
		// entry must survive the old socket's close
		return
	}
	g.registry.OnDisconnect(c.identity)
	g.logger.Info("client disconnected", "identity", c.identity, "role", c.role)
}

func (g *Gateway) handle(c *Client, env Envelope) {
	if env.Type == EvAuthenticate {
		g.handleAuthenticate(c, env.Payload)
		return
	}
	if !c.authenticated() {
		_ = c.Send(EvError, map[string]string{"error": "authenticate first"})
		return
	}

	switch env.Type {
	case EvDriverAvailable:
		g.handleDriverAvailable(c, env.Payload)
	case EvDriverAvailabilityUpdate:
		g.handleAvailabilityUpdate(c, env.Payload)
	case EvRideRequested:
		g.handleRideRequested(c, env.Payload)
	case EvRideAccepted:
		g.handleRideAccepted(c, env.Payload)
	case EvRideStatusUpdated:
		g.handleRideStatusUpdated(c, env.Payload)
	case EvDriverLocationUpdate:
		g.handleLocationUpdate(c, env.Payload)
	case EvJoinRideRoom:
		g.handleJoinRideRoom(c, env.Payload)
	default:
		_ = c.Send(EvError, map[string]string{"error": "unknown event type: " + env.Type})
	}
}

func (g *Gateway) handleAuthenticate(c *Client, raw json.RawMessage) {
	var p AuthenticatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		_ = c.Send(EvError, map[string]string{"error": "malformed authenticate payload"})
		return
	}
	identity, role := p.Identity, p.Role
	if g.verifier != nil {
		var err error
		identity, role, err = g.verifier.Identity(p.Token)
		if err != nil {
			_ = c.Send(EvError, map[string]string{"error": "authentication failed"})
			c.close()
			return
		}
	}
	if identity == "" {
		_ = c.Send(EvError, map[string]string{"error": "identity required"})
		return
	}
	c.identity = identity
	c.role = presence.RolePassenger
	if role == string(presence.RoleDriver) {
		c.role = presence.RoleDriver
	}
	g.registry.Register(identity, c.role, c)
	g.hub.add(c)
	_ = c.Send(EvConnectionAcknowledged, ConnectionAck{Identity: identity, Role: string(c.role)})
	g.logger.Info("client authenticated", "identity", identity, "role", c.role)
}

func (g *Gateway) handleDriverAvailable(c *Client, raw json.RawMessage) {
	var p DriverAvailablePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		_ = c.Send(EvError, map[string]string{"error": "malformed payload"})
		return
	}
	if p.VehicleClass != "" {
		g.registry.SetVehicleClass(c.identity, p.VehicleClass)
	}
	g.registry.SetAvailability(c.identity, true, p.Location)
	g.publishLocation(c, p.Location, true)
}

func (g *Gateway) handleAvailabilityUpdate(c *Client, raw json.RawMessage) {
	var p AvailabilityUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		_ = c.Send(EvError, map[string]string{"error": "malformed payload"})
		return
	}
	g.registry.SetAvailability(c.identity, p.Available, p.Location)
	g.publishLocation(c, p.Location, p.Available)
}

func (g *Gateway) handleRideRequested(c *Client, raw json.RawMessage) {
	var req models.RideRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		_ = c.Send(EvError, map[string]string{"error": "malformed ride request"})
		return
	}
	req.PassengerID = c.identity
	ctx := context.Background()
	ride, err := g.engine.Create(ctx, req)
	if err != nil {
		_ = c.Send(EvError, map[string]string{"error": err.Error()})
		return
	}
	g.hub.joinRoom(ride.ID, c)
	g.disp.Dispatch(ctx, ride)
}

func (g *Gateway) handleRideAccepted(c *Client, raw json.RawMessage) {
	var p RideAcceptedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		_ = c.Send(EvError, map[string]string{"error": "malformed payload"})
		return
	}
	g.applyTransition(c, p.RideID, models.RideAccepted, lifecycle.Opts{})
}

func (g *Gateway) handleRideStatusUpdated(c *Client, raw json.RawMessage) {
	var p RideStatusUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		_ = c.Send(EvError, map[string]string{"error": "malformed payload"})
		return
	}
	g.applyTransition(c, p.RideID, p.Status, lifecycle.Opts{Reason: p.Reason})
}

func (g *Gateway) applyTransition(c *Client, rideID string, target models.RideStatus, opts lifecycle.Opts) {
	_, err := g.engine.Transition(context.Background(), rideID, target, c.identity, opts)
	if err != nil {
		var ite *lifecycle.InvalidTransitionError
		if errors.As(err, &ite) {
			_ = c.Send(EvError, map[string]string{
				"error":     "invalid transition",
				"from":      string(ite.From),
				"requested": string(ite.To),
			})
			return
		}
		_ = c.Send(EvError, map[string]string{"error": err.Error()})
	}
}

func (g *Gateway) handleLocationUpdate(c *Client, raw json.RawMessage) {
	var p LocationUpdatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		_ = c.Send(EvError, map[string]string{"error": "malformed payload"})
		return
	}
	g.registry.Touch(c.identity, &p.Location)
	g.publishLocation(c, &p.Location, true)
	if p.RideID != "" {
		g.hub.BroadcastRoom(p.RideID, c.identity, EvDriverLocationChanged, map[string]any{
			"ride_id":   p.RideID,
			"driver_id": c.identity,
			"location":  p.Location,
		})
	}
}

func (g *Gateway) handleJoinRideRoom(c *Client, raw json.RawMessage) {
	var p JoinRideRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RideID == "" {
		_ = c.Send(EvError, map[string]string{"error": "malformed payload"})
		return
	}
	g.hub.joinRoom(p.RideID, c)
}

func (g *Gateway) publishLocation(c *Client, loc *models.Coord, online bool) {
	if g.producer == nil || loc == nil || c.role != presence.RoleDriver {
		return
	}
	err := g.producer.PublishLocation(models.DriverLocation{
		DriverID: c.identity,
		Loc:      *loc,
		Online:   online,
		Updated:  time.Now(),
	})
	if err != nil {
		g.logger.Warn("location publish failed", "driver_id", c.identity, "error", err)
	}
}
