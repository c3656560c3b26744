// Package lifecycle owns the ride status state machine. Every status
// change in the system funnels through Engine.Transition, which
// serializes per ride: of two racing accepts exactly one wins, the
// other gets InvalidTransition because the ride is no longer requested.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/fare"
	"github.com/example/ride-dispatch/internal/ids"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/storage"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrReasonRequired    = errors.New("cancel reason required")
	ErrDriverRequired    = errors.New("driver id required")
	ErrBadRequest        = errors.New("malformed ride request")
)

// InvalidTransitionError identifies the current and the requested
// status; it unwraps to ErrInvalidTransition.
type InvalidTransitionError struct {
	From, To models.RideStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// successors is the full transition table. Statuses missing from the
// map are terminal.
var successors = map[models.RideStatus][]models.RideStatus{
	models.RideRequested: {models.RideAccepted, models.RideRejected, models.RideCanceled},
	models.RideAccepted:  {models.RidePickedUp, models.RideCanceled},
	models.RidePickedUp:  {models.RideCompleted, models.RideCanceled},
}

func allowed(from, to models.RideStatus) bool {
	for _, s := range successors[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Presence is the slice of the registry the engine needs: flipping a
// driver's availability as rides bind and unbind them.
type Presence interface {
	SetAvailability(id string, available bool, loc *models.Coord)
}

// Notifier delivers one durable notification per recipient per
// successful transition.
type Notifier interface {
	RideStatusChanged(ctx context.Context, recipientID string, ride *models.Ride, previous models.RideStatus)
}

// Payments is the gateway boundary: hold at accept, capture at
// completion, void on cancel. All calls are best-effort.
type Payments interface {
	Hold(ctx context.Context, amount int64, currency, customerID string) (string, error)
	Capture(ctx context.Context, ref string) error
	Cancel(ctx context.Context, ref string) error
}

// Opts carries the optional extras of a transition request.
type Opts struct {
	Reason string
	Rating float64
}

type Engine struct {
	store    storage.RideStore
	presence Presence
	notifier Notifier
	payments Payments // nil disables the payment boundary
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*rideLock
}

// rideLock serializes transitions for one ride. refs counts holders
// and waiters so the map entry can be dropped the moment nobody needs
// it; unknown or terminal ride IDs must not pin memory.
type rideLock struct {
	mu   sync.Mutex
	refs int
}

func NewEngine(store storage.RideStore, presence Presence, notifier Notifier, payments Payments, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		presence: presence,
		notifier: notifier,
		payments: payments,
		logger:   logger,
		locks:    make(map[string]*rideLock),
	}
}

// Create validates the request, quotes the fare and persists the ride
// in its initial status. Dispatching to drivers is the caller's move.
func (e *Engine) Create(ctx context.Context, req models.RideRequest) (*models.Ride, error) {
	switch {
	case req.PassengerID == "":
		return nil, fmt.Errorf("%w: passenger id missing", ErrBadRequest)
	case !req.Pickup.Coord.Valid() || !req.Dropoff.Coord.Valid():
		return nil, fmt.Errorf("%w: coordinates out of range", ErrBadRequest)
	case !req.VehicleClass.Valid():
		return nil, fmt.Errorf("%w: unknown vehicle class %q", ErrBadRequest, req.VehicleClass)
	}
	now := time.Now()
	distance := fare.DistanceKm(req.Pickup.Coord, req.Dropoff.Coord)
	r := &models.Ride{
		ID:            ids.New(),
		PassengerID:   req.PassengerID,
		Pickup:        req.Pickup,
		Dropoff:       req.Dropoff,
		VehicleClass:  req.VehicleClass,
		DistanceKm:    distance,
		Fare:          fare.Quote(req.VehicleClass, distance),
		PaymentMethod: req.PaymentMethod,
		Status:        models.RideRequested,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.store.CreateRide(ctx, r); err != nil {
		return nil, fmt.Errorf("create ride: %w", err)
	}
	e.logger.Info("ride created", "ride_id", r.ID, "passenger_id", r.PassengerID, "fare", r.Fare)
	return r, nil
}

func (e *Engine) Get(ctx context.Context, rideID string) (*models.Ride, error) {
	return e.store.GetRide(ctx, rideID)
}

// Transition applies one status change under the ride's lock.
// Requesting the current status again is a no-op confirmation. The
// ride is only mutated after the new state persists, so a failed
// transition leaves the status unchanged.
func (e *Engine) Transition(ctx context.Context, rideID string, target models.RideStatus, actorID string, opts Opts) (*models.Ride, error) {
	lock := e.lockFor(rideID)
	lock.mu.Lock()
	defer func() {
		lock.mu.Unlock()
		e.unlockFor(rideID, lock)
	}()

	r, err := e.store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	previous := r.Status
	if target == previous {
		return r, nil
	}
	if !allowed(previous, target) {
		observability.InvalidTransitions.Inc()
		return nil, &InvalidTransitionError{From: previous, To: target}
	}

	switch target {
	case models.RideAccepted:
		if actorID == "" {
			return nil, ErrDriverRequired
		}
		r.DriverID = actorID
	case models.RideCanceled, models.RideRejected:
		if opts.Reason == "" {
			return nil, ErrReasonRequired
		}
		r.CancelReason = opts.Reason
	case models.RideCompleted:
		if r.Fare == 0 {
			// fallback only; the primary fare is quoted at request time
			r.Fare = fare.Quote(r.VehicleClass, r.DistanceKm)
		}
		if opts.Rating > 0 {
			r.Rating = opts.Rating
		}
	}

	boundDriver := r.DriverID
	r.Status = target
	r.UpdatedAt = time.Now()
	if target == models.RideCanceled || target == models.RideRejected {
		// driver id is only set while the ride is actively assigned
		r.DriverID = ""
	}

	if err := e.store.UpdateRide(ctx, r); err != nil {
		return nil, fmt.Errorf("persist transition %s -> %s: %w", previous, target, err)
	}

	e.applySideEffects(ctx, r, previous, target, boundDriver)

	observability.TransitionsTotal.WithLabelValues(string(target)).Inc()
	e.logger.Info("ride transitioned",
		"ride_id", r.ID, "from", previous, "to", target, "actor_id", actorID)

	return r, nil
}

func (e *Engine) applySideEffects(ctx context.Context, r *models.Ride, previous, target models.RideStatus, boundDriver string) {
	switch target {
	case models.RideAccepted:
		e.presence.SetAvailability(boundDriver, false, nil)
		e.holdPayment(ctx, r)
	case models.RideCompleted:
		e.presence.SetAvailability(boundDriver, true, nil)
		e.capturePayment(ctx, r)
	case models.RideCanceled, models.RideRejected:
		if boundDriver != "" {
			e.presence.SetAvailability(boundDriver, true, nil)
		}
		e.voidPayment(ctx, r)
	}

	if e.notifier == nil {
		return
	}
	e.notifier.RideStatusChanged(ctx, r.PassengerID, r, previous)
	if boundDriver != "" && target != models.RideRequested {
		e.notifier.RideStatusChanged(ctx, boundDriver, r, previous)
	}
}

func (e *Engine) holdPayment(ctx context.Context, r *models.Ride) {
	if e.payments == nil {
		return
	}
	ref, err := e.payments.Hold(ctx, int64(r.Fare), "kzt", r.PassengerID)
	if err != nil {
		e.logger.Warn("payment hold failed", "ride_id", r.ID, "error", err)
		return
	}
	r.PaymentRef = ref
	if err := e.store.UpdateRide(ctx, r); err != nil {
		e.logger.Warn("payment ref not persisted", "ride_id", r.ID, "error", err)
	}
}

func (e *Engine) capturePayment(ctx context.Context, r *models.Ride) {
	if e.payments == nil || r.PaymentRef == "" {
		return
	}
	if err := e.payments.Capture(ctx, r.PaymentRef); err != nil {
		e.logger.Warn("payment capture failed", "ride_id", r.ID, "error", err)
	}
}

func (e *Engine) voidPayment(ctx context.Context, r *models.Ride) {
	if e.payments == nil || r.PaymentRef == "" {
		return
	}
	if err := e.payments.Cancel(ctx, r.PaymentRef); err != nil {
		e.logger.Warn("payment cancel failed", "ride_id", r.ID, "error", err)
	}
}

func (e *Engine) lockFor(rideID string) *rideLock {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[rideID]
	if !ok {
		l = &rideLock{}
		e.locks[rideID] = l
	}
	l.refs++
	return l
}

func (e *Engine) unlockFor(rideID string, l *rideLock) {
	e.mu.Lock()
	defer e.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(e.locks, rideID)
	}
}
