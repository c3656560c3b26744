// Package booking implements atomic seat accounting for trips. Every
// seat mutation is paired with its booking mutation inside one atomic
// unit, so capacity can never be observed partially committed.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/ids"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
)

var (
	ErrInsufficientCapacity = errors.New("insufficient capacity")
	ErrTripNotBookable      = errors.New("trip not bookable")
	ErrInvalidSeats         = errors.New("seats must be at least 1")
	ErrBookingNotActive     = errors.New("booking not active")
)

// Store is the atomic backend behind the allocator. Reserve and Release
// must each execute as one atomic unit per trip: no other Reserve or
// Release for the same trip may interleave with the read-modify-write.
type Store interface {
	CreateTrip(ctx context.Context, t *models.Trip) error
	GetTrip(ctx context.Context, id string) (*models.Trip, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	Reserve(ctx context.Context, b *models.Booking) error
	// Release reports the freed seat count and whether this call is the
	// one that cancelled the booking; repeat releases return false.
	Release(ctx context.Context, bookingID string) (seats int, released bool, err error)
	Complete(ctx context.Context, bookingID string) error
}

type Allocator struct {
	store  Store
	logger *slog.Logger
}

func NewAllocator(store Store, logger *slog.Logger) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{store: store, logger: logger}
}

func (a *Allocator) CreateTrip(ctx context.Context, t *models.Trip) (*models.Trip, error) {
	if t.SeatsTotal < 1 {
		return nil, fmt.Errorf("%w: trip capacity %d", ErrInvalidSeats, t.SeatsTotal)
	}
	if t.ID == "" {
		t.ID = ids.New()
	}
	if t.Status == "" {
		t.Status = models.TripScheduled
	}
	t.SeatsAvailable = t.SeatsTotal
	t.CreatedAt = time.Now()
	if err := a.store.CreateTrip(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (a *Allocator) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	return a.store.GetTrip(ctx, id)
}

func (a *Allocator) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return a.store.GetBooking(ctx, id)
}

// Reserve atomically commits seats on the trip and creates the booking.
// It fails with ErrInsufficientCapacity or ErrTripNotBookable and never
// leaves a partial write behind.
func (a *Allocator) Reserve(ctx context.Context, tripID, userID string, seats int) (*models.Booking, error) {
	if seats < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSeats, seats)
	}
	now := time.Now()
	b := &models.Booking{
		ID:            ids.New(),
		TripID:        tripID,
		UserID:        userID,
		Seats:         seats,
		Status:        models.BookingActive,
		PaymentStatus: models.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.store.Reserve(ctx, b); err != nil {
		return nil, err
	}
	observability.BookingsReserved.Inc()
	observability.SeatsCommitted.Add(float64(seats))
	a.logger.Info("booking reserved", "booking_id", b.ID, "trip_id", tripID, "seats", seats)
	return b, nil
}

// Release returns the booking's seats to the trip and marks it
// cancelled. Releasing an already-cancelled booking is a no-op. The
// metrics follow the store's verdict, not a pre-read status, so racing
// releases of one booking decrement the seat gauge exactly once.
func (a *Allocator) Release(ctx context.Context, bookingID string) error {
	seats, released, err := a.store.Release(ctx, bookingID)
	if err != nil {
		return err
	}
	if released {
		observability.BookingsReleased.Inc()
		observability.SeatsCommitted.Sub(float64(seats))
		a.logger.Info("booking released", "booking_id", bookingID, "seats", seats)
	}
	return nil
}

// Complete marks an active booking completed; seats stay committed.
func (a *Allocator) Complete(ctx context.Context, bookingID string) error {
	return a.store.Complete(ctx, bookingID)
}
