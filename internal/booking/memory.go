package booking

import (
	"context"
	"sync"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

// MemoryStore holds trips and bookings under one mutex, which makes the
// reserve/release read-modify-write trivially atomic.
type MemoryStore struct {
	mu       sync.Mutex
	trips    map[string]*models.Trip
	bookings map[string]*models.Booking
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trips:    make(map[string]*models.Trip),
		bookings: make(map[string]*models.Booking),
	}
}

func (m *MemoryStore) CreateTrip(ctx context.Context, t *models.Trip) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.trips[t.ID] = &cp
	return nil
}

func (m *MemoryStore) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryStore) Reserve(ctx context.Context, b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trips[b.TripID]
	if !ok {
		return storage.ErrNotFound
	}
	if t.Status != models.TripScheduled {
		return ErrTripNotBookable
	}
	if b.Seats > t.SeatsAvailable {
		return ErrInsufficientCapacity
	}
	t.SeatsAvailable -= b.Seats
	cp := *b
	m.bookings[b.ID] = &cp
	return nil
}

func (m *MemoryStore) Release(ctx context.Context, bookingID string) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return 0, false, storage.ErrNotFound
	}
	if b.Status != models.BookingActive {
		// already cancelled or completed: no-op
		return 0, false, nil
	}
	if t, ok := m.trips[b.TripID]; ok {
		t.SeatsAvailable += b.Seats
	}
	b.Status = models.BookingCancelled
	return b.Seats, true, nil
}

func (m *MemoryStore) Complete(ctx context.Context, bookingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[bookingID]
	if !ok {
		return storage.ErrNotFound
	}
	switch b.Status {
	case models.BookingCompleted:
		return nil
	case models.BookingCancelled:
		return ErrBookingNotActive
	}
	b.Status = models.BookingCompleted
	return nil
}
