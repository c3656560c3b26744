package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/storage"
)

// PostgresStore backs the allocator with row-level locks: the trip row
// is taken FOR UPDATE so concurrent reservations against one trip
// serialize at the database.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (p *PostgresStore) CreateTrip(ctx context.Context, t *models.Trip) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trips(id, origin_lat, origin_lon, origin_name, dest_lat, dest_lon, dest_name,
			depart_at, seats_total, seats_available, status, created_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.Origin.Lat, t.Origin.Lon, t.Origin.Name, t.Destination.Lat, t.Destination.Lon, t.Destination.Name,
		t.DepartAt, t.SeatsTotal, t.SeatsAvailable, string(t.Status), t.CreatedAt)
	return err
}

func (p *PostgresStore) GetTrip(ctx context.Context, id string) (*models.Trip, error) {
	var t models.Trip
	var status string
	err := p.db.QueryRowContext(ctx, `
		SELECT id, origin_lat, origin_lon, origin_name, dest_lat, dest_lon, dest_name,
			depart_at, seats_total, seats_available, status, created_at
		FROM trips WHERE id=$1`, id).
		Scan(&t.ID, &t.Origin.Lat, &t.Origin.Lon, &t.Origin.Name, &t.Destination.Lat, &t.Destination.Lon,
			&t.Destination.Name, &t.DepartAt, &t.SeatsTotal, &t.SeatsAvailable, &status, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = models.TripStatus(status)
	return &t, nil
}

func (p *PostgresStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	var status, pay string
	err := p.db.QueryRowContext(ctx, `
		SELECT id, trip_id, user_id, seats, status, payment_status, created_at, updated_at
		FROM bookings WHERE id=$1`, id).
		Scan(&b.ID, &b.TripID, &b.UserID, &b.Seats, &status, &pay, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Status = models.BookingStatus(status)
	b.PaymentStatus = models.PaymentStatus(pay)
	return &b, nil
}

func (p *PostgresStore) Reserve(ctx context.Context, b *models.Booking) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		var available int
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT seats_available, status FROM trips WHERE id=$1 FOR UPDATE`, b.TripID).
			Scan(&available, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		if models.TripStatus(status) != models.TripScheduled {
			return ErrTripNotBookable
		}
		if b.Seats > available {
			return ErrInsufficientCapacity
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE trips SET seats_available = seats_available - $1 WHERE id=$2`, b.Seats, b.TripID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bookings(id, trip_id, user_id, seats, status, payment_status, created_at, updated_at)
			VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
			b.ID, b.TripID, b.UserID, b.Seats, string(b.Status), string(b.PaymentStatus), b.CreatedAt, b.UpdatedAt)
		return err
	})
}

func (p *PostgresStore) Release(ctx context.Context, bookingID string) (int, bool, error) {
	var freed int
	var released bool
	err := p.inTx(ctx, func(tx *sql.Tx) error {
		var tripID string
		var seats int
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT trip_id, seats, status FROM bookings WHERE id=$1 FOR UPDATE`, bookingID).
			Scan(&tripID, &seats, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		if models.BookingStatus(status) != models.BookingActive {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE trips SET seats_available = seats_available + $1 WHERE id=$2`, seats, tripID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status='cancelled', updated_at=now() WHERE id=$1`, bookingID); err != nil {
			return err
		}
		freed, released = seats, true
		return nil
	})
	return freed, released, err
}

func (p *PostgresStore) Complete(ctx context.Context, bookingID string) error {
	return p.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM bookings WHERE id=$1 FOR UPDATE`, bookingID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		switch models.BookingStatus(status) {
		case models.BookingCompleted:
			return nil
		case models.BookingCancelled:
			return ErrBookingNotActive
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE bookings SET status='completed', updated_at=now() WHERE id=$1`, bookingID)
		return err
	})
}

func (p *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
