package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the underlying handle so the booking store can share one
// connection pool.
func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO rides(id, passenger_id, driver_id, pickup_lat, pickup_lon, pickup_name,
			dropoff_lat, dropoff_lon, dropoff_name, vehicle_class, distance_km, fare,
			payment_method, payment_ref, status, cancel_reason, rating, created_at, updated_at)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		r.ID, r.PassengerID, r.DriverID, r.Pickup.Lat, r.Pickup.Lon, r.Pickup.Name,
		r.Dropoff.Lat, r.Dropoff.Lon, r.Dropoff.Name, string(r.VehicleClass), r.DistanceKm, r.Fare,
		r.PaymentMethod, r.PaymentRef, string(r.Status), r.CancelReason, r.Rating, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) UpdateRide(ctx context.Context, r *models.Ride) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE rides SET driver_id=$1, status=$2, fare=$3, payment_ref=$4, cancel_reason=$5, rating=$6, updated_at=$7
		WHERE id=$8`,
		r.DriverID, string(r.Status), r.Fare, r.PaymentRef, r.CancelReason, r.Rating, r.UpdatedAt, r.ID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) GetRide(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, passenger_id, driver_id, pickup_lat, pickup_lon, pickup_name,
			dropoff_lat, dropoff_lon, dropoff_name, vehicle_class, distance_km, fare,
			payment_method, payment_ref, status, cancel_reason, rating, created_at, updated_at
		FROM rides WHERE id=$1`, id)
	return scanRide(row)
}

func (p *PostgresStore) ListRidesByStatus(ctx context.Context, status models.RideStatus) ([]*models.Ride, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, passenger_id, driver_id, pickup_lat, pickup_lon, pickup_name,
			dropoff_lat, dropoff_lon, dropoff_name, vehicle_class, distance_km, fare,
			payment_method, payment_ref, status, cancel_reason, rating, created_at, updated_at
		FROM rides WHERE status=$1`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*models.Ride{}
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var class, status string
	err := row.Scan(&r.ID, &r.PassengerID, &r.DriverID, &r.Pickup.Lat, &r.Pickup.Lon, &r.Pickup.Name,
		&r.Dropoff.Lat, &r.Dropoff.Lon, &r.Dropoff.Name, &class, &r.DistanceKm, &r.Fare,
		&r.PaymentMethod, &r.PaymentRef, &status, &r.CancelReason, &r.Rating, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.VehicleClass = models.VehicleClass(class)
	r.Status = models.RideStatus(status)
	return &r, nil
}

func (p *PostgresStore) InsertNotification(ctx context.Context, n *Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO notifications(id, recipient_id, kind, ride_id, payload, delivered, created_at)
		VALUES($1,$2,$3,$4,$5,$6,to_timestamp($7))`,
		n.ID, n.RecipientID, n.Kind, n.RideID, payload, n.Delivered, n.CreatedAt)
	return err
}

func (p *PostgresStore) MarkDelivered(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE notifications SET delivered=true WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
