// Package locations mirrors last-known driver positions into Redis.
// The consumer binary writes the mirror from the Kafka stream; the API
// process reads it to answer location lookups without touching the
// presence registry.
package locations

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

type RedisMirror struct {
	client *redis.Client
	geoKey string
}

func NewRedisMirror(addr, password, geoKey string) *RedisMirror {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisMirror{client: c, geoKey: geoKey}
}

func (r *RedisMirror) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Upsert stores the coordinate in the geo set and the metadata hash.
func (r *RedisMirror) Upsert(ctx context.Context, loc models.DriverLocation) error {
	if err := r.client.GeoAdd(ctx, r.geoKey, &redis.GeoLocation{
		Longitude: loc.Loc.Lon,
		Latitude:  loc.Loc.Lat,
		Name:      loc.DriverID,
	}).Err(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(loc.DriverID), map[string]interface{}{
		"online":  strconv.FormatBool(loc.Online),
		"updated": loc.Updated.Format(time.RFC3339),
	}).Err()
}

// LastKnown returns the mirrored position of one driver, or ok=false
// when the driver never reported.
func (r *RedisMirror) LastKnown(ctx context.Context, driverID string) (models.DriverLocation, bool, error) {
	pos, err := r.client.GeoPos(ctx, r.geoKey, driverID).Result()
	if err != nil {
		return models.DriverLocation{}, false, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return models.DriverLocation{}, false, nil
	}
	out := models.DriverLocation{
		DriverID: driverID,
		Loc:      models.Coord{Lat: pos[0].Latitude, Lon: pos[0].Longitude},
	}
	meta, err := r.client.HGetAll(ctx, metaKey(driverID)).Result()
	if err == nil {
		out.Online = meta["online"] == "true"
		if t, err := time.Parse(time.RFC3339, meta["updated"]); err == nil {
			out.Updated = t
		}
	}
	return out, true, nil
}

func (r *RedisMirror) Close() error { return r.client.Close() }

func metaKey(id string) string { return "driver:meta:" + id }
