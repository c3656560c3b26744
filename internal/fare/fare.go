// Package fare is the single source of truth for fare math. Both the
// request-time quote and the completion-time fallback call Quote so the
// two paths can never drift apart.
package fare

import (
	"math"

	"github.com/example/ride-dispatch/internal/models"
)

// Rate holds the pricing knobs for one vehicle class.
type Rate struct {
	Base  float64 // flat component charged on every ride
	PerKm float64
}

var rates = map[models.VehicleClass]Rate{
	models.VehicleEconomy: {Base: 500, PerKm: 100},
	models.VehiclePremium: {Base: 800, PerKm: 120},
	models.VehicleXL:      {Base: 1000, PerKm: 150},
}

// Quote computes the fare for a ride of the given class and distance.
// Unknown classes price as economy, matching the source's permissive
// default rather than failing a ride that already exists.
func Quote(class models.VehicleClass, distanceKm float64) float64 {
	r, ok := rates[class]
	if !ok {
		r = rates[models.VehicleEconomy]
	}
	if distanceKm < 0 {
		distanceKm = 0
	}
	return r.Base + distanceKm*r.PerKm
}

// DistanceKm returns the haversine great-circle distance between two
// coordinates in kilometers.
func DistanceKm(a, b models.Coord) float64 {
	const earthRadiusKm = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}
