// Package geo holds the coordinate arithmetic shared by the geofence, ETA and
// progress calculations. Everything here is pure and safe for concurrent use.
package geo

import (
	"math"

	"github.com/nandanugg/journey-tracker/module/journey/domain"
)

const EarthRadiusKm = 6371.0

// Distance returns the great-circle distance between a and b in kilometers.
func Distance(a, b domain.Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// ProgressFraction returns how far current has travelled from start towards
// end, as a fraction of the straight-line start-end distance clamped to [0,1].
//
// This is an approximation: it measures crow-flies distance from the start,
// not distance along the road, so winding routes under- or over-report.
func ProgressFraction(start, end, current domain.Point) float64 {
	total := Distance(start, end)
	if total == 0 {
		return 0
	}
	return Clamp(Distance(start, current)/total, 0, 1)
}

// ValidCoordinates rejects NaN, infinities and out-of-range values.
func ValidCoordinates(p domain.Point) bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
