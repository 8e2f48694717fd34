// Package geo provides great-circle distance and EWKB point helpers over WGS 84.
package geo

import (
	"math"

	"github.com/twpayne/go-geom"
)

// EarthRadiusMeters is the mean Earth radius used for haversine distances.
const EarthRadiusMeters = 6371000.0

// ToleranceMeters absorbs floating point error in threshold comparisons, so
// points placed exactly at a threshold compare as within it.
const ToleranceMeters = 1e-6

// HaversineMeters returns the great-circle distance between two lat/lng pairs
// in meters.
func HaversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lng2 - lng1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// PointDistance returns the haversine distance between two XY points where
// X is longitude and Y is latitude.
func PointDistance(a, b *geom.Point) float64 {
	return HaversineMeters(a.Y(), a.X(), b.Y(), b.X())
}

// Nearest returns the index of the first point within maxMeters of p, scanning
// in slice order, and its distance. It returns -1 when none qualifies.
// The comparison is inclusive, within ToleranceMeters.
func Nearest(p *geom.Point, points []*geom.Point, maxMeters float64) (int, float64) {
	for i, q := range points {
		if q == nil {
			continue
		}
		if d := PointDistance(p, q); d <= maxMeters+ToleranceMeters {
			return i, d
		}
	}
	return -1, 0
}
