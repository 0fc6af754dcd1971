// Package geo provides coordinate math and movement classification for
// position tracking: great-circle distances, bearings, and GPS drift
// detection.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// earthRadiusMeters is the mean Earth radius used for distance calculations.
const earthRadiusMeters = 6371000

// Drift classification bounds. A single-sample delta below the noise floor
// is sensor jitter; one above the jump ceiling is not plausible pedestrian
// or vehicle movement at normal sampling intervals.
const (
	DriftNoiseFloorMeters  = 10
	DriftJumpCeilingMeters = 500
)

// Point represents a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// BoundingBox represents a geographic bounding box.
type BoundingBox struct {
	MinLat float64
	MinLng float64
	MaxLat float64
	MaxLng float64
}

// ErrNoPoints is returned by Bounds when called with no input points.
var ErrNoPoints = errors.New("at least one point is required")

// Distance returns the great-circle distance between a and b in meters,
// computed with the haversine formula. Accurate for arbitrary separations;
// use this wherever the result feeds distance accounting or is shown to
// the user.
func Distance(a, b Point) float64 {
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(a.Lat))*math.Cos(radians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// ApproxDistance returns an equirectangular approximation of the distance
// between a and b in meters. Cheaper than Distance but only accurate for
// sub-kilometer separations; intended for hot-path compatibility checks,
// not for accounting.
func ApproxDistance(a, b Point) float64 {
	latDiff := math.Abs(a.Lat-b.Lat) * 111000
	lngDiff := math.Abs(a.Lng-b.Lng) * 111000 * math.Cos(radians(a.Lat))
	return math.Sqrt(latDiff*latDiff + lngDiff*lngDiff)
}

// Bearing returns the initial bearing from a to b in degrees [0, 360).
func Bearing(a, b Point) float64 {
	dLng := radians(b.Lng - a.Lng)
	latA := radians(a.Lat)
	latB := radians(b.Lat)

	y := math.Sin(dLng) * math.Cos(latB)
	x := math.Cos(latA)*math.Sin(latB) - math.Sin(latA)*math.Cos(latB)*math.Cos(dLng)

	bearing := math.Atan2(y, x) * (180 / math.Pi)
	return math.Mod(bearing+360, 360)
}

// IsDrift reports whether a position delta should be classified as GPS
// drift rather than real movement. True when the delta is below the noise
// floor or above the single-sample jump ceiling. Drift deltas are excluded
// from distance accounting but never from position updates.
func IsDrift(distanceMeters float64) bool {
	return distanceMeters < DriftNoiseFloorMeters || distanceMeters > DriftJumpCeilingMeters
}

// Bounds returns the bounding box containing all given points.
func Bounds(points []Point) (BoundingBox, error) {
	if len(points) == 0 {
		return BoundingBox{}, ErrNoPoints
	}

	box := BoundingBox{
		MinLat: points[0].Lat,
		MaxLat: points[0].Lat,
		MinLng: points[0].Lng,
		MaxLng: points[0].Lng,
	}

	for _, p := range points[1:] {
		box.MinLat = math.Min(box.MinLat, p.Lat)
		box.MaxLat = math.Max(box.MaxLat, p.Lat)
		box.MinLng = math.Min(box.MinLng, p.Lng)
		box.MaxLng = math.Max(box.MaxLng, p.Lng)
	}

	return box, nil
}

// Validate checks that the point's coordinates are within valid ranges.
func (p Point) Validate() error {
	if p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", p.Lng)
	}
	return nil
}

func radians(degrees float64) float64 {
	return degrees * (math.Pi / 180)
}
