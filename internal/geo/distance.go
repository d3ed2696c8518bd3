// Package geo provides great-circle distance, coordinate validation, and
// PostGIS point encoding for store locations.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
)

// EarthRadiusM is the mean Earth radius used by the haversine formula.
const EarthRadiusM = 6371000.0

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceM returns the haversine distance in meters between two points.
func DistanceM(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

// Distance returns the haversine distance in meters between a and b.
func Distance(a, b Point) float64 {
	return DistanceM(a.Lat, a.Lng, b.Lat, b.Lng)
}

// Validate checks that p is a finite coordinate inside WGS84 bounds.
func Validate(p Point) error {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return eris.New("geo: coordinate is not a number")
	}
	if p.Lat < -90 || p.Lat > 90 {
		return eris.Errorf("geo: latitude %f out of range", p.Lat)
	}
	if p.Lng < -180 || p.Lng > 180 {
		return eris.Errorf("geo: longitude %f out of range", p.Lng)
	}
	return nil
}

// CoordinateCheck is the result of comparing a submitted coordinate with a
// geocoded one.
type CoordinateCheck struct {
	Valid      bool    `json:"valid"`
	DistanceM  float64 `json:"distance_m"`
	ThresholdM float64 `json:"threshold_m"`
}

// CheckCoordinates reports whether candidate lies within thresholdM meters
// of reference.
func CheckCoordinates(candidate, reference Point, thresholdM float64) CoordinateCheck {
	d := Distance(candidate, reference)
	return CoordinateCheck{
		Valid:      d <= thresholdM,
		DistanceM:  d,
		ThresholdM: thresholdM,
	}
}

// BoundingBox returns the box that encloses a circle of radiusM meters
// around center. It is used to prefilter inventory before exact distance checks.
func BoundingBox(center Point, radiusM float64) (minLat, minLng, maxLat, maxLng float64) {
	dLat := radiusM / EarthRadiusM * 180 / math.Pi
	cos := math.Cos(center.Lat * math.Pi / 180)
	if cos < 1e-6 {
		cos = 1e-6
	}
	dLng := dLat / cos
	return center.Lat - dLat, center.Lng - dLng, center.Lat + dLat, center.Lng + dLng
}
