package geo

import (
	"math"

	"dronenav/internal/model"
)

const earthRadiusKm = 6371.0

// SurfaceDistanceKm returns the great-circle distance between two points,
// ignoring altitude.
func SurfaceDistanceKm(a, b model.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Asin(math.Sqrt(h))
	return earthRadiusKm * c
}

// DistanceKm returns the great-circle distance plus the altitude difference
// converted to kilometers. Segment costs and A* expansion use this form.
func DistanceKm(a, b model.Coordinate) float64 {
	return SurfaceDistanceKm(a, b) + math.Abs(b.Alt-a.Alt)/1000
}

// BearingDeg returns the initial great-circle bearing from a to b in [0, 360).
func BearingDeg(a, b model.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
