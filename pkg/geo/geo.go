// Package geo provides great-circle distance and route geometry helpers
// for latitude/longitude points expressed in decimal degrees.
package geo

import "math"

// EarthRadiusMeters is the mean radius of the spherical Earth model.
const EarthRadiusMeters = 6371000

// Point is a geographic coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Distance returns the great-circle distance in meters between a and b using
// the haversine formula. Inputs are not range checked.
func Distance(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)

	sinDLat := math.Sin(dLat / 2)
	sinDLon := math.Sin(dLon / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	// Rounding can push h marginally above 1 for antipodal points.
	h = math.Min(h, 1)
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// Interpolate returns the point at fraction f along the straight line in
// degree space between a and b. It is accurate for the short segments found
// in sampled tracks.
func Interpolate(a, b Point, f float64) Point {
	return Point{
		Lat: a.Lat + f*(b.Lat-a.Lat),
		Lon: a.Lon + f*(b.Lon-a.Lon),
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
