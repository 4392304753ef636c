package geo

import "math"

// polylinePrecision is the Google polyline scale factor (5 decimal places).
const polylinePrecision = 1e5

// DecodePolyline decodes a Google encoded polyline into points.
// The format is documented at
// https://developers.google.com/maps/documentation/utilities/polylinealgorithm
func DecodePolyline(encoded string) []Point {
	if encoded == "" {
		return nil
	}

	var points []Point
	index, lat, lon := 0, 0, 0

	for index < len(encoded) {
		var delta int
		delta, index = decodeValue(encoded, index)
		lat += delta

		delta, index = decodeValue(encoded, index)
		lon += delta

		points = append(points, Point{
			Lat: float64(lat) / polylinePrecision,
			Lon: float64(lon) / polylinePrecision,
		})
	}

	return points
}

func decodeValue(encoded string, index int) (int, int) {
	shift := 0
	result := 0

	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index
	}
	return result >> 1, index
}

// EncodePolyline encodes points into a Google encoded polyline.
func EncodePolyline(points []Point) string {
	if len(points) == 0 {
		return ""
	}

	buf := make([]byte, 0, len(points)*4)
	prevLat, prevLon := 0, 0

	for _, p := range points {
		lat := int(math.Round(p.Lat * polylinePrecision))
		lon := int(math.Round(p.Lon * polylinePrecision))

		buf = encodeValue(buf, lat-prevLat)
		buf = encodeValue(buf, lon-prevLon)

		prevLat, prevLon = lat, lon
	}

	return string(buf)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	return append(buf, byte(value)+63)
}

// PathLength returns the summed haversine distance along points in meters.
func PathLength(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// Resample walks the path and returns a point every stepMeters, always
// including the first and last points. A non-positive step returns the
// input unchanged.
func Resample(points []Point, stepMeters float64) []Point {
	if len(points) == 0 {
		return nil
	}
	if stepMeters <= 0 {
		return points
	}

	out := []Point{points[0]}
	carried := 0.0 // distance walked since the last emitted point

	for i := 1; i < len(points); i++ {
		from := points[i-1]
		to := points[i]
		segment := Distance(from, to)

		for segment > 0 && carried+segment >= stepMeters {
			need := stepMeters - carried
			next := Interpolate(from, to, need/segment)
			out = append(out, next)

			from = next
			segment -= need
			carried = 0
		}
		carried += segment
	}

	if last := points[len(points)-1]; out[len(out)-1] != last {
		out = append(out, last)
	}
	return out
}
