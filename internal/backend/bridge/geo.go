package bridge

import "math"

const earthRadiusKm = 6371.0

// Haversine returns the great-circle distance in kilometres between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	// rounding can push a slightly above 1 for antipodal points
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// Nearest scans all bridges and returns the closest one with its distance in
// kilometres. On equal distances the earlier bridge wins.
func Nearest(bridges []Bridge, lat, lon float64) (Bridge, float64, bool) {
	var nearest Bridge
	shortest := math.Inf(1)
	found := false

	for _, b := range bridges {
		d := Haversine(lat, lon, b.Location.Lat, b.Location.Lon)
		if d < shortest {
			shortest = d
			nearest = b
			found = true
		}
	}
	return nearest, shortest, found
}
