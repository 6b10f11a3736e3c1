package domain

import "math"

// EarthRadiusMeters is the IUGG mean Earth radius.
const EarthRadiusMeters = 6_371_008.8

// Valid reports whether the pair is a finite, in-range WGS-84 coordinate.
func (g Geo) Valid() bool {
	if math.IsNaN(g.Lat) || math.IsNaN(g.Lon) || math.IsInf(g.Lat, 0) || math.IsInf(g.Lon, 0) {
		return false
	}
	return g.Lat >= -90 && g.Lat <= 90 && g.Lon >= -180 && g.Lon <= 180
}

// Distance returns the great-circle distance between a and b in meters using
// the haversine formula. It is symmetric, zero for identical points, and never
// NaN for valid coordinates: the haversine term is clamped to [0, 1] so
// rounding near antipodal points cannot push asin out of its domain.
func Distance(a, b Geo) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	h = math.Min(math.Max(h, 0), 1)

	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// NodeDistance returns the distance between two nodes, or false when either
// node lacks usable coordinates.
func NodeDistance(a, b Node) (float64, bool) {
	ga, ok := a.Located()
	if !ok {
		return 0, false
	}
	gb, ok := b.Located()
	if !ok {
		return 0, false
	}
	return Distance(ga, gb), true
}
