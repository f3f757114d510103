// Package geometry implements the spatial reasoning used by listing search:
// great-circle distance, point-in-polygon tests and coordinate validation,
// plus store-evaluable versions of the same predicates (see predicate.go).
//
// The in-process functions and the store predicates are two implementations
// of one contract and must agree on every input; parity_test.go checks this.
package geometry

import "math"

// EarthRadiusMiles is the sphere radius used by every distance formula here.
const EarthRadiusMiles = 3959.0

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Polygon is an ordered ring of points. It may or may not repeat the first
// point at the end.
type Polygon []GeoPoint

// Bounds is a latitude/longitude rectangle.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Radians converts degrees to radians.
func Radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance returns the Haversine great-circle distance between a and b in miles.
func Distance(a, b GeoPoint) float64 {
	dLat := Radians(b.Lat - a.Lat)
	dLng := Radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(Radians(a.Lat))*math.Cos(Radians(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)

	return EarthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// LawOfCosinesDistance mirrors the formula RadiusPredicate emits. It is not
// clamped: when rounding pushes the cosine outside [-1, 1] the result is NaN
// and compares false against any radius, as the store does.
func LawOfCosinesDistance(center, p GeoPoint) float64 {
	// explicit conversions keep the compiler from fusing multiply-adds
	a := float64(math.Cos(Radians(center.Lat)) * math.Cos(Radians(p.Lat)) * math.Cos(Radians(p.Lng)-Radians(center.Lng)))
	b := float64(math.Sin(Radians(center.Lat)) * math.Sin(Radians(p.Lat)))
	return EarthRadiusMiles * math.Acos(a+b)
}

// PointInPolygon reports whether p lies inside polygon using ray casting.
// Polygons with fewer than three points contain nothing.
func PointInPolygon(p GeoPoint, polygon Polygon) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := polygon[i], polygon[j]
		if crosses(p, pi, pj) {
			inside = !inside
		}
	}
	return inside
}

// crosses is the per-edge indicator shared with PolygonPredicate.
func crosses(p, pi, pj GeoPoint) bool {
	if (pi.Lng > p.Lng) == (pj.Lng > p.Lng) {
		return false
	}
	return p.Lat < (pj.Lat-pi.Lat)*(p.Lng-pi.Lng)/(pj.Lng-pi.Lng)+pi.Lat
}

// ValidateCoordinate reports whether lat/lng are inside WGS84 ranges.
func ValidateCoordinate(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Valid reports whether the point passes ValidateCoordinate.
func (p GeoPoint) Valid() bool {
	return ValidateCoordinate(p.Lat, p.Lng)
}

// ValidatePolygon requires at least three points, all valid.
func ValidatePolygon(polygon Polygon) bool {
	if len(polygon) < 3 {
		return false
	}
	for _, p := range polygon {
		if !p.Valid() {
			return false
		}
	}
	return true
}

// IsClosed reports whether the first and last points are equal.
func (p Polygon) IsClosed() bool {
	return len(p) > 0 && p[0] == p[len(p)-1]
}

// ClosePolygon returns polygon with its first point repeated at the end. An
// already closed polygon is returned unchanged. The input is never modified.
func ClosePolygon(polygon Polygon) Polygon {
	if len(polygon) == 0 || polygon.IsClosed() {
		return polygon
	}
	closed := make(Polygon, len(polygon), len(polygon)+1)
	copy(closed, polygon)
	return append(closed, polygon[0])
}

// Valid reports whether the bounds hold valid coordinates with south <= north.
func (b Bounds) Valid() bool {
	return ValidateCoordinate(b.North, b.East) &&
		ValidateCoordinate(b.South, b.West) &&
		b.South <= b.North
}

// Contains reports whether p lies within the bounds, edges included.
func (b Bounds) Contains(p GeoPoint) bool {
	return p.Lat >= b.South && p.Lat <= b.North && p.Lng >= b.West && p.Lng <= b.East
}
