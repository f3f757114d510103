package geometry

import (
	"fmt"
	"strings"

	"listingsearch/server/internal/predicate"
)

// Columns names the latitude/longitude columns the store predicates test.
// Names are sanitized before they reach the generated SQL.
type Columns struct {
	Lat string
	Lng string
}

// DefaultColumns are the coordinate columns of the listings table.
var DefaultColumns = Columns{Lat: "latitude", Lng: "longitude"}

func (c Columns) sanitized() (lat, lng string, ok bool) {
	lat, lng = predicate.Sanitize(c.Lat), predicate.Sanitize(c.Lng)
	return lat, lng, lat != "" && lng != ""
}

// RadiusPredicate selects rows within miles of center using the spherical law
// of cosines, matching LawOfCosinesDistance. A cosine rounded outside [-1, 1]
// yields NULL instead of reaching ACOS, which PostgreSQL rejects; the row does
// not match, as NaN does not in process.
func (c Columns) RadiusPredicate(center GeoPoint, miles float64) (predicate.Fragment, bool) {
	lat, lng, ok := c.sanitized()
	if !ok || !center.Valid() || miles <= 0 {
		return predicate.Fragment{}, false
	}
	cosine := fmt.Sprintf(
		"COS(RADIANS(?)) * COS(RADIANS(%[1]s)) * COS(RADIANS(%[2]s) - RADIANS(?)) + SIN(RADIANS(?)) * SIN(RADIANS(%[1]s))",
		lat, lng,
	)
	sql := fmt.Sprintf("CASE WHEN %[2]s BETWEEN -1 AND 1 THEN %[1]g * ACOS(%[2]s) END <= ?", EarthRadiusMiles, cosine)
	return predicate.New(sql,
		center.Lat, center.Lng, center.Lat,
		center.Lat, center.Lng, center.Lat,
		miles,
	), true
}

// BoundingBoxPredicate selects rows inside b, edges included.
func (c Columns) BoundingBoxPredicate(b Bounds) (predicate.Fragment, bool) {
	lat, lng, ok := c.sanitized()
	if !ok || !b.Valid() {
		return predicate.Fragment{}, false
	}
	sql := fmt.Sprintf("%s BETWEEN ? AND ? AND %s BETWEEN ? AND ?", lat, lng)
	return predicate.New(sql, b.South, b.North, b.West, b.East), true
}

// PolygonPredicate expresses PointInPolygon as a sum of per-edge crossing
// indicators: a row is inside when the sum is odd. The polygon is closed first.
//
// The interpolation operands are computed here with the same floating point
// operations crosses uses, so the store evaluates an identical expression.
// Edges whose endpoints share a longitude never cross and emit no term.
func (c Columns) PolygonPredicate(polygon Polygon) (predicate.Fragment, bool) {
	lat, lng, ok := c.sanitized()
	if !ok || !ValidatePolygon(polygon) {
		return predicate.Fragment{}, false
	}

	closed := ClosePolygon(polygon)
	term := fmt.Sprintf(
		"CASE WHEN ((? > %[2]s) <> (? > %[2]s)) AND (%[1]s < ? * (%[2]s - ?) / ? + ?) THEN 1 ELSE 0 END",
		lat, lng,
	)

	var (
		terms []string
		args  []any
	)
	for i := 1; i < len(closed); i++ {
		pi, pj := closed[i], closed[i-1]
		if pi.Lng == pj.Lng {
			continue
		}
		terms = append(terms, term)
		args = append(args, pi.Lng, pj.Lng, pj.Lat-pi.Lat, pi.Lng, pj.Lng-pi.Lng, pi.Lat)
	}
	if len(terms) == 0 {
		return predicate.New("1 = 0"), true
	}

	sql := "(" + strings.Join(terms, " + ") + ") % 2 = 1"
	return predicate.New(sql, args...), true
}
