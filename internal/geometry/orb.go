package geometry

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Point converts p to an orb point, which stores longitude first.
func (p GeoPoint) Point() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// FromPoint converts an orb point back to a GeoPoint.
func FromPoint(p orb.Point) GeoPoint {
	return GeoPoint{Lat: p.Lat(), Lng: p.Lon()}
}

// Ring converts the polygon to a closed orb ring.
func (p Polygon) Ring() orb.Ring {
	closed := ClosePolygon(p)
	ring := make(orb.Ring, len(closed))
	for i, pt := range closed {
		ring[i] = pt.Point()
	}
	return ring
}

// FromRing converts an orb ring to a Polygon, keeping the closing point.
func FromRing(r orb.Ring) Polygon {
	poly := make(Polygon, len(r))
	for i, pt := range r {
		poly[i] = FromPoint(pt)
	}
	return poly
}

// Bound converts the bounds to an orb bound.
func (b Bounds) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// BoundsOf returns the smallest bounds containing every point.
func BoundsOf(points []GeoPoint) (Bounds, bool) {
	if len(points) == 0 {
		return Bounds{}, false
	}
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = p.Point()
	}
	bound := mp.Bound()
	return Bounds{
		North: bound.Max.Lat(),
		South: bound.Min.Lat(),
		East:  bound.Max.Lon(),
		West:  bound.Min.Lon(),
	}, true
}

// ParsePolygon accepts a polygon in any of the shapes clients send and
// returns it when it is valid:
//   - Polygon, []GeoPoint, orb.Ring or orb.Polygon (outer ring)
//   - a list of [lat, lng] pairs or {"lat": .., "lng": ..} objects
//   - a GeoJSON Polygon geometry or Feature, decoded or as text
//   - any of the above serialized as a JSON string
func ParsePolygon(v any) (Polygon, bool) {
	poly, ok := parsePolygon(v)
	if !ok || !ValidatePolygon(poly) {
		return nil, false
	}
	return poly, true
}

func parsePolygon(v any) (Polygon, bool) {
	switch t := v.(type) {
	case Polygon:
		return append(Polygon(nil), t...), true
	case []GeoPoint:
		return append(Polygon(nil), t...), true
	case orb.Ring:
		return FromRing(t), true
	case orb.Polygon:
		if len(t) == 0 {
			return nil, false
		}
		return FromRing(t[0]), true
	case string:
		return parsePolygonText(t)
	case []byte:
		return parsePolygonText(string(t))
	case map[string]any:
		if _, ok := t["type"]; !ok {
			return nil, false
		}
		data, err := json.Marshal(t)
		if err != nil {
			return nil, false
		}
		return parseGeoJSON(data)
	case []any:
		poly := make(Polygon, 0, len(t))
		for _, el := range t {
			p, ok := parsePoint(el)
			if !ok {
				return nil, false
			}
			poly = append(poly, p)
		}
		return poly, true
	}
	return nil, false
}

func parsePolygonText(s string) (Polygon, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if strings.HasPrefix(s, "{") {
		return parseGeoJSON([]byte(s))
	}
	var raw []any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	return parsePolygon(raw)
}

func parseGeoJSON(data []byte) (Polygon, bool) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, false
	}

	var g orb.Geometry
	switch head.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, false
		}
		g = f.Geometry
	default:
		geom, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, false
		}
		g = geom.Geometry()
	}

	switch shape := g.(type) {
	case orb.Polygon:
		return parsePolygon(shape)
	case orb.Ring:
		return FromRing(shape), true
	}
	return nil, false
}

func parsePoint(v any) (GeoPoint, bool) {
	switch t := v.(type) {
	case []any:
		if len(t) != 2 {
			return GeoPoint{}, false
		}
		lat, ok1 := toFloat(t[0])
		lng, ok2 := toFloat(t[1])
		return GeoPoint{Lat: lat, Lng: lng}, ok1 && ok2
	case map[string]any:
		lat, ok1 := toFloat(t["lat"])
		lng, ok2 := toFloat(t["lng"])
		if !ok2 {
			lng, ok2 = toFloat(t["lon"])
		}
		return GeoPoint{Lat: lat, Lng: lng}, ok1 && ok2
	case GeoPoint:
		return t, true
	}
	return GeoPoint{}, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// PointFeature builds a GeoJSON point feature carrying props.
func PointFeature(p GeoPoint, props map[string]any) *geojson.Feature {
	f := geojson.NewFeature(p.Point())
	f.Properties = geojson.Properties(props)
	return f
}

// FeatureCollection wraps features in a collection whose bbox covers them.
func FeatureCollection(features []*geojson.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Features = features

	points := make([]GeoPoint, 0, len(features))
	for _, f := range features {
		if pt, ok := f.Geometry.(orb.Point); ok {
			points = append(points, FromPoint(pt))
		}
	}
	if b, ok := BoundsOf(points); ok {
		fc.BBox = geojson.NewBBox(b.Bound())
	}
	return fc
}
