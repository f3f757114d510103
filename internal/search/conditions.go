package search

import (
	"strings"
	"time"

	"listingsearch/server/config"
	"listingsearch/server/internal/geometry"
	"listingsearch/server/internal/predicate"
)

const (
	// PostFilterOverfetch inflates the fetch window when rows must be
	// filtered outside the store.
	PostFilterOverfetch = 10

	sqftPerAcre = 43560.0
)

// PostFilterKeys are criteria the store cannot evaluate. They are handed to
// the post-filter hook instead of becoming predicates.
var PostFilterKeys = []string{
	"school_district",
	"school_name",
	"school_grade",
	"min_school_rating",
	"school_type",
}

// PredicateSet is the compiled form of a FilterRequest.
type PredicateSet struct {
	Predicates            []predicate.Fragment
	Order                 predicate.Order
	IsDirectLookup        bool
	IncludesArchived      bool
	HasPostFilterCriteria bool
	PostFilterCriteria    map[string]string
	OverfetchMultiplier   int
}

// Where joins the predicates with AND.
func (s PredicateSet) Where() predicate.Fragment {
	return predicate.And(s.Predicates...)
}

type BuilderConfig struct {
	Columns        geometry.Columns
	ExclusiveIDMin int64
	ExclusiveIDMax int64
	Metros         *config.MetroAreas
	Now            func() time.Time
}

// Builder turns filter requests into predicate sets.
type Builder struct {
	cfg BuilderConfig
}

func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.Columns == (geometry.Columns{}) {
		cfg.Columns = geometry.DefaultColumns
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Builder{cfg: cfg}
}

// NormalizeLotSize converts values above 100, taken to be square feet, to acres.
func NormalizeLotSize(v float64) float64 {
	if v > 100 {
		return v / sqftPerAcre
	}
	return v
}

// Build compiles filters. A direct lookup (mls_number or address) ignores
// every other filter family.
func (b *Builder) Build(filters FilterRequest) PredicateSet {
	if set, ok := b.directLookup(filters); ok {
		return set
	}

	statuses := filters.List("status")
	set := PredicateSet{
		IncludesArchived:    IncludesArchived(statuses...),
		OverfetchMultiplier: 1,
	}

	families := []func(FilterRequest) []predicate.Fragment{
		func(FilterRequest) []predicate.Fragment { return []predicate.Fragment{ResolveStatus(statuses...)} },
		b.location,
		b.propertyType,
		b.price,
		b.rooms,
		b.size,
		b.timeWindows,
		b.parking,
		b.amenities,
		b.special,
		b.geo,
	}
	for _, family := range families {
		for _, f := range family(filters) {
			if !f.IsEmpty() {
				set.Predicates = append(set.Predicates, f)
			}
		}
	}

	if criteria := postFilterCriteria(filters); len(criteria) > 0 {
		set.HasPostFilterCriteria = true
		set.PostFilterCriteria = criteria
		set.OverfetchMultiplier = PostFilterOverfetch
	}

	set.Order = ResolveSort(filters.String("sort"))
	return set
}

func (b *Builder) directLookup(filters FilterRequest) (PredicateSet, bool) {
	mls := filters.String("mls_number")
	address := filters.String("address")
	if mls == "" && address == "" {
		return PredicateSet{}, false
	}

	var frags []predicate.Fragment
	if mls != "" {
		frags = append(frags, predicate.New("mls_number = ?", mls))
	}
	if address != "" {
		frags = append(frags, predicate.New(`LOWER(street_number || ' ' || street_name) LIKE ? ESCAPE '\'`, containsPattern(address)))
	}

	return PredicateSet{
		Predicates:          []predicate.Fragment{predicate.Or(frags...)},
		Order:               predicate.Order{Column: "list_date", Direction: predicate.Desc},
		IsDirectLookup:      true,
		IncludesArchived:    true,
		OverfetchMultiplier: 1,
	}, true
}

func (b *Builder) location(filters FilterRequest) []predicate.Fragment {
	var frags []predicate.Fragment

	cities := filters.List("city")
	if metro := filters.String("metro"); metro != "" {
		cities = append(cities, b.cfg.Metros.Cities(metro)...)
	}
	if lowered := lowerUnique(cities); len(lowered) > 0 {
		frags = append(frags, inLower("city", lowered))
	}

	frags = append(frags, predicate.In("postal_code", filters.List("zip")))

	if n := strings.ToLower(filters.String("neighborhood")); n != "" {
		frags = append(frags, predicate.New(
			"LOWER(neighborhood) = ? OR LOWER(mls_area_major) = ? OR LOWER(subdivision_name) = ?",
			n, n, n,
		))
	}
	if street := filters.String("street"); street != "" {
		frags = append(frags, predicate.New(`LOWER(street_name) LIKE ? ESCAPE '\'`, containsPattern(street)))
	}
	return frags
}

func (b *Builder) propertyType(filters FilterRequest) []predicate.Fragment {
	var frags []predicate.Fragment
	if t := filters.String("property_type"); t != "" {
		frags = append(frags, predicate.New("property_type = ?", t))
	}
	frags = append(frags, predicate.In("property_sub_type", filters.List("property_subtype")))
	return frags
}

func (b *Builder) price(filters FilterRequest) []predicate.Fragment {
	frags := rangeFilter(filters, "list_price", "min_price", "max_price", nil)
	if filters.Bool("price_reduced") {
		frags = append(frags, predicate.New("original_list_price > list_price"))
	}
	return frags
}

func (b *Builder) rooms(filters FilterRequest) []predicate.Fragment {
	var frags []predicate.Fragment
	frags = append(frags, minFilter(filters, "bedrooms_total", "min_beds"))
	frags = append(frags, minFilter(filters, "bathrooms_total", "min_baths"))
	return frags
}

func (b *Builder) size(filters FilterRequest) []predicate.Fragment {
	frags := rangeFilter(filters, "living_area", "min_sqft", "max_sqft", nil)
	frags = append(frags, rangeFilter(filters, "lot_size_acres", "min_lot_size", "max_lot_size", NormalizeLotSize)...)
	return frags
}

func (b *Builder) timeWindows(filters FilterRequest) []predicate.Fragment {
	frags := rangeFilter(filters, "year_built", "min_year_built", "max_year_built", nil)
	frags = append(frags, rangeFilter(filters, "days_on_market", "min_dom", "max_dom", nil)...)
	if days, ok := filters.Int("new_listing_days"); ok && days > 0 {
		cutoff := b.cfg.Now().UTC().AddDate(0, 0, -days)
		frags = append(frags, predicate.New("list_date >= ?", cutoff))
	}
	return frags
}

func (b *Builder) parking(filters FilterRequest) []predicate.Fragment {
	return []predicate.Fragment{
		minFilter(filters, "garage_spaces", "min_garage"),
		minFilter(filters, "parking_total", "min_parking"),
	}
}

func (b *Builder) amenities(filters FilterRequest) []predicate.Fragment {
	var frags []predicate.Fragment
	if filters.Bool("has_virtual_tour") {
		frags = append(frags, predicate.New("virtual_tour_url IS NOT NULL AND virtual_tour_url <> ?", ""))
	}
	if filters.Bool("has_garage") {
		frags = append(frags, predicate.New("garage_spaces > ?", 0))
	}
	if filters.Bool("has_fireplace") {
		frags = append(frags, predicate.New("fireplaces_total > ?", 0))
	}
	return frags
}

func (b *Builder) special(filters FilterRequest) []predicate.Fragment {
	var frags []predicate.Fragment
	if filters.Bool("open_house_only") {
		frags = append(frags, predicate.New(
			"id IN (SELECT listing_id FROM open_houses WHERE start_time >= ?)",
			b.cfg.Now().UTC(),
		))
	}
	if filters.Bool("exclusive_only") {
		frags = append(frags, predicate.New("id BETWEEN ? AND ?", b.cfg.ExclusiveIDMin, b.cfg.ExclusiveIDMax))
	}
	return frags
}

// geo applies at most one shape: polygon, then bounds, then radius.
func (b *Builder) geo(filters FilterRequest) []predicate.Fragment {
	if filters.Has("polygon") {
		if poly, ok := geometry.ParsePolygon(filters["polygon"]); ok {
			if f, ok := b.cfg.Columns.PolygonPredicate(poly); ok {
				return []predicate.Fragment{f}
			}
		}
	}

	north, okN := filters.Float("north")
	south, okS := filters.Float("south")
	east, okE := filters.Float("east")
	west, okW := filters.Float("west")
	if okN && okS && okE && okW {
		bounds := geometry.Bounds{North: north, South: south, East: east, West: west}
		if f, ok := b.cfg.Columns.BoundingBoxPredicate(bounds); ok {
			return []predicate.Fragment{f}
		}
	}

	lat, okLat := filters.Float("lat")
	lng, okLng := filters.Float("lng")
	radius, okR := filters.Float("radius")
	if okLat && okLng && okR {
		if f, ok := b.cfg.Columns.RadiusPredicate(geometry.GeoPoint{Lat: lat, Lng: lng}, radius); ok {
			return []predicate.Fragment{f}
		}
	}
	return nil
}

func postFilterCriteria(filters FilterRequest) map[string]string {
	var criteria map[string]string
	for _, key := range PostFilterKeys {
		if v := filters.String(key); v != "" {
			if criteria == nil {
				criteria = make(map[string]string)
			}
			criteria[key] = v
		}
	}
	return criteria
}

func minFilter(filters FilterRequest, column, key string) predicate.Fragment {
	if v, ok := filters.Float(key); ok {
		return predicate.New(column+" >= ?", v)
	}
	return predicate.Fragment{}
}

func rangeFilter(filters FilterRequest, column, minKey, maxKey string, normalize func(float64) float64) []predicate.Fragment {
	var frags []predicate.Fragment
	if v, ok := filters.Float(minKey); ok {
		if normalize != nil {
			v = normalize(v)
		}
		frags = append(frags, predicate.New(column+" >= ?", v))
	}
	if v, ok := filters.Float(maxKey); ok {
		if normalize != nil {
			v = normalize(v)
		}
		frags = append(frags, predicate.New(column+" <= ?", v))
	}
	return frags
}

func inLower(column string, values []string) predicate.Fragment {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return predicate.New("LOWER("+predicate.Sanitize(column)+") IN ("+predicate.Placeholders(len(values))+")", args...)
}

func lowerUnique(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a case-insensitive LIKE pattern matching s anywhere.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(strings.TrimSpace(s))) + "%"
}
