package search

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"listingsearch/server/config"
	"listingsearch/server/internal/predicate"
)

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func testBuilder() *Builder {
	return NewBuilder(BuilderConfig{
		ExclusiveIDMin: 900000000,
		ExclusiveIDMax: 999999999,
		Metros: config.NewMetroAreas([]config.MetroArea{
			{Name: "Greater Boston", Cities: []string{"Boston", "Cambridge", "Somerville"}},
		}),
		Now: func() time.Time { return fixedNow },
	})
}

func sqls(set PredicateSet) []string {
	out := make([]string, len(set.Predicates))
	for i, p := range set.Predicates {
		out[i] = p.SQL
	}
	return out
}

func findPredicate(t *testing.T, set PredicateSet, prefix string) predicate.Fragment {
	t.Helper()
	for _, p := range set.Predicates {
		if strings.HasPrefix(p.SQL, prefix) {
			return p
		}
	}
	require.Failf(t, "predicate not found", "no predicate starting with %q in %v", prefix, sqls(set))
	return predicate.Fragment{}
}

func TestBuild_Defaults(t *testing.T) {
	set := testBuilder().Build(FilterRequest{})

	require.Len(t, set.Predicates, 1)
	assert.Equal(t, ResolveStatus("active"), set.Predicates[0])
	assert.Equal(t, ResolveSort(DefaultSort), set.Order)
	assert.Equal(t, 1, set.OverfetchMultiplier)
	assert.False(t, set.IsDirectLookup)
	assert.False(t, set.HasPostFilterCriteria)
	assert.False(t, set.IncludesArchived)
}

func TestBuild_DirectLookupBypassesFilters(t *testing.T) {
	set := testBuilder().Build(FilterRequest{
		"mls_number": "73000001",
		"address":    "12 Main_St",
		"city":       "Boston",
		"min_price":  100,
		"sort":       "price_asc",
	})

	assert.True(t, set.IsDirectLookup)
	assert.True(t, set.IncludesArchived)
	assert.Equal(t, 1, set.OverfetchMultiplier)
	assert.Equal(t, predicate.Order{Column: "list_date", Direction: predicate.Desc}, set.Order)
	require.Len(t, set.Predicates, 1)
	assert.Equal(t,
		`(mls_number = ?) OR (LOWER(street_number || ' ' || street_name) LIKE ? ESCAPE '\')`,
		set.Predicates[0].SQL)
	assert.Equal(t, []any{"73000001", `%12 main\_st%`}, set.Predicates[0].Args)

	addressOnly := testBuilder().Build(FilterRequest{"address": "Beacon"})
	assert.Equal(t, `LOWER(street_number || ' ' || street_name) LIKE ? ESCAPE '\'`, addressOnly.Predicates[0].SQL)
}

func TestBuild_FamilyOrder(t *testing.T) {
	set := testBuilder().Build(FilterRequest{
		"has_fireplace":   true,
		"min_garage":      1,
		"min_beds":        "3",
		"property_type":   "Residential",
		"city":            "Boston",
		"min_price":       "400000",
		"min_sqft":        1200,
		"min_year_built":  1990,
		"exclusive_only":  "true",
		"north":           42.4,
		"south":           42.3,
		"east":            -71.0,
		"west":            -71.1,
		"status":          "pending",
		"not_a_real_key":  "x",
		"min_dom":         "abc",
		"price_reduced":   false,
		"open_house_only": "no",
	})

	assert.Equal(t, []string{
		"standard_status IN (?, ?)",
		"LOWER(city) IN (?)",
		"property_type = ?",
		"list_price >= ?",
		"bedrooms_total >= ?",
		"living_area >= ?",
		"year_built >= ?",
		"garage_spaces >= ?",
		"fireplaces_total > ?",
		"id BETWEEN ? AND ?",
		"latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ?",
	}, sqls(set))

	assert.Equal(t, []any{int64(900000000), int64(999999999)}, findPredicate(t, set, "id BETWEEN").Args)
	assert.Equal(t, []any{42.3, 42.4, -71.1, -71.0}, findPredicate(t, set, "latitude BETWEEN").Args)
}

func TestBuild_Location(t *testing.T) {
	set := testBuilder().Build(FilterRequest{
		"city":         "boston, Newton",
		"metro":        "greater boston",
		"zip":          "02110,02111",
		"neighborhood": "Back Bay",
		"street":       "100%",
	})

	city := findPredicate(t, set, "LOWER(city) IN")
	assert.Equal(t, "LOWER(city) IN (?, ?, ?, ?)", city.SQL)
	assert.Equal(t, []any{"boston", "newton", "cambridge", "somerville"}, city.Args)

	zip := findPredicate(t, set, "postal_code IN")
	assert.Equal(t, []any{"02110", "02111"}, zip.Args)

	n := findPredicate(t, set, "LOWER(neighborhood)")
	assert.Equal(t, []any{"back bay", "back bay", "back bay"}, n.Args)

	street := findPredicate(t, set, "LOWER(street_name) LIKE")
	assert.Equal(t, []any{`%100\%%`}, street.Args)

	unknownMetro := testBuilder().Build(FilterRequest{"metro": "Atlantis"})
	assert.Len(t, unknownMetro.Predicates, 1)
}

func TestBuild_RangesAndFlags(t *testing.T) {
	set := testBuilder().Build(FilterRequest{
		"max_price":        "900000",
		"price_reduced":    "1",
		"min_baths":        1.5,
		"max_sqft":         "3000",
		"min_lot_size":     5000,
		"max_lot_size":     "0.5",
		"max_year_built":   2020,
		"min_dom":          2,
		"max_dom":          "30",
		"new_listing_days": 7,
		"min_parking":      2,
		"has_virtual_tour": "yes",
		"has_garage":       true,
		"open_house_only":  "on",
		"property_subtype": []string{"Condominium", "Townhouse"},
	})

	assert.Equal(t, []any{900000.0}, findPredicate(t, set, "list_price <=").Args)
	findPredicate(t, set, "original_list_price > list_price")
	assert.Equal(t, []any{1.5}, findPredicate(t, set, "bathrooms_total >=").Args)
	assert.Equal(t, []any{3000.0}, findPredicate(t, set, "living_area <=").Args)
	assert.InDelta(t, 0.1148, findPredicate(t, set, "lot_size_acres >=").Args[0], 0.0001)
	assert.Equal(t, []any{0.5}, findPredicate(t, set, "lot_size_acres <=").Args)
	assert.Equal(t, []any{2020.0}, findPredicate(t, set, "year_built <=").Args)
	assert.Equal(t, []any{2.0}, findPredicate(t, set, "days_on_market >=").Args)
	assert.Equal(t, []any{30.0}, findPredicate(t, set, "days_on_market <=").Args)
	assert.Equal(t, []any{fixedNow.AddDate(0, 0, -7)}, findPredicate(t, set, "list_date >=").Args)
	assert.Equal(t, []any{2.0}, findPredicate(t, set, "parking_total >=").Args)
	findPredicate(t, set, "virtual_tour_url IS NOT NULL")
	assert.Equal(t, []any{0}, findPredicate(t, set, "garage_spaces >").Args)
	assert.Equal(t, []any{fixedNow}, findPredicate(t, set, "id IN (SELECT listing_id FROM open_houses").Args)
	assert.Equal(t, []any{"Condominium", "Townhouse"}, findPredicate(t, set, "property_sub_type IN").Args)
}

func TestNormalizeLotSize(t *testing.T) {
	assert.InDelta(t, 0.1148, NormalizeLotSize(5000), 0.0001)
	assert.Equal(t, 5000/43560.0, NormalizeLotSize(5000))
	assert.Equal(t, 0.5, NormalizeLotSize(0.5))
	assert.Equal(t, 100.0, NormalizeLotSize(100))
}

func TestBuild_GeoPrecedence(t *testing.T) {
	square := [][]float64{{42.40, -71.10}, {42.40, -71.00}, {42.30, -71.00}, {42.30, -71.10}}
	polygon := make([]any, len(square))
	for i, p := range square {
		polygon[i] = []any{p[0], p[1]}
	}

	all := FilterRequest{
		"polygon": polygon,
		"north":   42.4, "south": 42.3, "east": -71.0, "west": -71.1,
		"lat": 42.36, "lng": -71.05, "radius": 5,
	}
	set := testBuilder().Build(all)
	require.Len(t, set.Predicates, 2)
	assert.Contains(t, set.Predicates[1].SQL, "% 2 = 1")

	delete(all, "polygon")
	set = testBuilder().Build(all)
	assert.Contains(t, set.Predicates[1].SQL, "BETWEEN")

	delete(all, "north")
	set = testBuilder().Build(all)
	assert.Contains(t, set.Predicates[1].SQL, "ACOS")
	assert.Equal(t, []any{42.36, -71.05, 42.36, 5.0}, set.Predicates[1].Args)

	serialized := testBuilder().Build(FilterRequest{"polygon": "[[42.4,-71.1],[42.4,-71.0],[42.3,-71.0],[42.3,-71.1]]"})
	require.Len(t, serialized.Predicates, 2)
	assert.Contains(t, serialized.Predicates[1].SQL, "% 2 = 1")

	tooSmall := testBuilder().Build(FilterRequest{"polygon": "[[42.4,-71.1],[42.4,-71.0]]"})
	assert.Len(t, tooSmall.Predicates, 1)

	inverted := testBuilder().Build(FilterRequest{"north": 42.3, "south": 42.4, "east": -71.0, "west": -71.1})
	assert.Len(t, inverted.Predicates, 1)
}

func TestBuild_PostFilterCriteria(t *testing.T) {
	set := testBuilder().Build(FilterRequest{
		"school_district":   "Boston Public",
		"min_school_rating": 7,
		"school_type":       "",
	})

	assert.True(t, set.HasPostFilterCriteria)
	assert.Equal(t, PostFilterOverfetch, set.OverfetchMultiplier)
	assert.Equal(t, map[string]string{"school_district": "Boston Public", "min_school_rating": "7"}, set.PostFilterCriteria)
	assert.Len(t, set.Predicates, 1, "criteria never reach the store")
}

func TestBuild_ValuesAreBound(t *testing.T) {
	hostile := "x'); DROP TABLE listings; --"
	set := testBuilder().Build(FilterRequest{
		"city":          hostile,
		"property_type": hostile,
		"neighborhood":  hostile,
		"sort":          hostile,
	})
	for _, p := range set.Predicates {
		assert.NotContains(t, p.SQL, "DROP")
	}
	assert.Equal(t, ResolveSort(DefaultSort), set.Order)
}
