// Package database implements the listing store the search engine queries:
// a SQLite adapter on gorm (the default) and a PostgreSQL adapter on pgx.
// Both execute the same SQL built from predicate fragments.
package database

import (
	"context"
	"errors"
	"time"

	"listingsearch/server/internal/models"
	"listingsearch/server/internal/predicate"
)

var ErrNotFound = errors.New("listing not found")

// ListColumns is the reduced projection used by search result pages.
var ListColumns = []string{
	"id", "mls_number", "street_number", "street_name", "unit_number",
	"city", "state_or_province", "postal_code", "list_price",
	"bedrooms_total", "bathrooms_total", "living_area", "standard_status",
	"latitude", "longitude", "list_date", "days_on_market", "property_type",
}

// DetailColumns is the full-row projection used by single-record lookups.
var DetailColumns = []string{
	"id", "mls_number", "street_number", "street_name", "unit_number",
	"city", "state_or_province", "postal_code", "neighborhood", "mls_area_major",
	"subdivision_name", "list_price", "original_list_price", "bedrooms_total",
	"bathrooms_total", "living_area", "lot_size_acres", "year_built",
	"days_on_market", "list_date", "garage_spaces", "parking_total",
	"virtual_tour_url", "fireplaces_total", "property_type", "property_sub_type",
	"standard_status", "archived", "latitude", "longitude", "public_remarks",
}

// ListingStore executes predicate sets against the listings table and
// batch-loads related rows.
type ListingStore interface {
	Search(ctx context.Context, columns []string, where predicate.Fragment, order predicate.Order, limit, offset int) ([]models.Listing, error)
	Count(ctx context.Context, where predicate.Fragment) (int, error)
	FindByExternalID(ctx context.Context, mlsNumber string) (*models.Listing, error)
	FindByIDs(ctx context.Context, ids []int64) ([]models.Listing, error)
	// PhotosForListings returns up to perListing photos per listing, all when
	// perListing <= 0, in sort order.
	PhotosForListings(ctx context.Context, ids []int64, perListing int) (map[int64][]models.Photo, error)
	// NextOpenHouses returns the soonest open house starting at or after now
	// for each listing that has one.
	NextOpenHouses(ctx context.Context, ids []int64, now time.Time) (map[int64]models.OpenHouse, error)
}

// CoordinateStore supports the coordinate backfill.
type CoordinateStore interface {
	ListingsMissingCoordinates(ctx context.Context, limit int) ([]models.Listing, error)
	UpdateCoordinates(ctx context.Context, updates []models.CoordinateUpdate) error
}

type Store interface {
	ListingStore
	CoordinateStore
	Close() error
}

func groupPhotos(photos []models.Photo) map[int64][]models.Photo {
	out := make(map[int64][]models.Photo)
	for _, p := range photos {
		out[p.ListingID] = append(out[p.ListingID], p)
	}
	return out
}

func indexOpenHouses(houses []models.OpenHouse) map[int64]models.OpenHouse {
	out := make(map[int64]models.OpenHouse, len(houses))
	for _, oh := range houses {
		out[oh.ListingID] = oh
	}
	return out
}
