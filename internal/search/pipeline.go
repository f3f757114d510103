package search

import (
	"context"
	"fmt"

	"listingsearch/server/internal/metrics"
	"listingsearch/server/internal/models"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 250
)

// ClampPagination bounds perPage to [1, MaxPerPage] and page to >= 1.
func ClampPagination(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

// Window is the slice of the ordered result set read from the store.
type Window struct {
	Limit  int
	Offset int
}

// FetchWindow computes the store window for a page. With post-filter
// criteria the window always starts at the first row and covers every page
// up to the requested one, inflated by the overfetch multiplier. Pages past
// that window are unreachable until it is widened.
func FetchWindow(set PredicateSet, page, perPage int) Window {
	if !set.HasPostFilterCriteria {
		return Window{Limit: perPage, Offset: (page - 1) * perPage}
	}
	m := set.OverfetchMultiplier
	if m < 1 {
		m = 1
	}
	return Window{Limit: max(perPage*m, page*perPage*m), Offset: 0}
}

// Reconcile applies the post-filter to rows fetched with FetchWindow and
// returns the page rows with the total to report.
func Reconcile(ctx context.Context, hook PostFilter, rows []models.Listing, total int, set PredicateSet, page, perPage int) ([]models.Listing, int, error) {
	if !set.HasPostFilterCriteria {
		return rows, total, nil
	}

	if hook != nil && len(rows) > 0 {
		filtered, err := hook.Apply(ctx, rows, set.PostFilterCriteria)
		if err != nil {
			return nil, 0, fmt.Errorf("post-filter: %w", err)
		}
		if filtered != nil {
			metrics.PostFilterDropped.Add(float64(max(len(rows)-len(filtered), 0)))
			rows = filtered
			total = len(filtered)
		}
	}
	return slicePage(rows, page, perPage), total, nil
}

func slicePage(rows []models.Listing, page, perPage int) []models.Listing {
	start := (page - 1) * perPage
	if start >= len(rows) {
		return nil
	}
	end := min(start+perPage, len(rows))
	return rows[start:end]
}
