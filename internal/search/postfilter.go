package search

import (
	"context"

	"listingsearch/server/internal/models"
)

// PostFilter evaluates criteria the store cannot. A nil slice with a nil
// error means no filtering was available and the rows stand unchanged.
type PostFilter interface {
	Apply(ctx context.Context, rows []models.Listing, criteria map[string]string) ([]models.Listing, error)
}

type PostFilterFunc func(ctx context.Context, rows []models.Listing, criteria map[string]string) ([]models.Listing, error)

func (f PostFilterFunc) Apply(ctx context.Context, rows []models.Listing, criteria map[string]string) ([]models.Listing, error) {
	return f(ctx, rows, criteria)
}
