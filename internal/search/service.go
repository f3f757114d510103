// Package search compiles free-form filter requests into store predicates
// and runs them as cached, paginated searches.
package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"listingsearch/server/internal/cache"
	"listingsearch/server/internal/database"
	"listingsearch/server/internal/metrics"
	"listingsearch/server/internal/models"
)

// PhotosPerListing caps the photos attached to each search result.
const PhotosPerListing = 5

type Service struct {
	store      database.ListingStore
	cache      *cache.Cache
	builder    *Builder
	postFilter PostFilter
	logger     *logrus.Logger
	now        func() time.Time
}

func NewService(store database.ListingStore, c *cache.Cache, builder *Builder, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if builder == nil {
		builder = NewBuilder(BuilderConfig{})
	}
	return &Service{
		store:   store,
		cache:   c,
		builder: builder,
		logger:  logger,
		now:     builder.cfg.Now,
	}
}

// SetPostFilter registers the hook for criteria the store cannot evaluate.
func (s *Service) SetPostFilter(pf PostFilter) {
	s.postFilter = pf
}

func (s *Service) BuildPredicate(filters FilterRequest) PredicateSet {
	return s.builder.Build(filters)
}

// Search returns one page of listings matching filters. Identical requests
// are served from the cache for two minutes.
func (s *Service) Search(ctx context.Context, filters FilterRequest, page, perPage int) (*models.ResultPage, error) {
	page, perPage = ClampPagination(page, perPage)
	key := CacheKey(filters, page, perPage)

	return cache.GetOrCompute(ctx, s.cache, cache.NamespaceSearch, key, 0, func(ctx context.Context) (*models.ResultPage, error) {
		return s.search(ctx, filters, page, perPage)
	})
}

func (s *Service) search(ctx context.Context, filters FilterRequest, page, perPage int) (*models.ResultPage, error) {
	start := time.Now()
	set := s.builder.Build(filters)
	window := FetchWindow(set, page, perPage)
	where := set.Where()

	rows, err := s.store.Search(ctx, database.ListColumns, where, set.Order, window.Limit, window.Offset)
	if err != nil {
		return nil, fmt.Errorf("search listings: %w", err)
	}
	total, err := s.store.Count(ctx, where)
	if err != nil {
		return nil, fmt.Errorf("count listings: %w", err)
	}

	rows, total, err = Reconcile(ctx, s.postFilter, rows, total, set, page, perPage)
	if err != nil {
		return nil, err
	}

	result := &models.ResultPage{Items: []models.ListItem{}, Total: total, Page: page, PerPage: perPage}
	if len(rows) > 0 {
		items, err := s.enrich(ctx, rows)
		if err != nil {
			return nil, err
		}
		result.Items = items
	}

	mode := "filter"
	switch {
	case set.IsDirectLookup:
		mode = "direct"
	case set.HasPostFilterCriteria:
		mode = "post_filter"
	}
	metrics.SearchDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())

	s.logger.WithFields(logrus.Fields{
		"mode":       mode,
		"predicates": len(set.Predicates),
		"page":       page,
		"per_page":   perPage,
		"total":      total,
		"returned":   len(result.Items),
	}).Debug("Search executed")

	return result, nil
}

// enrich batch-loads photos and the next open house for every row, one
// query per relation.
func (s *Service) enrich(ctx context.Context, rows []models.Listing) ([]models.ListItem, error) {
	ids := distinctIDs(rows)

	var (
		photos     map[int64][]models.Photo
		openHouses map[int64]models.OpenHouse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		photos, err = s.store.PhotosForListings(gctx, ids, PhotosPerListing)
		if err != nil {
			return fmt.Errorf("load photos: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		openHouses, err = s.store.NextOpenHouses(gctx, ids, s.now())
		if err != nil {
			return fmt.Errorf("load open houses: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]models.ListItem, 0, len(rows))
	for _, row := range rows {
		var next *models.OpenHouse
		if oh, ok := openHouses[row.ID]; ok {
			next = &oh
		}
		items = append(items, models.NewListItem(row, photos[row.ID], next))
	}
	return items, nil
}

// Detail returns the full record for an MLS number, cached for an hour.
func (s *Service) Detail(ctx context.Context, mlsNumber string) (*models.ListingDetail, error) {
	return cache.GetOrCompute(ctx, s.cache, cache.NamespaceDetail, mlsNumber, 0, func(ctx context.Context) (*models.ListingDetail, error) {
		listing, err := s.store.FindByExternalID(ctx, mlsNumber)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("find listing %s: %w", mlsNumber, err)
		}

		ids := []int64{listing.ID}
		photos, err := s.store.PhotosForListings(ctx, ids, 0)
		if err != nil {
			return nil, fmt.Errorf("load photos: %w", err)
		}
		openHouses, err := s.store.NextOpenHouses(ctx, ids, s.now())
		if err != nil {
			return nil, fmt.Errorf("load open houses: %w", err)
		}

		detail := &models.ListingDetail{Listing: *listing, Photos: photos[listing.ID]}
		if detail.Photos == nil {
			detail.Photos = []models.Photo{}
		}
		if oh, ok := openHouses[listing.ID]; ok {
			detail.NextOpenHouse = &oh
		}
		return detail, nil
	})
}

func distinctIDs(rows []models.Listing) []int64 {
	seen := make(map[int64]bool, len(rows))
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		ids = append(ids, r.ID)
	}
	return ids
}
