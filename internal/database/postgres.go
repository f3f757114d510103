package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"listingsearch/server/internal/metrics"
	"listingsearch/server/internal/models"
	"listingsearch/server/internal/predicate"
)

// PostgresStore is the pgx-backed listing store. The schema is managed
// outside this service.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

// NewPostgresStore connects a pool to dsn and verifies it with a ping.
func NewPostgresStore(ctx context.Context, dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func collect[T any](ctx context.Context, pool *pgxpool.Pool, query string, args []any) ([]T, error) {
	rows, err := pool.Query(ctx, predicate.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByNameLax[T])
}

func (s *PostgresStore) Search(ctx context.Context, columns []string, where predicate.Fragment, order predicate.Order, limit, offset int) ([]models.Listing, error) {
	defer metrics.ObserveStoreQuery("postgres", "search", time.Now())

	query, args := searchQuery(columns, where, order, limit, offset)
	rows, err := collect[models.Listing](ctx, s.pool, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) Count(ctx context.Context, where predicate.Fragment) (int, error) {
	defer metrics.ObserveStoreQuery("postgres", "count", time.Now())

	query, args := countQuery(where)
	var n int64
	if err := s.pool.QueryRow(ctx, predicate.Rebind(query), args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, mlsNumber string) (*models.Listing, error) {
	defer metrics.ObserveStoreQuery("postgres", "find_by_external_id", time.Now())

	query, args := findByExternalIDQuery(mlsNumber)
	rows, err := collect[models.Listing](ctx, s.pool, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to find listing %s: %w", mlsNumber, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (s *PostgresStore) FindByIDs(ctx context.Context, ids []int64) ([]models.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	defer metrics.ObserveStoreQuery("postgres", "find_by_ids", time.Now())

	query, args := findByIDsQuery(ids)
	rows, err := collect[models.Listing](ctx, s.pool, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to load listings by id: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) PhotosForListings(ctx context.Context, ids []int64, perListing int) (map[int64][]models.Photo, error) {
	if len(ids) == 0 {
		return map[int64][]models.Photo{}, nil
	}
	defer metrics.ObserveStoreQuery("postgres", "photos", time.Now())

	query, args := photosQuery(ids, perListing)
	photos, err := collect[models.Photo](ctx, s.pool, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to load photos: %w", err)
	}
	return groupPhotos(photos), nil
}

func (s *PostgresStore) NextOpenHouses(ctx context.Context, ids []int64, now time.Time) (map[int64]models.OpenHouse, error) {
	if len(ids) == 0 {
		return map[int64]models.OpenHouse{}, nil
	}
	defer metrics.ObserveStoreQuery("postgres", "open_houses", time.Now())

	query, args := openHousesQuery(ids, now)
	houses, err := collect[models.OpenHouse](ctx, s.pool, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to load open houses: %w", err)
	}
	return indexOpenHouses(houses), nil
}

func (s *PostgresStore) ListingsMissingCoordinates(ctx context.Context, limit int) ([]models.Listing, error) {
	query, args := missingCoordinatesQuery(limit)
	rows, err := collect[models.Listing](ctx, s.pool, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings without coordinates: %w", err)
	}
	return rows, nil
}

func (s *PostgresStore) UpdateCoordinates(ctx context.Context, updates []models.CoordinateUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, u := range updates {
			if u.Lat != nil && u.Lng != nil {
				batch.Queue(`UPDATE listings SET latitude = $1, longitude = $2, geocoding_attempted = TRUE WHERE id = $3`, *u.Lat, *u.Lng, u.ListingID)
			} else {
				batch.Queue(`UPDATE listings SET geocoding_attempted = TRUE WHERE id = $1`, u.ListingID)
			}
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to update coordinates: %w", err)
		}
		return nil
	})
}
