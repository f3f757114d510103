package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"listingsearch/server/internal/geometry"
	"listingsearch/server/internal/metrics"
	"listingsearch/server/internal/models"
	"listingsearch/server/internal/predicate"
)

// SQLiteDriverName is a go-sqlite3 driver with the math functions the radius
// predicate needs registered on every connection.
const SQLiteDriverName = "sqlite3_listings"

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			funcs := map[string]any{
				"RADIANS": geometry.Radians,
				"ACOS":    acos,
				"COS":     math.Cos,
				"SIN":     math.Sin,
			}
			for name, fn := range funcs {
				if err := conn.RegisterFunc(name, fn, true); err != nil {
					return fmt.Errorf("failed to register %s: %w", name, err)
				}
			}
			return nil
		},
	})
}

// acos rejects arguments outside [-1, 1] like PostgreSQL does, so queries
// that would fail there fail here too.
func acos(x float64) (float64, error) {
	if x < -1 || x > 1 || math.IsNaN(x) {
		return 0, fmt.Errorf("acos: input is out of range: %v", x)
	}
	return math.Acos(x), nil
}

// SQLiteStore is the gorm-backed listing store.
type SQLiteStore struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) the database at dsn.
func NewSQLiteStore(dsn string, logger *logrus.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	db, err := gorm.Open(sqlite.New(sqlite.Config{
		DriverName: SQLiteDriverName,
		DSN:        dsn,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// DB exposes the gorm handle for migrations and tests.
func (s *SQLiteStore) DB() *gorm.DB {
	return s.db
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) Search(ctx context.Context, columns []string, where predicate.Fragment, order predicate.Order, limit, offset int) ([]models.Listing, error) {
	defer metrics.ObserveStoreQuery("sqlite", "search", time.Now())

	query, args := searchQuery(columns, where, order, limit, offset)
	var rows []models.Listing
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to search listings: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) Count(ctx context.Context, where predicate.Fragment) (int, error) {
	defer metrics.ObserveStoreQuery("sqlite", "count", time.Now())

	query, args := countQuery(where)
	var n int64
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count listings: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) FindByExternalID(ctx context.Context, mlsNumber string) (*models.Listing, error) {
	defer metrics.ObserveStoreQuery("sqlite", "find_by_external_id", time.Now())

	query, args := findByExternalIDQuery(mlsNumber)
	var rows []models.Listing
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find listing %s: %w", mlsNumber, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (s *SQLiteStore) FindByIDs(ctx context.Context, ids []int64) ([]models.Listing, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	defer metrics.ObserveStoreQuery("sqlite", "find_by_ids", time.Now())

	query, args := findByIDsQuery(ids)
	var rows []models.Listing
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load listings by id: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) PhotosForListings(ctx context.Context, ids []int64, perListing int) (map[int64][]models.Photo, error) {
	if len(ids) == 0 {
		return map[int64][]models.Photo{}, nil
	}
	defer metrics.ObserveStoreQuery("sqlite", "photos", time.Now())

	query, args := photosQuery(ids, perListing)
	var photos []models.Photo
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&photos).Error; err != nil {
		return nil, fmt.Errorf("failed to load photos: %w", err)
	}
	return groupPhotos(photos), nil
}

func (s *SQLiteStore) NextOpenHouses(ctx context.Context, ids []int64, now time.Time) (map[int64]models.OpenHouse, error) {
	if len(ids) == 0 {
		return map[int64]models.OpenHouse{}, nil
	}
	defer metrics.ObserveStoreQuery("sqlite", "open_houses", time.Now())

	query, args := openHousesQuery(ids, now)
	var houses []models.OpenHouse
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&houses).Error; err != nil {
		return nil, fmt.Errorf("failed to load open houses: %w", err)
	}
	return indexOpenHouses(houses), nil
}

func (s *SQLiteStore) ListingsMissingCoordinates(ctx context.Context, limit int) ([]models.Listing, error) {
	query, args := missingCoordinatesQuery(limit)
	var rows []models.Listing
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query listings without coordinates: %w", err)
	}
	return rows, nil
}

// UpdateCoordinates writes a batch in one transaction. Failed attempts are
// recorded so the listing is skipped by later passes.
func (s *SQLiteStore) UpdateCoordinates(ctx context.Context, updates []models.CoordinateUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			values := map[string]any{"geocoding_attempted": true}
			if u.Lat != nil && u.Lng != nil {
				values["latitude"] = *u.Lat
				values["longitude"] = *u.Lng
			}
			res := tx.Model(&models.Listing{}).Where("id = ?", u.ListingID).Updates(values)
			if res.Error != nil {
				return fmt.Errorf("failed to update coordinates for listing %d: %w", u.ListingID, res.Error)
			}
			if res.RowsAffected == 0 {
				s.logger.WithField("listing_id", u.ListingID).Warn("Coordinate update matched no listing")
			}
		}
		return nil
	})
}
