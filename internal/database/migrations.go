package database

import (
	"fmt"

	"listingsearch/server/internal/models"
)

// RunMigrations creates or updates the SQLite schema.
func (s *SQLiteStore) RunMigrations() error {
	if err := s.db.AutoMigrate(&models.Listing{}, &models.Photo{}, &models.OpenHouse{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	// Listings geocoded before the flag existed count as attempted
	err := s.db.Exec(`
		UPDATE listings
		SET geocoding_attempted = ?
		WHERE latitude IS NOT NULL
		AND longitude IS NOT NULL
		AND geocoding_attempted = ?
	`, true, false).Error
	if err != nil {
		return fmt.Errorf("failed to mark existing coordinates as attempted: %w", err)
	}

	return nil
}
