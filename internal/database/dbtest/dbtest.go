// Package dbtest provides throwaway SQLite stores for tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"listingsearch/server/internal/database"
)

// NewTestDB returns a migrated in-memory SQLite store private to t.
func NewTestDB(t testing.TB) *database.SQLiteStore {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	store, err := database.NewSQLiteStore(dsn, logrus.New())
	require.NoError(t, err)

	// one connection keeps the shared in-memory database alive and avoids
	// table lock contention between concurrent readers
	sqlDB, err := store.DB().DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, store.RunMigrations())

	t.Cleanup(func() { store.Close() })
	return store
}

// Seed inserts the given rows (listings, photos, open houses) in order.
func Seed(t testing.TB, store *database.SQLiteStore, rows ...any) {
	t.Helper()
	for _, r := range rows {
		require.NoError(t, store.DB().Create(r).Error)
	}
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }

func String(v string) *string { return &v }
