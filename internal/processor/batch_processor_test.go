package processor

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"listingsearch/server/config"
	"listingsearch/server/internal/geocoding"
	"listingsearch/server/internal/models"
	"listingsearch/server/internal/queue"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListingsMissingCoordinates(ctx context.Context, limit int) ([]models.Listing, error) {
	args := m.Called(ctx, limit)
	rows, _ := args.Get(0).([]models.Listing)
	return rows, args.Error(1)
}

func (m *MockStore) UpdateCoordinates(ctx context.Context, updates []models.CoordinateUpdate) error {
	args := m.Called(ctx, updates)
	return args.Error(0)
}

type stubGeocoder map[string]*geocoding.Result

func (s stubGeocoder) Geocode(_ context.Context, address string) *geocoding.Result {
	return s[address]
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Backfill.MaxRetries = 2
	cfg.Backfill.RetryDelay = 0
	return cfg
}

func TestNewBatchProcessor(t *testing.T) {
	store := &MockStore{}
	q := queue.NewListingQueue(10, logrus.New())
	cfg := testConfig()
	logger := logrus.New()

	p := NewBatchProcessor(store, stubGeocoder{}, q, cfg, logger)

	assert.NotNil(t, p)
	assert.Equal(t, store, p.store)
	assert.Equal(t, q, p.queue)
	assert.Equal(t, cfg, p.config)
	assert.Equal(t, logger, p.logger)
}

func TestBatchProcessor_ProcessBatch(t *testing.T) {
	store := &MockStore{}
	geo := stubGeocoder{
		"1 Beacon St, Boston, MA 02108": {Lat: 42.3588, Lng: -71.0638},
	}
	p := NewBatchProcessor(store, geo, queue.NewListingQueue(10, logrus.New()), testConfig(), logrus.New())

	batch := []models.Listing{
		{ID: 1, StreetNumber: "1", StreetName: "Beacon St", City: "Boston", StateOrProvince: "MA", PostalCode: "02108"},
		{ID: 2, StreetNumber: "0", StreetName: "Nowhere Ln", City: "Atlantis"},
	}

	store.On("UpdateCoordinates", mock.Anything, mock.MatchedBy(func(updates []models.CoordinateUpdate) bool {
		return len(updates) == 2 &&
			updates[0].ListingID == 1 && updates[0].Lat != nil && *updates[0].Lat == 42.3588 &&
			updates[1].ListingID == 2 && updates[1].Lat == nil && updates[1].Lng == nil
	})).Return(nil).Once()

	require.NoError(t, p.processBatch(batch))
	store.AssertExpectations(t)
}

func TestBatchProcessor_RetriesThenFails(t *testing.T) {
	store := &MockStore{}
	p := NewBatchProcessor(store, stubGeocoder{}, queue.NewListingQueue(10, logrus.New()), testConfig(), logrus.New())

	store.On("UpdateCoordinates", mock.Anything, mock.Anything).Return(errors.New("database is locked")).Times(3)

	err := p.processBatch([]models.Listing{{ID: 9}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to process batch after 3 attempts")
	store.AssertExpectations(t)
}

func TestBatchProcessor_RetrySucceeds(t *testing.T) {
	store := &MockStore{}
	p := NewBatchProcessor(store, stubGeocoder{}, queue.NewListingQueue(10, logrus.New()), testConfig(), logrus.New())

	store.On("UpdateCoordinates", mock.Anything, mock.Anything).Return(errors.New("busy")).Once()
	store.On("UpdateCoordinates", mock.Anything, mock.Anything).Return(nil).Once()

	assert.NoError(t, p.processBatch([]models.Listing{{ID: 9}}))
	store.AssertExpectations(t)
}

func TestBatchProcessor_StopAbortsBatches(t *testing.T) {
	store := &MockStore{}
	p := NewBatchProcessor(store, stubGeocoder{}, queue.NewListingQueue(10, logrus.New()), testConfig(), logrus.New())

	p.Stop()
	assert.ErrorIs(t, p.processBatch([]models.Listing{{ID: 1}}), context.Canceled)
	store.AssertNotCalled(t, "UpdateCoordinates", mock.Anything, mock.Anything)
}
