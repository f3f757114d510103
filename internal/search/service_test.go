package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"listingsearch/server/internal/cache"
	"listingsearch/server/internal/database"
	"listingsearch/server/internal/database/dbtest"
	"listingsearch/server/internal/models"
	"listingsearch/server/internal/predicate"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Search(ctx context.Context, columns []string, where predicate.Fragment, order predicate.Order, limit, offset int) ([]models.Listing, error) {
	args := m.Called(ctx, columns, where, order, limit, offset)
	rows, _ := args.Get(0).([]models.Listing)
	return rows, args.Error(1)
}

func (m *MockStore) Count(ctx context.Context, where predicate.Fragment) (int, error) {
	args := m.Called(ctx, where)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) FindByExternalID(ctx context.Context, mlsNumber string) (*models.Listing, error) {
	args := m.Called(ctx, mlsNumber)
	l, _ := args.Get(0).(*models.Listing)
	return l, args.Error(1)
}

func (m *MockStore) FindByIDs(ctx context.Context, ids []int64) ([]models.Listing, error) {
	args := m.Called(ctx, ids)
	rows, _ := args.Get(0).([]models.Listing)
	return rows, args.Error(1)
}

func (m *MockStore) PhotosForListings(ctx context.Context, ids []int64, perListing int) (map[int64][]models.Photo, error) {
	args := m.Called(ctx, ids, perListing)
	photos, _ := args.Get(0).(map[int64][]models.Photo)
	return photos, args.Error(1)
}

func (m *MockStore) NextOpenHouses(ctx context.Context, ids []int64, now time.Time) (map[int64]models.OpenHouse, error) {
	args := m.Called(ctx, ids, now)
	houses, _ := args.Get(0).(map[int64]models.OpenHouse)
	return houses, args.Error(1)
}

func newTestService(store database.ListingStore) *Service {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c := cache.New(cache.NewMemoryStore(), logger)
	return NewService(store, c, testBuilder(), logger)
}

func TestService_SearchUsesCacheAcrossParameterOrder(t *testing.T) {
	store := new(MockStore)
	rows := []models.Listing{{ID: 7, MLSNumber: "M7", StreetNumber: "7", StreetName: "Elm St", StandardStatus: "Active"}}

	store.On("Search", mock.Anything, database.ListColumns, mock.Anything, mock.Anything, 20, 20).Return(rows, nil).Once()
	store.On("Count", mock.Anything, mock.Anything).Return(21, nil).Once()
	store.On("PhotosForListings", mock.Anything, []int64{7}, PhotosPerListing).
		Return(map[int64][]models.Photo{7: {{ListingID: 7, URL: "a.jpg"}}}, nil).Once()
	store.On("NextOpenHouses", mock.Anything, []int64{7}, fixedNow).Return(map[int64]models.OpenHouse{}, nil).Once()

	svc := newTestService(store)
	ctx := context.Background()

	first := FilterRequest{}
	first["city"] = "Boston"
	first["min_beds"] = 2
	first["sort"] = "price_desc"

	second := FilterRequest{}
	second["sort"] = "price_desc"
	second["min_beds"] = 2
	second["city"] = "Boston"
	second["zip"] = ""

	page1, err := svc.Search(ctx, first, 2, 20)
	require.NoError(t, err)
	page2, err := svc.Search(ctx, second, 2, 20)
	require.NoError(t, err)

	assert.Equal(t, CacheKey(first, 2, 20), CacheKey(second, 2, 20))
	assert.Equal(t, page1, page2)
	assert.Equal(t, 21, page2.Total)
	require.Len(t, page2.Items, 1)
	assert.Equal(t, []string{"a.jpg"}, page2.Items[0].Photos)
	assert.Nil(t, page2.Items[0].NextOpenHouse)
	store.AssertExpectations(t)
}

func TestService_SearchPlainWindowAndOrder(t *testing.T) {
	store := new(MockStore)
	store.On("Search", mock.Anything, database.ListColumns,
		mock.MatchedBy(func(where predicate.Fragment) bool {
			return where.SQL == "(archived = ? AND standard_status = ?) AND (list_price >= ?)"
		}),
		predicate.Order{Column: "list_price", Direction: predicate.Asc}, 10, 30).
		Return([]models.Listing{}, nil).Once()
	store.On("Count", mock.Anything, mock.Anything).Return(5, nil).Once()

	svc := newTestService(store)
	page, err := svc.Search(context.Background(), FilterRequest{"min_price": 1, "sort": "price_asc"}, 4, 10)
	require.NoError(t, err)

	assert.Equal(t, 5, page.Total)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	store.AssertNotCalled(t, "PhotosForListings", mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestService_SearchOverfetchesForPostFilter(t *testing.T) {
	store := new(MockStore)
	var window []models.Listing
	for i := int64(1); i <= 12; i++ {
		window = append(window, models.Listing{ID: i})
	}
	store.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, 60, 0).Return(window, nil).Once()
	store.On("Count", mock.Anything, mock.Anything).Return(500, nil).Once()
	store.On("PhotosForListings", mock.Anything, []int64{9, 12}, PhotosPerListing).Return(map[int64][]models.Photo{}, nil).Once()
	store.On("NextOpenHouses", mock.Anything, []int64{9, 12}, fixedNow).
		Return(map[int64]models.OpenHouse{12: {ListingID: 12, StartTime: fixedNow.Add(time.Hour)}}, nil).Once()

	svc := newTestService(store)
	svc.SetPostFilter(PostFilterFunc(func(_ context.Context, rows []models.Listing, _ map[string]string) ([]models.Listing, error) {
		var kept []models.Listing
		for _, r := range rows {
			if r.ID%3 == 0 {
				kept = append(kept, r)
			}
		}
		return kept, nil
	}))

	page, err := svc.Search(context.Background(), FilterRequest{"school_district": "Newton"}, 2, 3)
	require.NoError(t, err)

	assert.Equal(t, 4, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(9), page.Items[0].ID)
	assert.Equal(t, int64(12), page.Items[1].ID)
	require.NotNil(t, page.Items[1].NextOpenHouse)
	assert.Equal(t, []string{}, page.Items[0].Photos)
	store.AssertExpectations(t)
}

func TestService_SearchStoreErrorNotCached(t *testing.T) {
	store := new(MockStore)
	boom := errors.New("database is locked")
	store.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, boom).Twice()

	svc := newTestService(store)
	_, err := svc.Search(context.Background(), FilterRequest{}, 1, 20)
	assert.ErrorIs(t, err, boom)
	_, err = svc.Search(context.Background(), FilterRequest{}, 1, 20)
	assert.ErrorIs(t, err, boom)
	store.AssertExpectations(t)
}

func TestService_Detail(t *testing.T) {
	store := new(MockStore)
	listing := &models.Listing{ID: 3, MLSNumber: "D3"}
	store.On("FindByExternalID", mock.Anything, "D3").Return(listing, nil).Once()
	store.On("FindByExternalID", mock.Anything, "missing").Return(nil, database.ErrNotFound)
	store.On("PhotosForListings", mock.Anything, []int64{3}, 0).Return(map[int64][]models.Photo{}, nil).Once()
	store.On("NextOpenHouses", mock.Anything, []int64{3}, fixedNow).Return(map[int64]models.OpenHouse{}, nil).Once()

	svc := newTestService(store)
	ctx := context.Background()

	detail, err := svc.Detail(ctx, "D3")
	require.NoError(t, err)
	assert.Equal(t, "D3", detail.Listing.MLSNumber)
	assert.NotNil(t, detail.Photos)

	again, err := svc.Detail(ctx, "D3")
	require.NoError(t, err)
	assert.Equal(t, detail, again)

	_, err = svc.Detail(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrNotFound)
	store.AssertExpectations(t)
}

func TestService_SearchAgainstSQLite(t *testing.T) {
	db := dbtest.NewTestDB(t)
	day := func(n int) *time.Time { d := fixedNow.AddDate(0, 0, -n); return &d }
	dbtest.Seed(t, db,
		&models.Listing{ID: 1, MLSNumber: "S1", StreetNumber: "1", StreetName: "Beacon St", City: "Boston",
			ListPrice: dbtest.Float(500000), LotSizeAcres: dbtest.Float(0.2), StandardStatus: "Active",
			Latitude: dbtest.Float(42.3601), Longitude: dbtest.Float(-71.0589), ListDate: day(3)},
		&models.Listing{ID: 2, MLSNumber: "S2", StreetNumber: "9", StreetName: "Elm St", City: "Somerville",
			ListPrice: dbtest.Float(650000), LotSizeAcres: dbtest.Float(0.05), StandardStatus: "Active",
			Latitude: dbtest.Float(42.3876), Longitude: dbtest.Float(-71.0995), ListDate: day(1)},
		&models.Listing{ID: 3, MLSNumber: "S1", StreetNumber: "1", StreetName: "Beacon St", City: "Boston",
			ListPrice: dbtest.Float(420000), StandardStatus: "Closed", Archived: true, ListDate: day(500)},
		&models.Listing{ID: 4, MLSNumber: "S4", StreetNumber: "5", StreetName: "Broadway", City: "New York",
			ListPrice: dbtest.Float(900000), StandardStatus: "Active",
			Latitude: dbtest.Float(40.7128), Longitude: dbtest.Float(-74.0060), ListDate: day(20)},
		&models.Photo{ListingID: 1, URL: "1a.jpg", SortOrder: 0},
		&models.Photo{ListingID: 1, URL: "1b.jpg", SortOrder: 1},
		&models.OpenHouse{ListingID: 2, StartTime: fixedNow.Add(24 * time.Hour), EndTime: fixedNow.Add(26 * time.Hour)},
	)

	svc := newTestService(db)
	ctx := context.Background()

	metro, err := svc.Search(ctx, FilterRequest{"metro": "Greater Boston", "sort": "price_asc"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, metro.Total)
	assert.Equal(t, int64(1), metro.Items[0].ID)
	assert.Equal(t, []string{"1a.jpg", "1b.jpg"}, metro.Items[0].Photos)
	require.NotNil(t, metro.Items[1].NextOpenHouse)

	lot, err := svc.Search(ctx, FilterRequest{"min_lot_size": 5000}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, lot.Total)
	assert.Equal(t, int64(1), lot.Items[0].ID)

	radius, err := svc.Search(ctx, FilterRequest{"lat": 42.36, "lng": -71.06, "radius": 10}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, radius.Total)

	direct, err := svc.Search(ctx, FilterRequest{"mls_number": "S1"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 2, direct.Total)
	assert.Equal(t, int64(1), direct.Items[0].ID, "newest listing first")
	assert.Equal(t, int64(3), direct.Items[1].ID)

	sold, err := svc.Search(ctx, FilterRequest{"status": "sold"}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, sold.Total)
	assert.Equal(t, int64(3), sold.Items[0].ID)

	fresh, err := svc.Search(ctx, FilterRequest{"new_listing_days": 7}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.Total)

	openHouse, err := svc.Search(ctx, FilterRequest{"open_house_only": true}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, openHouse.Total)
	assert.Equal(t, int64(2), openHouse.Items[0].ID)
}

func TestService_OpenHouseStoredWithOffset(t *testing.T) {
	db := dbtest.NewTestDB(t)
	edt := time.FixedZone("EDT", -4*60*60)
	start := fixedNow.Add(2 * time.Hour).In(edt)
	dbtest.Seed(t, db,
		&models.Listing{ID: 1, MLSNumber: "O1", StreetNumber: "1", StreetName: "Beacon St", City: "Boston",
			StandardStatus: "Active"},
		&models.OpenHouse{ListingID: 1, StartTime: start, EndTime: start.Add(2 * time.Hour)},
	)

	svc := newTestService(db)
	ctx := context.Background()

	onlyOpen, err := svc.Search(ctx, FilterRequest{"open_house_only": true}, 1, 10)
	require.NoError(t, err)
	require.Equal(t, 1, onlyOpen.Total)

	all, err := svc.Search(ctx, FilterRequest{}, 1, 10)
	require.NoError(t, err)
	require.Len(t, all.Items, 1)
	require.NotNil(t, all.Items[0].NextOpenHouse)
	assert.True(t, all.Items[0].NextOpenHouse.StartTime.Equal(start))
}
