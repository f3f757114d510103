package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache() (*Cache, *MemoryStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore().WithClock(clock.Now)
	return New(store, logrus.New()), store, clock
}

func TestNamespaceDefaultTTL(t *testing.T) {
	assert.Equal(t, 2*time.Minute, NamespaceSearch.DefaultTTL())
	assert.Equal(t, time.Hour, NamespaceDetail.DefaultTTL())
	assert.Equal(t, 30*24*time.Hour, NamespaceGeocode.DefaultTTL())
	assert.Equal(t, 5*time.Minute, NamespaceAutocomplete.DefaultTTL())
	assert.Equal(t, time.Minute, Namespace("other").DefaultTTL())
}

func TestCacheSetGet(t *testing.T) {
	c, store, clock := newTestCache()
	ctx := context.Background()

	c.Set(ctx, NamespaceSearch, "k", payload{Name: "a", Count: 2}, 0)

	var got payload
	require.True(t, c.Get(ctx, NamespaceSearch, "k", &got))
	assert.Equal(t, payload{Name: "a", Count: 2}, got)

	// namespaces do not collide
	assert.False(t, c.Get(ctx, NamespaceDetail, "k", &got))

	clock.Advance(2*time.Minute - time.Second)
	assert.True(t, c.Get(ctx, NamespaceSearch, "k", &got))

	clock.Advance(time.Second)
	assert.False(t, c.Get(ctx, NamespaceSearch, "k", &got))
	assert.Equal(t, 0, store.Len())
}

func TestGetOrCompute(t *testing.T) {
	c, _, clock := newTestCache()
	ctx := context.Background()

	calls := 0
	compute := func(context.Context) (payload, error) {
		calls++
		return payload{Name: "computed", Count: calls}, nil
	}

	v, err := GetOrCompute(ctx, c, NamespaceSearch, "key", 0, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Count)

	v, err = GetOrCompute(ctx, c, NamespaceSearch, "key", 0, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Count)
	assert.Equal(t, 1, calls)

	clock.Advance(3 * time.Minute)
	v, err = GetOrCompute(ctx, c, NamespaceSearch, "key", 0, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Count)
}

func TestGetOrCompute_ErrorNotCached(t *testing.T) {
	c, store, _ := newTestCache()
	ctx := context.Background()

	_, err := GetOrCompute(ctx, c, NamespaceSearch, "key", 0, func(context.Context) (payload, error) {
		return payload{}, errors.New("store down")
	})
	assert.EqualError(t, err, "store down")
	assert.Equal(t, 0, store.Len())
}

func TestGetOrCompute_ConcurrentMisses(t *testing.T) {
	c, _, _ := newTestCache()
	ctx := context.Background()

	var calls int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := GetOrCompute(ctx, c, NamespaceSearch, "same", 0, func(context.Context) (payload, error) {
				atomic.AddInt32(&calls, 1)
				return payload{Name: "same"}, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "same", v.Name)
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))

	var got payload
	assert.True(t, c.Get(ctx, NamespaceSearch, "same", &got))
}

// MockStore is a mock implementation of Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	args := m.Called(ctx, key)
	b, _ := args.Get(0).([]byte)
	return b, args.Bool(1), args.Error(2)
}

func (m *MockStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := m.Called(ctx, key, value, ttl)
	return args.Error(0)
}

func (m *MockStore) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

func TestCache_BackendFailuresDegrade(t *testing.T) {
	store := &MockStore{}
	c := New(store, logrus.New())
	ctx := context.Background()

	store.On("Get", ctx, "property_search:k").Return(nil, false, errors.New("connection refused")).Once()
	store.On("Set", ctx, "property_search:k", mock.Anything, 2*time.Minute).Return(errors.New("connection refused")).Once()

	v, err := GetOrCompute(ctx, c, NamespaceSearch, "k", 0, func(context.Context) (payload, error) {
		return payload{Name: "fresh"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v.Name)
	store.AssertExpectations(t)
}

func TestCache_UndecodableEntryIsMiss(t *testing.T) {
	store := &MockStore{}
	c := New(store, logrus.New())
	ctx := context.Background()

	store.On("Get", ctx, "geocode:addr").Return([]byte("{not json"), true, nil).Once()

	var got payload
	assert.False(t, c.Get(ctx, NamespaceGeocode, "addr", &got))
	store.AssertExpectations(t)
}

func TestNilCache(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	var got payload
	assert.False(t, c.Get(ctx, NamespaceSearch, "k", &got))
	c.Set(ctx, NamespaceSearch, "k", payload{}, 0)
	assert.NoError(t, c.Delete(ctx, NamespaceSearch, "k"))

	v, err := GetOrCompute(ctx, c, NamespaceSearch, "k", 0, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestMemoryStoreSweep(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	store := NewMemoryStore().WithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, store.Set(ctx, "long", []byte("2"), time.Hour))

	clock.Advance(time.Minute)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, "long"))
	_, ok, err := store.Get(ctx, "long")
	require.NoError(t, err)
	assert.False(t, ok)
}
