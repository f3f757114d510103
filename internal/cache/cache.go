// Package cache provides namespaced, TTL-bound memoization for search
// results and geocoding lookups on top of a pluggable byte store.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"listingsearch/server/internal/metrics"
)

// Namespace partitions keys by purpose. Each carries a default TTL.
type Namespace string

const (
	NamespaceSearch       Namespace = "property_search"
	NamespaceDetail       Namespace = "property_detail"
	NamespaceGeocode      Namespace = "geocode"
	NamespaceAutocomplete Namespace = "autocomplete"
)

var defaultTTLs = map[Namespace]time.Duration{
	NamespaceSearch:       2 * time.Minute,
	NamespaceDetail:       time.Hour,
	NamespaceGeocode:      30 * 24 * time.Hour,
	NamespaceAutocomplete: 5 * time.Minute,
}

// DefaultTTL returns the namespace's TTL, one minute for unknown namespaces.
func (n Namespace) DefaultTTL() time.Duration {
	if ttl, ok := defaultTTLs[n]; ok {
		return ttl
	}
	return time.Minute
}

// Store is a byte-oriented key/value backend with per-key expiry. It must be
// safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Cache stores JSON-encoded values in a Store under namespaced keys.
// Backend failures degrade to cache misses and are only logged.
type Cache struct {
	store  Store
	logger *logrus.Logger
}

func New(store Store, logger *logrus.Logger) *Cache {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Cache{store: store, logger: logger}
}

func fullKey(ns Namespace, key string) string {
	return string(ns) + ":" + key
}

// Get decodes the cached value for key into dest and reports whether it was
// found.
func (c *Cache) Get(ctx context.Context, ns Namespace, key string, dest any) bool {
	if c == nil || c.store == nil {
		return false
	}

	data, ok, err := c.store.Get(ctx, fullKey(ns, key))
	if err != nil {
		metrics.CacheErrors.WithLabelValues(string(ns), "get").Inc()
		c.logger.WithError(err).WithFields(logrus.Fields{
			"namespace": ns,
			"key":       key,
		}).Warn("Cache read failed")
		return false
	}
	if !ok {
		metrics.CacheMisses.WithLabelValues(string(ns)).Inc()
		return false
	}

	if err := json.Unmarshal(data, dest); err != nil {
		metrics.CacheErrors.WithLabelValues(string(ns), "decode").Inc()
		c.logger.WithError(err).WithField("key", key).Warn("Discarding undecodable cache entry")
		return false
	}
	metrics.CacheHits.WithLabelValues(string(ns)).Inc()
	return true
}

// Set stores value under key. A ttl <= 0 selects the namespace default.
func (c *Cache) Set(ctx context.Context, ns Namespace, key string, value any, ttl time.Duration) {
	if c == nil || c.store == nil {
		return
	}
	if ttl <= 0 {
		ttl = ns.DefaultTTL()
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Failed to encode cache entry")
		return
	}
	if err := c.store.Set(ctx, fullKey(ns, key), data, ttl); err != nil {
		metrics.CacheErrors.WithLabelValues(string(ns), "set").Inc()
		c.logger.WithError(err).WithFields(logrus.Fields{
			"namespace": ns,
			"key":       key,
		}).Warn("Cache write failed")
	}
}

// Delete removes key from the namespace.
func (c *Cache) Delete(ctx context.Context, ns Namespace, key string) error {
	if c == nil || c.store == nil {
		return nil
	}
	if err := c.store.Delete(ctx, fullKey(ns, key)); err != nil {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Close releases the backend.
func (c *Cache) Close() error {
	if c == nil || c.store == nil {
		return nil
	}
	return c.store.Close()
}

// GetOrCompute returns the cached value for key, or runs compute and caches
// its result. Concurrent callers missing the same key may each run compute;
// the last write wins. Errors from compute are returned and nothing is cached.
func GetOrCompute[T any](ctx context.Context, c *Cache, ns Namespace, key string, ttl time.Duration, compute func(context.Context) (T, error)) (T, error) {
	var cached T
	if c.Get(ctx, ns, key, &cached) {
		return cached, nil
	}

	value, err := compute(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	c.Set(ctx, ns, key, value, ttl)
	return value, nil
}
