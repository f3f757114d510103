package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"listingsearch/server/config"
)

// Open builds the Cache selected by cfg.Backend.
func Open(ctx context.Context, cfg config.CacheConfig, logger *logrus.Logger) (*Cache, error) {
	var (
		store Store
		err   error
	)
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		store = NewMemoryStore()
	case "valkey":
		store, err = NewValkeyStore(cfg.Address, cfg.Password, cfg.DB)
	case "redis":
		store, err = NewRedisStore(ctx, cfg.Address, cfg.Password, cfg.DB)
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return New(store, logger), nil
}
