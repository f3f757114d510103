package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Server struct {
		Port           int      `env:"PORT" envDefault:"5250"`
		AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	}

	Database DatabaseConfig
	Cache    CacheConfig
	Geocoder GeocoderConfig

	Search struct {
		// Exclusive (office-only) listings are inserted in a reserved id range
		ExclusiveIDMin int64 `env:"EXCLUSIVE_ID_MIN" envDefault:"900000000"`
		ExclusiveIDMax int64 `env:"EXCLUSIVE_ID_MAX" envDefault:"999999999"`
	}

	Backfill struct {
		// Run the coordinate backfill on a timer inside the server
		Enabled bool `env:"BACKFILL_ENABLED" envDefault:"false"`

		// Minutes between backfill passes
		IntervalMinutes int `env:"BACKFILL_INTERVAL_MINUTES" envDefault:"60"`

		// Listings per queued batch
		BatchSize int `env:"BACKFILL_BATCH_SIZE" envDefault:"10"`

		// Maximum listings loaded per pass
		MaxPerRun int `env:"BACKFILL_MAX_PER_RUN" envDefault:"500"`

		// Buffered batches before Push reports the queue full
		QueueSize int `env:"BACKFILL_QUEUE_SIZE" envDefault:"100"`

		// Retries for a failed batch write
		MaxRetries int `env:"BACKFILL_MAX_RETRIES" envDefault:"3"`

		// Delay between retries in seconds
		RetryDelay int `env:"BACKFILL_RETRY_DELAY" envDefault:"5"`
	}

	MetroAreasPath string `env:"METRO_AREAS_PATH" envDefault:"config/metro_areas.json"`
}

type DatabaseConfig struct {
	Driver      string `env:"DB_DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"database/listings.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
}

type CacheConfig struct {
	Backend  string `env:"CACHE_BACKEND" envDefault:"memory"`
	Address  string `env:"CACHE_ADDR" envDefault:"localhost:6379"`
	Password string `env:"CACHE_PASSWORD"`
	DB       int    `env:"CACHE_DB" envDefault:"0"`
}

type GeocoderConfig struct {
	BaseURL           string  `env:"GEOCODER_URL" envDefault:"https://nominatim.openstreetmap.org"`
	UserAgent         string  `env:"GEOCODER_USER_AGENT" envDefault:"ListingSearch/1.0"`
	CountryCodes      string  `env:"GEOCODER_COUNTRY_CODES" envDefault:"us"`
	RequestsPerSecond float64 `env:"GEOCODER_RPS" envDefault:"1"`
}

// LoadConfig reads the environment, after loading any of the given .env
// files that exist (".env" when none are given).
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	switch strings.ToLower(c.Cache.Backend) {
	case "memory", "valkey", "redis":
	default:
		return fmt.Errorf("unsupported CACHE_BACKEND %q", c.Cache.Backend)
	}

	if c.Search.ExclusiveIDMin > c.Search.ExclusiveIDMax {
		return errors.New("EXCLUSIVE_ID_MIN must not exceed EXCLUSIVE_ID_MAX")
	}
	if c.Backfill.BatchSize <= 0 {
		return errors.New("BACKFILL_BATCH_SIZE must be positive")
	}
	return nil
}
