package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"listingsearch/server/config"
	"listingsearch/server/internal/api"
	"listingsearch/server/internal/cache"
	"listingsearch/server/internal/database"
	"listingsearch/server/internal/geocoding"
	"listingsearch/server/internal/processor"
	"listingsearch/server/internal/queue"
	"listingsearch/server/internal/scheduler"
	"listingsearch/server/internal/search"
)

// app holds the components every command shares.
type app struct {
	cfg      *config.Config
	logger   *logrus.Logger
	store    database.Store
	cache    *cache.Cache
	metros   *config.MetroAreas
	geocoder *geocoding.Geocoder
	search   *search.Service
}

func setup(ctx context.Context, cmd *cli.Command, logger *logrus.Logger) (*app, error) {
	cfg, err := config.LoadConfig(cmd.String("env-file"))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("log_level", cfg.LogLevel).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.WithField("driver", cfg.Database.Driver).Info("Opening listing store")
	store, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	c, err := cache.Open(ctx, cfg.Cache, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	metros, err := config.LoadMetroAreas(cfg.MetroAreasPath)
	if err != nil {
		c.Close()
		store.Close()
		return nil, err
	}

	builder := search.NewBuilder(search.BuilderConfig{
		ExclusiveIDMin: cfg.Search.ExclusiveIDMin,
		ExclusiveIDMax: cfg.Search.ExclusiveIDMax,
		Metros:         metros,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		cache:    c,
		metros:   metros,
		geocoder: geocoding.NewGeocoder(cfg.Geocoder, c, logger),
		search:   search.NewService(store, c, builder, logger),
	}, nil
}

func (a *app) Close() {
	if err := a.cache.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close cache")
	}
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close database")
	}
}

// backfill wires the queue, processor and scheduler together.
func (a *app) backfill() (*queue.ListingQueue, *processor.BatchProcessor, *scheduler.Scheduler) {
	bf := a.cfg.Backfill
	q := queue.NewListingQueue(bf.QueueSize, a.logger)
	p := processor.NewBatchProcessor(a.store, a.geocoder, q, a.cfg, a.logger)
	s := scheduler.NewScheduler(a.store, q, scheduler.Options{
		Interval:  time.Duration(bf.IntervalMinutes) * time.Minute,
		BatchSize: bf.BatchSize,
		MaxPerRun: bf.MaxPerRun,
	}, a.logger)
	return q, p, s
}

func serveCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(ctx, cmd, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Backfill.Enabled {
				q, p, s := a.backfill()
				p.Start()
				q.Start()
				s.Start()
				defer q.Close()
				defer p.Stop()
				defer s.Stop()
				logger.WithField("interval_minutes", a.cfg.Backfill.IntervalMinutes).Info("Coordinate backfill enabled")
			}

			gin.SetMode(gin.ReleaseMode)
			handler := api.NewHandler(a.search, a.geocoder, logger)
			router := api.NewRouter(handler, api.NewMetropolitanHandler(a.metros), a.cfg.Server.AllowedOrigins, logger)

			srv := &http.Server{
				Addr:              ":" + strconv.Itoa(a.cfg.Server.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("Starting server on port %d", a.cfg.Server.Port)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
				logger.Info("Shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
}

func searchCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Run one search and print the result page as JSON",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "filter",
				Aliases: []string{"f"},
				Usage:   "Filter as key=value, repeatable",
			},
			&cli.IntFlag{
				Name:  "page",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "per-page",
				Value: search.DefaultPerPage,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			filters, err := parseFilters(cmd.StringSlice("filter"))
			if err != nil {
				return err
			}

			a, err := setup(ctx, cmd, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.search.Search(ctx, filters, int(cmd.Int("page")), int(cmd.Int("per-page")))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
}

func migrateCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the SQLite schema",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.LoadConfig(cmd.String("env-file"))
			if err != nil {
				return err
			}
			if !strings.EqualFold(cfg.Database.Driver, "sqlite") {
				return fmt.Errorf("migrations only apply to the sqlite driver, got %q", cfg.Database.Driver)
			}

			store, err := database.Open(ctx, cfg.Database, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			logger.WithField("path", cfg.Database.SQLitePath).Info("Database migrations complete")
			return nil
		},
	}
}

func backfillCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "Geocode listings without coordinates once and exit",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := setup(ctx, cmd, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			q, p, s := a.backfill()
			p.Start()
			q.Start()
			defer q.Close()
			defer p.Stop()

			queued, err := s.RunOnce(ctx)
			if err != nil {
				return err
			}
			if err := q.Flush(ctx); err != nil {
				return err
			}

			logger.WithField("listings", queued).Info("Coordinate backfill complete")
			return nil
		},
	}
}

// parseFilters turns key=value pairs into a filter request. Repeated keys
// are joined into a comma list.
func parseFilters(pairs []string) (search.FilterRequest, error) {
	filters := search.FilterRequest{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", pair)
		}
		if prev, exists := filters[key]; exists {
			value = fmt.Sprint(prev) + "," + value
		}
		filters[key] = value
	}
	return filters, nil
}
