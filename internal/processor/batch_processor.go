// Package processor geocodes queued listings and writes their coordinates.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"listingsearch/server/config"
	"listingsearch/server/internal/database"
	"listingsearch/server/internal/geocoding"
	"listingsearch/server/internal/metrics"
	"listingsearch/server/internal/models"
	"listingsearch/server/internal/queue"
)

// Geocoder resolves an address, returning nil when it cannot.
type Geocoder interface {
	Geocode(ctx context.Context, address string) *geocoding.Result
}

// BatchProcessor handles the processing of listing batches
type BatchProcessor struct {
	store    database.CoordinateStore
	geocoder Geocoder
	logger   *logrus.Logger
	config   *config.Config
	queue    *queue.ListingQueue
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewBatchProcessor(store database.CoordinateStore, geocoder Geocoder, q *queue.ListingQueue, cfg *config.Config, logger *logrus.Logger) *BatchProcessor {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		store:    store,
		geocoder: geocoder,
		queue:    q,
		config:   cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes the processor to the queue.
func (p *BatchProcessor) Start() {
	p.queue.Subscribe(p.processBatch)
}

// Stop aborts in-flight geocoding and retries. Batches handled afterwards
// fail fast.
func (p *BatchProcessor) Stop() {
	p.cancel()
}

// processBatch geocodes every listing of the batch and writes the outcomes
// in one transaction, retrying the write on failure.
func (p *BatchProcessor) processBatch(batch []models.Listing) error {
	updates := make([]models.CoordinateUpdate, 0, len(batch))
	for _, listing := range batch {
		if err := p.ctx.Err(); err != nil {
			return err
		}

		update := models.CoordinateUpdate{ListingID: listing.ID}
		if res := p.geocoder.Geocode(p.ctx, listing.GeocodeQuery()); res != nil {
			update.Lat, update.Lng = &res.Lat, &res.Lng
			metrics.BackfillProcessed.WithLabelValues("geocoded").Inc()
		} else {
			metrics.BackfillProcessed.WithLabelValues("unresolved").Inc()
			p.logger.WithFields(logrus.Fields{
				"listing_id": listing.ID,
				"mls_number": listing.MLSNumber,
			}).Warn("Could not geocode listing")
		}
		updates = append(updates, update)
	}

	maxRetries := p.config.Backfill.MaxRetries
	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying coordinate update, attempt %d of %d", attempt, maxRetries)
			select {
			case <-p.ctx.Done():
				return p.ctx.Err()
			case <-time.After(time.Duration(p.config.Backfill.RetryDelay) * time.Second):
			}
		}

		err = p.store.UpdateCoordinates(p.ctx, updates)
		if err == nil {
			p.logger.Infof("Updated coordinates for batch of %d listings", len(updates))
			return nil
		}

		p.logger.Errorf("Coordinate update failed: %v", err)
	}

	metrics.BackfillProcessed.WithLabelValues("write_failed").Add(float64(len(updates)))
	return fmt.Errorf("failed to process batch after %d attempts: %w", maxRetries+1, err)
}
