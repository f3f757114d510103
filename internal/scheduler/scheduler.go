// Package scheduler periodically queues listings that still lack
// coordinates for the backfill processor.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"listingsearch/server/internal/database"
	"listingsearch/server/internal/models"
	"listingsearch/server/internal/queue"
)

type Options struct {
	Interval  time.Duration
	BatchSize int
	MaxPerRun int
}

// Scheduler manages periodic backfill passes
type Scheduler struct {
	store    database.CoordinateStore
	queue    *queue.ListingQueue
	logger   *logrus.Logger
	opts     Options
	stopChan chan struct{}
	wg       sync.WaitGroup
	jobMutex sync.Mutex // passes never overlap
}

func NewScheduler(store database.CoordinateStore, q *queue.ListingQueue, opts Options, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.MaxPerRun <= 0 {
		opts.MaxPerRun = 500
	}

	return &Scheduler{
		store:    store,
		queue:    q,
		logger:   logger,
		opts:     opts,
		stopChan: make(chan struct{}),
	}
}

// Start runs one pass immediately, then one per interval until Stop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.runPass(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.runPass(ctx)
		}
	}
}

func (s *Scheduler) runPass(ctx context.Context) {
	queued, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Backfill pass failed")
		return
	}
	s.logger.WithField("queued", queued).Info("Backfill pass completed")
}

// RunOnce loads up to MaxPerRun listings missing coordinates and pushes them
// onto the queue in batches. It returns how many listings were queued. A
// full queue ends the pass early; the rest is picked up next time.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	listings, err := s.store.ListingsMissingCoordinates(ctx, s.opts.MaxPerRun)
	if err != nil {
		return 0, fmt.Errorf("failed to load listings missing coordinates: %w", err)
	}
	if len(listings) == 0 {
		s.logger.Debug("No listings need coordinates")
		return 0, nil
	}

	queued := 0
	for _, batch := range chunk(listings, s.opts.BatchSize) {
		if err := s.queue.Push(batch); err != nil {
			if errors.Is(err, queue.ErrQueueFull) {
				s.logger.WithFields(logrus.Fields{
					"queued":    queued,
					"remaining": len(listings) - queued,
				}).Warn("Backfill queue full, deferring remaining listings")
				return queued, nil
			}
			return queued, fmt.Errorf("failed to queue batch: %w", err)
		}
		queued += len(batch)
	}
	return queued, nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func chunk(listings []models.Listing, size int) [][]models.Listing {
	var out [][]models.Listing
	for start := 0; start < len(listings); start += size {
		end := min(start+size, len(listings))
		out = append(out, listings[start:end])
	}
	return out
}
