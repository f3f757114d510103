// Package queue buffers batches of listings awaiting coordinate backfill.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"listingsearch/server/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// ListingQueue is an in-memory queue of listing batches fanned out to
// subscribed handlers by a single worker goroutine.
type ListingQueue struct {
	items    chan []models.Listing
	done     chan struct{}
	maxSize  int
	closed   bool
	mu       sync.RWMutex
	pending  sync.WaitGroup
	logger   *logrus.Logger
	handlers []func([]models.Listing) error
}

func NewListingQueue(bufferSize int, logger *logrus.Logger) *ListingQueue {
	if logger == nil {
		logger = logrus.New()
	}
	return &ListingQueue{
		items:   make(chan []models.Listing, bufferSize),
		done:    make(chan struct{}),
		maxSize: bufferSize,
		logger:  logger,
	}
}

// Push adds a batch without blocking.
func (q *ListingQueue) Push(batch []models.Listing) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	q.pending.Add(1)
	select {
	case q.items <- batch:
		q.logger.WithField("batch_size", len(batch)).Debug("Pushed batch to queue")
		return nil
	default:
		q.pending.Done()
		return ErrQueueFull
	}
}

// Subscribe adds a handler called for every batch.
func (q *ListingQueue) Subscribe(handler func([]models.Listing) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins processing items in the queue
func (q *ListingQueue) Start() {
	go q.process()
}

func (q *ListingQueue) process() {
	for {
		select {
		case <-q.done:
			return
		case batch, ok := <-q.items:
			if !ok {
				return
			}
			q.processBatch(batch)
		}
	}
}

func (q *ListingQueue) processBatch(batch []models.Listing) {
	defer q.pending.Done()

	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(batch); err != nil {
			q.logger.WithError(err).Error("Handler failed to process batch")
		}
	}
}

// Flush blocks until every pushed batch has been handled or ctx ends.
// The queue must be started.
func (q *ListingQueue) Flush(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker. Batches still buffered are dropped.
func (q *ListingQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.done)
	close(q.items)
	for range q.items {
		q.pending.Done()
	}
	return nil
}

// Len returns the number of buffered batches.
func (q *ListingQueue) Len() int {
	return len(q.items)
}

func (q *ListingQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
