// Package metrics exposes Prometheus collectors for the search service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "listingsearch",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "listingsearch",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "listingsearch",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"namespace"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "listingsearch",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"namespace"})

	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "listingsearch",
		Subsystem: "cache",
		Name:      "errors_total",
		Help:      "Total cache backend errors",
	}, []string{"namespace", "operation"})

	StoreQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "listingsearch",
		Subsystem: "store",
		Name:      "query_duration_seconds",
		Help:      "Duration of listing store queries",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"driver", "operation"})

	SearchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "listingsearch",
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "Duration of uncached searches",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"mode"})

	PostFilterDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "listingsearch",
		Subsystem: "search",
		Name:      "post_filter_dropped_total",
		Help:      "Rows discarded by the post-filter hook",
	})

	GeocodeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "listingsearch",
		Subsystem: "geocode",
		Name:      "requests_total",
		Help:      "Outbound geocoding requests by outcome",
	}, []string{"outcome"})

	BackfillProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "listingsearch",
		Subsystem: "backfill",
		Name:      "listings_total",
		Help:      "Listings handled by the coordinate backfill",
	}, []string{"outcome"})
)

// ObserveStoreQuery records the time since start for a store operation.
// Use as `defer metrics.ObserveStoreQuery("sqlite", "search", time.Now())`.
func ObserveStoreQuery(driver, operation string, start time.Time) {
	StoreQueryDuration.WithLabelValues(driver, operation).Observe(time.Since(start).Seconds())
}

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
