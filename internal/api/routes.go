// Package api exposes the search engine over HTTP.
package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"listingsearch/server/internal/metrics"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// NewRouter builds the engine with recovery, request ids, metrics and CORS
// applied to every route.
func NewRouter(handler *Handler, metros *MetropolitanHandler, allowedOrigins []string, logger *logrus.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestID(logger), metrics.Middleware(), cors.New(corsConfig(allowedOrigins)))
	SetupRoutes(router, handler, metros)
	return router
}

func SetupRoutes(router *gin.Engine, handler *Handler, metros *MetropolitanHandler) {
	router.GET("/healthz", handler.Health)
	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api")
	{
		api.GET("/search", handler.SearchListings)
		api.POST("/search", handler.SearchListingsJSON)
		api.GET("/listings/:mls", handler.GetListing)
		api.GET("/geocode", handler.Geocode)
		api.GET("/metros", metros.ListMetropolitanAreas)
		api.GET("/metros/:name", metros.GetMetropolitanArea)
	}
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", requestIDHeader}
	cfg.ExposeHeaders = []string{requestIDHeader}
	cfg.MaxAge = 12 * time.Hour

	if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
	}
	return cfg
}

// RequestID tags each request with an id, reusing the caller's X-Request-ID
// when present, and logs the request on completion.
func RequestID(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)

		start := time.Now()
		c.Next()

		if logger != nil {
			logger.WithFields(logrus.Fields{
				"request_id": id,
				"method":     c.Request.Method,
				"path":       c.Request.URL.Path,
				"status":     c.Writer.Status(),
				"duration":   time.Since(start).String(),
			}).Debug("Handled request")
		}
	}
}
