package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"listingsearch/server/internal/database"
	"listingsearch/server/internal/geocoding"
	"listingsearch/server/internal/geometry"
	"listingsearch/server/internal/models"
	"listingsearch/server/internal/search"
)

// Searcher runs listing searches and detail lookups.
type Searcher interface {
	Search(ctx context.Context, filters search.FilterRequest, page, perPage int) (*models.ResultPage, error)
	Detail(ctx context.Context, mlsNumber string) (*models.ListingDetail, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) *geocoding.Result
}

type Handler struct {
	search   Searcher
	geocoder Geocoder
	logger   *logrus.Logger
}

// control parameters that never reach the filter set
var controlParams = map[string]bool{"page": true, "per_page": true, "format": true}

func NewHandler(searcher Searcher, geocoder Geocoder, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Handler{
		search:   searcher,
		geocoder: geocoder,
		logger:   logger,
	}
}

// SearchListings handles GET /api/search. Every query parameter except the
// paging and format controls is a filter; repeated parameters keep the first
// value.
func (h *Handler) SearchListings(c *gin.Context) {
	page, perPage, err := parsePaging(c.Query("page"), c.Query("per_page"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filters := search.FilterRequest{}
	for key, values := range c.Request.URL.Query() {
		if controlParams[key] || len(values) == 0 {
			continue
		}
		filters[key] = values[0]
	}

	h.runSearch(c, filters, page, perPage, c.Query("format"))
}

// SearchListingsJSON handles POST /api/search with the filters as a JSON
// object.
func (h *Handler) SearchListingsJSON(c *gin.Context) {
	var body map[string]any
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		h.logger.WithError(err).Warn("Invalid search request body")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	control := search.FilterRequest(body)
	page, perPage, err := parsePaging(control.String("page"), control.String("per_page"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	filters := search.FilterRequest{}
	for key, value := range body {
		if !controlParams[key] {
			filters[key] = value
		}
	}
	format := control.String("format")
	if q := c.Query("format"); q != "" {
		format = q
	}

	h.runSearch(c, filters, page, perPage, format)
}

func (h *Handler) runSearch(c *gin.Context, filters search.FilterRequest, page, perPage int, format string) {
	result, err := h.search.Search(c.Request.Context(), filters, page, perPage)
	if err != nil {
		h.requestLogger(c).WithError(err).Error("Search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search listings"})
		return
	}

	if strings.EqualFold(format, "geojson") {
		c.JSON(http.StatusOK, resultFeatures(result))
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetListing handles GET /api/listings/:mls.
func (h *Handler) GetListing(c *gin.Context) {
	mls := strings.TrimSpace(c.Param("mls"))
	if mls == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "MLS number is required"})
		return
	}

	detail, err := h.search.Detail(c.Request.Context(), mls)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Listing not found"})
			return
		}
		h.requestLogger(c).WithError(err).WithField("mls_number", mls).Error("Failed to get listing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get listing"})
		return
	}

	c.JSON(http.StatusOK, detail)
}

// Geocode handles GET /api/geocode. An unresolvable address is not an error:
// the result is null.
func (h *Handler) Geocode(c *gin.Context) {
	address := strings.TrimSpace(c.Query("address"))
	if address == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "address is required"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": h.geocoder.Geocode(c.Request.Context(), address)})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) requestLogger(c *gin.Context) *logrus.Entry {
	return h.logger.WithField("request_id", c.GetString(requestIDKey))
}

func parsePaging(pageStr, perPageStr string) (int, int, error) {
	page, perPage := 1, search.DefaultPerPage
	if s := strings.TrimSpace(pageStr); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, errors.New("page must be an integer")
		}
		page = n
	}
	if s := strings.TrimSpace(perPageStr); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, errors.New("per_page must be an integer")
		}
		perPage = n
	}
	page, perPage = search.ClampPagination(page, perPage)
	return page, perPage, nil
}

// resultFeatures renders the items that have coordinates as GeoJSON points.
func resultFeatures(result *models.ResultPage) *geojson.FeatureCollection {
	features := make([]*geojson.Feature, 0, len(result.Items))
	for _, item := range result.Items {
		if item.Latitude == nil || item.Longitude == nil {
			continue
		}
		p := geometry.GeoPoint{Lat: *item.Latitude, Lng: *item.Longitude}
		if !p.Valid() {
			continue
		}
		features = append(features, geometry.PointFeature(p, map[string]any{
			"id":         item.ID,
			"mls_number": item.MLSNumber,
			"address":    item.Address,
			"price":      item.Price,
			"beds":       item.Beds,
			"baths":      item.Baths,
			"status":     item.Status,
		}))
	}

	fc := geometry.FeatureCollection(features)
	fc.ExtraMembers = geojson.Properties{
		"total":    result.Total,
		"page":     result.Page,
		"per_page": result.PerPage,
	}
	return fc
}
