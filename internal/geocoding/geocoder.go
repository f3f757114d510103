// Package geocoding resolves free-form addresses to coordinates through a
// Nominatim endpoint.
package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"listingsearch/server/config"
	"listingsearch/server/internal/cache"
	"listingsearch/server/internal/metrics"
)

const requestTimeout = 10 * time.Second

// Result is a successful geocode.
type Result struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	FormattedAddress string  `json:"formatted_address"`
}

type Geocoder struct {
	logger  *logrus.Logger
	cache   *cache.Cache
	client  *http.Client
	limiter *rate.Limiter
	cfg     config.GeocoderConfig
}

func NewGeocoder(cfg config.GeocoderConfig, c *cache.Cache, logger *logrus.Logger) *Geocoder {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &Geocoder{
		logger:  logger,
		cache:   c,
		client:  &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		cfg:     cfg,
	}
}

type nominatimResponse []struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

func cacheKey(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

// Geocode returns the coordinates of address, or nil when it cannot be
// resolved. Failures are logged, never returned and never cached.
func (g *Geocoder) Geocode(ctx context.Context, address string) *Result {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil
	}

	key := cacheKey(address)
	var cached Result
	if g.cache.Get(ctx, cache.NamespaceGeocode, key, &cached) {
		metrics.GeocodeRequests.WithLabelValues("cached").Inc()
		return &cached
	}

	result, err := g.lookup(ctx, address)
	if err != nil {
		metrics.GeocodeRequests.WithLabelValues("error").Inc()
		g.logger.WithError(err).WithField("address", address).Warn("Geocoding failed")
		return nil
	}
	if result == nil {
		metrics.GeocodeRequests.WithLabelValues("no_result").Inc()
		g.logger.WithField("address", address).Info("No geocoding results found")
		return nil
	}

	metrics.GeocodeRequests.WithLabelValues("ok").Inc()
	g.logger.WithFields(logrus.Fields{
		"address":   address,
		"latitude":  result.Lat,
		"longitude": result.Lng,
	}).Debug("Geocoded address")

	g.cache.Set(ctx, cache.NamespaceGeocode, key, result, 0)
	return result
}

// lookup bounds the rate limiter wait and the request together by
// requestTimeout. Wait fails at once when the next token comes too late.
func (g *Geocoder) lookup(ctx context.Context, address string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{
		"q":      []string{address},
		"format": []string{"json"},
		"limit":  []string{"1"},
	}
	if g.cfg.CountryCodes != "" {
		params.Set("countrycodes", g.cfg.CountryCodes)
	}

	endpoint := strings.TrimRight(g.cfg.BaseURL, "/") + "/search?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", g.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoding request returned %s", resp.Status)
	}

	var body nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(body) == 0 {
		return nil, nil
	}

	lat, err := strconv.ParseFloat(body[0].Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", body[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(body[0].Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", body[0].Lon, err)
	}

	formatted := body[0].DisplayName
	if formatted == "" {
		formatted = address
	}
	return &Result{Lat: lat, Lng: lng, FormattedAddress: formatted}, nil
}
