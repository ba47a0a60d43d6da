package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"storefront/internal/config"
	"storefront/internal/models"
	"storefront/internal/resilience"
	"storefront/internal/telemetry"
)

// MinQueryLength is the number of characters a query must exceed before the
// geocoder is called.
const MinQueryLength = 3

// Geocoder suggests postal addresses from free text.
type Geocoder struct {
	baseURL string
	limit   int
	client  *http.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

func NewGeocoder(cfg config.GeoConfig) *Geocoder {
	return &Geocoder{
		baseURL: strings.TrimSuffix(cfg.GeocodeURL, "/"),
		limit:   cfg.SuggestLimit,
		client:  &http.Client{Timeout: 3 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		breaker: resilience.NewCircuitBreaker("geocoder", 3, 10*time.Second),
	}
}

// Suggest returns up to the configured number of address candidates. Short
// queries return nil without calling out. When bias is set results near it
// rank first.
func (g *Geocoder) Suggest(ctx context.Context, query string, bias *models.Location) ([]models.GeoSuggest, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) <= MinQueryLength {
		return nil, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("geocoder: %w", err)
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(g.limit))
	if bias != nil && (bias.Latitude != 0 || bias.Longitude != 0) {
		params.Set("lat", strconv.FormatFloat(bias.Latitude, 'f', 6, 64))
		params.Set("lon", strconv.FormatFloat(bias.Longitude, 'f', 6, 64))
	}

	var collection models.GeoSuggestCollection
	start := time.Now()
	err := g.breaker.Execute(func() error {
		return g.fetch(ctx, g.baseURL+"/search?"+params.Encode(), &collection)
	})
	telemetry.ObserveBackend("geocode", err, start)
	if err != nil {
		return nil, fmt.Errorf("geocoder: %w", err)
	}
	return collection.Features, nil
}

func (g *Geocoder) fetch(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("bad status code: %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
