package geo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"storefront/internal/models"
	"storefront/internal/telemetry"
)

var ErrLookupFailed = errors.New("ip lookup failed")

// Locator resolves a visitor IP to an approximate location (ipwho.is format).
type Locator struct {
	baseURL string
	client  *http.Client
}

func NewLocator(baseURL string) *Locator {
	return &Locator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 3 * time.Second},
	}
}

// Lookup geolocates ip. Private and loopback addresses ask the service about
// the caller's own public address instead.
func (l *Locator) Lookup(ctx context.Context, ip string) (loc *models.Location, err error) {
	start := time.Now()
	defer func() { telemetry.ObserveBackend("ip_lookup", err, start) }()

	target := l.baseURL + "/"
	if parsed := net.ParseIP(ip); parsed != nil && !parsed.IsLoopback() && !parsed.IsPrivate() && !parsed.IsUnspecified() {
		target += parsed.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrLookupFailed, resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrLookupFailed)
	}

	res := gjson.ParseBytes(body)
	if !res.Get("success").Bool() {
		return nil, fmt.Errorf("%w: %s", ErrLookupFailed, res.Get("message").String())
	}

	return &models.Location{
		IP:          res.Get("ip").String(),
		City:        res.Get("city").String(),
		Region:      res.Get("region").String(),
		Country:     res.Get("country").String(),
		CountryCode: res.Get("country_code").String(),
		Postal:      res.Get("postal").String(),
		Latitude:    res.Get("latitude").Float(),
		Longitude:   res.Get("longitude").Float(),
	}, nil
}
