package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
	"storefront/internal/models"
	"storefront/internal/resilience"
)

const searchReply = `{
  "type": "FeatureCollection",
  "query": "8 rue de londres",
  "features": [{
    "type": "Feature",
    "geometry": {"type": "Point", "coordinates": [2.33, 48.87]},
    "properties": {"label": "8 Rue de Londres 75009 Paris", "id": "75109_5732_00008",
      "name": "8 Rue de Londres", "postcode": "75009", "city": "Paris", "score": 0.97,
      "importance": 0.66, "context": "75, Paris, Île-de-France", "type": "housenumber"}
  }]
}`

func newTestGeocoder(t *testing.T, h http.Handler) *Geocoder {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Default().Geo
	cfg.GeocodeURL = srv.URL
	cfg.RatePerSec = 1000
	return NewGeocoder(cfg)
}

func TestSuggest(t *testing.T) {
	var query, lat string
	g := newTestGeocoder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		query = r.URL.Query().Get("q")
		lat = r.URL.Query().Get("lat")
		w.Write([]byte(searchReply))
	}))

	got, err := g.Suggest(context.Background(), "8 rue de londres", &models.Location{Latitude: 48.85, Longitude: 2.35})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "8 rue de londres", query)
	assert.Equal(t, "48.850000", lat)

	address, zip, city := got[0].Address()
	assert.Equal(t, "8 Rue de Londres", address)
	assert.Equal(t, "75009", zip)
	assert.Equal(t, "Paris", city)
}

func TestSuggestShortQuerySkipsCall(t *testing.T) {
	var calls atomic.Int32
	g := newTestGeocoder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(searchReply))
	}))

	for _, q := range []string{"", "8 r", "  rue  ", "éèà"} {
		got, err := g.Suggest(context.Background(), q, nil)
		require.NoError(t, err)
		assert.Nil(t, got, q)
	}
	assert.Zero(t, calls.Load())
}

func TestSuggestOpensBreaker(t *testing.T) {
	var calls atomic.Int32
	g := newTestGeocoder(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	for i := 0; i < 3; i++ {
		_, err := g.Suggest(context.Background(), "rue de la paix", nil)
		require.Error(t, err)
	}
	_, err := g.Suggest(context.Background(), "rue de la paix", nil)
	assert.ErrorIs(t, err, resilience.ErrOpen)
	assert.Equal(t, int32(3), calls.Load())
}

func TestLocatorLookup(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Write([]byte(`{"ip":"81.2.69.142","success":true,"city":"Paris","region":"Île-de-France",
			"country":"France","country_code":"FR","postal":"75001","latitude":48.8566,"longitude":2.3522,
			"connection":{"isp":"x"},"flag":{"emoji":"🇫🇷"}}`))
	}))
	defer srv.Close()

	loc, err := NewLocator(srv.URL).Lookup(context.Background(), "81.2.69.142")
	require.NoError(t, err)
	assert.Equal(t, "/81.2.69.142", path)
	assert.Equal(t, "Paris", loc.City)
	assert.Equal(t, "FR", loc.CountryCode)
	assert.InDelta(t, 48.8566, loc.Latitude, 1e-9)

	_, err = NewLocator(srv.URL).Lookup(context.Background(), "192.168.1.4")
	require.NoError(t, err)
	assert.Equal(t, "/", path, "private addresses resolve the caller")
}

func TestLocatorUnsuccessful(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"message":"Reserved range"}`))
	}))
	defer srv.Close()

	_, err := NewLocator(srv.URL).Lookup(context.Background(), "127.0.0.1")
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.Contains(t, err.Error(), "Reserved range")
}
