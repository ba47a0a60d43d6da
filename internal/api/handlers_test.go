package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/auth"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/geo"
	"storefront/internal/models"
	"storefront/internal/services"
	"storefront/internal/session"
	"storefront/internal/storefront"
)

type fixture struct {
	router      http.Handler
	sessions    *session.Manager
	geocodeHits atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]models.ProductData{
			{ID: 1, Name: "Tirages 10x15", Price: 0.25, InStock: 100, IconName: "Image"},
			{ID: 2, Name: "Mug personnalisé", Price: 14.9, InStock: 5, IconName: "Gift"},
		})
	})
	mux.HandleFunc("GET /geo/search", func(w http.ResponseWriter, r *http.Request) {
		f.geocodeHits.Add(1)
		w.Write([]byte(`{"type":"FeatureCollection","features":[{"type":"Feature","properties":{"label":"8 Rue de Londres 75009 Paris","name":"8 Rue de Londres","postcode":"75009","city":"Paris"}}]}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Backend.URL = srv.URL + "/"
	cfg.Geo.GeocodeURL = srv.URL + "/geo"
	cfg.Geo.RatePerSec = 1000

	backend := services.NewManagerService(cfg)
	cat := catalog.New(backend, nil, time.Minute)
	require.NoError(t, cat.Load(context.Background()))

	f.sessions = session.NewManager(session.NewMemoryStore(time.Hour), auth.NewMiddleware("test-secret"),
		"kx_session", time.Hour, false, session.WithVerifier(backend))
	f.router = NewHandler(Deps{
		Sessions: f.sessions,
		Backend:  backend,
		Catalog:  cat,
		Geocoder: geo.NewGeocoder(cfg.Geo),
	}, []string{"*"}).Routes()
	return f
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) token(t *testing.T) string {
	t.Helper()
	w := f.do(t, http.MethodGet, "/session", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var res sessionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	require.NotEmpty(t, res.Token)
	assert.Equal(t, models.TabHome, res.ActiveTab)
	assert.Nil(t, res.User)
	return res.Token
}

// loggedIn stores a session for a customer with a cart and returns its token.
func (f *fixture) loggedIn(t *testing.T, cart ...models.CartItem) string {
	t.Helper()
	st := storefront.New()
	st.CurrentUser = &models.UserContext{ID: "7", FirstName: "Jean", Email: "jean.dupont@email.com"}
	st.SessionChecked = true
	st.Cart = append(st.Cart, cart...)
	require.NoError(t, f.sessions.Store().Save(context.Background(), "sess-7", st))

	token, err := f.sessions.Token("sess-7")
	require.NoError(t, err)
	return token
}

func decodeCart(t *testing.T, w *httptest.ResponseRecorder) cartResponse {
	t.Helper()
	var cart cartResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&cart))
	return cart
}

func TestSessionToken(t *testing.T) {
	f := newFixture(t)
	token := f.token(t)

	w := f.do(t, http.MethodGet, "/cart", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	cart := decodeCart(t, w)
	assert.Equal(t, 0, cart.Count)
	assert.NotNil(t, cart.Items)

	w = f.do(t, http.MethodGet, "/cart", "forged", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCartOperations(t *testing.T) {
	f := newFixture(t)
	token := f.token(t)

	w := f.do(t, http.MethodPost, "/cart", token, `{"productId":2}`)
	require.Equal(t, http.StatusCreated, w.Code)
	cart := decodeCart(t, w)
	assert.Equal(t, 1, cart.Count)
	assert.Equal(t, "Mug personnalisé", cart.Items[0].Name)

	w = f.do(t, http.MethodPost, "/cart", token, `{"offer":"pack50"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	cart = decodeCart(t, w)
	assert.Equal(t, 2, cart.Count)
	assert.InDelta(t, 29.9, cart.Total, 1e-9)

	w = f.do(t, http.MethodPost, "/cart", token, `{"productId":99}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodPost, "/cart", token, `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, "/cart/0", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	cart = decodeCart(t, w)
	require.Equal(t, 1, cart.Count)
	assert.Equal(t, "Pack 50 Tirages 10x15", cart.Items[0].Name)

	w = f.do(t, http.MethodDelete, "/cart/5", token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCheckoutRequiresLogin(t *testing.T) {
	f := newFixture(t)
	token := f.token(t)
	f.do(t, http.MethodPost, "/cart", token, `{"productId":1}`)

	w := f.do(t, http.MethodPost, "/checkout", token, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/checkout", f.loggedIn(t), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	token := f.loggedIn(t, models.CartItem{Name: "Pack 50 Tirages 10x15", Price: 15}, models.CartItem{Name: "Tirages", Price: 0.5})

	w := f.do(t, http.MethodPost, "/checkout", token, "")
	require.Equal(t, http.StatusCreated, w.Code)

	var order models.Order
	require.NoError(t, json.NewDecoder(w.Body).Decode(&order))
	assert.Equal(t, models.OrderProcessing, order.Status)
	assert.InDelta(t, 15.5, order.Total, 1e-9)
	assert.Len(t, order.Items, 2)

	w = f.do(t, http.MethodGet, "/cart", token, "")
	assert.Equal(t, 0, decodeCart(t, w).Count)

	st, err := f.sessions.Store().Load(context.Background(), "sess-7")
	require.NoError(t, err)
	require.Len(t, st.Orders, 1)
	assert.Equal(t, order.ID, st.Orders[0].ID)
	assert.Equal(t, models.TabProfile, st.ActiveTab)
}

func TestSuggestAddress(t *testing.T) {
	f := newFixture(t)
	token := f.token(t)

	w := f.do(t, http.MethodGet, "/address/suggest?q=8+r", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, int32(0), f.geocodeHits.Load(), "short queries never reach the geocoder")

	w = f.do(t, http.MethodGet, "/address/suggest?q=8+rue+de+londres", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got []models.GeoSuggest
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "75009", got[0].Properties.Postcode)
	assert.Equal(t, int32(1), f.geocodeHits.Load())
}

func TestGetLocation(t *testing.T) {
	f := newFixture(t)
	token := f.token(t)
	w := f.do(t, http.MethodGet, "/location", token, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	st := storefront.New()
	st.SessionChecked = true
	st.Location = &models.Location{City: "Lyon", CountryCode: "FR"}
	require.NoError(t, f.sessions.Store().Save(context.Background(), "located", st))
	located, err := f.sessions.Token("located")
	require.NoError(t, err)

	w = f.do(t, http.MethodGet, "/location", located, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"city":"Lyon"`)
}

func TestProducts(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/products", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var products []models.ProductData
	require.NoError(t, json.NewDecoder(w.Body).Decode(&products))
	assert.Len(t, products, 2)
}
