package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/storefront"
)

type locatorFunc func(ctx context.Context, ip string) (*models.Location, error)

func (f locatorFunc) Lookup(ctx context.Context, ip string) (*models.Location, error) {
	return f(ctx, ip)
}

type verifierFunc func(ctx context.Context, creds map[string]string) (*models.UserContext, error)

func (f verifierFunc) VerifyToken(ctx context.Context, creds map[string]string) (*models.UserContext, error) {
	return f(ctx, creds)
}

func TestOpenLocatesNewVisitorsOnce(t *testing.T) {
	lookups := 0
	m := NewManager(NewMemoryStore(time.Hour), auth.NewMiddleware("test-secret"), "kx_session", time.Hour, false,
		WithLocator(locatorFunc(func(_ context.Context, ip string) (*models.Location, error) {
			lookups++
			assert.Equal(t, "203.0.113.7", ip)
			return &models.Location{IP: ip, City: "Lyon"}, nil
		})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:51234"
	w := httptest.NewRecorder()
	sess := m.Open(w, req)
	require.NotNil(t, sess.State.Location)
	assert.Equal(t, "Lyon", sess.State.Location.City)
	require.NoError(t, m.Save(context.Background(), sess))

	again := httptest.NewRequest(http.MethodGet, "/", nil)
	again.RemoteAddr = "203.0.113.7:51234"
	again.AddCookie(w.Result().Cookies()[0])
	m.Open(httptest.NewRecorder(), again)
	assert.Equal(t, 1, lookups)
}

func TestOpenSurvivesLocatorFailure(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), auth.NewMiddleware("test-secret"), "kx_session", time.Hour, false,
		WithLocator(locatorFunc(func(context.Context, string) (*models.Location, error) {
			return nil, errors.New("timeout")
		})))

	sess := m.Open(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, sess.New)
	assert.Nil(t, sess.State.Location)
}

func TestOpenRestoresBackendSession(t *testing.T) {
	m := NewManager(NewMemoryStore(time.Hour), auth.NewMiddleware("test-secret"), "kx_session", time.Hour, false,
		WithVerifier(verifierFunc(func(_ context.Context, creds map[string]string) (*models.UserContext, error) {
			if creds["token"] == "" {
				return nil, nil
			}
			return &models.UserContext{ID: "7", FirstName: "Jean"}, nil
		})))

	st := m.Open(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil)).State
	assert.Nil(t, st.CurrentUser)
	assert.True(t, st.SessionChecked)
}

func TestOpenRunsReconcilerEveryRequest(t *testing.T) {
	calls := 0
	m := NewManager(NewMemoryStore(time.Hour), auth.NewMiddleware("test-secret"), "kx_session", time.Hour, false,
		WithReconciler(func(st *storefront.State) {
			calls++
			if st.UploadJobID == "job-1" {
				st.UploadFinished("job-1", "order-1", models.CartItem{Name: "Tirages", Price: 0.25, Quantity: 1})
			}
		}))

	w := httptest.NewRecorder()
	sess := m.Open(w, httptest.NewRequest(http.MethodGet, "/", nil))
	sess.State.UploadJobID = "job-1"
	require.NoError(t, m.Save(context.Background(), sess))

	again := httptest.NewRequest(http.MethodGet, "/tab/contact", nil)
	again.AddCookie(w.Result().Cookies()[0])
	st := m.Open(httptest.NewRecorder(), again).State
	assert.Equal(t, 2, calls)
	assert.Empty(t, st.UploadJobID)
	assert.Equal(t, "order-1", st.DraftOrderID)
	assert.Len(t, st.Cart, 1)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "[::1]:8080"
	assert.Equal(t, "::1", ClientIP(req))

	req.RemoteAddr = "198.51.100.2"
	assert.Equal(t, "198.51.100.2", ClientIP(req))
}
