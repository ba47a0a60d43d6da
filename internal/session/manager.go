package session

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"storefront/internal/auth"
	"storefront/internal/models"
	"storefront/internal/storefront"
)

// Locator geolocates a client IP.
type Locator interface {
	Lookup(ctx context.Context, ip string) (*models.Location, error)
}

type Option func(*Manager)

// WithVerifier restores the backend login of each visitor on first use.
func WithVerifier(v storefront.SessionVerifier) Option {
	return func(m *Manager) { m.verifier = v }
}

// WithLocator geolocates new visitors once.
func WithLocator(l Locator) Option {
	return func(m *Manager) { m.locator = l }
}

// WithReconciler runs fn on every opened session before handlers see it.
func WithReconciler(fn func(*storefront.State)) Option {
	return func(m *Manager) { m.reconcile = fn }
}

// Session is one visitor's state and the id it is stored under.
type Session struct {
	ID    string
	State *storefront.State
	// New is set when the visitor had no usable session.
	New bool
}

// Manager binds browser cookies (or API bearer tokens) to stored state.
type Manager struct {
	store      Store
	tokens     *auth.Middleware
	cookieName string
	ttl        time.Duration
	secure     bool

	verifier  storefront.SessionVerifier
	locator   Locator
	reconcile func(*storefront.State)
}

func NewManager(store Store, tokens *auth.Middleware, cookieName string, ttl time.Duration, secure bool, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		tokens:     tokens,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Store() Store {
	return m.store
}

func (m *Manager) Tokens() *auth.Middleware {
	return m.tokens
}

// Token signs a bearer token for session id.
func (m *Manager) Token(id string) (string, error) {
	return m.tokens.Issue(id, m.ttl)
}

// idFromRequest looks for a session id in the context (set by the bearer
// middleware), then the cookie.
func (m *Manager) idFromRequest(r *http.Request) string {
	if id := auth.SessionIDFrom(r.Context()); id != "" {
		return id
	}
	if token, ok := auth.BearerToken(r); ok {
		if id, err := m.tokens.Parse(token); err == nil {
			return id
		}
	}
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return ""
	}
	id, err := m.tokens.Parse(c.Value)
	if err != nil {
		slog.Warn("Discarding session cookie", "error", err)
		return ""
	}
	return id
}

// Start loads the visitor's session or opens a fresh one and sets its cookie.
// Store failures degrade to a fresh anonymous session.
func (m *Manager) Start(w http.ResponseWriter, r *http.Request) *Session {
	ctx := r.Context()
	if id := m.idFromRequest(r); id != "" {
		st, err := m.store.Load(ctx, id)
		if err == nil {
			return &Session{ID: id, State: st}
		}
		if !errors.Is(err, ErrNotFound) {
			slog.Error("Failed to load session", "session_id", id, "error", err)
		}
	}

	sess := &Session{ID: uuid.NewString(), State: storefront.New(), New: true}
	if err := m.setCookie(w, sess.ID); err != nil {
		slog.Error("Failed to issue session cookie", "error", err)
	}
	return sess
}

func (m *Manager) setCookie(w http.ResponseWriter, id string) error {
	token, err := m.tokens.Issue(id, m.ttl)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (m *Manager) Save(ctx context.Context, sess *Session) error {
	return m.store.Save(ctx, sess.ID, sess.State)
}

// Update mutates a stored session from outside a request, e.g. when an
// upload finishes.
func (m *Manager) Update(ctx context.Context, id string, fn func(*storefront.State)) error {
	return m.store.Update(ctx, id, fn)
}

// Open is Start plus the first-visit work: a new visitor is geolocated and
// every session asks the backend once who is logged in. The reconciler, when
// set, then runs on every request.
func (m *Manager) Open(w http.ResponseWriter, r *http.Request) *Session {
	sess := m.Start(w, r)
	ctx := r.Context()

	if sess.New && m.locator != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		loc, err := m.locator.Lookup(lookupCtx, ClientIP(r))
		cancel()
		if err != nil {
			slog.Warn("IP geolocation failed", "session_id", sess.ID, "error", err)
		} else {
			sess.State.Location = loc
		}
	}
	if m.verifier != nil {
		sess.State.RestoreSession(ctx, m.verifier)
	}
	if m.reconcile != nil {
		m.reconcile(sess.State)
	}
	return sess
}

// ClientIP is the request's remote address without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
