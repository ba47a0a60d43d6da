// Package web serves the storefront pages. Every panel is rendered on the
// server from the visitor's session state; forms post back, mutate the state
// and redirect to the page.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storefront/internal/api"
	"storefront/internal/catalog"
	"storefront/internal/config"
	"storefront/internal/email"
	"storefront/internal/geo"
	"storefront/internal/services"
	"storefront/internal/session"
	"storefront/internal/telemetry"
	"storefront/internal/upload"
)

// RateLimiter throttles a key to max hits per window.
type RateLimiter interface {
	IsRateLimited(ctx context.Context, key string, max int, window time.Duration) bool
}

type Deps struct {
	Sessions *session.Manager
	Backend  *services.ManagerService
	Catalog  *catalog.Catalog
	Geocoder *geo.Geocoder
	Uploads  *upload.Manager
	// Email is nil when confirmation mails are disabled.
	Email *email.Service
	// Limiter is nil when there is no redis to count logins in.
	Limiter RateLimiter
	// Health reports readiness of the session store.
	Health func(ctx context.Context) error
}

type Server struct {
	cfg *config.Config
	Deps
	router chi.Router
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{cfg: cfg, Deps: deps}
	s.router = s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(telemetry.Middleware)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", s.healthz)

	// Long-lived; kept out of the request timeout.
	r.Get("/ws/uploads/{id}", s.uploadProgress)

	r.Mount("/api", api.NewHandler(api.Deps{
		Sessions:     s.Sessions,
		Backend:      s.Backend,
		Catalog:      s.Catalog,
		Geocoder:     s.Geocoder,
		Email:        s.Email,
		EmailSubject: s.cfg.Email.Subject,
	}, s.cfg.CORS.AllowedOrigins).Routes())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/", s.index)
		r.Get("/tab/{tab}", s.navigate)

		r.Post("/cart/add", s.addToCart)
		r.Post("/cart/remove/{index}", s.removeFromCart)
		r.Post("/cart/checkout", s.checkout)

		r.Post("/login", s.login)
		r.Get("/register", s.registerForm)
		r.Post("/register", s.register)
		r.Post("/logout", s.logout)
		r.Get("/profile/edit", s.editProfile)
		r.Post("/profile/edit", s.saveProfile)

		r.Post("/commander/upload", s.startUpload)
		r.Post("/commander/discard", s.discardUpload)
	})

	return r
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if s.Health != nil {
		if err := s.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
	}
	w.Write([]byte(`{"status":"ok"}`))
}
