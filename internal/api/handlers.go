// Package api exposes the storefront operations as JSON for script clients.
// A client either carries the browser session cookie or a bearer token
// obtained from GET /api/session.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"storefront/internal/catalog"
	"storefront/internal/email"
	"storefront/internal/geo"
	"storefront/internal/models"
	"storefront/internal/services"
	"storefront/internal/session"
	"storefront/internal/storefront"
	"storefront/internal/telemetry"
)

type Deps struct {
	Sessions *session.Manager
	Backend  *services.ManagerService
	Catalog  *catalog.Catalog
	Geocoder *geo.Geocoder
	// Email is nil when confirmation mails are disabled.
	Email        *email.Service
	EmailSubject string
}

type Handler struct {
	Deps
	allowedOrigins []string
}

func NewHandler(deps Deps, allowedOrigins []string) *Handler {
	return &Handler{
		Deps:           deps,
		allowedOrigins: allowedOrigins,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(h.bearerIfPresent)

	r.Get("/session", h.GetSession)
	r.Get("/products", h.GetProducts)
	r.Get("/cart", h.GetCart)
	r.Post("/cart", h.AddToCart)
	r.Delete("/cart/{index}", h.RemoveFromCart)
	r.Post("/checkout", h.Checkout)
	r.Get("/address/suggest", h.SuggestAddress)
	r.Get("/location", h.GetLocation)
	return r
}

// bearerIfPresent validates an Authorization header when one is sent;
// cookie clients pass through.
func (h *Handler) bearerIfPresent(next http.Handler) http.Handler {
	validated := h.Sessions.Tokens().ValidateToken(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}
		validated.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("JSON encode error", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) save(ctx context.Context, sess *session.Session) {
	if err := h.Sessions.Save(ctx, sess); err != nil {
		slog.Error("Failed to save session", "session_id", sess.ID, "error", err)
	}
}

type sessionResponse struct {
	Token     string              `json:"token"`
	ActiveTab models.Tab          `json:"activeTab"`
	User      *models.UserContext `json:"user"`
	CartCount int                 `json:"cartCount"`
	Location  *models.Location    `json:"location,omitempty"`
}

// GetSession describes the visitor and hands out a bearer token for it.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess := h.Sessions.Open(w, r)
	h.save(r.Context(), sess)

	token, err := h.Sessions.Token(sess.ID)
	if err != nil {
		slog.Error("Failed to sign token", "session_id", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	st := sess.State
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     token,
		ActiveTab: st.ActiveTab,
		User:      st.CurrentUser,
		CartCount: st.CartCount(),
		Location:  st.Location,
	})
}

func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Catalog.Products())
}

type cartResponse struct {
	Items []models.CartItem `json:"items"`
	Count int               `json:"count"`
	Total float64           `json:"total"`
}

func cartOf(st *storefront.State) cartResponse {
	items := st.Cart
	if items == nil {
		items = []models.CartItem{}
	}
	return cartResponse{Items: items, Count: st.CartCount(), Total: st.CartTotal()}
}

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	sess := h.Sessions.Open(w, r)
	h.save(r.Context(), sess)
	writeJSON(w, http.StatusOK, cartOf(sess.State))
}

type addToCartRequest struct {
	ProductID int    `json:"productId"`
	Offer     string `json:"offer"`
}

func (h *Handler) AddToCart(w http.ResponseWriter, r *http.Request) {
	var req addToCartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var (
		item models.CartItem
		ok   bool
	)
	if req.Offer != "" {
		item, ok = catalog.Offers[req.Offer]
	} else {
		var p models.ProductData
		if p, ok = h.Catalog.Find(req.ProductID); ok {
			item = models.CartItem{Name: p.Name, Price: p.Price, Quantity: 1}
		}
	}
	if !ok {
		writeError(w, http.StatusNotFound, "unknown product")
		return
	}

	sess := h.Sessions.Open(w, r)
	sess.State.AddToCart(item)
	telemetry.CartEvent("add")
	h.save(r.Context(), sess)
	writeJSON(w, http.StatusCreated, cartOf(sess.State))
}

func (h *Handler) RemoveFromCart(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid index")
		return
	}

	sess := h.Sessions.Open(w, r)
	if !sess.State.RemoveFromCart(index) {
		writeError(w, http.StatusNotFound, "no such cart item")
		return
	}
	telemetry.CartEvent("remove")
	h.save(r.Context(), sess)
	writeJSON(w, http.StatusOK, cartOf(sess.State))
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := h.Sessions.Open(w, r)
	st := sess.State

	if !st.LoggedIn() {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if st.CartCount() == 0 {
		writeError(w, http.StatusBadRequest, "cart is empty")
		return
	}

	order, err := st.Checkout(ctx, h.Backend)
	h.save(ctx, sess)
	if err != nil {
		telemetry.CartEvent("checkout_failed")
		writeError(w, http.StatusBadGateway, "Erreur lors de la commande. Êtes-vous connecté ?")
		return
	}
	telemetry.CartEvent("checkout")
	slog.Info("Order placed", "user_id", st.CurrentUser.ID, "order_id", order.ID, "total", order.Total)

	if h.Email != nil {
		mailCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		h.Email.SendOrderConfirmation(mailCtx, h.EmailSubject, *st.CurrentUser, *order, OrderDetailsURI(r))
		cancel()
	}
	writeJSON(w, http.StatusCreated, order)
}

// SuggestAddress autocompletes a postal address near the visitor.
func (h *Handler) SuggestAddress(w http.ResponseWriter, r *http.Request) {
	sess := h.Sessions.Open(w, r)
	h.save(r.Context(), sess)

	suggestions, err := h.Geocoder.Suggest(r.Context(), r.URL.Query().Get("q"), sess.State.Location)
	if err != nil {
		slog.Error("Address suggestion failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "geocoding unavailable")
		return
	}
	if suggestions == nil {
		suggestions = []models.GeoSuggest{}
	}
	writeJSON(w, http.StatusOK, suggestions)
}

func (h *Handler) GetLocation(w http.ResponseWriter, r *http.Request) {
	sess := h.Sessions.Open(w, r)
	h.save(r.Context(), sess)
	if sess.State.Location == nil {
		writeError(w, http.StatusNotFound, "location unknown")
		return
	}
	writeJSON(w, http.StatusOK, sess.State.Location)
}

// OrderDetailsURI points at the profile panel, where orders are listed.
func OrderDetailsURI(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/tab/%s", scheme, r.Host, models.TabProfile)
}
