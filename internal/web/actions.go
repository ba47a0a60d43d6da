package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"storefront/internal/api"
	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/services"
	"storefront/internal/session"
	"storefront/internal/storefront"
	"storefront/internal/telemetry"
)

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	sess := s.Sessions.Open(w, r)

	var (
		item models.CartItem
		ok   bool
	)
	if offer := r.FormValue("offer"); offer != "" {
		item, ok = catalog.Offers[offer]
	} else if id, err := strconv.Atoi(r.FormValue("product")); err == nil {
		var p models.ProductData
		if p, ok = s.Catalog.Find(id); ok {
			item = models.CartItem{Name: p.Name, Price: p.Price, Quantity: 1}
		}
	}
	if !ok {
		http.Error(w, "Unknown product", http.StatusBadRequest)
		return
	}

	sess.State.AddToCart(item)
	telemetry.CartEvent("add")
	s.redirect(w, r, sess)
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	sess := s.Sessions.Open(w, r)
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err == nil && sess.State.RemoveFromCart(index) {
		telemetry.CartEvent("remove")
	}
	s.redirect(w, r, sess)
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.Sessions.Open(w, r)
	st := sess.State

	order, err := st.Checkout(ctx, s.Backend)
	switch {
	case err != nil:
		telemetry.CartEvent("checkout_failed")
	case order != nil:
		telemetry.CartEvent("checkout")
		slog.Info("Order placed", "user_id", st.CurrentUser.ID, "order_id", order.ID, "total", order.Total)
		s.sendConfirmation(ctx, r, st.CurrentUser, order)
	}
	s.redirect(w, r, sess)
}

// sendConfirmation mails the order summary. Failures are logged by the email
// service and never block the checkout.
func (s *Server) sendConfirmation(ctx context.Context, r *http.Request, user *models.UserContext, order *models.Order) {
	if s.Email == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	s.Email.SendOrderConfirmation(ctx, s.cfg.Email.Subject, *user, *order, api.OrderDetailsURI(r))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.Sessions.Open(w, r)
	st := sess.State
	st.ActiveTab = models.TabLogin

	ip := session.ClientIP(r)
	if s.Limiter != nil && s.Limiter.IsRateLimited(ctx, "login:"+ip, s.cfg.Redis.LoginLimit, s.cfg.Redis.LoginWindow) {
		slog.Warn("Rate limit exceeded", "ip", ip)
		st.Notify("Trop de tentatives. Réessayez dans une minute.", storefront.NotifyError)
		s.redirect(w, r, sess)
		return
	}

	user, creds, err := s.Backend.Login(ctx, models.LoginDto{
		Email:    r.FormValue("email"),
		Password: r.FormValue("password"),
	})
	switch {
	case err != nil:
		slog.Error("Login failed", "error", err)
		st.Notify("Erreur lors de la connexion.", storefront.NotifyError)
	case user == nil:
		st.Notify("Email ou mot de passe incorrect.", storefront.NotifyError)
	default:
		st.LoginSucceeded(*user, creds)
		slog.Info("User logged in", "user_id", user.ID, "session_id", sess.ID)
	}
	s.redirect(w, r, sess)
}

func userFromForm(r *http.Request) models.User {
	return models.User{
		FirstName: r.FormValue("firstName"),
		LastName:  r.FormValue("lastName"),
		Email:     r.FormValue("email"),
		Phone:     r.FormValue("phone"),
		Address:   r.FormValue("address"),
		ZipCode:   r.FormValue("zipCode"),
		City:      r.FormValue("city"),
	}
}

// registerForm shows the registration panel. Like the profile form, query
// values prefill it and q asks for address suggestions, ranked near the
// visitor's location.
func (s *Server) registerForm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.Sessions.Open(w, r)
	st := sess.State
	st.Navigate(models.TabRegister)

	query := r.URL.Query()
	var suggestions []models.GeoSuggest
	if q := query.Get("q"); q != "" {
		res, err := s.Geocoder.Suggest(ctx, q, st.Location)
		if err != nil {
			slog.Error("Erreur API", "error", err)
		}
		suggestions = res
	}

	s.render(w, r, sess, func(d *pageData) {
		overlay(&d.Form, query)
		d.Query = query.Get("q")
		d.Suggestions = suggestions
		d.PickPath = "/register"
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	sess := s.Sessions.Open(w, r)
	st := sess.State
	st.ActiveTab = models.TabRegister
	form := userFromForm(r)
	retry := "/register?" + formValues(form).Encode()

	if r.FormValue("password") != r.FormValue("confirmPassword") {
		st.Notify("Les mots de passe ne correspondent pas.", storefront.NotifyError)
		s.redirectTo(w, r, sess, retry)
		return
	}

	created, err := s.Backend.RegisterUser(r.Context(), models.RegisterDto{
		User:     form,
		Password: r.FormValue("password"),
	})
	if err != nil {
		var apiErr *services.APIError
		if errors.As(err, &apiErr) {
			st.Notify(apiErr.Message, storefront.NotifyError)
		} else {
			slog.Error("Registration failed", "error", err)
			st.Notify("Erreur lors de la création du compte", storefront.NotifyError)
		}
		s.redirectTo(w, r, sess, retry)
		return
	}

	slog.Info("Customer registered", "user_id", created.ID)
	st.Registered()
	s.redirect(w, r, sess)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	sess := s.Sessions.Open(w, r)
	st := sess.State
	if st.LoggedIn() {
		if err := s.Backend.Logout(r.Context(), st.BackendCookies); err != nil {
			slog.Warn("Backend logout failed", "user_id", st.CurrentUser.ID, "error", err)
		}
	}
	st.Logout()
	s.redirect(w, r, sess)
}

// editProfile shows the form. Query values prefill it, which is how an
// address suggestion is picked; q asks for suggestions.
func (s *Server) editProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.Sessions.Open(w, r)
	st := sess.State
	if tab, _ := st.Navigate(models.TabEditProfile); tab != models.TabEditProfile {
		s.redirect(w, r, sess)
		return
	}

	full := s.fullUser(ctx, st)
	query := r.URL.Query()

	var suggestions []models.GeoSuggest
	if q := query.Get("q"); q != "" {
		res, err := s.Geocoder.Suggest(ctx, q, nil)
		if err != nil {
			slog.Error("Erreur API", "error", err)
		}
		suggestions = res
	}

	s.render(w, r, sess, func(d *pageData) {
		d.PickPath = "/profile/edit"
		d.Profile = full
		if full != nil {
			d.Form = *full
		}
		overlay(&d.Form, query)
		d.Query = query.Get("q")
		d.Suggestions = suggestions
	})
}

func overlay(u *models.User, v map[string][]string) {
	fields := map[string]*string{
		"firstName": &u.FirstName,
		"lastName":  &u.LastName,
		"email":     &u.Email,
		"phone":     &u.Phone,
		"address":   &u.Address,
		"zipCode":   &u.ZipCode,
		"city":      &u.City,
	}
	for name, dst := range fields {
		if vals, ok := v[name]; ok && len(vals) > 0 {
			*dst = vals[0]
		}
	}
}

func (s *Server) saveProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := s.Sessions.Open(w, r)
	st := sess.State
	if !st.LoggedIn() {
		st.Navigate(models.TabEditProfile)
		s.redirect(w, r, sess)
		return
	}

	full := s.fullUser(ctx, st)
	if full == nil {
		st.Notify("Impossible de charger les informations de votre profil.", storefront.NotifyError)
		s.redirect(w, r, sess)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	merged := *full
	overlay(&merged, r.PostForm)

	updated, err := s.Backend.UpdateUser(ctx, st.BackendCookies, merged)
	if err != nil || updated == nil {
		slog.Error("Erreur de sauvegarde", "user_id", st.CurrentUser.ID, "error", err)
		st.Notify("Erreur lors de la mise à jour du profil.", storefront.NotifyError)
		st.ActiveTab = models.TabEditProfile
		s.redirect(w, r, sess)
		return
	}
	if updated.Email == "" {
		updated = &merged
	}
	st.ProfileUpdated(*updated)
	s.redirect(w, r, sess)
}
