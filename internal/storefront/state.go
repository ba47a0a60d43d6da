// Package storefront holds the per-visitor view state of the shop: which
// panel is showing, the cart, who is logged in and the orders placed during
// the session. Every operation is a plain state transition; calls to the
// backend are passed in through narrow interfaces.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storefront/internal/models"
)

// PricePerPhoto is the unit price of a standard print.
const PricePerPhoto = 0.25

var ErrUnknownTab = errors.New("unknown tab")

type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notification is a toast shown once on the next render.
type Notification struct {
	Message string           `json:"message"`
	Kind    NotificationKind `json:"kind"`
}

type State struct {
	ActiveTab      models.Tab          `json:"activeTab"`
	Cart           []models.CartItem   `json:"cart"`
	CurrentUser    *models.UserContext `json:"currentUser,omitempty"`
	Orders         []models.Order      `json:"orders"`
	Location       *models.Location    `json:"location,omitempty"`
	Notifications  []Notification      `json:"notifications,omitempty"`
	BackendCookies map[string]string   `json:"backendCookies,omitempty"`
	// SessionChecked is set once the backend session has been verified.
	SessionChecked bool `json:"sessionChecked"`
	// UploadJobID is the running photo upload, if any.
	UploadJobID string `json:"uploadJobId,omitempty"`
	// DraftOrderID groups the stored photos of the last finished upload.
	DraftOrderID string `json:"draftOrderId,omitempty"`
}

func New() *State {
	return &State{
		ActiveTab: models.TabHome,
		Cart:      []models.CartItem{},
		Orders:    []models.Order{},
	}
}

func (s *State) LoggedIn() bool {
	return s.CurrentUser != nil
}

// requiresLogin lists the panels that send anonymous visitors to login.
var requiresLogin = map[models.Tab]bool{
	models.TabCommander:   true,
	models.TabCart:        true,
	models.TabProfile:     true,
	models.TabEditProfile: true,
}

// Navigate switches panel. Guarded panels redirect to login when nobody is
// logged in; the resulting tab is returned.
func (s *State) Navigate(tab models.Tab) (models.Tab, error) {
	if !tab.Valid() {
		return s.ActiveTab, fmt.Errorf("%w: %q", ErrUnknownTab, tab)
	}
	if requiresLogin[tab] && !s.LoggedIn() {
		tab = models.TabLogin
	}
	s.ActiveTab = tab
	return tab, nil
}

func (s *State) Notify(message string, kind NotificationKind) {
	s.Notifications = append(s.Notifications, Notification{Message: message, Kind: kind})
}

// DrainNotifications returns pending toasts and forgets them.
func (s *State) DrainNotifications() []Notification {
	out := s.Notifications
	s.Notifications = nil
	return out
}

// SessionVerifier is the backend call that restores a session.
type SessionVerifier interface {
	VerifyToken(ctx context.Context, creds map[string]string) (*models.UserContext, error)
}

// RestoreSession asks the backend once per visitor session who is logged in.
// Any failure leaves the visitor logged out.
func (s *State) RestoreSession(ctx context.Context, verifier SessionVerifier) {
	if s.SessionChecked {
		return
	}
	s.SessionChecked = true

	user, err := verifier.VerifyToken(ctx, s.BackendCookies)
	if err != nil {
		slog.Warn("Session invalide", "error", err)
		s.CurrentUser = nil
		return
	}
	s.CurrentUser = user
}

// LoginSucceeded records the identity and cookies returned by the backend.
func (s *State) LoginSucceeded(user models.UserContext, cookies map[string]string) {
	s.CurrentUser = &user
	s.BackendCookies = cookies
	s.SessionChecked = true
	s.ActiveTab = models.TabProfile
	s.Notify(fmt.Sprintf("Bienvenue %s !", user.FirstName), NotifySuccess)
}

// Registered sends the new customer to the login panel; registration does not
// log in.
func (s *State) Registered() {
	s.ActiveTab = models.TabLogin
	s.Notify("Compte créé ! Veuillez vous connecter.", NotifySuccess)
}

// Logout clears identity and order history whatever the backend said.
func (s *State) Logout() {
	s.CurrentUser = nil
	s.BackendCookies = nil
	s.Orders = []models.Order{}
	s.UploadJobID = ""
	s.DraftOrderID = ""
	s.ActiveTab = models.TabHome
	s.Notify("Déconnecté.", NotifySuccess)
}

// ProfileUpdated refreshes the session identity after a profile save.
func (s *State) ProfileUpdated(user models.User) {
	ctx := user.Context()
	if ctx.ID == "" && s.CurrentUser != nil {
		ctx.ID = s.CurrentUser.ID
	}
	s.CurrentUser = &ctx
	s.ActiveTab = models.TabProfile
	s.Notify("Profil mis à jour !", NotifySuccess)
}

// OrderStatusClass picks the badge colour for an order status.
func OrderStatusClass(status models.OrderStatus) string {
	switch status {
	case models.OrderDelivered:
		return "bg-green-100 text-green-800"
	case models.OrderPending:
		return "bg-yellow-100 text-yellow-800"
	default:
		return "bg-blue-100 text-blue-800"
	}
}
