package web

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/storefront"
	"storefront/internal/upload"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	"price":       storefront.FormatPrice,
	"statusClass": storefront.OrderStatusClass,
	"icon":        catalog.Icon,
	"itemNames":   itemNames,
	"orUnset":     orUnset,
	"pick":        pickSuggestion,
	"initial":     initial,
}).ParseFS(templateFS, "templates/*.html"))

type pageData struct {
	Tab       models.Tab
	Menu      []models.MenuItem
	User      *models.UserContext
	Toasts    []storefront.Notification
	Cart      []models.CartItem
	CartCount int
	CartTotal float64
	Services  []models.ServiceData
	Products  []models.ProductData
	Store     any
	Brand     any
	Location  *models.Location

	Orders      []models.Order
	Profile     *models.User
	Form        models.User
	Query       string
	Suggestions []models.GeoSuggest
	// PickPath is the form a picked suggestion links back to.
	PickPath string

	UploadID   string
	Upload     *upload.Progress
	DraftOrder bool
}

func itemNames(items []models.CartItem) string {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	return strings.Join(names, ", ")
}

func initial(name string) string {
	for _, r := range name {
		return string(r)
	}
	return "?"
}

func orUnset(s string) string {
	if s == "" {
		return "Non renseigné"
	}
	return s
}

// formValues carries the visible fields of a customer form in a URL.
// Passwords never go there.
func formValues(u models.User) url.Values {
	v := url.Values{}
	v.Set("firstName", u.FirstName)
	v.Set("lastName", u.LastName)
	v.Set("email", u.Email)
	v.Set("phone", u.Phone)
	v.Set("address", u.Address)
	v.Set("zipCode", u.ZipCode)
	v.Set("city", u.City)
	return v
}

// pickSuggestion links back to the form at path with the suggestion filled in.
func pickSuggestion(path string, form models.User, sg models.GeoSuggest) string {
	form.Address, form.ZipCode, form.City = sg.Address()
	return path + "?" + formValues(form).Encode()
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	sess := s.Sessions.Open(w, r)
	s.render(w, r, sess, nil)
}

func (s *Server) navigate(w http.ResponseWriter, r *http.Request) {
	sess := s.Sessions.Open(w, r)
	tab := models.Tab(chi.URLParam(r, "tab"))
	if _, err := sess.State.Navigate(tab); err != nil {
		slog.Warn("Navigation refused", "tab", tab, "error", err)
		http.NotFound(w, r)
		return
	}
	s.redirect(w, r, sess)
}

// redirect saves the session and sends the browser back to the page.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.redirectTo(w, r, sess, "/")
}

func (s *Server) redirectTo(w http.ResponseWriter, r *http.Request, sess *session.Session, target string) {
	if err := s.Sessions.Save(r.Context(), sess); err != nil {
		slog.Error("Failed to save session", "session_id", sess.ID, "error", err)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// render draws the active panel. extra lets a handler add panel data it has
// already loaded.
func (s *Server) render(w http.ResponseWriter, r *http.Request, sess *session.Session, extra func(*pageData)) {
	ctx := r.Context()
	st := sess.State

	if _, err := st.Navigate(st.ActiveTab); err != nil {
		st.ActiveTab = models.TabHome
	}

	data := &pageData{
		Menu:     catalog.MenuItems,
		Services: catalog.ServicesData,
		Products: s.Catalog.Products(),
		Store:    catalog.Store,
		Brand:    catalog.BrandColors,
		Location: st.Location,
	}

	switch st.ActiveTab {
	case models.TabProfile:
		data.Profile, data.Orders = s.loadProfile(ctx, st)
	case models.TabEditProfile:
		if extra == nil {
			data.Profile = s.fullUser(ctx, st)
			if data.Profile != nil {
				data.Form = *data.Profile
			}
		}
	case models.TabCommander:
		s.uploadStatus(st, data)
	}
	if extra != nil {
		extra(data)
	}

	data.Tab = st.ActiveTab
	data.User = st.CurrentUser
	data.Cart = st.Cart
	data.CartCount = st.CartCount()
	data.CartTotal = st.CartTotal()
	data.DraftOrder = st.DraftOrderID != ""
	data.Toasts = st.DrainNotifications()

	if err := s.Sessions.Save(ctx, sess); err != nil {
		slog.Error("Failed to save session", "session_id", sess.ID, "error", err)
	}

	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("Template error", "tab", st.ActiveTab, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (s *Server) fullUser(ctx context.Context, st *storefront.State) *models.User {
	user, err := s.Backend.GetUserByEmail(ctx, st.BackendCookies, st.CurrentUser.Email)
	if err != nil {
		slog.Error("Erreur lors de la récupération de l'utilisateur", "user_id", st.CurrentUser.ID, "error", err)
		return nil
	}
	return user
}

// loadProfile fetches the full profile and the backend order history in
// parallel. Failures degrade to what the session already knows.
func (s *Server) loadProfile(ctx context.Context, st *storefront.State) (*models.User, []models.Order) {
	var (
		full   *models.User
		remote []models.Order
	)

	// Each side has its own fallback, so neither failure cancels the other.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		full = s.fullUser(ctx, st)
	}()
	go func() {
		defer wg.Done()
		res, err := s.Backend.GetUserOrders(ctx, st.BackendCookies)
		if err != nil {
			slog.Warn("Orders fallback", "user_id", st.CurrentUser.ID, "error", err)
			return
		}
		remote = res
	}()
	wg.Wait()

	orders := st.UserOrders()
	seen := make(map[string]bool, len(orders))
	for _, o := range orders {
		seen[o.ID] = true
	}
	for _, o := range remote {
		if !seen[o.ID] {
			orders = append(orders, o)
		}
	}
	return full, orders
}

// uploadStatus shows the running upload. Finished jobs were settled when the
// session was opened.
func (s *Server) uploadStatus(st *storefront.State, data *pageData) {
	if st.UploadJobID == "" {
		return
	}
	job, ok := s.Uploads.Get(st.UploadJobID)
	if !ok {
		return
	}
	p := job.Snapshot()
	data.UploadID = job.ID
	data.Upload = &p
}
