package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"storefront/internal/config"
	"storefront/internal/models"
	"storefront/internal/telemetry"
)

// Credentials are the backend session cookies replayed on every call made
// on behalf of a visitor.
type Credentials = map[string]string

// APIError is a non-2xx answer from the backend with its `message` field.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// IsStatus reports whether err is an APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// ManagerService is the storefront's client for the customers, products,
// orders and S3 endpoints of the backend.
type ManagerService struct {
	baseURL    string
	client     *http.Client
	orderDelay time.Duration
	now        func() time.Time
	orderID    func() string
}

func NewManagerService(cfg *config.Config) *ManagerService {
	return &ManagerService{
		baseURL: cfg.Backend.URL,
		client: &http.Client{
			Timeout: cfg.Backend.Timeout,
		},
		orderDelay: 500 * time.Millisecond,
		now:        time.Now,
		orderID: func() string {
			return strconv.Itoa(rand.IntN(100000))
		},
	}
}

type response struct {
	status  int
	body    []byte
	cookies []*http.Cookie
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

// apiError builds an APIError from the backend `message` field, falling back
// to def when the body carries none.
func (r *response) apiError(def string) *APIError {
	var payload struct {
		Message json.RawMessage `json:"message"`
	}
	msg := def
	if err := json.Unmarshal(r.body, &payload); err == nil && len(payload.Message) > 0 {
		var s string
		if err := json.Unmarshal(payload.Message, &s); err == nil && s != "" {
			msg = s
		} else {
			// NestJS validation errors carry a list of messages.
			var list []string
			if err := json.Unmarshal(payload.Message, &list); err == nil && len(list) > 0 {
				msg = list[0]
			}
		}
	}
	return &APIError{Status: r.status, Message: msg}
}

func (s *ManagerService) do(ctx context.Context, op, method, path string, creds Credentials, in any) (resp *response, err error) {
	start := time.Now()
	defer func() { telemetry.ObserveBackend(op, err, start) }()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: encoding request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range creds {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", op, err)
	}

	return &response{status: res.StatusCode, body: data, cookies: res.Cookies()}, nil
}

func decode[T any](op string, data []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return &out, nil
}

// VerifyToken asks the backend who owns the session cookie. Any non-2xx
// answer means "not logged in" and yields nil without error.
func (s *ManagerService) VerifyToken(ctx context.Context, creds Credentials) (*models.UserContext, error) {
	if len(creds) == 0 {
		return nil, nil
	}
	resp, err := s.do(ctx, "verify", http.MethodGet, "customers/verify", creds, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, nil
	}
	return decode[models.UserContext]("verify", resp.body)
}

// Login returns the authenticated identity and the cookies the backend set.
// Rejected credentials yield a nil user and no error.
func (s *ManagerService) Login(ctx context.Context, dto models.LoginDto) (*models.UserContext, Credentials, error) {
	resp, err := s.do(ctx, "login", http.MethodPost, "customers/login", nil, dto)
	if err != nil {
		return nil, nil, err
	}
	if !resp.ok() {
		return nil, nil, nil
	}

	// The backend answers either {access_token, user} or the user itself.
	var wrapped struct {
		AccessToken string              `json:"access_token"`
		User        *models.UserContext `json:"user"`
	}
	if err := json.Unmarshal(resp.body, &wrapped); err != nil {
		return nil, nil, fmt.Errorf("login: decoding response: %w", err)
	}
	user := wrapped.User
	if user == nil {
		if user, err = decode[models.UserContext]("login", resp.body); err != nil {
			return nil, nil, err
		}
	}

	creds := Credentials{}
	for _, c := range resp.cookies {
		if c.MaxAge < 0 || c.Value == "" {
			continue
		}
		creds[c.Name] = c.Value
	}
	if wrapped.AccessToken != "" && len(creds) == 0 {
		creds["token"] = wrapped.AccessToken
	}
	return user, creds, nil
}

func (s *ManagerService) Logout(ctx context.Context, creds Credentials) error {
	resp, err := s.do(ctx, "logout", http.MethodPost, "customers/logout", creds, nil)
	if err != nil {
		return err
	}
	if !resp.ok() {
		return resp.apiError("Erreur lors de la déconnexion")
	}
	return nil
}

// RegisterUser creates the customer and returns it with the id the backend
// generated (insertId or id).
func (s *ManagerService) RegisterUser(ctx context.Context, dto models.RegisterDto) (*models.User, error) {
	resp, err := s.do(ctx, "register", http.MethodPost, "customers", nil, dto)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.apiError("Erreur lors de la création du compte")
	}

	var result struct {
		InsertID json.RawMessage `json:"insertId"`
		ID       json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(resp.body, &result); err != nil {
		return nil, fmt.Errorf("register: decoding response: %w", err)
	}

	user := dto.User
	if id := models.ParseID(result.InsertID); id != "" {
		user.ID = id
	} else {
		user.ID = models.ParseID(result.ID)
	}
	return &user, nil
}

// UpdateUser saves the profile. The returned user never carries the
// password; a rejected update yields nil without error.
func (s *ManagerService) UpdateUser(ctx context.Context, creds Credentials, user models.User) (*models.User, error) {
	resp, err := s.do(ctx, "update_user", http.MethodPost, "customers/update", creds, user)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, nil
	}
	return decode[models.User]("update_user", resp.body)
}

// GetUserByEmail fetches the full profile. Unknown emails yield nil.
func (s *ManagerService) GetUserByEmail(ctx context.Context, creds Credentials, email string) (*models.User, error) {
	path := "customers/getbyemail?email=" + url.QueryEscape(email)
	resp, err := s.do(ctx, "get_user_by_email", http.MethodGet, path, creds, nil)
	if err != nil {
		return nil, err
	}
	if resp.status == http.StatusNotFound {
		return nil, nil
	}
	if !resp.ok() {
		return nil, resp.apiError("Utilisateur introuvable")
	}
	if len(bytes.TrimSpace(resp.body)) == 0 || string(bytes.TrimSpace(resp.body)) == "null" {
		return nil, nil
	}
	return decode[models.User]("get_user_by_email", resp.body)
}

// GetProducts lists the catalogue. A non-2xx answer yields an empty list.
func (s *ManagerService) GetProducts(ctx context.Context) ([]models.ProductData, error) {
	resp, err := s.do(ctx, "get_products", http.MethodGet, "products", nil, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return []models.ProductData{}, nil
	}
	products, err := decode[[]models.ProductData]("get_products", resp.body)
	if err != nil {
		return nil, err
	}
	return *products, nil
}

// CreateOrder is a client-side stub: the backend has no order endpoint yet.
// It waits like a round trip and returns a processing order.
func (s *ManagerService) CreateOrder(ctx context.Context, userID string, items []models.CartItem, total float64) (*models.Order, error) {
	start := time.Now()
	select {
	case <-ctx.Done():
		telemetry.ObserveBackend("create_order", ctx.Err(), start)
		return nil, fmt.Errorf("create_order: %w", ctx.Err())
	case <-time.After(s.orderDelay):
	}
	telemetry.ObserveBackend("create_order", nil, start)

	return &models.Order{
		ID:     s.orderID(),
		UserID: userID,
		Status: models.OrderProcessing,
		Date:   s.now().Format("02/01/2006"),
		Items:  append([]models.CartItem(nil), items...),
		Total:  total,
	}, nil
}

// GetUserOrders is a stub until the backend exposes order history.
func (s *ManagerService) GetUserOrders(ctx context.Context, creds Credentials) ([]models.Order, error) {
	return []models.Order{}, nil
}

func (s *ManagerService) GenerateUploadURL(ctx context.Context, creds Credentials, dto models.GeneratePresignedURLDto) (*models.UploadURL, error) {
	resp, err := s.do(ctx, "generate_upload_url", http.MethodPost, "s3/generate-upload-url", creds, dto)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.apiError("Erreur lors de la génération de l'URL d'upload")
	}
	return decode[models.UploadURL]("generate_upload_url", resp.body)
}

func (s *ManagerService) DeleteOrderFiles(ctx context.Context, creds Credentials, userID, orderID string) (string, error) {
	path := fmt.Sprintf("s3/order/%s/%s", url.PathEscape(userID), url.PathEscape(orderID))
	resp, err := s.do(ctx, "delete_order_files", http.MethodDelete, path, creds, nil)
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", resp.apiError("Erreur lors de la suppression des fichiers")
	}
	out, err := decode[struct {
		Message string `json:"message"`
	}]("delete_order_files", resp.body)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// PutObject sends file bytes to a presigned upload URL.
func (s *ManagerService) PutObject(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) (err error) {
	start := time.Now()
	defer func() { telemetry.ObserveBackend("put_object", err, start) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("put_object: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", contentType)

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("put_object: %w", err)
	}
	defer res.Body.Close()
	io.Copy(io.Discard, res.Body)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &APIError{Status: res.StatusCode, Message: "Erreur lors de l'envoi du fichier"}
	}
	return nil
}
