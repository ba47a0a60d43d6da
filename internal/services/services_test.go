package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
	"storefront/internal/models"
)

func newTestService(t *testing.T, h http.Handler) *ManagerService {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Backend.URL = srv.URL + "/"
	return NewManagerService(cfg)
}

func TestVerifyToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /customers/verify", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("token")
		if err != nil || c.Value != "good" {
			http.Error(w, `{"message":"Unauthorized"}`, http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(models.UserContext{ID: "1", FirstName: "Ana", Email: "ana@example.com"})
	})
	svc := newTestService(t, mux)
	ctx := context.Background()

	user, err := svc.VerifyToken(ctx, Credentials{"token": "good"})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Ana", user.FirstName)

	user, err = svc.VerifyToken(ctx, Credentials{"token": "bad"})
	require.NoError(t, err)
	assert.Nil(t, user, "401 means logged out")

	user, err = svc.VerifyToken(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, user, "no cookie skips the round trip")
}

func TestLoginCapturesCookies(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /customers/login", func(w http.ResponseWriter, r *http.Request) {
		var dto models.LoginDto
		require.NoError(t, json.NewDecoder(r.Body).Decode(&dto))
		if dto.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "jwt-value", HttpOnly: true})
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "jwt-value",
			"user":         models.UserContext{ID: "7", FirstName: "Léa", Email: dto.Email},
		})
	})
	svc := newTestService(t, mux)

	user, creds, err := svc.Login(context.Background(), models.LoginDto{Email: "lea@example.com", Password: "secret"})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "7", user.ID)
	assert.Equal(t, Credentials{"token": "jwt-value"}, creds)

	user, creds, err = svc.Login(context.Background(), models.LoginDto{Email: "lea@example.com", Password: "nope"})
	require.NoError(t, err)
	assert.Nil(t, user)
	assert.Nil(t, creds)
}

func TestLoginAcceptsBareUser(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(models.UserContext{ID: "3", FirstName: "Tom"})
	}))

	user, _, err := svc.Login(context.Background(), models.LoginDto{Email: "tom@example.com"})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Tom", user.FirstName)
}

func TestRegisterUser(t *testing.T) {
	t.Run("insertId wins", func(t *testing.T) {
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/customers", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), `"password":"pw"`)
			assert.Contains(t, string(body), `"firstName":"Ana"`)
			w.Write([]byte(`{"insertId": 42}`))
		}))

		user, err := svc.RegisterUser(context.Background(), models.RegisterDto{
			User:     models.User{ID: "temp-id", FirstName: "Ana"},
			Password: "pw",
		})
		require.NoError(t, err)
		assert.Equal(t, "42", user.ID)
		assert.Equal(t, "Ana", user.FirstName)
	})

	t.Run("falls back to id", func(t *testing.T) {
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id": "abc"}`))
		}))
		user, err := svc.RegisterUser(context.Background(), models.RegisterDto{})
		require.NoError(t, err)
		assert.Equal(t, "abc", user.ID)
	})

	t.Run("backend message surfaces", func(t *testing.T) {
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"Email déjà utilisé"}`))
		}))
		_, err := svc.RegisterUser(context.Background(), models.RegisterDto{})
		require.Error(t, err)
		assert.True(t, IsStatus(err, http.StatusConflict))
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "Email déjà utilisé", apiErr.Message)
	})

	t.Run("default message", func(t *testing.T) {
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		_, err := svc.RegisterUser(context.Background(), models.RegisterDto{})
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "Erreur lors de la création du compte", apiErr.Message)
	})
}

func TestUpdateUserStripsPassword(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/customers/update", r.URL.Path)
		w.Write([]byte(`{"id":"1","firstName":"Ana","city":"Lyon","password":"$2a$10$hash"}`))
	}))

	user, err := svc.UpdateUser(context.Background(), nil, models.User{ID: "1", City: "Lyon"})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "Lyon", user.City)

	out, err := json.Marshal(user)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "password")
}

func TestGetUserByEmail(t *testing.T) {
	svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := r.URL.Query().Get("email")
		if email != "ana+photo@example.com" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(models.User{ID: "1", Email: email, Phone: "0102030405"})
	}))

	user, err := svc.GetUserByEmail(context.Background(), nil, "ana+photo@example.com")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "0102030405", user.Phone)

	user, err = svc.GetUserByEmail(context.Background(), nil, "ghost@example.com")
	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestNumericCustomerIDs(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /customers/login", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"jwt","user":{"id":42,"firstName":"Jean","email":"jean@example.com"}}`))
	})
	mux.HandleFunc("GET /customers/verify", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":42,"firstName":"Jean","email":"jean@example.com"}`))
	})
	mux.HandleFunc("GET /customers/getbyemail", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":42,"firstName":"Jean","email":"jean@example.com","phone":"0601020304"}`))
	})
	svc := newTestService(t, mux)
	ctx := context.Background()

	user, creds, err := svc.Login(ctx, models.LoginDto{Email: "jean@example.com", Password: "pw"})
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "42", user.ID)

	verified, err := svc.VerifyToken(ctx, creds)
	require.NoError(t, err)
	require.NotNil(t, verified)
	assert.Equal(t, "42", verified.ID)

	full, err := svc.GetUserByEmail(ctx, creds, "jean@example.com")
	require.NoError(t, err)
	require.NotNil(t, full)
	assert.Equal(t, "42", full.ID)
	assert.Equal(t, "0601020304", full.Phone)
}

func TestGetProducts(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"id":1,"name":"Tirages","price":0.25,"iconName":"Image"}]`))
		}))
		products, err := svc.GetProducts(context.Background())
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, "Image", products[0].IconName)
	})

	t.Run("error status gives empty list", func(t *testing.T) {
		svc := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		products, err := svc.GetProducts(context.Background())
		require.NoError(t, err)
		assert.Empty(t, products)
		assert.NotNil(t, products)
	})
}

func TestCreateOrder(t *testing.T) {
	svc := newTestService(t, http.NotFoundHandler())
	svc.orderDelay = time.Millisecond
	svc.now = func() time.Time { return time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC) }
	svc.orderID = func() string { return "12345" }

	items := []models.CartItem{{Name: "Pack 50 Tirages 10x15", Price: 15}}
	order, err := svc.CreateOrder(context.Background(), "u1", items, 15)
	require.NoError(t, err)

	assert.Equal(t, "12345", order.ID)
	assert.Equal(t, "u1", order.UserID)
	assert.Equal(t, models.OrderProcessing, order.Status)
	assert.Equal(t, "09/03/2025", order.Date)
	assert.Equal(t, 15.0, order.Total)

	items[0].Name = "mutated"
	assert.Equal(t, "Pack 50 Tirages 10x15", order.Items[0].Name, "items are copied")
}

func TestCreateOrderHonoursCancel(t *testing.T) {
	svc := newTestService(t, http.NotFoundHandler())
	svc.orderDelay = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.CreateOrder(ctx, "u1", nil, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultOrderIDRange(t *testing.T) {
	svc := NewManagerService(config.Default())
	for i := 0; i < 50; i++ {
		id := svc.orderID()
		assert.LessOrEqual(t, len(id), 5)
	}
}

func TestUploadURLAndDelete(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /s3/generate-upload-url", func(w http.ResponseWriter, r *http.Request) {
		var dto models.GeneratePresignedURLDto
		require.NoError(t, json.NewDecoder(r.Body).Decode(&dto))
		if dto.FileType == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":["fileType should not be empty"]}`))
			return
		}
		json.NewEncoder(w).Encode(models.UploadURL{UploadURL: "http://s3/put", Key: dto.UserID + "/" + dto.OrderID + "/" + dto.OriginalName})
	})
	mux.HandleFunc("DELETE /s3/order/{user}/{order}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"message": "deleted " + r.PathValue("user") + "/" + r.PathValue("order")})
	})
	svc := newTestService(t, mux)
	ctx := context.Background()

	up, err := svc.GenerateUploadURL(ctx, nil, models.GeneratePresignedURLDto{UserID: "u1", OrderID: "o1", FileType: "image/jpeg", OriginalName: "a.jpg"})
	require.NoError(t, err)
	assert.Equal(t, "u1/o1/a.jpg", up.Key)

	_, err = svc.GenerateUploadURL(ctx, nil, models.GeneratePresignedURLDto{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "fileType should not be empty", apiErr.Message)

	msg, err := svc.DeleteOrderFiles(ctx, nil, "u1", "o1")
	require.NoError(t, err)
	assert.Equal(t, "deleted u1/o1", msg)
}

func TestPutObject(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "image/png", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		got = string(b)
	}))
	defer srv.Close()

	svc := NewManagerService(config.Default())
	err := svc.PutObject(context.Background(), srv.URL+"/bucket/key", "image/png", strings.NewReader("pixels"), 6)
	require.NoError(t, err)
	assert.Equal(t, "pixels", got)
}

func TestTransportErrorIsWrapped(t *testing.T) {
	cfg := config.Default()
	cfg.Backend.URL = "http://127.0.0.1:1/"
	cfg.Backend.Timeout = time.Second
	svc := NewManagerService(cfg)

	_, err := svc.GetProducts(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get_products")
}
