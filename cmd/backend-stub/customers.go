package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/models"
)

const tokenCookie = "token"

type customer struct {
	models.User
	hash []byte
}

type customerStore struct {
	secret []byte

	mu      sync.RWMutex
	byEmail map[string]*customer
	nextID  int
}

func newCustomerStore(secret []byte) *customerStore {
	s := &customerStore{secret: secret, byEmail: make(map[string]*customer), nextID: 1}
	s.add(models.User{
		FirstName: "Jean", LastName: "Dupont", Email: "jean.dupont@email.com",
		Phone: "06 12 34 56 78", Address: "12 Rue de la Paix", ZipCode: "75002", City: "Paris",
	}, "123456")
	return s
}

func (s *customerStore) add(u models.User, password string) (*customer, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = strconv.Itoa(s.nextID)
	s.nextID++
	c := &customer{User: u, hash: hash}
	s.byEmail[strings.ToLower(u.Email)] = c
	return c, nil
}

func (s *customerStore) find(email string) (*customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byEmail[strings.ToLower(email)]
	return c, ok
}

// authenticated resolves the token cookie to a customer. Tokens carry the
// customer id so they survive an email change.
func (s *customerStore) authenticated(r *http.Request) (*customer, bool) {
	cookie, err := r.Cookie(tokenCookie)
	if err != nil {
		return nil, false
	}
	token, err := jwt.ParseWithClaims(cookie.Value, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, false
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return nil, false
	}
	return s.byID(sub)
}

func (s *customerStore) byID(id string) (*customer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.byEmail {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

func (s *customerStore) register(w http.ResponseWriter, r *http.Request) {
	var dto models.RegisterDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeMessage(w, http.StatusBadRequest, "Requête invalide")
		return
	}
	if dto.Email == "" || dto.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"message": {"email et mot de passe requis"}})
		return
	}
	if _, exists := s.find(dto.Email); exists {
		writeMessage(w, http.StatusConflict, "Email déjà utilisé")
		return
	}
	c, err := s.add(dto.User, dto.Password)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"insertId": c.ID})
}

func (s *customerStore) login(w http.ResponseWriter, r *http.Request) {
	var dto models.LoginDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeMessage(w, http.StatusBadRequest, "Requête invalide")
		return
	}
	c, ok := s.find(dto.Email)
	if !ok || bcrypt.CompareHashAndPassword(c.hash, []byte(dto.Password)) != nil {
		writeMessage(w, http.StatusUnauthorized, "Identifiants invalides")
		return
	}

	expires := time.Now().Add(24 * time.Hour)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   c.ID,
		ExpiresAt: jwt.NewNumericDate(expires),
	}).SignedString(s.secret)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, err.Error())
		return
	}
	http.SetCookie(w, &http.Cookie{Name: tokenCookie, Value: token, Path: "/", Expires: expires, HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]any{"access_token": token, "user": c.Context()})
}

func (s *customerStore) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: tokenCookie, Path: "/", MaxAge: -1, HttpOnly: true})
	writeMessage(w, http.StatusOK, "Déconnecté")
}

func (s *customerStore) verify(w http.ResponseWriter, r *http.Request) {
	c, ok := s.authenticated(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, c.Context())
}

func (s *customerStore) getByEmail(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authenticated(r); !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	c, ok := s.find(r.URL.Query().Get("email"))
	if !ok {
		writeMessage(w, http.StatusNotFound, "Utilisateur introuvable")
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	writeJSON(w, http.StatusOK, c.User)
}

// update saves the profile of the logged-in customer. The email may change,
// the id may not.
func (s *customerStore) update(w http.ResponseWriter, r *http.Request) {
	c, ok := s.authenticated(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var in models.User
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeMessage(w, http.StatusBadRequest, "Requête invalide")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if in.Email != "" && !strings.EqualFold(in.Email, c.Email) {
		if _, taken := s.byEmail[strings.ToLower(in.Email)]; taken {
			writeMessage(w, http.StatusConflict, "Email déjà utilisé")
			return
		}
		delete(s.byEmail, strings.ToLower(c.Email))
		s.byEmail[strings.ToLower(in.Email)] = c
	}
	in.ID = c.ID
	if in.Email == "" {
		in.Email = c.Email
	}
	c.User = in
	writeJSON(w, http.StatusOK, c.User)
}
