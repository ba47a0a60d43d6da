package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"storefront/internal/models"
)

// objectStore stands in for the S3 bucket: presigned URLs point back at
// this server and objects are kept in memory.
type objectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newObjectStore() *objectStore {
	return &objectStore{objects: make(map[string][]byte)}
}

func (s *objectStore) presign(w http.ResponseWriter, r *http.Request) {
	var dto models.GeneratePresignedURLDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil || dto.UserID == "" || dto.OrderID == "" {
		writeMessage(w, http.StatusBadRequest, "userId et orderId requis")
		return
	}
	key := fmt.Sprintf("%s/%s/%s-%s", dto.UserID, dto.OrderID, uuid.NewString(), dto.OriginalName)

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	writeJSON(w, http.StatusOK, models.UploadURL{
		UploadURL: fmt.Sprintf("%s://%s/s3/objects/%s", scheme, r.Host, key),
		Key:       key,
	})
}

func (s *objectStore) put(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	s.mu.Lock()
	s.objects[key] = data
	s.mu.Unlock()
	slog.Info("Object stored", "key", key, "size", len(data), "content_type", r.Header.Get("Content-Type"))
	w.WriteHeader(http.StatusOK)
}

func (s *objectStore) deleteOrder(w http.ResponseWriter, r *http.Request) {
	prefix := chi.URLParam(r, "userID") + "/" + chi.URLParam(r, "orderID") + "/"

	s.mu.Lock()
	n := 0
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
			n++
		}
	}
	s.mu.Unlock()
	writeMessage(w, http.StatusOK, fmt.Sprintf("%d fichier(s) supprimé(s)", n))
}
