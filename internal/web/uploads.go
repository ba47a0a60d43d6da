package web

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"storefront/internal/models"
	"storefront/internal/session"
	"storefront/internal/storefront"
	"storefront/internal/telemetry"
	"storefront/internal/upload"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// UploadCompletion stores the prints of a finished upload in the visitor's
// cart, unless the visitor has moved on (logged out or started another job).
func UploadCompletion(store session.Store) upload.CompleteFunc {
	return func(ctx context.Context, job *upload.Job, item models.CartItem) error {
		var added bool
		err := store.Update(ctx, job.SessionID, func(st *storefront.State) {
			added = st.UploadFinished(job.ID, job.OrderID, item)
		})
		switch {
		case err != nil:
			return err
		case added:
			telemetry.CartEvent("upload")
		default:
			slog.Info("Upload completion dropped", "job_id", job.ID, "session_id", job.SessionID)
		}
		return nil
	}
}

func (s *Server) startUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.Sessions.Open(w, r)
	st := sess.State
	if tab, _ := st.Navigate(models.TabCommander); tab != models.TabCommander {
		s.redirect(w, r, sess)
		return
	}

	if err := r.ParseMultipartForm(s.cfg.Upload.MaxMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		slog.Warn("Invalid upload form", "session_id", sess.ID, "error", err)
		st.Notify("Envoi impossible : fichiers trop volumineux.", storefront.NotifyError)
		s.redirect(w, r, sess)
		return
	}

	files, err := readPhotos(r)
	if err != nil {
		slog.Error("Failed to read upload", "session_id", sess.ID, "error", err)
		st.Notify("Erreur lors de l'envoi des photos", storefront.NotifyError)
		s.redirect(w, r, sess)
		return
	}

	job, err := s.Uploads.Start(upload.Request{
		SessionID:   sess.ID,
		UserID:      st.CurrentUser.ID,
		Credentials: st.BackendCookies,
		Files:       files,
	})
	switch {
	case errors.Is(err, upload.ErrNoFiles):
		st.Notify("Sélectionnez au moins une photo.", storefront.NotifyError)
	case errors.Is(err, upload.ErrBusy):
		st.Notify("Un envoi est déjà en cours.", storefront.NotifyError)
		st.UploadJobID = job.ID
	case err != nil:
		st.Notify("Erreur lors de l'envoi des photos", storefront.NotifyError)
	default:
		st.UploadJobID = job.ID
	}
	s.redirect(w, r, sess)
}

func readPhotos(r *http.Request) ([]upload.File, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File["photos"]
	files := make([]upload.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		contentType := fh.Header.Get("Content-Type")
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		files = append(files, upload.File{Name: fh.Filename, ContentType: contentType, Data: data})
	}
	return files, nil
}

// discardUpload deletes the stored photos of the last upload.
func (s *Server) discardUpload(w http.ResponseWriter, r *http.Request) {
	sess := s.Sessions.Open(w, r)
	st := sess.State
	if !st.LoggedIn() || st.DraftOrderID == "" {
		s.redirect(w, r, sess)
		return
	}

	if err := s.Uploads.Discard(r.Context(), st.BackendCookies, st.CurrentUser.ID, st.DraftOrderID); err != nil {
		slog.Error("Failed to delete order files", "order_id", st.DraftOrderID, "error", err)
		st.Notify("Erreur lors de la suppression des photos.", storefront.NotifyError)
	} else {
		st.DraftOrderID = ""
		st.Notify("Photos supprimées.", storefront.NotifySuccess)
	}
	s.redirect(w, r, sess)
}

// uploadProgress streams a job's progress until it finishes. Only the
// session that started the job may watch it.
func (s *Server) uploadProgress(w http.ResponseWriter, r *http.Request) {
	job, ok := s.Uploads.Get(chi.URLParam(r, "id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	sess := s.Sessions.Start(w, r)
	if sess.ID != job.SessionID {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "job_id", job.ID, "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := job.Subscribe()
	defer cancel()
	var last upload.Progress
	for p := range updates {
		if err := conn.WriteJSON(p); err != nil {
			slog.Warn("Websocket write failed", "job_id", job.ID, "error", err)
			return
		}
		last = p
	}
	// A slow reader may have missed the final update.
	if !last.Done {
		if err := conn.WriteJSON(job.Snapshot()); err != nil {
			slog.Warn("Websocket write failed", "job_id", job.ID, "error", err)
			return
		}
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
