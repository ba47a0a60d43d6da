package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/models"
	"storefront/internal/storefront"
)

var (
	ErrNoFiles = errors.New("no files to upload")
	ErrBusy    = errors.New("an upload is already running")
)

// Presigner is the S3 side of the backend.
type Presigner interface {
	GenerateUploadURL(ctx context.Context, creds map[string]string, dto models.GeneratePresignedURLDto) (*models.UploadURL, error)
	PutObject(ctx context.Context, uploadURL, contentType string, body io.Reader, size int64) error
	DeleteOrderFiles(ctx context.Context, creds map[string]string, userID, orderID string) (string, error)
}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type Request struct {
	SessionID   string
	UserID      string
	Credentials map[string]string
	Files       []File
}

type Progress struct {
	Percent int              `json:"percent"`
	Done    bool             `json:"done"`
	Error   string           `json:"error,omitempty"`
	Item    *models.CartItem `json:"item,omitempty"`
	Keys    []string         `json:"keys,omitempty"`
}

// CompleteFunc receives the cart line of a finished job.
type CompleteFunc func(ctx context.Context, job *Job, item models.CartItem) error

type Options struct {
	Presign bool
	Tick    time.Duration
	Step    int
	// Retain is how long finished jobs stay queryable.
	Retain time.Duration
}

// Job is one batch of photos going through the print pipeline.
type Job struct {
	ID        string
	SessionID string
	UserID    string
	OrderID   string
	Files     int

	mu       sync.Mutex
	progress Progress
	subs     map[chan Progress]struct{}
	done     chan struct{}
}

func (j *Job) Snapshot() Progress {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Subscribe streams progress updates. The channel is closed when the job
// finishes; read Snapshot for the final state. Slow readers miss
// intermediate updates.
func (j *Job) Subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 16)

	j.mu.Lock()
	select {
	case <-j.done:
		j.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	j.subs[ch] = struct{}{}
	ch <- j.progress
	j.mu.Unlock()

	return ch, func() {
		j.mu.Lock()
		defer j.mu.Unlock()
		if _, ok := j.subs[ch]; ok {
			delete(j.subs, ch)
			close(ch)
		}
	}
}

func (j *Job) publish(p Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = p
	for ch := range j.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

func (j *Job) finish(p Progress) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.progress = p
	for ch := range j.subs {
		select {
		case ch <- p:
		default:
		}
		close(ch)
		delete(j.subs, ch)
	}
	close(j.done)
}

type Manager struct {
	presigner  Presigner
	opts       Options
	onComplete CompleteFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	jobs      map[string]*Job
	bySession map[string]string
}

func NewManager(presigner Presigner, opts Options, onComplete CompleteFunc) *Manager {
	if opts.Step <= 0 {
		opts.Step = 10
	}
	if opts.Tick <= 0 {
		opts.Tick = 150 * time.Millisecond
	}
	if opts.Retain <= 0 {
		opts.Retain = 30 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		presigner:  presigner,
		opts:       opts,
		onComplete: onComplete,
		ctx:        ctx,
		cancel:     cancel,
		jobs:       make(map[string]*Job),
		bySession:  make(map[string]string),
	}
}

// Start launches a job for the visitor. A visitor runs one job at a time.
func (m *Manager) Start(req Request) (*Job, error) {
	if len(req.Files) == 0 {
		return nil, ErrNoFiles
	}

	m.mu.Lock()
	if id, ok := m.bySession[req.SessionID]; ok {
		m.mu.Unlock()
		return m.jobs[id], ErrBusy
	}
	job := &Job{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		UserID:    req.UserID,
		OrderID:   uuid.NewString(),
		Files:     len(req.Files),
		subs:      make(map[chan Progress]struct{}),
		done:      make(chan struct{}),
	}
	m.jobs[job.ID] = job
	m.bySession[req.SessionID] = job.ID
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(job, req)
	}()

	slog.Info("Upload started", "job_id", job.ID, "session_id", req.SessionID, "files", job.Files)
	return job, nil
}

func (m *Manager) run(job *Job, req Request) {
	final := Progress{Percent: 100, Done: true}
	defer func() {
		job.finish(final)

		m.mu.Lock()
		delete(m.bySession, job.SessionID)
		m.mu.Unlock()

		time.AfterFunc(m.opts.Retain, func() {
			m.mu.Lock()
			delete(m.jobs, job.ID)
			m.mu.Unlock()
		})
	}()

	ctx := m.ctx

	var keys []string
	if m.opts.Presign {
		var err error
		keys, err = m.push(ctx, job, req)
		if err != nil {
			slog.Error("Upload failed", "job_id", job.ID, "error", err)
			final = Progress{Percent: job.Snapshot().Percent, Done: true, Error: "Erreur lors de l'envoi des photos"}
			return
		}
	}

	ticker := time.NewTicker(m.opts.Tick)
	defer ticker.Stop()

	percent := 0
	for percent < 100 {
		select {
		case <-ctx.Done():
			final = Progress{Percent: percent, Done: true, Error: "Envoi interrompu"}
			return
		case <-ticker.C:
			percent = min(percent+m.opts.Step, 100)
			job.publish(Progress{Percent: percent, Keys: keys})
		}
	}

	imageURL := ""
	if len(keys) > 0 {
		imageURL = keys[0]
	}
	item := storefront.NewPrintItem(job.Files, imageURL)

	if m.onComplete != nil {
		if err := m.onComplete(ctx, job, item); err != nil {
			slog.Error("Upload completion failed", "job_id", job.ID, "error", err)
			final = Progress{Percent: 100, Done: true, Error: "Impossible d'ajouter les tirages au panier", Keys: keys}
			return
		}
	}

	final = Progress{Percent: 100, Done: true, Item: &item, Keys: keys}
	slog.Info("Upload finished", "job_id", job.ID, "files", job.Files)
}

// push sends every file to its presigned URL.
func (m *Manager) push(ctx context.Context, job *Job, req Request) ([]string, error) {
	keys := make([]string, 0, len(req.Files))
	for _, f := range req.Files {
		up, err := m.presigner.GenerateUploadURL(ctx, req.Credentials, models.GeneratePresignedURLDto{
			UserID:       job.UserID,
			OrderID:      job.OrderID,
			FileType:     f.ContentType,
			OriginalName: f.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("presigning %s: %w", f.Name, err)
		}
		if err := m.presigner.PutObject(ctx, up.UploadURL, f.ContentType, bytes.NewReader(f.Data), int64(len(f.Data))); err != nil {
			return nil, fmt.Errorf("uploading %s: %w", f.Name, err)
		}
		keys = append(keys, up.Key)
	}
	return keys, nil
}

// Reconcile settles the job a visitor's state still waits for. A page that
// loaded the state before the completion stored its prints, then saved it,
// has dropped them; the finished job puts them back. Failures surface as a
// toast.
func (m *Manager) Reconcile(st *storefront.State) {
	if st.UploadJobID == "" {
		return
	}
	job, ok := m.Get(st.UploadJobID)
	if !ok {
		slog.Warn("Upload job expired", "job_id", st.UploadJobID)
		st.UploadJobID = ""
		return
	}
	p := job.Snapshot()
	if !p.Done {
		return
	}
	switch {
	case p.Error != "":
		st.Notify(p.Error, storefront.NotifyError)
		st.UploadJobID = ""
	case p.Item != nil:
		st.UploadFinished(job.ID, job.OrderID, *p.Item)
	default:
		st.UploadJobID = ""
	}
}

func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	return job, ok
}

// Discard removes the stored files of a draft order.
func (m *Manager) Discard(ctx context.Context, creds map[string]string, userID, orderID string) error {
	if !m.opts.Presign || orderID == "" {
		return nil
	}
	_, err := m.presigner.DeleteOrderFiles(ctx, creds, userID, orderID)
	return err
}

// Close stops running jobs and waits for them.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// Wait blocks until every started job has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}
