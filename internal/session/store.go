package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront/internal/cache"
	"storefront/internal/storefront"
)

var ErrNotFound = errors.New("session not found")

// Store persists visitor state between requests.
type Store interface {
	Load(ctx context.Context, id string) (*storefront.State, error)
	Save(ctx context.Context, id string, st *storefront.State) error
	// Update applies fn atomically to the stored state. fn must not perform
	// I/O: it may run more than once.
	Update(ctx context.Context, id string, fn func(*storefront.State)) error
	Delete(ctx context.Context, id string) error
}

func key(id string) string {
	return fmt.Sprintf("session:%s", id)
}

// RedisStore keeps sessions as JSON in redis with a sliding TTL.
type RedisStore struct {
	client *cache.Client
	ttl    time.Duration
}

func NewRedisStore(client *cache.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, id string) (*storefront.State, error) {
	data, err := s.client.Get(ctx, key(id))
	if errors.Is(err, cache.ErrMiss) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	return decode(data)
}

func (s *RedisStore) Save(ctx context.Context, id string, st *storefront.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	return s.client.Set(ctx, key(id), data, s.ttl)
}

func (s *RedisStore) Update(ctx context.Context, id string, fn func(*storefront.State)) error {
	return s.client.Update(ctx, key(id), s.ttl, func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		st, err := decode(current)
		if err != nil {
			return nil, err
		}
		fn(st)
		return json.Marshal(st)
	})
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Delete(ctx, key(id))
}

func decode(data []byte) (*storefront.State, error) {
	st := storefront.New()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return st, nil
}

// MemoryStore keeps sessions in process memory, for single-instance runs.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Load(ctx context.Context, id string) (*storefront.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.get(id)
	if !ok {
		return nil, ErrNotFound
	}
	return decode(data)
}

func (s *MemoryStore) get(id string) ([]byte, bool) {
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if s.now().After(e.expires) {
		delete(s.entries, id)
		return nil, false
	}
	return e.data, true
}

func (s *MemoryStore) Save(ctx context.Context, id string, st *storefront.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = memoryEntry{data: data, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(*storefront.State)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.get(id)
	if !ok {
		return ErrNotFound
	}
	st, err := decode(data)
	if err != nil {
		return err
	}
	fn(st)
	next, err := json.Marshal(st)
	if err != nil {
		return err
	}
	s.entries[id] = memoryEntry{data: next, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}
