package idempotency

import (
	"context"
	"sync"
	"time"

	redisadapter "github.com/robertarktes/ticket-storefront/internal/adapters/redis"
)

const (
	minKeyLen = 16
	maxKeyLen = 128
)

type Response struct {
	Status int
	Body   []byte
}

type Backend interface {
	Get(ctx context.Context, key string) (*Response, error)
	Set(ctx context.Context, key string, resp Response, ttl time.Duration) error
}

// Idempotency remembers the first response produced for a client key. Keys
// are scoped per owner so two users can never replay each other's results.
type Idempotency struct {
	backend Backend
	ttl     time.Duration
}

func NewIdempotency(backend Backend, ttl time.Duration) *Idempotency {
	return &Idempotency{backend: backend, ttl: ttl}
}

// ValidKey reports whether key is acceptable as an Idempotency-Key.
func ValidKey(key string) bool {
	if len(key) < minKeyLen || len(key) > maxKeyLen {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] < 0x21 || key[i] > 0x7e {
			return false
		}
	}
	return true
}

func (i *Idempotency) Get(ctx context.Context, ownerID, key string) (*Response, error) {
	return i.backend.Get(ctx, scoped(ownerID, key))
}

func (i *Idempotency) Set(ctx context.Context, ownerID, key string, resp Response) error {
	return i.backend.Set(ctx, scoped(ownerID, key), resp, i.ttl)
}

func scoped(ownerID, key string) string {
	return ownerID + ":" + key
}

type redisBackend struct {
	redis *redisadapter.Idempotency
}

func FromRedis(redis *redisadapter.Idempotency) Backend {
	return &redisBackend{redis: redis}
}

func (b *redisBackend) Get(ctx context.Context, key string) (*Response, error) {
	resp, err := b.redis.Get(ctx, key)
	if err != nil || resp == nil {
		return nil, err
	}
	return &Response{Status: resp.Status, Body: resp.Body}, nil
}

func (b *redisBackend) Set(ctx context.Context, key string, resp Response, ttl time.Duration) error {
	return b.redis.Set(ctx, key, redisadapter.IdempResponse{Status: resp.Status, Body: resp.Body}, ttl)
}

type memoryEntry struct {
	resp    Response
	expires time.Time
}

// MemoryBackend keeps responses in process. It backs the memory storage
// driver and tests.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryBackend) Get(ctx context.Context, key string) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return nil, nil
	}
	resp := Response{Status: e.resp.Status, Body: append([]byte(nil), e.resp.Body...)}
	return &resp, nil
}

func (m *MemoryBackend) Set(ctx context.Context, key string, resp Response, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && !m.now().After(e.expires) {
		return nil
	}
	m.entries[key] = memoryEntry{
		resp:    Response{Status: resp.Status, Body: append([]byte(nil), resp.Body...)},
		expires: m.now().Add(ttl),
	}
	return nil
}
