package exportapi

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-sqlexport/export"
)

// IdempotencyStore remembers which run an Idempotency-Key produced.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, exportID string, ttl time.Duration) error
}

// MemoryIdempotencyStore keeps keys in memory until they expire.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[string]idempotencyEntry
	clock   func() time.Time
}

type idempotencyEntry struct {
	exportID  string
	expiresAt time.Time
}

// NewMemoryIdempotencyStore creates an in-memory store.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{entries: make(map[string]idempotencyEntry), clock: time.Now}
}

// Get returns the export ID stored for key. Expired entries are dropped.
func (s *MemoryIdempotencyStore) Get(_ context.Context, key string) (string, bool, error) {
	if s == nil {
		return "", false, export.NewError(export.KindInternal, "idempotency store is nil", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !entry.expiresAt.IsZero() && s.clock().After(entry.expiresAt) {
		delete(s.entries, key)
		return "", false, nil
	}
	return entry.exportID, true, nil
}

// Set stores the export ID for key. A non-positive ttl never expires.
func (s *MemoryIdempotencyStore) Set(_ context.Context, key, exportID string, ttl time.Duration) error {
	if s == nil {
		return export.NewError(export.KindInternal, "idempotency store is nil", nil)
	}
	if key == "" || exportID == "" {
		return export.NewError(export.KindConfiguration, "idempotency key and export ID are required", nil)
	}
	entry := idempotencyEntry{exportID: exportID}
	if ttl > 0 {
		entry.expiresAt = s.clock().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}
