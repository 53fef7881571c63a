package ratelimit

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	count     int64
	expiresAt time.Time
}

// MemoryStore is an in-process WindowStore. Suitable for a single
// dispatcher process; use the Redis store when several processes share
// a channel quota.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an in-memory window store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Reserve(ctx context.Context, key string, quota int64, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key, ttl)
	if e.count >= quota {
		return false, nil
	}
	e.count++
	return true, nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(key, ttl)
	e.count++
	return e.count, nil
}

func (s *MemoryStore) Count(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || s.now().After(e.expiresAt) {
		return 0, nil
	}
	return e.count, nil
}

// entry must be called with the lock held. Expired entries are
// dropped opportunistically; window keys embed the window start, so
// stale keys are never read again anyway.
func (s *MemoryStore) entry(key string, ttl time.Duration) *memoryEntry {
	e, ok := s.entries[key]
	if !ok || s.now().After(e.expiresAt) {
		e = &memoryEntry{expiresAt: s.now().Add(2 * ttl)}
		s.entries[key] = e
		s.sweep()
	}
	return e
}

// sweep must be called with the lock held
func (s *MemoryStore) sweep() {
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
