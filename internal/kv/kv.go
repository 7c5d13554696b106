// Package kv implements the KVStore capability (spec §6): a get/set/delete/scan store with TTL
// semantics and an atomic increment-with-expiry primitive, used by the Session Store, the Rate
// Limiter's optional distributed mode, and the Result Cache.
package kv

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store is the KVStore capability interface.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Scan(ctx context.Context, prefix string) ([]string, error)
	// IncrWithExpiry atomically increments key's counter, resetting it to 1 if absent or expired,
	// and returns the post-increment count. The expiry resets on every increment.
	IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type entry struct {
	value     []byte
	count     int64
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// InMemory is a process-local Store backed by a mutex-guarded map, with a background reaper that
// periodically sweeps expired entries. Suitable for the minimal profile and for tests.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]entry
}

// NewInMemory returns an empty InMemory store.
func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]entry)}
}

func (s *InMemory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.expired(time.Now().UTC()) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *InMemory) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().UTC().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *InMemory) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *InMemory) Scan(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var keys []string
	for k, e := range s.entries {
		if e.expired(now) {
			continue
		}
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *InMemory) IncrWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	e, ok := s.entries[key]
	if !ok || e.expired(now) {
		e = entry{}
		if ttl > 0 {
			e.expiresAt = now.Add(ttl)
		}
	}
	e.count++
	s.entries[key] = e
	return e.count, nil
}

// Reap deletes every expired entry. Intended to be called from a ticker loop (see
// ratelimit/cache callers' reaper goroutines); never required for correctness since Get/Scan
// already filter expired entries, only for bounding memory.
func (s *InMemory) Reap() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	removed := 0
	for k, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}
