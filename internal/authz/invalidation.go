package authz

import (
	"context"
	"time"

	"toolplane/internal/kv"
)

// invalidationGlobalKey and invalidationUserPrefix namespace the markers InvalidationStore and
// CacheInvalidator exchange through the shared KVStore. A role-subject grant mutation can affect
// an unbounded set of principals, so it publishes under the global key; a user-subject grant or a
// role assignment publishes under the affected principal's key.
const (
	invalidationGlobalKey  = "authz:invalidated:all"
	invalidationUserPrefix = "authz:invalidated:user:"
)

// InvalidationStore is the read-side capability the Engine needs to detect a cache-invalidation
// marker published by another process's Admin Surface. kv.Store already satisfies it.
type InvalidationStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
}

// CacheInvalidator is the write side the Admin Surface calls after a grant or role mutation, so
// that a Tool Server process holding a cached decision for the affected principal stops trusting
// it before its TTL would otherwise expire (spec.md §4.4's caching clause).
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, userID string) error
	InvalidateAll(ctx context.Context) error
}

// KVPublisher implements CacheInvalidator by writing a timestamp marker through store. ttl must
// be at least the Engine's decision cache TTL, or a marker could expire before every cache entry
// it needs to outlive does.
type KVPublisher struct {
	store kv.Store
	ttl   time.Duration
}

// NewKVPublisher returns a CacheInvalidator backed by store.
func NewKVPublisher(store kv.Store, ttl time.Duration) *KVPublisher {
	return &KVPublisher{store: store, ttl: ttl}
}

func (p *KVPublisher) InvalidateUser(ctx context.Context, userID string) error {
	return p.store.Set(ctx, invalidationUserPrefix+userID, marker(), p.ttl)
}

func (p *KVPublisher) InvalidateAll(ctx context.Context) error {
	return p.store.Set(ctx, invalidationGlobalKey, marker(), p.ttl)
}

func marker() []byte {
	return []byte(time.Now().UTC().Format(time.RFC3339Nano))
}

func markerTime(ctx context.Context, store InvalidationStore, key string) (time.Time, bool) {
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
