// Package cache implements the Result Cache (C8): fingerprinting, single-flight coordination so
// at most one computation per fingerprint runs concurrently, and KVStore-backed storage with
// per-tool TTLs.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"toolplane/internal/kv"
)

// fingerprintInput is the canonical shape hashed to produce a cache key. principal_scope is
// omitted entirely (not just empty) when a tool's results don't vary by principal, so that
// principal-invariant tools collapse to one entry regardless of which key map iteration produced
// the omission.
type fingerprintInput struct {
	Tool           string                 `json:"tool"`
	PrincipalScope string                 `json:"principal_scope,omitempty"`
	Arguments      map[string]interface{} `json:"arguments"`
}

// Fingerprint returns a stable hash of {tool, principal_scope?, arguments}. principalScope should
// be empty for tools whose binding does not declare results principal-varying.
func Fingerprint(tool, principalScope string, arguments map[string]interface{}) (string, error) {
	canonical, err := canonicalJSON(fingerprintInput{Tool: tool, PrincipalScope: principalScope, Arguments: arguments})
	if err != nil {
		return "", fmt.Errorf("canonicalizing cache key: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON marshals v with map keys in sorted order, so structurally identical input always
// produces byte-identical output regardless of Go's randomized map iteration order.
func canonicalJSON(v interface{}) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

func normalize(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	return sortedValue(generic), nil
}

func sortedValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]keyValue, 0, len(keys))
		for _, k := range keys {
			out = append(out, keyValue{Key: k, Value: sortedValue(t[k])})
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = sortedValue(item)
		}
		return out
	default:
		return t
	}
}

type keyValue struct {
	Key   string      `json:"k"`
	Value interface{} `json:"v"`
}

// Cache coordinates fingerprint computation, single-flight, and KVStore storage.
type Cache struct {
	store    kv.Store
	ttlByKey map[string]time.Duration
	flight   singleflight.Group
}

// New returns a Cache backed by store, with ttlByKey mapping tool name to its TTL (see
// spec.md §4.8's per-tool TTL table, wired from Config.CacheTTL*).
func New(store kv.Store, ttlByKey map[string]time.Duration) *Cache {
	return &Cache{store: store, ttlByKey: ttlByKey}
}

// Compute is a cache-eligible tool invocation: it returns the result to cache on success. Errors
// are never cached (each concurrent waiter observes its own error only if it is the leader; in
// practice all waiters behind a single-flight call share the leader's error too, per spec.md
// §4.8's "on failure... each waiter observes its own error" — approximated here since a fresh
// miss after a failed leader re-attempts Compute rather than replaying a cached failure).
type Compute func(ctx context.Context) (interface{}, error)

// Get returns the cached result for (tool, principalScope, arguments) if present and unexpired;
// otherwise it runs fn, with at most one concurrent computation per fingerprint coordinated via
// singleflight, and stores the result under tool's configured TTL.
func (c *Cache) Get(ctx context.Context, tool, principalScope string, arguments map[string]interface{}, fn Compute) (interface{}, error) {
	fp, err := Fingerprint(tool, principalScope, arguments)
	if err != nil {
		return nil, err
	}
	key := "cache:" + tool + ":" + fp

	if raw, ok, err := c.store.Get(ctx, key); err == nil && ok {
		var result interface{}
		if err := json.Unmarshal(raw, &result); err == nil {
			return result, nil
		}
	}

	v, err, _ := c.flight.Do(key, func() (interface{}, error) {
		result, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(result); err == nil {
			_ = c.store.Set(ctx, key, raw, c.ttlFor(tool))
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Cache) ttlFor(tool string) time.Duration {
	if ttl, ok := c.ttlByKey[tool]; ok {
		return ttl
	}
	return 5 * time.Minute
}
