// Package ratelimit implements the Rate Limiter (C5): per-(scope, identity) token buckets, with
// an optional KVStore-backed distributed counter that fails open on backing-store error.
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"toolplane/internal/kv"
)

// Scope is one of the two bucket dimensions a request is checked against.
type Scope string

const (
	ScopePerMinute Scope = "per_minute"
	ScopePerHour   Scope = "per_hour"
)

// Decision is the outcome of a rate check, mirroring the (capacity, remaining, reset) shape
// reported to clients and to the Metrics middleware stage.
type Decision struct {
	Allowed    bool
	Scope      Scope
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// BucketConfig is the capacity/refill pair for one scope.
type BucketConfig struct {
	Capacity   int
	RefillRate float64 // tokens per second
}

// Limiter admits a request iff every configured scope's bucket, keyed by identity, has at least
// one token. Buckets are created lazily and held in a sync.Map, one *rate.Limiter per (scope,
// identity) pair — grounded on qazna-org-qazna.org's per-IP bucket map in
// internal/httpapi/middleware.go's RateLimit, generalized from a single bucket to the two
// per_minute/per_hour scopes spec.md §4.5 requires, and guarded with a real mutex per bucket
// (the teacher's own map access there is unsynchronized against its reaper goroutine).
type Limiter struct {
	buckets map[Scope]BucketConfig

	mu    sync.Mutex
	local map[string]*rate.Limiter

	kv     kv.Store // optional; nil disables distributed counting
	ttlPad time.Duration
}

// New returns a Limiter with in-memory-only buckets for buckets.
func New(buckets map[Scope]BucketConfig) *Limiter {
	return &Limiter{
		buckets: buckets,
		local:   make(map[string]*rate.Limiter),
	}
}

// WithDistributed attaches a KVStore for distributed counting via atomic_incr_with_expiry. On
// any KVStore error, Allow falls back to the in-memory bucket for that request (fail open) and
// logs a warning, per spec.md §4.5.
func (l *Limiter) WithDistributed(store kv.Store) *Limiter {
	l.kv = store
	return l
}

func (l *Limiter) bucketFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.local[key]
	if !ok {
		cfg := l.buckets[scopeFromKey(key)]
		b = rate.NewLimiter(rate.Limit(cfg.RefillRate), cfg.Capacity)
		l.local[key] = b
	}
	return b
}

func scopeFromKey(key string) Scope {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			return Scope(key[i+1:])
		}
	}
	return ""
}

func bucketKey(identity string, scope Scope) string {
	return fmt.Sprintf("%s|%s", identity, scope)
}

// Allow checks identity against every configured scope and returns the most-constrained
// Decision (the first scope denied, or, if all admit, the scope with the least remaining
// headroom). A request is admitted only if every scope admits it.
func (l *Limiter) Allow(ctx context.Context, identity string) Decision {
	var mostConstrained Decision
	mostConstrained.Allowed = true

	for scope, cfg := range l.buckets {
		d := l.allowScope(ctx, identity, scope, cfg)
		if !d.Allowed {
			return d
		}
		if mostConstrained.Limit == 0 || d.Remaining < mostConstrained.Remaining {
			mostConstrained = d
		}
	}
	return mostConstrained
}

func (l *Limiter) allowScope(ctx context.Context, identity string, scope Scope, cfg BucketConfig) Decision {
	key := bucketKey(identity, scope)

	if l.kv != nil {
		count, err := l.kv.IncrWithExpiry(ctx, "ratelimit:"+key, scopeWindow(scope))
		if err != nil {
			log.Printf("ratelimit: kv store unavailable for %s, failing open to local bucket: %v", key, err)
		} else {
			remaining := cfg.Capacity - int(count)
			if remaining < 0 {
				remaining = 0
			}
			return Decision{
				Allowed:    int(count) <= cfg.Capacity,
				Scope:      scope,
				Limit:      cfg.Capacity,
				Remaining:  remaining,
				RetryAfter: scopeWindow(scope),
			}
		}
	}

	b := l.bucketFor(key)
	r := b.ReserveN(time.Now(), 1)
	if !r.OK() {
		return Decision{Allowed: false, Scope: scope, Limit: cfg.Capacity}
	}
	delay := r.Delay()
	if delay > 0 {
		r.Cancel()
		return Decision{Allowed: false, Scope: scope, Limit: cfg.Capacity, RetryAfter: delay}
	}
	return Decision{Allowed: true, Scope: scope, Limit: cfg.Capacity, Remaining: int(b.Tokens())}
}

func scopeWindow(scope Scope) time.Duration {
	switch scope {
	case ScopePerMinute:
		return time.Minute
	case ScopePerHour:
		return time.Hour
	default:
		return time.Minute
	}
}
