package middleware

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"toolplane/internal/apperr"
	"toolplane/internal/credential"
	"toolplane/internal/jsonrpc"
	"toolplane/internal/ratelimit"
)

type fakeLimiter struct {
	decision   ratelimit.Decision
	gotIdentity string
}

func (f *fakeLimiter) Allow(ctx context.Context, identity string) ratelimit.Decision {
	f.gotIdentity = identity
	return f.decision
}

func TestRateLimit_AllowsAndUsesPrincipalIdentity(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	var ran bool
	handler := RateLimit(limiter)(func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
		ran = true
		return jsonrpc.Success(req.ID, nil), nil
	})
	ctx := WithPrincipal(context.Background(), credential.Principal{UserID: "u1"})
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	if _, err := handler(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ran {
		t.Error("next handler should have run")
	}
	if limiter.gotIdentity != "u1" {
		t.Errorf("identity = %q, want %q", limiter.gotIdentity, "u1")
	}
}

func TestRateLimit_DeniesWithRetryAfter(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: false, Scope: ratelimit.ScopePerMinute, Limit: 60, RetryAfter: 2 * time.Second}}
	handler := RateLimit(limiter)(okHandler)
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	_, err := handler(context.Background(), req)
	if err == nil || err.Kind != apperr.KindRateLimit {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
}

func TestRateLimit_FallsBackToRequestIDForAnonymous(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: true}}
	handler := RateLimit(limiter)(okHandler)
	ctx := WithRequestID(context.Background(), "req-123")
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	if _, err := handler(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limiter.gotIdentity != "req-123" {
		t.Errorf("identity = %q, want %q", limiter.gotIdentity, "req-123")
	}
}
