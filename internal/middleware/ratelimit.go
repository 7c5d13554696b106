package middleware

import (
	"context"

	"toolplane/internal/apperr"
	"toolplane/internal/jsonrpc"
	"toolplane/internal/ratelimit"
)

// RateLimiter is the subset of the Rate Limiter the stage needs.
type RateLimiter interface {
	Allow(ctx context.Context, identity string) ratelimit.Decision
}

// RateLimit admits or denies a request by identity: the authenticated principal's user id, or,
// for an anonymous caller, the request id minted by Observability — approximating the teacher's
// per-IP bucket key (qazna-org-qazna.org's RateLimit) with per-principal identity now that one
// exists, falling back to a per-request identity only for anonymous public-tool traffic.
func RateLimit(limiter RateLimiter) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
			identity := GetRequestID(ctx)
			if p, ok := GetPrincipal(ctx); ok {
				identity = p.UserID
			}
			decision := limiter.Allow(ctx, identity)
			if !decision.Allowed {
				return nil, apperr.RateLimit("rate limit exceeded", nil).WithData(map[string]interface{}{
					"scope":       string(decision.Scope),
					"limit":       decision.Limit,
					"retry_after": decision.RetryAfter.Seconds(),
				})
			}
			return next(ctx, req)
		}
	}
}
