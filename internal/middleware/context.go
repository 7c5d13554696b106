// Package middleware implements the Middleware Pipeline (C6): ten ordered stages composed once
// at startup from a configuration profile, each translated from the teacher's gRPC unary
// interceptor shape (ctx, req, handler) -> (resp, err) into the same shape over a JSON-RPC
// request, following internal/server/interceptors' AuthUnary/TelemetryUnary/AuditUnary pattern.
package middleware

import (
	"context"

	"toolplane/internal/credential"
)

type contextKey struct{ name string }

var (
	principalKey contextKey = contextKey{"principal"}
	requestIDKey contextKey = contextKey{"request_id"}
	bearerKey    contextKey = contextKey{"bearer_token"}
	trustedKey   contextKey = contextKey{"internally_trusted"}
)

// WithPrincipal returns a context carrying p, generalized from the teacher's
// internal/server/interceptors.WithIdentity(userID, orgID, sessionID) — org/session scoping
// dropped since this system has no multi-tenant org concept (non-goal).
func WithPrincipal(ctx context.Context, p credential.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipal returns the request's principal and true if the Authentication stage attached one.
func GetPrincipal(ctx context.Context) (credential.Principal, bool) {
	p, ok := ctx.Value(principalKey).(credential.Principal)
	return p, ok
}

// WithRequestID returns a context carrying the request id assigned by the Observability stage.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request id, or "" if unset.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithBearerToken returns a context carrying the raw access credential the HTTP adapter extracted
// from the Authorization header, generalized from the teacher's extractBearer (which reads gRPC
// metadata directly inside AuthUnary) — here extraction happens one layer up, in the HTTP
// adapter, since a jsonrpc.Request carries no header map of its own.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey, token)
}

// GetBearerToken returns the raw access credential, or "" if none was presented.
func GetBearerToken(ctx context.Context) string {
	token, _ := ctx.Value(bearerKey).(string)
	return token
}

// WithTrusted marks ctx as originating from a request that already carried a valid internal trust
// token, per spec.md §4.9/§6: the Tool Server trusts a principal attached by the Gateway and skips
// its own Authentication stage.
func WithTrusted(ctx context.Context) context.Context {
	return context.WithValue(ctx, trustedKey, true)
}

// IsTrusted reports whether ctx was marked via WithTrusted.
func IsTrusted(ctx context.Context) bool {
	trusted, _ := ctx.Value(trustedKey).(bool)
	return trusted
}
