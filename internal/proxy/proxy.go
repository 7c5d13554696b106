// Package proxy implements the Gateway Proxy (C9): the Gateway's public-facing HTTP handler,
// which terminates client bearer credentials, rewrites them to an internal trust token plus
// structured principal headers, and forwards the JSON-RPC call to the Tool Server.
//
// net/http/httputil.ReverseProxy is the one piece of this module left on the standard library:
// none of the pack's HTTP stacks (chi included) ship a reverse-proxying helper, so there is no
// third-party alternative to reach for here.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"toolplane/internal/apperr"
	"toolplane/internal/credential"
	"toolplane/internal/jsonrpc"
	"toolplane/internal/middleware"
)

// Verifier resolves a bearer credential to the principal it represents. Satisfied by
// *credential.Service; a missing or invalid token is never treated as a failure here — the
// Gateway forwards the call anonymous and lets the Tool Server's Authorization stage decide,
// mirroring middleware.Authentication's stance that only Authorization denies (internal/middleware/auth.go).
type Verifier interface {
	VerifyAccess(token string) (*credential.Principal, error)
}

// Proxy is the Gateway's reverse-proxy-shaped forwarding handler.
type Proxy struct {
	target     *url.URL
	trustToken string
	verifier   Verifier
	rp         *httputil.ReverseProxy
}

// New builds a Proxy forwarding to targetURL, authenticating inbound bearer credentials with
// verifier and attaching trustToken as the internal trust header on every forwarded request.
func New(targetURL, trustToken string, verifier Verifier) (*Proxy, error) {
	target, err := url.Parse(targetURL)
	if err != nil {
		return nil, err
	}
	p := &Proxy{target: target, trustToken: trustToken, verifier: verifier}
	p.rp = &httputil.ReverseProxy{
		Director:     p.director,
		ErrorHandler: p.errorHandler,
		// Negative FlushInterval flushes after every write, relaying streamed tool responses
		// (spec.md §4.9: "streaming responses from Tool Server are relayed transparently").
		FlushInterval: -1,
	}
	return p, nil
}

type contextKey struct{ name string }

var envelopeIDKey contextKey = contextKey{"envelope_id"}

// ServeHTTP authenticates the caller, attaches request id and principal to context for director
// to translate into headers, and delegates the actual forwarding to the wrapped ReverseProxy.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		p.writeGatewayError(w, nil, apperr.Gateway("failed to read request body", err))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	var envelope jsonrpc.Request
	_ = json.Unmarshal(body, &envelope) // best effort; malformed bodies still forward and fail Validation downstream

	reqID := r.Header.Get("X-Request-Id")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	ctx := middleware.WithRequestID(r.Context(), reqID)
	ctx = context.WithValue(ctx, envelopeIDKey, envelope.ID)

	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		if principal, err := p.verifier.VerifyAccess(token); err == nil {
			ctx = middleware.WithPrincipal(ctx, *principal)
		}
	}

	p.rp.ServeHTTP(w, r.WithContext(ctx))
}

// director rewrites the outbound request to target the Tool Server, replacing the client's
// bearer credential with the internal trust token and structured principal headers, per
// spec.md §4.9.
func (p *Proxy) director(req *http.Request) {
	req.URL.Scheme = p.target.Scheme
	req.URL.Host = p.target.Host
	req.URL.Path = p.target.Path
	req.Host = p.target.Host

	req.Header.Del("Authorization")
	req.Header.Set("X-Internal-Trust-Token", p.trustToken)
	req.Header.Set("X-Request-Id", middleware.GetRequestID(req.Context()))

	if principal, ok := middleware.GetPrincipal(req.Context()); ok {
		req.Header.Set("X-Principal-Id", principal.UserID)
		req.Header.Set("X-Principal-Roles", strings.Join(principal.Roles, ","))
	}
	// traceparent, if the client sent one, passes through untouched.
}

// errorHandler maps a connection failure against the Tool Server to a GatewayError, never
// leaking the upstream address to the client (spec.md §4.9).
func (p *Proxy) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("gateway proxy: upstream request failed: %v", err)
	id, _ := r.Context().Value(envelopeIDKey).(json.RawMessage)
	p.writeGatewayError(w, id, apperr.Gateway("tool server unavailable", err))
}

func (p *Proxy) writeGatewayError(w http.ResponseWriter, id json.RawMessage, appErr *apperr.Error) {
	resp := jsonrpc.Failure(id, appErr)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.HTTPStatus())
	_ = json.NewEncoder(w).Encode(resp)
}

// bearerToken extracts the raw token from a "Bearer <token>" Authorization header value.
func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return header[len(prefix):]
}
