package middleware

import (
	"context"

	"toolplane/internal/apperr"
	"toolplane/internal/jsonrpc"
)

// Handler processes a JSON-RPC request and returns either a response or a structured error for
// the Error Handler stage to map to the JSON-RPC error envelope. Every stage and the final
// dispatch handler share this signature, mirroring grpc.UnaryServerInterceptor's
// (ctx, req, info, handler) -> (resp, err) collapsed to (ctx, req) -> (resp, err) since this
// system has no separate "info" (the method name lives on req itself).
type Handler func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error)

// Stage wraps a Handler with cross-cutting behavior, observing the request on the way in and the
// response (or error) on the way out.
type Stage func(next Handler) Handler

// Pipeline is the composed chain of stages around a final dispatch Handler.
type Pipeline struct {
	entry Handler
}

// New composes stages around final in the given order: stages[0] is outermost (runs first on the
// way in, last on the way out), matching spec.md §4.6's canonical order
// (Observability, Error Handler, Request Logging, Validation, Authentication, Authorization,
// Rate Limit, Metrics, Cache, Dispatch).
func New(final Handler, stages ...Stage) *Pipeline {
	h := final
	for i := len(stages) - 1; i >= 0; i-- {
		h = stages[i](h)
	}
	return &Pipeline{entry: h}
}

// Handle runs the full pipeline for req. If every stage behaved (Error Handler always maps a
// non-nil *apperr.Error to a Response), err is nil; the fallback here only guards against a
// custom profile that omits Error Handler entirely.
func (p *Pipeline) Handle(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	resp, err := p.entry(ctx, req)
	if err != nil {
		return jsonrpc.Failure(req.ID, err)
	}
	return resp
}

// ProfileStages holds one constructed Stage per optional pipeline position. Dispatch is not a
// Stage: it is always the innermost handler, never conditionally present.
type ProfileStages struct {
	Observability  Stage
	ErrorHandler   Stage
	RequestLogging Stage
	Validation     Stage
	Authentication Stage
	Authorization  Stage
	RateLimit      Stage
	Metrics        Stage
	Cache          Stage
}

// Enabled holds the per-stage on/off decisions derived from Config (profile defaults overridden
// by individual Enable* flags).
type Enabled struct {
	Auth        bool
	Cache       bool
	RateLimit   bool
	Metrics     bool
	Validation  bool
	EnhancedLog bool
}

// Assemble builds the ordered []Stage a Pipeline is constructed from, omitting any stage Enabled
// turns off. Error Handler, Observability, Request Logging, and Authorization are never omitted
// (spec.md §4.6: "Error Handler is always present"; Authorization always runs so anonymous
// callers are still denied non-public tools under a profile that disables Authentication).
func Assemble(s ProfileStages, en Enabled) []Stage {
	var stages []Stage
	if s.Observability != nil {
		stages = append(stages, s.Observability)
	}
	if s.ErrorHandler != nil {
		stages = append(stages, s.ErrorHandler)
	}
	if s.RequestLogging != nil {
		stages = append(stages, s.RequestLogging)
	}
	if en.Validation && s.Validation != nil {
		stages = append(stages, s.Validation)
	}
	if en.Auth && s.Authentication != nil {
		stages = append(stages, s.Authentication)
	}
	if s.Authorization != nil {
		stages = append(stages, s.Authorization)
	}
	if en.RateLimit && s.RateLimit != nil {
		stages = append(stages, s.RateLimit)
	}
	if en.Metrics && s.Metrics != nil {
		stages = append(stages, s.Metrics)
	}
	if en.Cache && s.Cache != nil {
		stages = append(stages, s.Cache)
	}
	return stages
}
