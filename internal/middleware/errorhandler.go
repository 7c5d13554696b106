package middleware

import (
	"context"

	"toolplane/internal/apperr"
	"toolplane/internal/jsonrpc"
)

// ErrorHandler is the only stage that converts a propagated *apperr.Error into a Response: it
// calls next and, on a non-nil error, maps it through jsonrpc.Failure and swallows the error so
// stages above it (Request Logging, Observability) see a normal Response. Every other stage
// passes a non-nil error straight through without inspecting it, per spec.md §4.6: "Error
// Handler... catches structured errors and maps to JSON-RPC error objects."
func ErrorHandler() Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
			resp, err := next(ctx, req)
			if err != nil {
				return jsonrpc.Failure(req.ID, err), nil
			}
			return resp, nil
		}
	}
}
