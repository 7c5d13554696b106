package middleware

import (
	"context"

	"toolplane/internal/apperr"
	"toolplane/internal/jsonrpc"
	"toolplane/internal/telemetry"
)

// Metrics increments a request counter tagged by method and outcome through the Observer
// capability's EmitCounter, generalized from the teacher's TelemetryUnary (which logs one
// TelemetryEvent per RPC) into a dedicated counter emission separate from the Observability
// stage's span, matching spec.md §4.6 listing Metrics as its own pipeline position.
func Metrics(observer telemetry.Observer) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
			resp, err := next(ctx, req)
			outcome := "ok"
			if err != nil {
				outcome = string(err.Kind)
			}
			observer.EmitCounter(ctx, "requests_total", map[string]string{
				"method":  req.Method,
				"outcome": outcome,
			}, 1)
			return resp, err
		}
	}
}
