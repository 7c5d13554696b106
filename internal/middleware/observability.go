package middleware

import (
	"context"
	"time"

	"github.com/google/uuid"

	"toolplane/internal/apperr"
	"toolplane/internal/jsonrpc"
	"toolplane/internal/telemetry"
)

// Observability attaches a request id (reusing an inbound X-Request-Id propagated via ctx by the
// HTTP adapter, or minting one) and times the whole request, emitting a span through the Observer
// capability on the way out. Grounded on the teacher's TelemetryUnary, which times the RPC and
// emits a best-effort event after handler returns; generalized from a fire-and-forget goroutine
// writing to a telemetry producer into a call through the Observer capability (spec.md §6).
func Observability(observer telemetry.Observer) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
			if GetRequestID(ctx) == "" {
				ctx = WithRequestID(ctx, uuid.NewString())
			}
			start := time.Now()
			resp, err := next(ctx, req)
			attrs := map[string]interface{}{"request_id": GetRequestID(ctx)}
			if err != nil {
				attrs["error_kind"] = string(err.Kind)
			}
			observer.EmitSpan(ctx, req.Method, attrs, time.Since(start))
			return resp, err
		}
	}
}
