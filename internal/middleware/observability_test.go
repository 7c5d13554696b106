package middleware

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"toolplane/internal/apperr"
	"toolplane/internal/jsonrpc"
)

type recordingObserver struct {
	spans []string
}

func (r *recordingObserver) EmitSpan(ctx context.Context, name string, attributes map[string]interface{}, duration time.Duration) {
	r.spans = append(r.spans, name)
}
func (r *recordingObserver) EmitError(ctx context.Context, kind string, message string, attributes map[string]interface{}) {
}
func (r *recordingObserver) EmitCounter(ctx context.Context, name string, tags map[string]string, delta int64) {
}

func TestObservability_AssignsRequestIDWhenUnset(t *testing.T) {
	observer := &recordingObserver{}
	var gotID string
	handler := Observability(observer)(func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
		gotID = GetRequestID(ctx)
		return jsonrpc.Success(req.ID, nil), nil
	})
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	if _, err := handler(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID == "" {
		t.Error("expected a minted request id")
	}
	if len(observer.spans) != 1 || observer.spans[0] != "tools/list" {
		t.Errorf("spans = %v, want [tools/list]", observer.spans)
	}
}

func TestObservability_PreservesExistingRequestID(t *testing.T) {
	observer := &recordingObserver{}
	var gotID string
	handler := Observability(observer)(func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
		gotID = GetRequestID(ctx)
		return jsonrpc.Success(req.ID, nil), nil
	})
	ctx := WithRequestID(context.Background(), "preset-id")
	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	if _, err := handler(ctx, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotID != "preset-id" {
		t.Errorf("gotID = %q, want %q", gotID, "preset-id")
	}
}
