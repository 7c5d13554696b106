package middleware

import (
	"context"
	"encoding/json"
	"testing"

	"toolplane/internal/apperr"
	"toolplane/internal/jsonrpc"
)

func okHandler(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
	return jsonrpc.Success(req.ID, "ok"), nil
}

func failHandler(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
	return nil, apperr.Internal("boom", nil)
}

func markerStage(name string, order *[]string) Stage {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, *apperr.Error) {
			*order = append(*order, name+":in")
			resp, err := next(ctx, req)
			*order = append(*order, name+":out")
			return resp, err
		}
	}
}

func TestPipeline_RunsStagesInOrder(t *testing.T) {
	var order []string
	p := New(okHandler, markerStage("a", &order), markerStage("b", &order))

	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	resp := p.Handle(context.Background(), req)

	if resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}
	want := []string{"a:in", "b:in", "b:out", "a:out"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
}

func TestPipeline_Handle_CollapsesStrayErrorWhenErrorHandlerOmitted(t *testing.T) {
	p := New(failHandler)

	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	resp := p.Handle(context.Background(), req)

	if resp.Error == nil {
		t.Fatal("expected an error response")
	}
	wantCode := apperr.Internal("", nil).Code()
	if resp.Error.Code != wantCode {
		t.Errorf("code = %d, want %d", resp.Error.Code, wantCode)
	}
}

func TestAssemble_OmitsDisabledStages(t *testing.T) {
	noop := func(next Handler) Handler { return next }
	stages := Assemble(ProfileStages{
		Observability:  noop,
		ErrorHandler:   noop,
		RequestLogging: noop,
		Validation:     noop,
		Authentication: noop,
		Authorization:  noop,
		RateLimit:      noop,
		Metrics:        noop,
		Cache:          noop,
	}, Enabled{Auth: false, Cache: false, RateLimit: false, Metrics: false, Validation: false})

	// Observability, ErrorHandler, RequestLogging, Authorization are never omitted: 4 stages.
	if len(stages) != 4 {
		t.Errorf("len(stages) = %d, want 4", len(stages))
	}
}

func TestAssemble_IncludesEnabledStages(t *testing.T) {
	noop := func(next Handler) Handler { return next }
	stages := Assemble(ProfileStages{
		Observability:  noop,
		ErrorHandler:   noop,
		RequestLogging: noop,
		Validation:     noop,
		Authentication: noop,
		Authorization:  noop,
		RateLimit:      noop,
		Metrics:        noop,
		Cache:          noop,
	}, Enabled{Auth: true, Cache: true, RateLimit: true, Metrics: true, Validation: true})

	if len(stages) != 9 {
		t.Errorf("len(stages) = %d, want 9", len(stages))
	}
}
