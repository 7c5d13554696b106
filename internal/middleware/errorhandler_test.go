package middleware

import (
	"context"
	"encoding/json"
	"testing"

	"toolplane/internal/jsonrpc"
)

func TestErrorHandler_MapsStructuredErrorToFailureResponse(t *testing.T) {
	stage := ErrorHandler()
	handler := stage(failHandler)

	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`7`), Method: "tools/call"}
	resp, err := handler(context.Background(), req)

	if err != nil {
		t.Fatalf("ErrorHandler should swallow the error, got %v", err)
	}
	if resp.Error == nil {
		t.Fatal("expected resp.Error to be set")
	}
	if string(resp.ID) != `7` {
		t.Errorf("ID = %s, want 7", resp.ID)
	}
}

func TestErrorHandler_PassesThroughSuccess(t *testing.T) {
	stage := ErrorHandler()
	handler := stage(okHandler)

	req := &jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: json.RawMessage(`1`), Method: "tools/list"}
	resp, err := handler(context.Background(), req)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Error != nil {
		t.Errorf("unexpected error response: %+v", resp.Error)
	}
}
