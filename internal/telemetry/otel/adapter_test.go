package otel

import (
	"context"
	"testing"
	"time"
)

func TestObserver_EmitMethodsDoNotPanicWithNoopProviders(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, "", "test-service")
	if err != nil {
		t.Fatalf("NewProviders: %v", err)
	}
	o := NewObserver(providers)

	o.EmitSpan(ctx, "tools/call", map[string]interface{}{"tool": "search_web"}, 5*time.Millisecond)
	o.EmitError(ctx, "AuthenticationError", "invalid credentials", map[string]interface{}{"request_id": "r1"})
	o.EmitCounter(ctx, "requests_total", map[string]string{"method": "tools/call"}, 1)
	// Second call exercises the counter cache path.
	o.EmitCounter(ctx, "requests_total", map[string]string{"method": "tools/call"}, 1)
}
