package otel

import (
	"context"
	"testing"
)

func TestNewProviders_EmptyEndpointIsNoop(t *testing.T) {
	ctx := context.Background()
	providers, err := NewProviders(ctx, "", "test-service")
	if err != nil {
		t.Fatalf("NewProviders empty endpoint: %v", err)
	}
	if providers.TracerProvider == nil || providers.MeterProvider == nil || providers.LoggerProvider == nil {
		t.Fatal("expected no-op providers to be non-nil")
	}
	if err := providers.Shutdown(ctx); err != nil {
		t.Errorf("shutdown should be a no-op for empty endpoint, got: %v", err)
	}
}

func TestNewProviders_InvalidEndpoint(t *testing.T) {
	ctx := context.Background()
	if _, err := NewProviders(ctx, "://not-a-url", "test-service"); err == nil {
		t.Fatal("expected error for malformed endpoint")
	}
}
