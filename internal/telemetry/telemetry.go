// Package telemetry defines the Observer capability (spec §6): emit_span, emit_error, and
// emit_counter, with a no-op implementation for the minimal/auth_only profiles and an
// OpenTelemetry-backed one (internal/telemetry/otel) for full.
package telemetry

import (
	"context"
	"time"
)

// Observer is the capability every middleware stage and service reports through. A no-op
// implementation is acceptable per spec §6.
type Observer interface {
	EmitSpan(ctx context.Context, name string, attributes map[string]interface{}, duration time.Duration)
	EmitError(ctx context.Context, kind string, message string, attributes map[string]interface{})
	EmitCounter(ctx context.Context, name string, tags map[string]string, delta int64)
}

// Noop discards every call. Used by profiles that disable observability (spec §6).
type Noop struct{}

func (Noop) EmitSpan(context.Context, string, map[string]interface{}, time.Duration) {}
func (Noop) EmitError(context.Context, string, string, map[string]interface{})       {}
func (Noop) EmitCounter(context.Context, string, map[string]string, int64)           {}
