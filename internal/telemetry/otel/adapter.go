package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"toolplane/internal/telemetry"
)

// Observer implements telemetry.Observer over OpenTelemetry providers, adapted from the
// teacher's otelEmitter (internal/telemetry/otel/adapter.go), which emits one kind of event
// (a TelemetryEvent as an OTel log record); generalized to the three Observer capability methods
// spec §6 names, routing spans through the TracerProvider, errors through the LoggerProvider, and
// counters through the MeterProvider instead of funneling everything through one log record.
type Observer struct {
	tracer   trace.Tracer
	logger   otellog.Logger
	meter    metric.Meter
	counters map[string]metric.Int64Counter
}

// NewObserver returns an Observer backed by p. If p is nil, use telemetry.Noop{} instead.
func NewObserver(p *Providers) *Observer {
	return &Observer{
		tracer:   p.TracerProvider.Tracer("toolplane"),
		logger:   p.LoggerProvider.Logger("toolplane"),
		meter:    p.MeterProvider.Meter("toolplane"),
		counters: make(map[string]metric.Int64Counter),
	}
}

var _ telemetry.Observer = (*Observer)(nil)

func (o *Observer) EmitSpan(ctx context.Context, name string, attributes map[string]interface{}, duration time.Duration) {
	_, span := o.tracer.Start(ctx, name)
	defer span.End()
	span.SetAttributes(toAttributes(attributes)...)
	span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
}

func (o *Observer) EmitError(ctx context.Context, kind string, message string, attributes map[string]interface{}) {
	rec := otellog.Record{}
	rec.SetTimestamp(time.Now().UTC())
	rec.SetSeverity(otellog.SeverityError)
	rec.SetBody(otellog.StringValue(message))
	rec.AddAttributes(otellog.String("kind", kind))
	for k, v := range attributes {
		rec.AddAttributes(otellog.String(k, toString(v)))
	}
	o.logger.Emit(ctx, rec)
}

func (o *Observer) EmitCounter(ctx context.Context, name string, tags map[string]string, delta int64) {
	counter, ok := o.counters[name]
	if !ok {
		var err error
		counter, err = o.meter.Int64Counter(name)
		if err != nil {
			return
		}
		o.counters[name] = counter
	}
	var attrs []attribute.KeyValue
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	counter.Add(ctx, delta, metric.WithAttributes(attrs...))
}

func toAttributes(m map[string]interface{}) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(m))
	for k, v := range m {
		attrs = append(attrs, attribute.String(k, toString(v)))
	}
	return attrs
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
