// Package tracing wraps the global OpenTelemetry tracer. Every helper is safe to call before
// a tracer is configured; spans are then no-ops and trace ids are empty.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

var tracer trace.Tracer

// SetTracer sets the tracer used by StartSpan
func SetTracer(t trace.Tracer) {
	tracer = t
}

// GetActiveSpan returns the recording span on the context, or nil
func GetActiveSpan(ctx context.Context) trace.Span {
	if tracer == nil {
		return nil
	}
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return nil
	}
	return span
}

// StartSpan starts a span named after the calling method, e.g. "fusion.Reconciler.Run"
func StartSpan(ctx context.Context, spanName string) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, spanName)
}

// GetTraceParent returns the W3C traceparent header value for the active span
func GetTraceParent(ctx context.Context) string {
	return traceHeader(ctx, "traceparent")
}

// GetTraceState returns the W3C tracestate header value for the active span
func GetTraceState(ctx context.Context) string {
	return traceHeader(ctx, "tracestate")
}

func traceHeader(ctx context.Context, key string) string {
	if GetActiveSpan(ctx) == nil {
		return ""
	}
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	return carrier.Get(key)
}

// GetTraceID returns the trace id of the active span
func GetTraceID(ctx context.Context) string {
	span := GetActiveSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().TraceID().String()
}

// GetSpanID returns the span id of the active span
func GetSpanID(ctx context.Context) string {
	span := GetActiveSpan(ctx)
	if span == nil {
		return ""
	}
	return span.SpanContext().SpanID().String()
}
