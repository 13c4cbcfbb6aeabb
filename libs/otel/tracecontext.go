package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	keyTraceparent = "traceparent"
	keyTracestate  = "tracestate"
)

// TraceContextStrings captures the active span as W3C strings so it can be
// stored next to an outbox row and restored when the row is published.
func TraceContextStrings(ctx context.Context) (traceparent string, tracestate string) {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier[keyTraceparent], carrier[keyTracestate]
}

// ContextWithTraceContext is the inverse of TraceContextStrings. Empty input
// returns ctx unchanged.
func ContextWithTraceContext(ctx context.Context, traceparent string, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{keyTraceparent: traceparent}
	if tracestate != "" {
		carrier[keyTracestate] = tracestate
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
