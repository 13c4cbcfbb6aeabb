package kafkax

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestEventMetaHeaders(t *testing.T) {
	headers := EventMeta{EventID: "e-1", EventType: "booking.created.v1"}.Headers()
	assert.Equal(t, "e-1", HeaderValue(headers, HeaderEventID))
	assert.Equal(t, "booking.created.v1", HeaderValue(headers, HeaderEventType))
	assert.Empty(t, HeaderValue(headers, "traceparent"))
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, SplitBrokers(""))
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, EventMeta{EventID: "e-1", EventType: "t"}.Headers())
	assert.NotEmpty(t, HeaderValue(headers, "traceparent"))

	out := otel.GetTextMapPropagator().Extract(context.Background(), &headerCarrier{headers: headers})
	assert.Equal(t, traceID, trace.SpanContextFromContext(out).TraceID())
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	assert.Error(t, ReadyCheck(nil)(context.Background()))
}
