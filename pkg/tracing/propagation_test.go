package tracing

import (
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func spanContext(t *testing.T) (context.Context, trace.SpanContext) {
	t.Helper()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return trace.ContextWithSpanContext(context.Background(), sc), sc
}

func TestKafkaHeaders(t *testing.T) {
	ctx, sc := spanContext(t)

	headers := InjectKafkaHeaders(ctx, []kafka.Header{{Key: "event_type", Value: []byte("stock-reserved")}})
	var found bool
	for _, h := range headers {
		if h.Key == TraceparentHeader {
			found = true
		}
	}
	if !found {
		t.Fatalf("traceparent not injected: %v", headers)
	}

	got := trace.SpanContextFromContext(ExtractKafkaHeaders(context.Background(), headers))
	if got.TraceID() != sc.TraceID() || got.SpanID() != sc.SpanID() {
		t.Errorf("expected %v, got %v", sc, got)
	}
}

func TestAMQPHeaders(t *testing.T) {
	ctx, sc := spanContext(t)

	headers := InjectAMQPHeaders(ctx, amqp.Table{"x-retries": int32(2)})
	if _, ok := headers[TraceparentHeader].(string); !ok {
		t.Fatalf("traceparent not injected: %v", headers)
	}
	if headers["x-retries"] != int32(2) {
		t.Errorf("existing header lost: %v", headers)
	}

	got := trace.SpanContextFromContext(ExtractAMQPHeaders(context.Background(), headers))
	if got.TraceID() != sc.TraceID() {
		t.Errorf("expected %v, got %v", sc.TraceID(), got.TraceID())
	}
}

func TestAMQPCarrier_IgnoresNonStringValues(t *testing.T) {
	c := AMQPCarrier(amqp.Table{
		TraceparentHeader: []byte("00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"),
		"x-retries":       int32(2),
	})

	if got := c.Get(TraceparentHeader); got != "" {
		t.Errorf("expected byte value to be ignored, got %q", got)
	}
	if got := c.Get("x-retries"); got != "" {
		t.Errorf("expected int value to be ignored, got %q", got)
	}
	sc := trace.SpanContextFromContext(ExtractAMQPHeaders(context.Background(), amqp.Table(c)))
	if sc.IsValid() {
		t.Errorf("expected no span context from non-string headers, got %v", sc)
	}
}

func TestKafkaCarrier_SetReplaces(t *testing.T) {
	headers := []kafka.Header{{Key: TraceparentHeader, Value: []byte("stale")}}
	c := KafkaCarrier{Headers: &headers}

	c.Set(TraceparentHeader, "fresh")
	c.Set("tracestate", "a=b")

	if len(headers) != 2 || c.Get(TraceparentHeader) != "fresh" {
		t.Errorf("unexpected headers %v", headers)
	}
	if keys := c.Keys(); len(keys) != 2 {
		t.Errorf("keys: %v", keys)
	}
}
