package tracing

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
)

// AMQPCarrier adapts an amqp.Table to a TextMapCarrier. Non-string values
// are invisible to Get.
type AMQPCarrier amqp.Table

func (c AMQPCarrier) Get(key string) string {
	s, _ := c[key].(string)
	return s
}

func (c AMQPCarrier) Set(key, value string) { c[key] = value }

func (c AMQPCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

func InjectAMQPHeaders(ctx context.Context, headers amqp.Table) amqp.Table {
	if headers == nil {
		headers = amqp.Table{}
	}
	otel.GetTextMapPropagator().Inject(ctx, AMQPCarrier(headers))
	return headers
}

func ExtractAMQPHeaders(ctx context.Context, headers amqp.Table) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, AMQPCarrier(headers))
}
