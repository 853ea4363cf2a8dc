package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dmehra2102/stock-reservation/internal/stock/domain"
	"github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/messaging"
	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

var ErrNacked = errors.New("broker refused the message")

// Publisher sends outcomes and dead letters on a confirm-mode channel and
// waits for the broker to confirm each one.
type Publisher struct {
	log     *slog.Logger
	ch      *amqp.Channel
	mu      sync.Mutex
	topo    *messaging.Topology
	timeout time.Duration
}

func NewPublisher(log *slog.Logger, conn *Connection, topo *messaging.Topology, timeout time.Duration) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("could not open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("could not enable confirms: %w", err)
	}
	return &Publisher{log: log, ch: ch, topo: topo, timeout: timeout}, nil
}

func (p *Publisher) Publish(ctx context.Context, outcome domain.ReservationOutcome) error {
	body, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("could not marshal outcome: %w", err)
	}
	r := p.topo.Outcome()
	return p.publish(ctx, p.topo.Exchange(), r.RoutingKey, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.NewString(),
		CorrelationId: outcome.OrderID,
		Timestamp:     time.Now().UTC(),
		Type:          r.Name,
		Headers:       tracing.InjectAMQPHeaders(ctx, nil),
		Body:          body,
	})
}

// DeadLetter parks d on the dead-letter queue for queue through the default
// exchange, keeping its body and headers.
func (p *Publisher) DeadLetter(ctx context.Context, queue string, d amqp.Delivery) error {
	headers := amqp.Table{}
	for k, v := range d.Headers {
		headers[k] = v
	}
	headers["x-original-queue"] = queue
	headers["x-original-routing-key"] = d.RoutingKey

	return p.publish(ctx, "", messaging.DeadLetterQueue(queue), amqp.Publishing{
		ContentType:  d.ContentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    d.MessageId,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         d.Body,
	})
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx,
		exchange, // exchange
		key,      // routing key
		false,    // mandatory
		false,    // immediate
		msg,
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", key, err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("confirm from %s: %w", key, err)
	}
	if !acked {
		return fmt.Errorf("publish to %s: %w", key, ErrNacked)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
