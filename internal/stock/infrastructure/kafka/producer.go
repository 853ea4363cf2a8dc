package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/stock-reservation/internal/stock/domain"
	"github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/messaging"
	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

const (
	EventTypeHeader = "event_type"
	MessageIDHeader = "message_id"
)

type Producer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Publisher writes outcomes to the outcome topic, keyed by order id, and
// parks dead letters on <topic>.dead.
type Publisher struct {
	log      *slog.Logger
	producer Producer
	topo     *messaging.Topology
}

func NewPublisher(log *slog.Logger, producer Producer, topo *messaging.Topology) *Publisher {
	return &Publisher{log: log, producer: producer, topo: topo}
}

func (p *Publisher) Publish(ctx context.Context, outcome domain.ReservationOutcome) error {
	body, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("could not marshal outcome: %w", err)
	}
	r := p.topo.Outcome()
	headers := []kafka.Header{
		{Key: EventTypeHeader, Value: []byte(r.Name)},
		{Key: MessageIDHeader, Value: []byte(uuid.NewString())},
	}
	msg := kafka.Message{
		Topic:   r.RoutingKey,
		Key:     []byte(outcome.OrderID),
		Value:   body,
		Headers: tracing.InjectKafkaHeaders(ctx, headers),
	}
	if err := p.producer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", r.RoutingKey, err)
	}
	return nil
}

func (p *Publisher) DeadLetter(ctx context.Context, msg kafka.Message) error {
	dead := kafka.Message{
		Topic:   messaging.DeadLetterQueue(msg.Topic),
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: append(append([]kafka.Header(nil), msg.Headers...), kafka.Header{Key: "original_topic", Value: []byte(msg.Topic)}),
	}
	if err := p.producer.WriteMessages(ctx, dead); err != nil {
		p.log.ErrorContext(ctx, "dead letter write failed", "topic", dead.Topic, "err", err)
		return err
	}
	p.log.WarnContext(ctx, "message dead-lettered", "topic", dead.Topic, "offset", msg.Offset)
	return nil
}
