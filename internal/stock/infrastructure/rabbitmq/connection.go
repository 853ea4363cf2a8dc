package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/messaging"
)

const ExchangeType = "topic"

type Connection struct {
	log  *slog.Logger
	conn *amqp.Connection
	topo *messaging.Topology
}

// Dial connects to the broker, retrying while it starts up.
func Dial(ctx context.Context, log *slog.Logger, url string, topo *messaging.Topology) (*Connection, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	var conn *amqp.Connection
	err := backoff.RetryNotify(func() error {
		var err error
		conn, err = amqp.Dial(url)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, 5), ctx), func(err error, next time.Duration) {
		log.Warn("rabbitmq dial failed, retrying", "err", err, "in", next)
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}
	return &Connection{log: log, conn: conn, topo: topo}, nil
}

// Declare creates the topic exchange, one durable queue per route bound by
// its routing key, and a dead-letter queue per inbound route.
func (c *Connection) Declare() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("could not open channel: %w", err)
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		c.topo.Exchange(), // name
		ExchangeType,      // type
		true,              // durable
		false,             // auto-deleted
		false,             // internal
		false,             // no-wait
		nil,               // arguments
	)
	if err != nil {
		return fmt.Errorf("could not declare exchange: %w", err)
	}

	for _, r := range c.topo.All() {
		if _, err := ch.QueueDeclare(r.Queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("could not declare queue %s: %w", r.Queue, err)
		}
		if err := ch.QueueBind(r.Queue, r.RoutingKey, c.topo.Exchange(), false, nil); err != nil {
			return fmt.Errorf("could not bind queue %s: %w", r.Queue, err)
		}
	}
	for _, r := range c.topo.Inbound() {
		dead := messaging.DeadLetterQueue(r.Queue)
		if _, err := ch.QueueDeclare(dead, true, false, false, false, nil); err != nil {
			return fmt.Errorf("could not declare queue %s: %w", dead, err)
		}
	}
	c.log.Info("rabbitmq topology declared", "exchange", c.topo.Exchange())
	return nil
}

func (c *Connection) Channel() (*amqp.Channel, error) {
	return c.conn.Channel()
}

func (c *Connection) Close() error {
	return c.conn.Close()
}
