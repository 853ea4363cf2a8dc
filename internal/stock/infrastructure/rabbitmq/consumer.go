package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/messaging"
	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

type deadLetterer interface {
	DeadLetter(ctx context.Context, queue string, d amqp.Delivery) error
}

// settleTimeout bounds broker calls made for a delivery after shutdown began.
const settleTimeout = 5 * time.Second

type ConsumerConfig struct {
	Workers      int
	Prefetch     int
	RequeueDelay time.Duration
}

// Consumer feeds the inbound queues to a Handler and settles every delivery
// according to the disposition it returns.
type Consumer struct {
	log     *slog.Logger
	conn    *Connection
	topo    *messaging.Topology
	handler *messaging.Handler
	dead    deadLetterer
	cfg     ConsumerConfig
}

func NewConsumer(log *slog.Logger, conn *Connection, topo *messaging.Topology, handler *messaging.Handler, dead deadLetterer, cfg ConsumerConfig) *Consumer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Prefetch < cfg.Workers {
		cfg.Prefetch = cfg.Workers
	}
	return &Consumer{
		log:     log,
		conn:    conn,
		topo:    topo,
		handler: handler,
		dead:    dead,
		cfg:     cfg,
	}
}

// Run consumes until ctx ends or the broker closes a channel. Deliveries in
// flight are settled before it returns.
func (c *Consumer) Run(ctx context.Context) error {
	lost := make(chan *amqp.Error, len(c.topo.Inbound()))
	var wg sync.WaitGroup

	for _, r := range c.topo.Inbound() {
		ch, err := c.conn.Channel()
		if err != nil {
			return fmt.Errorf("could not open channel: %w", err)
		}
		defer ch.Close()

		if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("could not set qos: %w", err)
		}
		deliveries, err := ch.Consume(
			r.Queue, // queue
			"",      // consumer tag
			false,   // auto-ack
			false,   // exclusive
			false,   // no-local
			false,   // no-wait
			nil,     // args
		)
		if err != nil {
			return fmt.Errorf("could not start consume on %s: %w", r.Queue, err)
		}
		notify := ch.NotifyClose(make(chan *amqp.Error, 1))
		go func() {
			if amqpErr, ok := <-notify; ok {
				lost <- amqpErr
			}
		}()

		for i := 0; i < c.cfg.Workers; i++ {
			wg.Add(1)
			go func(r messaging.Route) {
				defer wg.Done()
				c.work(ctx, r, deliveries)
			}(r)
		}
		c.log.Info("consuming", "queue", r.Queue, "workers", c.cfg.Workers)
	}

	var err error
	select {
	case <-ctx.Done():
	case amqpErr := <-lost:
		err = fmt.Errorf("rabbitmq channel closed: %w", amqpErr)
	}
	wg.Wait()
	return err
}

func (c *Consumer) work(ctx context.Context, r messaging.Route, deliveries <-chan amqp.Delivery) {
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			c.dispatch(ctx, r, d)
		}
	}
}

// dispatch runs a delivery to completion even when ctx ends meanwhile; the
// handler's command timeout bounds it. Only the requeue delay honours ctx.
func (c *Consumer) dispatch(ctx context.Context, r messaging.Route, d amqp.Delivery) {
	detached := context.WithoutCancel(ctx)
	msgCtx := tracing.ExtractAMQPHeaders(detached, d.Headers)

	switch disposition := c.handler.Handle(msgCtx, r.Name, d.Body); disposition {
	case messaging.Ack:
		if err := d.Ack(false); err != nil {
			c.log.Error("ack failed", "queue", r.Queue, "err", err)
		}
	case messaging.DeadLetter:
		deadCtx, cancel := context.WithTimeout(detached, settleTimeout)
		err := c.dead.DeadLetter(deadCtx, r.Queue, d)
		cancel()
		if err != nil {
			c.log.Error("dead letter failed, requeueing", "queue", r.Queue, "err", err)
			c.requeue(ctx, r, d)
			return
		}
		if err := d.Ack(false); err != nil {
			c.log.Error("ack failed", "queue", r.Queue, "err", err)
		}
	default:
		c.requeue(ctx, r, d)
	}
}

// requeue waits RequeueDelay so a failing dependency is not hammered, then
// hands the delivery back to the broker.
func (c *Consumer) requeue(ctx context.Context, r messaging.Route, d amqp.Delivery) {
	if c.cfg.RequeueDelay > 0 {
		t := time.NewTimer(c.cfg.RequeueDelay)
		select {
		case <-ctx.Done():
		case <-t.C:
		}
		t.Stop()
	}
	if err := d.Nack(false, true); err != nil {
		c.log.Error("nack failed", "queue", r.Queue, "err", err)
	}
}
