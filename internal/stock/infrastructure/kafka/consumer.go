package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/messaging"
	"github.com/dmehra2102/stock-reservation/pkg/tracing"
)

// settleTimeout bounds broker calls made for a message after shutdown began.
const settleTimeout = 5 * time.Second

type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type deadLetterer interface {
	DeadLetter(ctx context.Context, msg kafka.Message) error
}

// Consumer reads each inbound topic with its own group readers. A message is
// committed only once the handler acks it or it has been dead-lettered;
// a requeue retries the same message in place.
type Consumer struct {
	log          *slog.Logger
	handler      *messaging.Handler
	dead         deadLetterer
	readers      map[messaging.Route][]Reader
	requeueDelay time.Duration
}

func NewConsumer(log *slog.Logger, brokers []string, group string, workers int, topo *messaging.Topology, handler *messaging.Handler, dead deadLetterer, requeueDelay time.Duration) *Consumer {
	if workers < 1 {
		workers = 1
	}
	readers := make(map[messaging.Route][]Reader)
	for _, r := range topo.Inbound() {
		for i := 0; i < workers; i++ {
			readers[r] = append(readers[r], kafka.NewReader(kafka.ReaderConfig{
				Brokers: brokers,
				Topic:   r.RoutingKey,
				GroupID: group,
			}))
		}
	}
	return newConsumer(log, handler, dead, readers, requeueDelay)
}

func newConsumer(log *slog.Logger, handler *messaging.Handler, dead deadLetterer, readers map[messaging.Route][]Reader, requeueDelay time.Duration) *Consumer {
	return &Consumer{
		log:          log,
		handler:      handler,
		dead:         dead,
		readers:      readers,
		requeueDelay: requeueDelay,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for r, readers := range c.readers {
		for _, reader := range readers {
			r, reader := r, reader
			g.Go(func() error {
				return c.consume(ctx, r, reader)
			})
		}
	}
	return g.Wait()
}

func (c *Consumer) consume(ctx context.Context, r messaging.Route, reader Reader) error {
	defer reader.Close()
	c.log.Info("consuming", "topic", r.RoutingKey)
	for {
		if ctx.Err() != nil {
			return nil
		}
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch from %s: %w", r.RoutingKey, err)
		}
		if !c.settle(ctx, r, msg) {
			return nil
		}
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		err = reader.CommitMessages(commitCtx, msg)
		cancel()
		if err != nil {
			return fmt.Errorf("commit on %s: %w", r.RoutingKey, err)
		}
	}
}

// settle handles msg until it may be committed. An attempt that has started
// runs to completion regardless of ctx; ctx only stops further retries. It
// returns false when ctx ended first, leaving msg uncommitted for the next
// group member.
func (c *Consumer) settle(ctx context.Context, r messaging.Route, msg kafka.Message) bool {
	detached := context.WithoutCancel(ctx)
	b := backoff.NewExponentialBackOff()
	if c.requeueDelay > 0 {
		b.InitialInterval = c.requeueDelay
	}
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	err := backoff.Retry(func() error {
		msgCtx := tracing.ExtractKafkaHeaders(detached, msg.Headers)
		switch c.handler.Handle(msgCtx, r.Name, msg.Value) {
		case messaging.Ack:
			return nil
		case messaging.DeadLetter:
			deadCtx, cancel := context.WithTimeout(detached, settleTimeout)
			defer cancel()
			return c.dead.DeadLetter(deadCtx, msg)
		default:
			return errRequeue
		}
	}, backoff.WithContext(b, ctx))
	return err == nil
}

var errRequeue = errors.New("requeue")
