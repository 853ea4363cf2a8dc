package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/stock-reservation/internal/stock/domain"
	"github.com/dmehra2102/stock-reservation/internal/stock/infrastructure/messaging"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) offsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (p *fakeProducer) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

// flakyCoordinator fails the first n reserve calls.
type flakyCoordinator struct {
	mu    sync.Mutex
	fails int
	calls int
}

func (f *flakyCoordinator) ReserveStock(context.Context, string, int, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fails {
		return false, errors.New("store down")
	}
	return true, nil
}

func (f *flakyCoordinator) ReleaseStock(context.Context, string, int) error { return nil }

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestConsumer_CommitsAfterSettling(t *testing.T) {
	topo := messaging.NewTopology("order.events")
	coord := &flakyCoordinator{fails: 2}
	producer := &fakeProducer{}
	handler := messaging.NewHandler(discard(), coord, nil, time.Second)
	reader := &fakeReader{msgs: []kafka.Message{
		{Topic: "reserve-stock", Offset: 1, Value: []byte(`{"orderId":"order-1","productSku":"SKU-1","quantity":1}`)},
		{Topic: "reserve-stock", Offset: 2, Value: []byte(`broken`)},
	}}
	c := newConsumer(discard(), handler, NewPublisher(discard(), producer, topo),
		map[messaging.Route][]Reader{topo.Reserve(): {reader}}, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for len(reader.offsets()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("only committed %v", reader.offsets())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	if coord.calls != 3 {
		t.Errorf("expected two retries before success, got %d calls", coord.calls)
	}
	if got := reader.offsets(); got[0] != 1 || got[1] != 2 {
		t.Errorf("unexpected commit order %v", got)
	}
	if len(producer.msgs) != 1 || producer.msgs[0].Topic != "reserve-stock.dead" {
		t.Errorf("expected one dead letter, got %+v", producer.msgs)
	}
	if !reader.closed {
		t.Error("reader not closed")
	}
}

func TestConsumer_CancelLeavesMessageUncommitted(t *testing.T) {
	topo := messaging.NewTopology("order.events")
	handler := messaging.NewHandler(discard(), &flakyCoordinator{fails: 1 << 30}, nil, time.Second)
	reader := &fakeReader{msgs: []kafka.Message{
		{Topic: "reserve-stock", Offset: 1, Value: []byte(`{"orderId":"order-1","productSku":"SKU-1","quantity":1}`)},
	}}
	c := newConsumer(discard(), handler, NewPublisher(discard(), &fakeProducer{}, topo),
		map[messaging.Route][]Reader{topo.Reserve(): {reader}}, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Run(ctx); err != nil {
		t.Fatal(err)
	}
	if len(reader.offsets()) != 0 {
		t.Errorf("failing message must not be committed, got %v", reader.offsets())
	}
}

// shutdownCoordinator ends the consumer context partway through a command
// and then fails if the ctx it was handed is already done.
type shutdownCoordinator struct {
	mu    sync.Mutex
	stop  context.CancelFunc
	calls int
}

func (s *shutdownCoordinator) ReserveStock(ctx context.Context, _ string, _ int, _ string) (bool, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	s.stop()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (s *shutdownCoordinator) ReleaseStock(context.Context, string, int) error { return nil }

func TestConsumer_ShutdownSettlesInFlightMessage(t *testing.T) {
	topo := messaging.NewTopology("order.events")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord := &shutdownCoordinator{stop: cancel}
	handler := messaging.NewHandler(discard(), coord, nil, time.Second)
	body := []byte(`{"orderId":"order-1","productSku":"SKU-1","quantity":1}`)
	reader := &fakeReader{msgs: []kafka.Message{
		{Topic: "reserve-stock", Offset: 1, Value: body},
		{Topic: "reserve-stock", Offset: 2, Value: body},
	}}
	c := newConsumer(discard(), handler, NewPublisher(discard(), &fakeProducer{}, topo),
		map[messaging.Route][]Reader{topo.Reserve(): {reader}}, time.Millisecond)

	if err := c.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := reader.offsets(); len(got) != 1 || got[0] != 1 {
		t.Errorf("expected the in-flight message to be committed, got %v", got)
	}
	if coord.calls != 1 {
		t.Errorf("no message may be fetched after shutdown, got %d calls", coord.calls)
	}
}

func TestPublisher_Publish(t *testing.T) {
	topo := messaging.NewTopology("order.events")
	producer := &fakeProducer{}
	p := NewPublisher(discard(), producer, topo)

	if err := p.Publish(context.Background(), domain.ReservationOutcome{OrderID: "order-9", Success: true}); err != nil {
		t.Fatal(err)
	}
	if len(producer.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(producer.msgs))
	}
	msg := producer.msgs[0]
	if msg.Topic != "stock-reserved" || string(msg.Key) != "order-9" {
		t.Errorf("unexpected message %+v", msg)
	}
	if string(msg.Value) != `{"orderId":"order-9","success":true}` {
		t.Errorf("unexpected payload %s", msg.Value)
	}
	var eventType string
	for _, h := range msg.Headers {
		if h.Key == EventTypeHeader {
			eventType = string(h.Value)
		}
	}
	if eventType != "stock-reserved" {
		t.Errorf("event_type header: %q", eventType)
	}

	producer.err = errors.New("leader not available")
	if err := p.Publish(context.Background(), domain.ReservationOutcome{OrderID: "order-10"}); err == nil {
		t.Error("expected write error")
	}
}
