package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/stock-reservation/internal/stock/application"
	"github.com/dmehra2102/stock-reservation/internal/stock/domain"
	"github.com/dmehra2102/stock-reservation/pkg/metrics"
)

// Disposition is what a transport must do with a delivery once the handler
// returns.
type Disposition int

const (
	// Ack: processed, business failures included.
	Ack Disposition = iota
	// Requeue: a fatal error left the command unprocessed; deliver it again.
	Requeue
	// DeadLetter: the payload can never be processed; park it.
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case DeadLetter:
		return "dead_letter"
	}
	return "unknown"
}

type Coordinator interface {
	ReserveStock(ctx context.Context, sku string, quantity int, orderID string) (bool, error)
	ReleaseStock(ctx context.Context, sku string, quantity int) error
}

type Handler struct {
	log     *slog.Logger
	coord   Coordinator
	metrics *metrics.Metrics
	timeout time.Duration
	tracer  trace.Tracer
}

// NewHandler builds a Handler. m may be nil. Each command gets at most
// timeout to finish.
func NewHandler(log *slog.Logger, coord Coordinator, m *metrics.Metrics, timeout time.Duration) *Handler {
	return &Handler{
		log:     log,
		coord:   coord,
		metrics: m,
		timeout: timeout,
		tracer:  otel.Tracer("stock-handler"),
	}
}

func (h *Handler) Handle(ctx context.Context, route string, body []byte) Disposition {
	started := time.Now()
	ctx, span := h.tracer.Start(ctx, "Handle "+route, trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("messaging.destination.name", route)))
	defer span.End()

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	var d Disposition
	switch route {
	case RouteReserveStock:
		d = h.reserve(ctx, body)
	case RouteReleaseStock:
		d = h.release(ctx, body)
	default:
		h.log.ErrorContext(ctx, "message on unknown route", "route", route)
		d = DeadLetter
	}

	span.SetAttributes(attribute.String("messaging.disposition", d.String()))
	if d != Ack {
		span.SetStatus(codes.Error, d.String())
	}
	if h.metrics != nil {
		h.metrics.ObserveCommand(route, d.String(), started)
	}
	return d
}

func (h *Handler) reserve(ctx context.Context, body []byte) Disposition {
	var cmd domain.ReserveCommand
	if err := json.Unmarshal(body, &cmd); err != nil {
		h.log.ErrorContext(ctx, "undecodable reserve command", "err", err)
		return DeadLetter
	}
	if cmd.OrderID == "" {
		h.log.ErrorContext(ctx, "reserve command without order id", "sku", cmd.ProductSKU)
		return DeadLetter
	}

	ok, err := h.coord.ReserveStock(ctx, cmd.ProductSKU, cmd.Quantity, cmd.OrderID)
	if err != nil {
		return h.fatal(ctx, err, "order_id", cmd.OrderID, "sku", cmd.ProductSKU)
	}
	if h.metrics != nil {
		h.metrics.ObserveReservation(ok)
	}
	h.log.InfoContext(ctx, "reserve command processed", "order_id", cmd.OrderID, "sku", cmd.ProductSKU, "success", ok)
	return Ack
}

func (h *Handler) release(ctx context.Context, body []byte) Disposition {
	var cmd domain.ReleaseCommand
	if err := json.Unmarshal(body, &cmd); err != nil {
		h.log.ErrorContext(ctx, "undecodable release command", "err", err)
		return DeadLetter
	}

	if err := h.coord.ReleaseStock(ctx, cmd.ProductSKU, cmd.Quantity); err != nil {
		return h.fatal(ctx, err, "sku", cmd.ProductSKU)
	}
	h.log.InfoContext(ctx, "release command processed", "sku", cmd.ProductSKU, "quantity", cmd.Quantity)
	return Ack
}

func (h *Handler) fatal(ctx context.Context, err error, args ...any) Disposition {
	args = append(args, "err", err)
	switch {
	case errors.Is(err, application.ErrReservationInFlight):
		h.log.WarnContext(ctx, "command already in flight, requeueing", args...)
	case errors.Is(err, context.DeadlineExceeded):
		h.log.ErrorContext(ctx, "command timed out, requeueing", args...)
	default:
		h.log.ErrorContext(ctx, "command failed, requeueing", args...)
	}
	return Requeue
}
