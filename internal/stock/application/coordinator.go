package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/stock-reservation/internal/stock/domain"
)

// ledgerTimeout bounds ledger writes that must outlive the command ctx.
const ledgerTimeout = 2 * time.Second

// ReservationCoordinator turns reserve and release commands into stock
// transitions. Every reserve that completes without error publishes exactly
// one outcome; release publishes nothing.
type ReservationCoordinator struct {
	log      *slog.Logger
	store    StockStore
	outcomes OutcomeChannel
	locker   Locker
	ledger   ReservationLedger
	retries  uint64
	tracer   trace.Tracer
}

type CoordinatorOption func(*ReservationCoordinator)

func WithLocker(l Locker) CoordinatorOption {
	return func(c *ReservationCoordinator) { c.locker = l }
}

// WithLedger turns on order-level deduplication of reserve commands.
func WithLedger(l ReservationLedger) CoordinatorOption {
	return func(c *ReservationCoordinator) { c.ledger = l }
}

func WithConflictRetries(n uint64) CoordinatorOption {
	return func(c *ReservationCoordinator) { c.retries = n }
}

func NewReservationCoordinator(log *slog.Logger, store StockStore, outcomes OutcomeChannel, opts ...CoordinatorOption) *ReservationCoordinator {
	c := &ReservationCoordinator{
		log:      log,
		store:    store,
		outcomes: outcomes,
		retries:  DefaultConflictRetries,
		tracer:   otel.Tracer("stock-coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.locker == nil {
		c.locker = NewKeyLock()
	}
	return c
}

// ReserveStock tries to hold quantity units of sku for orderID. The bool is
// only meaningful when err is nil. A non-nil error means the command was not
// processed and must be redelivered.
func (c *ReservationCoordinator) ReserveStock(ctx context.Context, sku string, quantity int, orderID string) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "ReserveStock", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("stock.sku", sku),
		attribute.Int("stock.quantity", quantity),
	))
	defer span.End()

	if c.ledger != nil {
		state, err := c.ledger.Begin(ctx, orderID)
		if err != nil {
			return false, fail(span, gatewayErr("ledger begin", err))
		}
		switch state {
		case LedgerPending:
			return false, fail(span, ErrReservationInFlight)
		case LedgerReserved, LedgerRejected:
			success := state == LedgerReserved
			c.log.InfoContext(ctx, "reservation already decided, replaying outcome", "order_id", orderID, "success", success)
			if err := c.publish(ctx, orderID, success); err != nil {
				return false, fail(span, err)
			}
			return success, nil
		}
	}

	reserved, err := c.reserve(ctx, sku, quantity)
	if err != nil {
		c.abort(ctx, orderID)
		return false, fail(span, err)
	}

	c.complete(ctx, orderID, reserved)

	if err := c.publish(ctx, orderID, reserved); err != nil {
		return false, fail(span, err)
	}
	span.SetAttributes(attribute.Bool("stock.reserved", reserved))
	return reserved, nil
}

func (c *ReservationCoordinator) reserve(ctx context.Context, sku string, quantity int) (bool, error) {
	var reserved bool
	err := retryOnConflict(ctx, c.retries, func() error {
		reserved = false
		return withKey(ctx, c.locker, sku, func() error {
			stock, found, err := c.store.FindBySKU(ctx, sku)
			if err != nil {
				return gatewayErr("find stock", err)
			}
			if !found {
				c.log.InfoContext(ctx, "reserve for unknown stock", "sku", sku)
				return nil
			}
			if !stock.Reserve(quantity) {
				c.log.InfoContext(ctx, "insufficient stock", "sku", sku, "available", stock.Quantity(), "requested", quantity)
				return nil
			}
			if _, err := c.store.Update(ctx, stock); err != nil {
				return gatewayErr("update stock", err)
			}
			reserved = true
			return nil
		})
	})
	return reserved, err
}

// ReleaseStock gives quantity units of sku back. Unknown stock is a no-op.
func (c *ReservationCoordinator) ReleaseStock(ctx context.Context, sku string, quantity int) error {
	ctx, span := c.tracer.Start(ctx, "ReleaseStock", trace.WithAttributes(
		attribute.String("stock.sku", sku),
		attribute.Int("stock.quantity", quantity),
	))
	defer span.End()

	err := retryOnConflict(ctx, c.retries, func() error {
		return withKey(ctx, c.locker, sku, func() error {
			stock, found, err := c.store.FindBySKU(ctx, sku)
			if err != nil {
				return gatewayErr("find stock", err)
			}
			if !found {
				c.log.InfoContext(ctx, "release for unknown stock ignored", "sku", sku)
				return nil
			}
			stock.Release(quantity)
			if _, err := c.store.Update(ctx, stock); err != nil {
				return gatewayErr("update stock", err)
			}
			return nil
		})
	})
	if err != nil {
		return fail(span, err)
	}
	return nil
}

func (c *ReservationCoordinator) publish(ctx context.Context, orderID string, success bool) error {
	outcome := domain.ReservationOutcome{OrderID: orderID, Success: success}
	if err := c.outcomes.Publish(ctx, outcome); err != nil {
		return gatewayErr("publish outcome", err)
	}
	c.log.InfoContext(ctx, "reservation outcome published", "order_id", orderID, "success", success)
	return nil
}

// complete records the decision so redeliveries replay it instead of moving
// stock again. Stock has already changed, so it retries past ctx expiry.
func (c *ReservationCoordinator) complete(ctx context.Context, orderID string, reserved bool) {
	if c.ledger == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	err := backoff.Retry(func() error {
		return c.ledger.Complete(cctx, orderID, reserved)
	}, backoff.WithContext(backoff.WithMaxRetries(b, 3), cctx))
	if err != nil {
		c.log.ErrorContext(ctx, "ledger complete failed, entry stays pending until it expires",
			"order_id", orderID, "success", reserved, "err", err)
	}
}

// abort frees the ledger entry so a redelivery can try again. It runs even
// when ctx already expired.
func (c *ReservationCoordinator) abort(ctx context.Context, orderID string) {
	if c.ledger == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerTimeout)
	defer cancel()
	if err := c.ledger.Abort(actx, orderID); err != nil {
		c.log.ErrorContext(ctx, "ledger abort failed", "order_id", orderID, "err", err)
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, ErrConcurrentUpdate) {
		span.SetAttributes(attribute.Bool("stock.conflict", true))
	}
	return err
}
