package application

import (
	"context"

	"github.com/dmehra2102/stock-reservation/internal/stock/domain"
)

// StockStore is the durable owner of stock records.
//
// Update is a conditional write: it must fail with ErrConcurrentUpdate when
// the stored version differs from stock.Version().
type StockStore interface {
	FindBySKU(ctx context.Context, sku string) (domain.Stock, bool, error)
	Save(ctx context.Context, stock domain.Stock) (domain.Stock, error)
	Update(ctx context.Context, stock domain.Stock) (domain.Stock, error)
	DeleteBySKU(ctx context.Context, sku string) error
}

type OutcomeChannel interface {
	Publish(ctx context.Context, outcome domain.ReservationOutcome) error
}

// Locker serialises work on a single key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type LedgerState int

const (
	// LedgerClaimed means the caller owns the order and must finish with
	// Complete or Abort.
	LedgerClaimed LedgerState = iota
	LedgerPending
	LedgerReserved
	LedgerRejected
)

func (s LedgerState) String() string {
	switch s {
	case LedgerClaimed:
		return "claimed"
	case LedgerPending:
		return "pending"
	case LedgerReserved:
		return "reserved"
	case LedgerRejected:
		return "rejected"
	}
	return "unknown"
}

// ReservationLedger remembers which orders already had a reservation decided.
type ReservationLedger interface {
	Begin(ctx context.Context, orderID string) (LedgerState, error)
	Complete(ctx context.Context, orderID string, success bool) error
	Abort(ctx context.Context, orderID string) error
}

type ProductDetails struct {
	Name string `json:"name"`
	SKU  string `json:"sku"`
}

type ProductCatalog interface {
	Lookup(ctx context.Context, sku string) (ProductDetails, bool, error)
}
