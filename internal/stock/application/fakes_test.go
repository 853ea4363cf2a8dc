package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/dmehra2102/stock-reservation/internal/stock/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type storedStock struct {
	id       int64
	quantity int
	version  int64
}

type fakeStore struct {
	mu        sync.Mutex
	rows      map[string]storedStock
	nextID    int64
	findErr   error
	updateErr error
	updates   int
	saveErr   error
	// afterUpdate runs once a write succeeded.
	afterUpdate func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]storedStock)}
}

func (s *fakeStore) seed(sku string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.rows[sku] = storedStock{id: s.nextID, quantity: quantity}
}

func (s *fakeStore) quantity(sku string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[sku].quantity
}

func (s *fakeStore) FindBySKU(_ context.Context, sku string) (domain.Stock, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return domain.Stock{}, false, s.findErr
	}
	r, ok := s.rows[sku]
	if !ok {
		return domain.Stock{}, false, nil
	}
	return domain.RestoreStock(r.id, sku, r.quantity, r.version), true, nil
}

func (s *fakeStore) Save(_ context.Context, stock domain.Stock) (domain.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return domain.Stock{}, s.saveErr
	}
	s.nextID++
	s.rows[stock.ProductSKU()] = storedStock{id: s.nextID, quantity: stock.Quantity()}
	return domain.RestoreStock(s.nextID, stock.ProductSKU(), stock.Quantity(), 0), nil
}

func (s *fakeStore) Update(_ context.Context, stock domain.Stock) (domain.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return domain.Stock{}, s.updateErr
	}
	r, ok := s.rows[stock.ProductSKU()]
	if !ok {
		return domain.Stock{}, errors.New("missing row")
	}
	if r.version != stock.Version() {
		return domain.Stock{}, ErrConcurrentUpdate
	}
	r.quantity = stock.Quantity()
	r.version++
	s.rows[stock.ProductSKU()] = r
	if s.afterUpdate != nil {
		s.afterUpdate()
	}
	return domain.RestoreStock(r.id, stock.ProductSKU(), r.quantity, r.version), nil
}

func (s *fakeStore) DeleteBySKU(_ context.Context, sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, sku)
	return nil
}

type fakeOutcomes struct {
	mu        sync.Mutex
	published []domain.ReservationOutcome
	err       error
}

func (o *fakeOutcomes) Publish(_ context.Context, outcome domain.ReservationOutcome) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.published = append(o.published, outcome)
	return nil
}

func (o *fakeOutcomes) all() []domain.ReservationOutcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]domain.ReservationOutcome(nil), o.published...)
}

// noLock lets every caller in at once, leaving only the version check.
type noLock struct{}

func (noLock) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type fakeLedger struct {
	mu     sync.Mutex
	states map[string]LedgerState
	// completeFails makes the next n Complete calls fail.
	completeFails int
	completeCalls int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{states: make(map[string]LedgerState)}
}

func (l *fakeLedger) Begin(_ context.Context, orderID string) (LedgerState, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.states[orderID]; ok {
		return s, nil
	}
	l.states[orderID] = LedgerPending
	return LedgerClaimed, nil
}

func (l *fakeLedger) Complete(ctx context.Context, orderID string, success bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completeCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.completeFails > 0 {
		l.completeFails--
		return errors.New("ledger unavailable")
	}
	if success {
		l.states[orderID] = LedgerReserved
	} else {
		l.states[orderID] = LedgerRejected
	}
	return nil
}

func (l *fakeLedger) Abort(_ context.Context, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.states, orderID)
	return nil
}

type fakeCatalog struct {
	products map[string]ProductDetails
	err      error
}

func (c *fakeCatalog) Lookup(_ context.Context, sku string) (ProductDetails, bool, error) {
	if c.err != nil {
		return ProductDetails{}, false, c.err
	}
	p, ok := c.products[sku]
	return p, ok, nil
}
