// Package memory keeps stock and ledger state in process. It backs local
// runs and tests; nothing survives a restart.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmehra2102/stock-reservation/internal/stock/application"
	"github.com/dmehra2102/stock-reservation/internal/stock/domain"
)

type row struct {
	id       int64
	quantity int
	version  int64
}

type Store struct {
	mu     sync.RWMutex
	nextID int64
	rows   map[string]row
}

func NewStore() *Store {
	return &Store{rows: make(map[string]row)}
}

func (s *Store) FindBySKU(_ context.Context, sku string) (domain.Stock, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[sku]
	if !ok {
		return domain.Stock{}, false, nil
	}
	return domain.RestoreStock(r.id, sku, r.quantity, r.version), true, nil
}

func (s *Store) Save(_ context.Context, stock domain.Stock) (domain.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[stock.ProductSKU()]; ok {
		return domain.Stock{}, fmt.Errorf("%w: %s", application.ErrDuplicateSKU, stock.ProductSKU())
	}
	s.nextID++
	r := row{id: s.nextID, quantity: stock.Quantity()}
	s.rows[stock.ProductSKU()] = r
	return domain.RestoreStock(r.id, stock.ProductSKU(), r.quantity, r.version), nil
}

func (s *Store) Update(_ context.Context, stock domain.Stock) (domain.Stock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[stock.ProductSKU()]
	if !ok {
		return domain.Stock{}, errors.New("stock for sku " + stock.ProductSKU() + " not found")
	}
	if r.version != stock.Version() {
		return domain.Stock{}, application.ErrConcurrentUpdate
	}
	r.quantity = stock.Quantity()
	r.version++
	s.rows[stock.ProductSKU()] = r
	return domain.RestoreStock(r.id, stock.ProductSKU(), r.quantity, r.version), nil
}

func (s *Store) DeleteBySKU(_ context.Context, sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, sku)
	return nil
}
