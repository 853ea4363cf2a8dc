package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dmehra2102/stock-reservation/internal/stock/domain"
)

// StockService is the synchronous create/read/update/delete surface. It
// shares the Locker with the coordinator so manual corrections do not race
// with reservations.
type StockService struct {
	log     *slog.Logger
	store   StockStore
	catalog ProductCatalog
	locker  Locker
	retries uint64
}

func NewStockService(log *slog.Logger, store StockStore, catalog ProductCatalog, locker Locker) *StockService {
	if locker == nil {
		locker = NewKeyLock()
	}
	return &StockService{
		log:     log,
		store:   store,
		catalog: catalog,
		locker:  locker,
		retries: DefaultConflictRetries,
	}
}

func (s *StockService) Create(ctx context.Context, sku string, quantity int) (domain.Stock, error) {
	stock, err := domain.NewStock(sku, quantity)
	if err != nil {
		return domain.Stock{}, err
	}

	_, found, err := s.catalog.Lookup(ctx, sku)
	if err != nil {
		return domain.Stock{}, gatewayErr("product lookup", err)
	}
	if !found {
		return domain.Stock{}, ErrProductNotFound(sku)
	}

	var saved domain.Stock
	err = withKey(ctx, s.locker, sku, func() error {
		_, exists, err := s.store.FindBySKU(ctx, sku)
		if err != nil {
			return gatewayErr("find stock", err)
		}
		if exists {
			return ErrStockAlreadyExists(sku)
		}
		saved, err = s.store.Save(ctx, stock)
		if errors.Is(err, ErrDuplicateSKU) {
			// another replica won the insert
			return ErrStockAlreadyExists(sku)
		}
		if err != nil {
			return gatewayErr("save stock", err)
		}
		return nil
	})
	if err != nil {
		return domain.Stock{}, err
	}
	s.log.InfoContext(ctx, "stock created", "sku", sku, "quantity", quantity, "id", saved.ID())
	return saved, nil
}

func (s *StockService) Get(ctx context.Context, sku string) (domain.Stock, error) {
	stock, found, err := s.store.FindBySKU(ctx, sku)
	if err != nil {
		return domain.Stock{}, gatewayErr("find stock", err)
	}
	if !found {
		return domain.Stock{}, ErrStockNotFound(sku)
	}
	return stock, nil
}

// Update overwrites the available quantity after a stock take.
func (s *StockService) Update(ctx context.Context, sku string, quantity int) (domain.Stock, error) {
	var updated domain.Stock
	err := retryOnConflict(ctx, s.retries, func() error {
		return withKey(ctx, s.locker, sku, func() error {
			stock, found, err := s.store.FindBySKU(ctx, sku)
			if err != nil {
				return gatewayErr("find stock", err)
			}
			if !found {
				return ErrStockNotFound(sku)
			}
			if err := stock.Recount(quantity); err != nil {
				return err
			}
			updated, err = s.store.Update(ctx, stock)
			if err != nil {
				return gatewayErr("update stock", err)
			}
			return nil
		})
	})
	if err != nil {
		return domain.Stock{}, err
	}
	s.log.InfoContext(ctx, "stock recounted", "sku", sku, "quantity", quantity)
	return updated, nil
}

func (s *StockService) Delete(ctx context.Context, sku string) error {
	return withKey(ctx, s.locker, sku, func() error {
		_, found, err := s.store.FindBySKU(ctx, sku)
		if err != nil {
			return gatewayErr("find stock", err)
		}
		if !found {
			return ErrStockNotFound(sku)
		}
		if err := s.store.DeleteBySKU(ctx, sku); err != nil {
			return gatewayErr("delete stock", err)
		}
		s.log.InfoContext(ctx, "stock deleted", "sku", sku)
		return nil
	})
}
