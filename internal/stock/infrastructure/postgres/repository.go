package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/stock-reservation/internal/stock/application"
	"github.com/dmehra2102/stock-reservation/internal/stock/domain"
)

const schema = `CREATE TABLE IF NOT EXISTS stock (
	id BIGSERIAL PRIMARY KEY,
	product_sku TEXT NOT NULL UNIQUE,
	quantity INTEGER NOT NULL CHECK (quantity >= 0),
	version BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

const uniqueViolation = "23505"

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{
		log:  log,
		pool: pool,
	}
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create stock table: %w", err)
	}
	return nil
}

func (r *Repository) FindBySKU(ctx context.Context, sku string) (domain.Stock, bool, error) {
	var (
		id       int64
		quantity int
		version  int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, quantity, version FROM stock WHERE product_sku=$1`, sku,
	).Scan(&id, &quantity, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Stock{}, false, nil
	}
	if err != nil {
		return domain.Stock{}, false, err
	}
	return domain.RestoreStock(id, sku, quantity, version), true, nil
}

func (r *Repository) Save(ctx context.Context, stock domain.Stock) (domain.Stock, error) {
	now := time.Now().UTC()
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO stock (product_sku, quantity, version, created_at, updated_at) VALUES ($1,$2,0,$3,$3) RETURNING id`,
		stock.ProductSKU(), stock.Quantity(), now,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Stock{}, fmt.Errorf("%w: %s", application.ErrDuplicateSKU, stock.ProductSKU())
		}
		return domain.Stock{}, err
	}
	return domain.RestoreStock(id, stock.ProductSKU(), stock.Quantity(), 0), nil
}

// Update writes the quantity only if the row still carries the version the
// caller read.
func (r *Repository) Update(ctx context.Context, stock domain.Stock) (domain.Stock, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE stock SET quantity=$1, version=version+1, updated_at=$2 WHERE product_sku=$3 AND version=$4`,
		stock.Quantity(), time.Now().UTC(), stock.ProductSKU(), stock.Version(),
	)
	if err != nil {
		return domain.Stock{}, err
	}
	if tag.RowsAffected() == 0 {
		r.log.DebugContext(ctx, "conditional stock update missed", "sku", stock.ProductSKU(), "version", stock.Version())
		return domain.Stock{}, application.ErrConcurrentUpdate
	}
	return domain.RestoreStock(stock.ID(), stock.ProductSKU(), stock.Quantity(), stock.Version()+1), nil
}

func (r *Repository) DeleteBySKU(ctx context.Context, sku string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM stock WHERE product_sku=$1`, sku)
	return err
}
