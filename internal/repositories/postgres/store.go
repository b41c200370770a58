// Package postgres implements the repositories on PostgreSQL through pgx. Transactions ride on the
// context so repositories called inside RunInTx share one pgx.Tx.
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/orderflow/api/internal/platform/observability"
	"github.com/orderflow/api/internal/repositories"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds the pool settings.
type Config struct {
	DSN         string
	MaxConns    int
	AutoMigrate bool
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type txKey struct{}

// db resolves the querier for ctx: the open transaction when there is one, otherwise the pool.
type db struct {
	pool *pgxpool.Pool
}

func (d db) conn(ctx context.Context) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return d.pool
}

func txFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok && tx != nil
}

func inTx(ctx context.Context) bool {
	_, ok := txFromContext(ctx)
	return ok
}

// Store is the PostgreSQL repository registry.
type Store struct {
	pool      *pgxpool.Pool
	catalog   *CatalogRepository
	inventory *InventoryRepository
	carts     *CartRepository
	orders    *OrderRepository
	health    repositories.HealthRepository
}

var _ repositories.Registry = (*Store)(nil)

// Open connects the pool, verifies connectivity and applies migrations when cfg.AutoMigrate is set.
func Open(ctx context.Context, cfg Config, logger *zap.Logger, extraProbes ...repositories.DependencyProbe) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("postgres: dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapError("postgres.ping", err)
	}
	if cfg.AutoMigrate {
		if err := Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, err
		}
	}
	store, err := NewStore(pool, extraProbes...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewStore builds the registry on an existing pool.
func NewStore(pool *pgxpool.Pool, extraProbes ...repositories.DependencyProbe) (*Store, error) {
	probes := append([]repositories.DependencyProbe{{Name: "postgres", Ping: pool.Ping}}, extraProbes...)
	health, err := repositories.NewProbeHealthRepository(probes, repositories.WithProbeTimeout(3*time.Second))
	if err != nil {
		return nil, err
	}
	d := db{pool: pool}
	return &Store{
		pool:      pool,
		catalog:   &CatalogRepository{db: d},
		inventory: &InventoryRepository{db: d},
		carts:     &CartRepository{db: d},
		orders:    &OrderRepository{db: d},
		health:    health,
	}, nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	goose.SetBaseFS(migrations)
	goose.SetLogger(observability.NewPrintfAdapter(logger))
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("postgres: goose dialect: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	if err := goose.UpContext(ctx, sqlDB, "migrations"); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (s *Store) Catalog() repositories.CatalogRepository     { return s.catalog }
func (s *Store) Inventory() repositories.InventoryRepository { return s.inventory }
func (s *Store) Carts() repositories.CartRepository          { return s.carts }
func (s *Store) Orders() repositories.OrderRepository        { return s.orders }
func (s *Store) Health() repositories.HealthRepository       { return s.health }

// RunInTx implements repositories.UnitOfWork. A nested call joins the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if inTx(ctx) {
		return fn(ctx)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return wrapError("postgres.begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return wrapError("postgres.commit", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// atomic runs fn on the caller's transaction, or on a short transaction of its own.
func (d db) atomic(ctx context.Context, op string, fn func(q querier) error) (err error) {
	if tx, ok := txFromContext(ctx); ok {
		return fn(tx)
	}
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return wrapError(op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return wrapError(op, err)
	}
	return nil
}

func parseAmount(value string) decimal.Decimal {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero
	}
	return amount
}

func moneyText(value decimal.Decimal) string {
	return value.StringFixed(2)
}

// execBatch sends every queued statement and reports the first failure.
func execBatch(ctx context.Context, q querier, op string, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	results := q.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return wrapError(op, err)
		}
	}
	return wrapError(op, results.Close())
}
