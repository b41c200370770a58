package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	domain "github.com/orderflow/api/internal/domain"
)

// InventoryRepository persists stock rows. Available is a generated column.
type InventoryRepository struct {
	db db
}

// GetStocks locks the rows FOR UPDATE in product id order when called inside a transaction.
func (r *InventoryRepository) GetStocks(ctx context.Context, productIDs []string) (map[string]domain.InventoryStock, error) {
	out := make(map[string]domain.InventoryStock, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	sql := `SELECT product_id, on_hand, reserved, available, updated_at FROM inventory WHERE product_id = ANY($1) ORDER BY product_id`
	if inTx(ctx) {
		sql += ` FOR UPDATE`
	}
	rows, err := r.db.conn(ctx).Query(ctx, sql, productIDs)
	if err != nil {
		return nil, wrapError("inventory.getStocks", err)
	}
	stocks, err := collectStocks(rows)
	if err != nil {
		return nil, wrapError("inventory.getStocks", err)
	}
	for _, stock := range stocks {
		out[stock.ProductID] = stock
	}
	return out, nil
}

func (r *InventoryRepository) PutStocks(ctx context.Context, stocks []domain.InventoryStock) error {
	return r.db.atomic(ctx, "inventory.putStocks", func(q querier) error {
		batch := &pgx.Batch{}
		for _, stock := range stocks {
			stock.Recalculate()
			batch.Queue(`
				INSERT INTO inventory (product_id, on_hand, reserved, updated_at)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (product_id) DO UPDATE SET
					on_hand = EXCLUDED.on_hand,
					reserved = EXCLUDED.reserved,
					updated_at = EXCLUDED.updated_at`,
				stock.ProductID, stock.OnHand, stock.Reserved, stock.UpdatedAt.UTC())
		}
		return execBatch(ctx, q, "inventory.putStocks", batch)
	})
}

func (r *InventoryRepository) ListLowStock(ctx context.Context, threshold int, limit int) ([]domain.InventoryStock, error) {
	sql := `SELECT product_id, on_hand, reserved, available, updated_at FROM inventory WHERE available <= $1 ORDER BY available, product_id`
	args := []any{threshold}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.db.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapError("inventory.listLowStock", err)
	}
	stocks, err := collectStocks(rows)
	if err != nil {
		return nil, wrapError("inventory.listLowStock", err)
	}
	return stocks, nil
}

func collectStocks(rows pgx.Rows) ([]domain.InventoryStock, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.InventoryStock, error) {
		var stock domain.InventoryStock
		err := row.Scan(&stock.ProductID, &stock.OnHand, &stock.Reserved, &stock.Available, &stock.UpdatedAt)
		return stock, err
	})
}
