package memory

import (
	"context"
	"sort"

	domain "github.com/orderflow/api/internal/domain"
)

type inventoryRepository struct {
	store *Store
}

func (r *inventoryRepository) GetStocks(ctx context.Context, productIDs []string) (map[string]domain.InventoryStock, error) {
	data, release := r.store.view(ctx)
	defer release()

	out := make(map[string]domain.InventoryStock, len(productIDs))
	for _, id := range productIDs {
		if stock, ok := data.stocks[id]; ok {
			out[id] = stock
		}
	}
	return out, nil
}

func (r *inventoryRepository) PutStocks(ctx context.Context, stocks []domain.InventoryStock) error {
	data, release := r.store.view(ctx)
	defer release()

	for _, stock := range stocks {
		stock.Recalculate()
		data.stocks[stock.ProductID] = stock
	}
	return nil
}

func (r *inventoryRepository) ListLowStock(ctx context.Context, threshold int, limit int) ([]domain.InventoryStock, error) {
	data, release := r.store.view(ctx)
	defer release()

	var out []domain.InventoryStock
	for _, stock := range data.stocks {
		if stock.Available <= threshold {
			out = append(out, stock)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Available != out[j].Available {
			return out[i].Available < out[j].Available
		}
		return out[i].ProductID < out[j].ProductID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
