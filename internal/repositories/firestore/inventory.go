package firestore

import (
	"context"
	"sort"

	"cloud.google.com/go/firestore"

	domain "github.com/orderflow/api/internal/domain"
	pfirestore "github.com/orderflow/api/internal/platform/firestore"
)

const inventoryCollection = "inventory"

// InventoryRepository stores one stock document per product, keyed by product id.
type InventoryRepository struct {
	stocks *pfirestore.Collection[stockDocument]
}

// NewInventoryRepository binds the inventory collection.
func NewInventoryRepository(provider *pfirestore.Provider) *InventoryRepository {
	return &InventoryRepository{stocks: pfirestore.NewCollection[stockDocument](provider, inventoryCollection)}
}

// GetStocks reads the records in product id order so concurrent transactions lock them in the
// same sequence.
func (r *InventoryRepository) GetStocks(ctx context.Context, productIDs []string) (map[string]domain.InventoryStock, error) {
	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)

	docs, err := r.stocks.GetAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.InventoryStock, len(docs))
	for id, doc := range docs {
		out[id] = doc.toDomain(id)
	}
	return out, nil
}

func (r *InventoryRepository) PutStocks(ctx context.Context, stocks []domain.InventoryStock) error {
	for _, stock := range stocks {
		if err := r.stocks.Set(ctx, stock.ProductID, newStockDocument(stock)); err != nil {
			return err
		}
	}
	return nil
}

// ListLowStock relies on the composite index (available ASC, productId ASC).
func (r *InventoryRepository) ListLowStock(ctx context.Context, threshold int, limit int) ([]domain.InventoryStock, error) {
	docs, err := r.stocks.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("available", "<=", threshold).
			OrderBy("available", firestore.Asc).
			OrderBy("productId", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.InventoryStock, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}
