package memory

import (
	"context"
	"sort"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

type orderRepository struct {
	store *Store
}

func (r *orderRepository) InsertOrder(ctx context.Context, order domain.Order) error {
	data, release := r.store.view(ctx)
	defer release()

	if _, exists := data.orders[order.ID]; exists {
		return repositories.NewStoreError("orders.insert", repositories.StoreErrorConflict, "order "+order.ID+" already exists", nil)
	}
	data.orders[order.ID] = order.Clone()
	return nil
}

func (r *orderRepository) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	data, release := r.store.view(ctx)
	defer release()

	order, ok := data.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NotFound("orders.get", "order "+orderID+" not found")
	}
	return order.Clone(), nil
}

func (r *orderRepository) UpdateOrder(ctx context.Context, order domain.Order) error {
	data, release := r.store.view(ctx)
	defer release()

	if _, ok := data.orders[order.ID]; !ok {
		return repositories.NotFound("orders.update", "order "+order.ID+" not found")
	}
	data.orders[order.ID] = order.Clone()
	return nil
}

func (r *orderRepository) ListOrders(ctx context.Context, query repositories.OrderListQuery) ([]domain.Order, error) {
	data, release := r.store.view(ctx)
	defer release()

	var out []domain.Order
	for _, order := range data.orders {
		if query.UserID != "" && order.UserID != query.UserID {
			continue
		}
		if query.Status != "" && order.Status != query.Status {
			continue
		}
		if query.CreatedBefore != nil && !order.CreatedAt.Before(*query.CreatedBefore) {
			continue
		}
		out = append(out, order.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}
