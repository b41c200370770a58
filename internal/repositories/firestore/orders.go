package firestore

import (
	"context"

	"cloud.google.com/go/firestore"

	domain "github.com/orderflow/api/internal/domain"
	pfirestore "github.com/orderflow/api/internal/platform/firestore"
	"github.com/orderflow/api/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository stores an order with its frozen lines, payment and shipment in one document.
type OrderRepository struct {
	orders *pfirestore.Collection[orderDocument]
}

// NewOrderRepository binds the orders collection.
func NewOrderRepository(provider *pfirestore.Provider) *OrderRepository {
	return &OrderRepository{orders: pfirestore.NewCollection[orderDocument](provider, ordersCollection)}
}

func (r *OrderRepository) InsertOrder(ctx context.Context, order domain.Order) error {
	return r.orders.Create(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	doc, ok, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !ok {
		return domain.Order{}, pfirestore.NotFoundError("orders.get", "order "+orderID+" not found")
	}
	return doc.toDomain(orderID), nil
}

func (r *OrderRepository) UpdateOrder(ctx context.Context, order domain.Order) error {
	return r.orders.Set(ctx, order.ID, newOrderDocument(order))
}

// ListOrders filters by the optional user, status and cutoff and returns newest first.
func (r *OrderRepository) ListOrders(ctx context.Context, query repositories.OrderListQuery) ([]domain.Order, error) {
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if query.UserID != "" {
			q = q.Where("userId", "==", query.UserID)
		}
		if query.Status != "" {
			q = q.Where("status", "==", string(query.Status))
		}
		if query.CreatedBefore != nil {
			q = q.Where("createdAt", "<", query.CreatedBefore.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc)
		if query.Limit > 0 {
			q = q.Limit(query.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}
