package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/orderflow/api/internal/domain"
	pfirestore "github.com/orderflow/api/internal/platform/firestore"
)

const cartsCollection = "carts"

// CartRepository stores each user's cart as one document keyed by user id, lines embedded.
type CartRepository struct {
	carts *pfirestore.Collection[cartDocument]
}

// NewCartRepository binds the carts collection.
func NewCartRepository(provider *pfirestore.Provider) *CartRepository {
	return &CartRepository{carts: pfirestore.NewCollection[cartDocument](provider, cartsCollection)}
}

func (r *CartRepository) LoadCart(ctx context.Context, userID string) (domain.Cart, error) {
	doc, ok, err := r.carts.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	if !ok {
		return domain.Cart{UserID: userID}, nil
	}
	return doc.toDomain(userID), nil
}

func (r *CartRepository) SaveCart(ctx context.Context, cart domain.Cart) error {
	return r.carts.Set(ctx, cart.UserID, newCartDocument(cart))
}

func (r *CartRepository) FindLineOwner(ctx context.Context, lineID string) (string, error) {
	docs, err := r.carts.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("lineIds", "array-contains", lineID).Limit(1)
	})
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", pfirestore.NotFoundError("carts.findLineOwner", "cart line "+lineID+" not found")
	}
	return docs[0].ID, nil
}

// ListStaleCarts needs the composite index (hasLines, updatedAt).
func (r *CartRepository) ListStaleCarts(ctx context.Context, before time.Time, limit int) ([]domain.Cart, error) {
	docs, err := r.carts.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("hasLines", "==", true).
			Where("updatedAt", "<", before.UTC()).
			OrderBy("updatedAt", firestore.Asc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	carts := make([]domain.Cart, 0, len(docs))
	for _, doc := range docs {
		carts = append(carts, doc.Data.toDomain(doc.ID))
	}
	return carts, nil
}
