package memory

import (
	"context"
	"sort"
	"time"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

type cartRepository struct {
	store *Store
}

func (r *cartRepository) LoadCart(ctx context.Context, userID string) (domain.Cart, error) {
	data, release := r.store.view(ctx)
	defer release()

	cart, ok := data.carts[userID]
	if !ok {
		return domain.Cart{UserID: userID}, nil
	}
	return cart.Clone(), nil
}

func (r *cartRepository) SaveCart(ctx context.Context, cart domain.Cart) error {
	data, release := r.store.view(ctx)
	defer release()

	data.carts[cart.UserID] = cart.Clone()
	return nil
}

func (r *cartRepository) FindLineOwner(ctx context.Context, lineID string) (string, error) {
	data, release := r.store.view(ctx)
	defer release()

	for userID, cart := range data.carts {
		if cart.FindLine(lineID) >= 0 {
			return userID, nil
		}
	}
	return "", repositories.NotFound("carts.findLineOwner", "cart line "+lineID+" not found")
}

func (r *cartRepository) ListStaleCarts(ctx context.Context, before time.Time, limit int) ([]domain.Cart, error) {
	data, release := r.store.view(ctx)
	defer release()

	var out []domain.Cart
	for _, cart := range data.carts {
		if len(cart.Lines) == 0 || !cart.UpdatedAt.Before(before) {
			continue
		}
		out = append(out, cart.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
