package memory

import (
	"context"
	"sort"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

type catalogRepository struct {
	store *Store
}

func (r *catalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	data, release := r.store.view(ctx)
	defer release()

	product, ok := data.products[productID]
	if !ok {
		return domain.Product{}, repositories.NotFound("catalog.getProduct", "product "+productID+" not found")
	}
	product.PromotionIDs = append([]string(nil), product.PromotionIDs...)
	return product, nil
}

func (r *catalogRepository) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	data, release := r.store.view(ctx)
	defer release()

	out := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if product, ok := data.products[id]; ok {
			product.PromotionIDs = append([]string(nil), product.PromotionIDs...)
			out[id] = product
		}
	}
	return out, nil
}

func (r *catalogRepository) ListPromotionsForProduct(ctx context.Context, productID string) ([]domain.Promotion, error) {
	data, release := r.store.view(ctx)
	defer release()

	var out []domain.Promotion
	for _, promo := range data.promotions {
		if containsString(promo.ProductIDs, productID) {
			promo.ProductIDs = append([]string(nil), promo.ProductIDs...)
			out = append(out, promo)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *catalogRepository) SaveProduct(ctx context.Context, product domain.Product) error {
	data, release := r.store.view(ctx)
	defer release()

	product.PromotionIDs = append([]string(nil), product.PromotionIDs...)
	data.products[product.ID] = product
	return nil
}

func (r *catalogRepository) SavePromotion(ctx context.Context, promotion domain.Promotion) error {
	data, release := r.store.view(ctx)
	defer release()

	for _, other := range data.promotions {
		if other.ID != promotion.ID && other.Code == promotion.Code && promotion.Code != "" {
			return repositories.NewStoreError("catalog.savePromotion", repositories.StoreErrorConflict, "promotion code "+promotion.Code+" already exists", nil)
		}
	}
	promotion.ProductIDs = append([]string(nil), promotion.ProductIDs...)
	data.promotions[promotion.ID] = promotion
	return nil
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
