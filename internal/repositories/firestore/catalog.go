package firestore

import (
	"context"
	"sort"

	"cloud.google.com/go/firestore"

	domain "github.com/orderflow/api/internal/domain"
	pfirestore "github.com/orderflow/api/internal/platform/firestore"
)

const (
	productsCollection   = "products"
	promotionsCollection = "promotions"
)

// CatalogRepository reads products and promotions. Catalog reads never join the caller's
// transaction; checkout only needs a consistent view of stock and carts.
type CatalogRepository struct {
	products   *pfirestore.Collection[productDocument]
	promotions *pfirestore.Collection[promotionDocument]
}

// NewCatalogRepository binds the catalog collections.
func NewCatalogRepository(provider *pfirestore.Provider) *CatalogRepository {
	return &CatalogRepository{
		products:   pfirestore.NewCollection[productDocument](provider, productsCollection),
		promotions: pfirestore.NewCollection[promotionDocument](provider, promotionsCollection),
	}
}

func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	doc, ok, err := r.products.Get(withoutTx(ctx), productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !ok {
		return domain.Product{}, pfirestore.NotFoundError("products.get", "product "+productID+" not found")
	}
	return doc.toDomain(productID), nil
}

func (r *CatalogRepository) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	docs, err := r.products.GetAll(withoutTx(ctx), productIDs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Product, len(docs))
	for id, doc := range docs {
		out[id] = doc.toDomain(id)
	}
	return out, nil
}

func (r *CatalogRepository) ListPromotionsForProduct(ctx context.Context, productID string) ([]domain.Promotion, error) {
	docs, err := r.promotions.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("productIds", "array-contains", productID)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Promotion, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *CatalogRepository) SaveProduct(ctx context.Context, product domain.Product) error {
	return r.products.Set(ctx, product.ID, newProductDocument(product))
}

// SavePromotion rejects a code already used by another promotion.
func (r *CatalogRepository) SavePromotion(ctx context.Context, promotion domain.Promotion) error {
	if promotion.Code != "" {
		existing, err := r.promotions.Query(ctx, func(q firestore.Query) firestore.Query {
			return q.Where("code", "==", promotion.Code).Limit(2)
		})
		if err != nil {
			return err
		}
		for _, doc := range existing {
			if doc.ID != promotion.ID {
				return pfirestore.ConflictError("promotions.save", "promotion code "+promotion.Code+" already exists")
			}
		}
	}
	return r.promotions.Set(ctx, promotion.ID, newPromotionDocument(promotion))
}

// withoutTx strips the transaction so catalog lookups never count as transactional reads.
func withoutTx(ctx context.Context) context.Context {
	if _, ok := pfirestore.TxFromContext(ctx); !ok {
		return ctx
	}
	return pfirestore.DetachTx(ctx)
}
