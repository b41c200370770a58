package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

const productColumns = `p.id, p.name, p.base_price::text, p.active, p.category_id,
	p.custom_text_cost::text, p.custom_number_cost::text, p.patch_cost::text,
	p.created_at, p.updated_at,
	ARRAY(SELECT pp.promotion_id FROM promotion_products pp WHERE pp.product_id = p.id ORDER BY pp.promotion_id)`

// CatalogRepository reads products and promotions.
type CatalogRepository struct {
	db db
}

func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	row := r.db.conn(ctx).QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, productID)
	product, err := scanProduct(row)
	if err != nil {
		if errorsIsNoRows(err) {
			return domain.Product{}, repositories.NotFound("catalog.getProduct", "product "+productID+" not found")
		}
		return domain.Product{}, wrapError("catalog.getProduct", err)
	}
	return product, nil
}

func (r *CatalogRepository) GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	rows, err := r.db.conn(ctx).Query(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = ANY($1)`, productIDs)
	if err != nil {
		return nil, wrapError("catalog.getProducts", err)
	}
	defer rows.Close()
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, wrapError("catalog.getProducts", err)
		}
		out[product.ID] = product
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("catalog.getProducts", err)
	}
	return out, nil
}

func (r *CatalogRepository) ListPromotionsForProduct(ctx context.Context, productID string) ([]domain.Promotion, error) {
	rows, err := r.db.conn(ctx).Query(ctx, `
		SELECT pr.id, pr.code, pr.description, pr.discount_percent::text, pr.active, pr.starts_at, pr.ends_at,
			ARRAY(SELECT x.product_id FROM promotion_products x WHERE x.promotion_id = pr.id ORDER BY x.product_id)
		FROM promotions pr
		JOIN promotion_products pp ON pp.promotion_id = pr.id
		WHERE pp.product_id = $1
		ORDER BY pr.id`, productID)
	if err != nil {
		return nil, wrapError("catalog.listPromotions", err)
	}
	defer rows.Close()

	var out []domain.Promotion
	for rows.Next() {
		var (
			promo   domain.Promotion
			percent string
		)
		if err := rows.Scan(&promo.ID, &promo.Code, &promo.Description, &percent, &promo.Active, &promo.StartsAt, &promo.EndsAt, &promo.ProductIDs); err != nil {
			return nil, wrapError("catalog.listPromotions", err)
		}
		promo.DiscountPercent = parseAmount(percent)
		out = append(out, promo)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("catalog.listPromotions", err)
	}
	return out, nil
}

// SaveProduct upserts the product row. Promotion links are owned by SavePromotion.
func (r *CatalogRepository) SaveProduct(ctx context.Context, product domain.Product) error {
	_, err := r.db.conn(ctx).Exec(ctx, `
		INSERT INTO products (id, name, base_price, active, category_id, custom_text_cost, custom_number_cost, patch_cost, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			base_price = EXCLUDED.base_price,
			active = EXCLUDED.active,
			category_id = EXCLUDED.category_id,
			custom_text_cost = EXCLUDED.custom_text_cost,
			custom_number_cost = EXCLUDED.custom_number_cost,
			patch_cost = EXCLUDED.patch_cost,
			updated_at = EXCLUDED.updated_at`,
		product.ID, product.Name, moneyText(product.BasePrice), product.Active, product.CategoryID,
		moneyText(product.Personalization.CustomTextCost), moneyText(product.Personalization.CustomNumberCost),
		moneyText(product.Personalization.PatchCost), product.CreatedAt.UTC(), product.UpdatedAt.UTC())
	return wrapError("catalog.saveProduct", err)
}

// SavePromotion upserts the promotion and replaces its product links. A duplicate code is a conflict.
func (r *CatalogRepository) SavePromotion(ctx context.Context, promotion domain.Promotion) error {
	return r.db.atomic(ctx, "catalog.savePromotion", func(q querier) error {
		batch := &pgx.Batch{}
		batch.Queue(`
			INSERT INTO promotions (id, code, description, discount_percent, active, starts_at, ends_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO UPDATE SET
				code = EXCLUDED.code,
				description = EXCLUDED.description,
				discount_percent = EXCLUDED.discount_percent,
				active = EXCLUDED.active,
				starts_at = EXCLUDED.starts_at,
				ends_at = EXCLUDED.ends_at`,
			promotion.ID, promotion.Code, promotion.Description, promotion.DiscountPercent.String(),
			promotion.Active, promotion.StartsAt.UTC(), promotion.EndsAt.UTC())
		batch.Queue(`DELETE FROM promotion_products WHERE promotion_id = $1`, promotion.ID)
		for _, productID := range promotion.ProductIDs {
			batch.Queue(`INSERT INTO promotion_products (promotion_id, product_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, promotion.ID, productID)
		}
		return execBatch(ctx, q, "catalog.savePromotion", batch)
	})
}

func scanProduct(row pgx.Row) (domain.Product, error) {
	var (
		product                   domain.Product
		base, text, number, patch    string
	)
	if err := row.Scan(&product.ID, &product.Name, &base, &product.Active, &product.CategoryID,
		&text, &number, &patch, &product.CreatedAt, &product.UpdatedAt, &product.PromotionIDs); err != nil {
		return domain.Product{}, err
	}
	product.BasePrice = parseAmount(base)
	product.Personalization = domain.PersonalizationPricing{
		CustomTextCost:   parseAmount(text),
		CustomNumberCost: parseAmount(number),
		PatchCost:        parseAmount(patch),
	}
	return product, nil
}
