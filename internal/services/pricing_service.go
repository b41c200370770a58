package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

const eventPricingInvalidPromotion = "pricing.invalid_promotion"

// PromotionSource lists the promotions referencing a product.
type PromotionSource interface {
	ListPromotionsForProduct(ctx context.Context, productID string) ([]domain.Promotion, error)
}

// PricingServiceDeps wires the promotion source and logging for price resolution.
type PricingServiceDeps struct {
	Promotions PromotionSource
	Logger     func(context.Context, string, map[string]any)
}

type pricingService struct {
	promotions PromotionSource
	logger     func(context.Context, string, map[string]any)
}

// NewPricingService constructs a PricingService.
func NewPricingService(deps PricingServiceDeps) (PricingService, error) {
	if deps.Promotions == nil {
		return nil, errors.New("pricing service: promotion source is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &pricingService{promotions: deps.Promotions, logger: logger}, nil
}

// EffectivePrice applies the best promotion active at now to the product's base price.
func (s *pricingService) EffectivePrice(ctx context.Context, product Product, now time.Time) (PriceQuote, error) {
	promotions, err := s.promotions.ListPromotionsForProduct(ctx, product.ID)
	if err != nil {
		return PriceQuote{}, translateRepoError(err, "list promotions for product "+product.ID)
	}
	return s.resolve(ctx, product, promotions, now), nil
}

// QuoteLine prices quantity units of product. Personalization extras are added after the
// discount so they are never discounted.
func (s *pricingService) QuoteLine(ctx context.Context, product Product, personalization Personalization, quantity int, now time.Time) (LineQuote, error) {
	if quantity < 1 {
		return LineQuote{}, ErrInvalidQuantity
	}
	quote, err := s.EffectivePrice(ctx, product, now)
	if err != nil {
		return LineQuote{}, err
	}
	return buildLineQuote(quote, personalization.ExtraCost(product.Personalization), quantity), nil
}

func buildLineQuote(quote PriceQuote, extras decimal.Decimal, quantity int) LineQuote {
	unitBase := domain.RoundMoney(quote.BasePrice.Add(extras))
	unitFinal := domain.RoundMoney(quote.FinalPrice.Add(extras))
	subtotal, discount := domain.LineTotals(unitBase, unitFinal, quantity)
	return LineQuote{
		Quote:          quote,
		Quantity:       quantity,
		Extras:         extras,
		UnitPriceBase:  unitBase,
		UnitPriceFinal: unitFinal,
		Subtotal:       subtotal,
		Discount:       discount,
	}
}

func (s *pricingService) resolve(ctx context.Context, product Product, promotions []domain.Promotion, now time.Time) PriceQuote {
	quote := PriceQuote{
		ProductID:       product.ID,
		BasePrice:       domain.RoundMoney(product.BasePrice),
		FinalPrice:      domain.RoundMoney(product.BasePrice),
		DiscountPercent: decimal.Zero,
	}

	best, ok := s.bestPromotion(ctx, product.ID, promotions, now)
	if !ok {
		return quote
	}
	quote.FinalPrice = domain.ApplyDiscount(product.BasePrice, best.DiscountPercent)
	quote.DiscountPercent = best.DiscountPercent
	quote.PromotionID = best.ID
	quote.PromotionCode = best.Code
	return quote
}

// bestPromotion picks the highest valid discount active at now; ties go to the lowest id.
func (s *pricingService) bestPromotion(ctx context.Context, productID string, promotions []domain.Promotion, now time.Time) (domain.Promotion, bool) {
	var (
		best  domain.Promotion
		found bool
	)
	for _, promo := range promotions {
		if !promo.ActiveAt(now) {
			continue
		}
		if !domain.ValidDiscountPercent(promo.DiscountPercent) {
			s.logger(ctx, eventPricingInvalidPromotion, map[string]any{
				"productId":       productID,
				"promotionId":     promo.ID,
				"discountPercent": promo.DiscountPercent.String(),
			})
			continue
		}
		if !found {
			best, found = promo, true
			continue
		}
		switch promo.DiscountPercent.Cmp(best.DiscountPercent) {
		case 1:
			best = promo
		case 0:
			if strings.Compare(promo.ID, best.ID) < 0 {
				best = promo
			}
		}
	}
	return best, found
}

// catalogPromotions adapts the catalog repository to PromotionSource.
type catalogPromotions struct {
	repo repositories.CatalogRepository
}

// PromotionsFromCatalog exposes a catalog repository as a PromotionSource.
func PromotionsFromCatalog(repo repositories.CatalogRepository) PromotionSource {
	return catalogPromotions{repo: repo}
}

func (c catalogPromotions) ListPromotionsForProduct(ctx context.Context, productID string) ([]domain.Promotion, error) {
	return c.repo.ListPromotionsForProduct(ctx, productID)
}
