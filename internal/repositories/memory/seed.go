package memory

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	domain "github.com/orderflow/api/internal/domain"
)

// Seed describes the catalog, promotions and stock loaded into a fresh store.
type Seed struct {
	Products   []SeedProduct   `yaml:"products"`
	Promotions []SeedPromotion `yaml:"promotions"`
}

// SeedProduct is a product entry with its opening stock.
type SeedProduct struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	BasePrice        string `yaml:"basePrice"`
	Active           *bool  `yaml:"active"`
	CategoryID       string `yaml:"categoryId"`
	Stock            int    `yaml:"stock"`
	CustomTextCost   string `yaml:"customTextCost"`
	CustomNumberCost string `yaml:"customNumberCost"`
	PatchCost        string `yaml:"patchCost"`
}

// SeedPromotion is a promotion entry.
type SeedPromotion struct {
	ID              string    `yaml:"id"`
	Code            string    `yaml:"code"`
	Description     string    `yaml:"description"`
	DiscountPercent string    `yaml:"discountPercent"`
	Active          *bool     `yaml:"active"`
	StartsAt        time.Time `yaml:"startsAt"`
	EndsAt          time.Time `yaml:"endsAt"`
	ProductIDs      []string  `yaml:"productIds"`
}

// LoadSeedFile reads a YAML seed document from path.
func LoadSeedFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, fmt.Errorf("memory: open seed file: %w", err)
	}
	defer f.Close()
	return DecodeSeed(f)
}

// DecodeSeed parses a YAML seed document.
func DecodeSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && err != io.EOF {
		return Seed{}, fmt.Errorf("memory: decode seed: %w", err)
	}
	return seed, nil
}

// Apply writes the seed into the store in a single transaction.
func (s *Store) Apply(ctx context.Context, seed Seed, now time.Time) error {
	now = now.UTC()
	products := make([]domain.Product, 0, len(seed.Products))
	stocks := make([]domain.InventoryStock, 0, len(seed.Products))
	for _, sp := range seed.Products {
		product, err := sp.toDomain(now)
		if err != nil {
			return err
		}
		products = append(products, product)
		stocks = append(stocks, domain.InventoryStock{ProductID: product.ID, OnHand: sp.Stock, UpdatedAt: now})
	}

	promotions := make([]domain.Promotion, 0, len(seed.Promotions))
	for _, sp := range seed.Promotions {
		promo, err := sp.toDomain()
		if err != nil {
			return err
		}
		promotions = append(promotions, promo)
	}

	return s.RunInTx(ctx, func(txCtx context.Context) error {
		byID := make(map[string]int, len(products))
		for i, product := range products {
			byID[product.ID] = i
		}
		for _, promo := range promotions {
			for _, productID := range promo.ProductIDs {
				idx, ok := byID[productID]
				if !ok {
					continue
				}
				products[idx].PromotionIDs = append(products[idx].PromotionIDs, promo.ID)
			}
			if err := s.catalog.SavePromotion(txCtx, promo); err != nil {
				return err
			}
		}
		for _, product := range products {
			if err := s.catalog.SaveProduct(txCtx, product); err != nil {
				return err
			}
		}
		return s.inventory.PutStocks(txCtx, stocks)
	})
}

func (sp SeedProduct) toDomain(now time.Time) (domain.Product, error) {
	id := strings.TrimSpace(sp.ID)
	if id == "" {
		return domain.Product{}, fmt.Errorf("memory: seed product missing id")
	}
	price, err := decimal.NewFromString(strings.TrimSpace(sp.BasePrice))
	if err != nil {
		return domain.Product{}, fmt.Errorf("memory: seed product %s: basePrice: %w", id, err)
	}
	if !price.IsPositive() {
		return domain.Product{}, fmt.Errorf("memory: seed product %s: basePrice must be positive", id)
	}
	if sp.Stock < 0 {
		return domain.Product{}, fmt.Errorf("memory: seed product %s: stock must be >= 0", id)
	}

	var pricing domain.PersonalizationPricing
	for _, field := range []struct {
		name  string
		raw   string
		value *decimal.Decimal
	}{
		{"customTextCost", sp.CustomTextCost, &pricing.CustomTextCost},
		{"customNumberCost", sp.CustomNumberCost, &pricing.CustomNumberCost},
		{"patchCost", sp.PatchCost, &pricing.PatchCost},
	} {
		if strings.TrimSpace(field.raw) == "" {
			continue
		}
		v, err := decimal.NewFromString(strings.TrimSpace(field.raw))
		if err != nil || v.IsNegative() {
			return domain.Product{}, fmt.Errorf("memory: seed product %s: %s must be a non-negative amount", id, field.name)
		}
		*field.value = domain.RoundMoney(v)
	}

	return domain.Product{
		ID:              id,
		Name:            sp.Name,
		BasePrice:       domain.RoundMoney(price),
		Active:          sp.Active == nil || *sp.Active,
		CategoryID:      sp.CategoryID,
		Personalization: pricing,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (sp SeedPromotion) toDomain() (domain.Promotion, error) {
	id := strings.TrimSpace(sp.ID)
	if id == "" {
		return domain.Promotion{}, fmt.Errorf("memory: seed promotion missing id")
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(sp.DiscountPercent))
	if err != nil {
		return domain.Promotion{}, fmt.Errorf("memory: seed promotion %s: discountPercent: %w", id, err)
	}
	return domain.Promotion{
		ID:              id,
		Code:            sp.Code,
		Description:     sp.Description,
		DiscountPercent: pct,
		Active:          sp.Active == nil || *sp.Active,
		StartsAt:        sp.StartsAt.UTC(),
		EndsAt:          sp.EndsAt.UTC(),
		ProductIDs:      append([]string(nil), sp.ProductIDs...),
	}, nil
}
