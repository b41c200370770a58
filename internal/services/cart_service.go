package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartCatalogRequired    = errors.New("cart service: catalog repository is required")
	errCartInventoryRequired  = errors.New("cart service: inventory service is required")
	errCartPricingRequired    = errors.New("cart service: pricing service is required")
)

const (
	maxCustomTextLength = 40
	maxCustomNumber     = 999
	maxLineQuantity     = 999

	defaultCartHoldTTL     = 48 * time.Hour
	defaultCartExpireBatch = 100

	eventCartUnavailableLine    = "cart.unavailable_line"
	eventCartHoldsExpired       = "cart.holds_expired"
	eventCartHoldsExpireSkipped = "cart.holds_expire_skipped"
	eventCartExpireFinished     = "cart.holds_expire_finished"
)

// CartServiceDeps wires the repositories and collaborating services for cart operations.
type CartServiceDeps struct {
	Carts       repositories.CartRepository
	Catalog     repositories.CatalogRepository
	Inventory   InventoryService
	Pricing     PricingService
	UnitOfWork  repositories.UnitOfWork
	Sanitizer   TextSanitizer
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type cartService struct {
	carts     repositories.CartRepository
	catalog   repositories.CatalogRepository
	inventory InventoryService
	pricing   PricingService
	uow       repositories.UnitOfWork
	sanitizer TextSanitizer
	newID     func() string
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errCartRepositoryRequired
	case deps.Catalog == nil:
		return nil, errCartCatalogRequired
	case deps.Inventory == nil:
		return nil, errCartInventoryRequired
	case deps.Pricing == nil:
		return nil, errCartPricingRequired
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	uow := deps.UnitOfWork
	if uow == nil {
		uow = noopUnitOfWork{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		carts:     deps.Carts,
		catalog:   deps.Catalog,
		inventory: deps.Inventory,
		pricing:   deps.Pricing,
		uow:       uow,
		sanitizer: deps.Sanitizer,
		newID:     idGen,
		now:       func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

// GetCart returns the caller's cart, creating it on first access.
func (s *cartService) GetCart(ctx context.Context, userID string) (CartView, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return CartView{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	var cart Cart
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.load(txCtx, uid)
		if err != nil {
			return err
		}
		if loaded.CreatedAt.IsZero() {
			now := s.now()
			loaded.CreatedAt = now
			loaded.UpdatedAt = now
			if err := s.carts.SaveCart(txCtx, loaded); err != nil {
				return translateRepoError(err, "create cart")
			}
		}
		cart = loaded
		return nil
	})
	if err != nil {
		return CartView{}, err
	}
	return s.view(ctx, cart)
}

// AddItem merges the units into an identical line (same product and personalization) or appends
// a new line, holding stock for the added units.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	uid := strings.TrimSpace(cmd.UserID)
	productID := strings.TrimSpace(cmd.ProductID)
	if uid == "" || productID == "" {
		return CartView{}, fmt.Errorf("%w: user id and product id are required", ErrInvalidInput)
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxLineQuantity {
		return CartView{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidQuantity, maxLineQuantity)
	}
	personalization, err := s.normalisePersonalization(cmd.Personalization)
	if err != nil {
		return CartView{}, err
	}

	var cart Cart
	err = s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.load(txCtx, uid)
		if err != nil {
			return err
		}
		product, err := s.catalog.GetProduct(txCtx, productID)
		if err != nil {
			return translateRepoError(err, "product "+productID)
		}
		if !product.Active {
			return fmt.Errorf("%w: product %s is not available", ErrNotFound, productID)
		}

		held := heldQuantity(loaded, productID)
		existing := -1
		for i, line := range loaded.Lines {
			if line.ProductID == productID && line.Personalization.Equal(personalization) {
				existing = i
				break
			}
		}
		needed := cmd.Quantity
		if existing >= 0 {
			needed += loaded.Lines[existing].Quantity
			if needed > maxLineQuantity {
				return fmt.Errorf("%w: quantity must not exceed %d", ErrInvalidQuantity, maxLineQuantity)
			}
		}

		if err := s.inventory.Reserve(txCtx, []InventoryLine{{ProductID: productID, Quantity: cmd.Quantity}}); err != nil {
			return cartStockError(err, productID, held+cmd.Quantity, held)
		}

		now := s.now()
		if existing >= 0 {
			loaded.Lines[existing].Quantity = needed
			loaded.Lines[existing].UpdatedAt = now
		} else {
			loaded.Lines = append(loaded.Lines, CartLine{
				ID:              s.newID(),
				ProductID:       productID,
				Quantity:        cmd.Quantity,
				Personalization: personalization,
				AddedAt:         now,
				UpdatedAt:       now,
			})
		}
		loaded.UpdatedAt = now
		if loaded.CreatedAt.IsZero() {
			loaded.CreatedAt = now
		}
		if err := s.carts.SaveCart(txCtx, loaded); err != nil {
			return translateRepoError(err, "save cart")
		}
		cart = loaded
		return nil
	})
	if err != nil {
		return CartView{}, err
	}
	return s.view(ctx, cart)
}

// UpdateQuantity sets the quantity of a line in the caller's cart, adjusting its hold.
func (s *cartService) UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	uid := strings.TrimSpace(cmd.UserID)
	lineID := strings.TrimSpace(cmd.LineID)
	if uid == "" || lineID == "" {
		return CartView{}, fmt.Errorf("%w: user id and line id are required", ErrInvalidInput)
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxLineQuantity {
		return CartView{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidQuantity, maxLineQuantity)
	}

	var cart Cart
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.load(txCtx, uid)
		if err != nil {
			return err
		}
		idx := loaded.FindLine(lineID)
		if idx < 0 {
			return s.missingLine(txCtx, uid, lineID)
		}
		line := loaded.Lines[idx]
		delta := cmd.Quantity - line.Quantity
		switch {
		case delta > 0:
			if err := s.inventory.Reserve(txCtx, []InventoryLine{{ProductID: line.ProductID, Quantity: delta}}); err != nil {
				held := heldQuantity(loaded, line.ProductID)
				return cartStockError(err, line.ProductID, held+delta, held)
			}
		case delta < 0:
			if err := s.inventory.Release(txCtx, []InventoryLine{{ProductID: line.ProductID, Quantity: -delta}}); err != nil {
				return err
			}
		default:
			cart = loaded
			return nil
		}

		now := s.now()
		loaded.Lines[idx].Quantity = cmd.Quantity
		loaded.Lines[idx].UpdatedAt = now
		loaded.UpdatedAt = now
		if err := s.carts.SaveCart(txCtx, loaded); err != nil {
			return translateRepoError(err, "save cart")
		}
		cart = loaded
		return nil
	})
	if err != nil {
		return CartView{}, err
	}
	return s.view(ctx, cart)
}

// RemoveItem deletes a line from the caller's cart and drops its hold.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error) {
	uid := strings.TrimSpace(cmd.UserID)
	lineID := strings.TrimSpace(cmd.LineID)
	if uid == "" || lineID == "" {
		return CartView{}, fmt.Errorf("%w: user id and line id are required", ErrInvalidInput)
	}

	var cart Cart
	err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
		loaded, err := s.load(txCtx, uid)
		if err != nil {
			return err
		}
		idx := loaded.FindLine(lineID)
		if idx < 0 {
			return s.missingLine(txCtx, uid, lineID)
		}
		line := loaded.Lines[idx]
		if err := s.inventory.Release(txCtx, []InventoryLine{{ProductID: line.ProductID, Quantity: line.Quantity}}); err != nil {
			return err
		}

		loaded.Lines = append(loaded.Lines[:idx], loaded.Lines[idx+1:]...)
		loaded.UpdatedAt = s.now()
		if err := s.carts.SaveCart(txCtx, loaded); err != nil {
			return translateRepoError(err, "save cart")
		}
		cart = loaded
		return nil
	})
	if err != nil {
		return CartView{}, err
	}
	return s.view(ctx, cart)
}

// load reads the cart without writing. A cart that was never saved has a zero CreatedAt, which
// is stamped here and persisted by the caller's write.
func (s *cartService) load(ctx context.Context, userID string) (Cart, error) {
	cart, err := s.carts.LoadCart(ctx, userID)
	if err != nil {
		return Cart{}, translateRepoError(err, "load cart")
	}
	cart.UserID = userID
	return cart, nil
}

// view prices every line against the current catalog and promotions.
func (s *cartService) view(ctx context.Context, cart Cart) (CartView, error) {
	ids := make([]string, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		ids = append(ids, line.ProductID)
	}
	products, err := s.catalog.GetProducts(ctx, uniqueSorted(ids))
	if err != nil {
		return CartView{}, translateRepoError(err, "load products")
	}

	now := s.now()
	view := CartView{
		UserID:    cart.UserID,
		Lines:     make([]CartLineView, 0, len(cart.Lines)),
		Total:     decimal.Zero,
		UpdatedAt: cart.UpdatedAt,
	}
	for _, line := range cart.Lines {
		lv := CartLineView{
			LineID:          line.ID,
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			Personalization: line.Personalization,
			UnitPriceBase:   decimal.Zero,
			UnitPriceFinal:  decimal.Zero,
			DiscountPercent: decimal.Zero,
			Subtotal:        decimal.Zero,
			Discount:        decimal.Zero,
		}
		product, ok := products[line.ProductID]
		if !ok || !product.Active {
			s.logger(ctx, eventCartUnavailableLine, map[string]any{
				"userId":    cart.UserID,
				"lineId":    line.ID,
				"productId": line.ProductID,
			})
			lv.Unavailable = true
			view.Lines = append(view.Lines, lv)
			continue
		}

		quote, err := s.pricing.QuoteLine(ctx, product, line.Personalization, line.Quantity, now)
		if err != nil {
			return CartView{}, err
		}
		lv.ProductName = product.Name
		lv.UnitPriceBase = quote.UnitPriceBase
		lv.UnitPriceFinal = quote.UnitPriceFinal
		lv.DiscountPercent = quote.Quote.DiscountPercent
		lv.PromotionCode = quote.Quote.PromotionCode
		lv.Subtotal = quote.Subtotal
		lv.Discount = quote.Discount
		view.Lines = append(view.Lines, lv)
		view.Total = view.Total.Add(quote.Subtotal)
		view.ItemCount += line.Quantity
	}
	view.Total = domain.RoundMoney(view.Total)
	return view, nil
}

func (s *cartService) normalisePersonalization(p Personalization) (Personalization, error) {
	out := p.Clone()
	out.CustomText = strings.TrimSpace(out.CustomText)
	if out.CustomText != "" && s.sanitizer != nil {
		out.CustomText = s.sanitizer.Sanitize(out.CustomText)
	}
	if utf8.RuneCountInString(out.CustomText) > maxCustomTextLength {
		return Personalization{}, fmt.Errorf("%w: custom text must be at most %d characters", ErrInvalidInput, maxCustomTextLength)
	}
	if out.CustomNumber != nil && (*out.CustomNumber < 0 || *out.CustomNumber > maxCustomNumber) {
		return Personalization{}, fmt.Errorf("%w: custom number must be between 0 and %d", ErrInvalidInput, maxCustomNumber)
	}
	out.PatchID = strings.TrimSpace(out.PatchID)
	return out, nil
}

// heldQuantity sums the units the cart already holds for a product.
func heldQuantity(cart Cart, productID string) int {
	total := 0
	for _, line := range cart.Lines {
		if line.ProductID == productID {
			total += line.Quantity
		}
	}
	return total
}

// cartStockError restates a hold failure from the cart's point of view: the caller's own holds
// count as available to it.
func cartStockError(err error, productID string, requested, held int) error {
	var stockErr *StockError
	if errors.As(err, &stockErr) {
		return &StockError{ProductID: productID, Requested: requested, Available: stockErr.Available + held}
	}
	return err
}

// missingLine tells a line that exists nowhere apart from one sitting in another user's cart.
func (s *cartService) missingLine(ctx context.Context, userID, lineID string) error {
	owner, err := s.carts.FindLineOwner(ctx, lineID)
	switch {
	case repositories.IsNotFound(err):
		return fmt.Errorf("%w: cart line %s", ErrNotFound, lineID)
	case err != nil:
		return translateRepoError(err, "find cart line "+lineID)
	case owner != userID:
		return fmt.Errorf("%w: cart line %s", ErrNotOwned, lineID)
	}
	return fmt.Errorf("%w: cart line %s", ErrNotFound, lineID)
}

// ExpireStaleHolds empties carts untouched for longer than OlderThan and returns their held stock.
// Each cart is re-read in its own transaction and skipped when it changed after the listing.
func (s *cartService) ExpireStaleHolds(ctx context.Context, cmd ExpireCartHoldsCommand) (ExpireCartHoldsResult, error) {
	olderThan := cmd.OlderThan
	if olderThan <= 0 {
		olderThan = defaultCartHoldTTL
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultCartExpireBatch
	}
	cutoff := s.now().Add(-olderThan)

	stale, err := s.carts.ListStaleCarts(ctx, cutoff, limit)
	if err != nil {
		return ExpireCartHoldsResult{}, translateRepoError(err, "list stale carts")
	}

	result := ExpireCartHoldsResult{Expired: []string{}, Skipped: []string{}}
	for _, candidate := range stale {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		var released int
		err := s.uow.RunInTx(ctx, func(txCtx context.Context) error {
			loaded, err := s.load(txCtx, candidate.UserID)
			if err != nil {
				return err
			}
			if len(loaded.Lines) == 0 || !loaded.UpdatedAt.Before(cutoff) {
				return fmt.Errorf("%w: cart %s changed since listing", ErrInvalidStatus, candidate.UserID)
			}
			holds := make([]InventoryLine, 0, len(loaded.Lines))
			for _, line := range loaded.Lines {
				holds = append(holds, InventoryLine{ProductID: line.ProductID, Quantity: line.Quantity})
				released += line.Quantity
			}
			if err := s.inventory.Release(txCtx, holds); err != nil {
				return err
			}
			loaded.Lines = nil
			loaded.UpdatedAt = s.now()
			if err := s.carts.SaveCart(txCtx, loaded); err != nil {
				return translateRepoError(err, "save cart")
			}
			return nil
		})
		if err != nil {
			if !isClientError(err) {
				return result, err
			}
			result.Skipped = append(result.Skipped, candidate.UserID)
			s.logger(ctx, eventCartHoldsExpireSkipped, map[string]any{"userId": candidate.UserID, "error": err.Error()})
			continue
		}
		result.Expired = append(result.Expired, candidate.UserID)
		s.logger(ctx, eventCartHoldsExpired, map[string]any{
			"userId":    candidate.UserID,
			"updatedAt": candidate.UpdatedAt,
			"released":  released,
		})
	}

	s.logger(ctx, eventCartExpireFinished, map[string]any{
		"cutoff":  cutoff,
		"expired": len(result.Expired),
		"skipped": len(result.Skipped),
	})
	return result, nil
}
