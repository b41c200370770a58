package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/orderflow/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Product         = domain.Product
	Promotion       = domain.Promotion
	InventoryStock  = domain.InventoryStock
	Cart            = domain.Cart
	CartLine        = domain.CartLine
	Personalization = domain.Personalization
	Order           = domain.Order
	OrderLine       = domain.OrderLine
	OrderStatus     = domain.OrderStatus
	Payment         = domain.Payment
	Shipment        = domain.Shipment
	DomainEvent     = domain.DomainEvent
)

// PricingService resolves the effective price of products from the promotions in force.
type PricingService interface {
	EffectivePrice(ctx context.Context, product Product, now time.Time) (PriceQuote, error)
	QuoteLine(ctx context.Context, product Product, personalization Personalization, quantity int, now time.Time) (LineQuote, error)
}

// InventoryService maintains the per-product stock ledger. Every operation joins the caller's
// transaction when one is open.
type InventoryService interface {
	GetStock(ctx context.Context, productID string) (int, error)
	GetStockLevels(ctx context.Context, productIDs []string) (map[string]InventoryStock, error)
	Reserve(ctx context.Context, lines []InventoryLine) error
	Release(ctx context.Context, lines []InventoryLine) error
	Commit(ctx context.Context, lines []InventoryLine) error
	Restock(ctx context.Context, lines []InventoryLine) error
	SetStock(ctx context.Context, cmd SetStockCommand) (InventoryStock, error)
	ListLowStock(ctx context.Context, filter LowStockFilter) ([]InventoryStock, error)
}

// CartService manages the single cart owned by each user.
type CartService interface {
	GetCart(ctx context.Context, userID string) (CartView, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (CartView, error)
	ExpireStaleHolds(ctx context.Context, cmd ExpireCartHoldsCommand) (ExpireCartHoldsResult, error)
}

// CheckoutService turns a cart into an order.
type CheckoutService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
}

// OrderService exposes order queries and the admin-driven lifecycle.
type OrderService interface {
	GetOrder(ctx context.Context, query GetOrderQuery) (Order, error)
	ListOrders(ctx context.Context, query ListOrdersQuery) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	UpdatePaymentStatus(ctx context.Context, cmd UpdatePaymentStatusCommand) (Order, error)
	UpdateShipment(ctx context.Context, cmd UpdateShipmentCommand) (Order, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	ExpirePendingOrders(ctx context.Context, cmd ExpirePendingOrdersCommand) (ExpirePendingOrdersResult, error)
}

// EventPublisher delivers domain events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event DomainEvent) error
}

// TextSanitizer cleans free text supplied by customers.
type TextSanitizer interface {
	Sanitize(value string) string
}

// PriceQuote is the resolved unit price of a product.
type PriceQuote struct {
	ProductID       string
	BasePrice       decimal.Decimal
	FinalPrice      decimal.Decimal
	DiscountPercent decimal.Decimal
	PromotionID     string
	PromotionCode   string
}

// LineQuote prices quantity units of a product including personalization extras.
type LineQuote struct {
	Quote          PriceQuote
	Quantity       int
	Extras         decimal.Decimal
	UnitPriceBase  decimal.Decimal
	UnitPriceFinal decimal.Decimal
	Subtotal       decimal.Decimal
	Discount       decimal.Decimal
}

// InventoryLine is a product quantity handled by the stock ledger.
type InventoryLine struct {
	ProductID string
	Quantity  int
}

// SetStockCommand overwrites the units on hand for a product.
type SetStockCommand struct {
	ProductID string
	OnHand    int
}

// LowStockFilter selects stock records whose available units are at or below Threshold.
type LowStockFilter struct {
	Threshold int
	Limit     int
}

// CartView is the priced representation of a cart. Prices are resolved on every read.
type CartView struct {
	UserID    string
	Lines     []CartLineView
	Total     decimal.Decimal
	ItemCount int
	UpdatedAt time.Time
}

// CartLineView is one priced cart line.
type CartLineView struct {
	LineID          string
	ProductID       string
	ProductName     string
	Quantity        int
	Personalization Personalization
	UnitPriceBase   decimal.Decimal
	UnitPriceFinal  decimal.Decimal
	DiscountPercent decimal.Decimal
	PromotionCode   string
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Unavailable     bool
}

// AddCartItemCommand adds units of a product to the caller's cart.
type AddCartItemCommand struct {
	UserID          string
	ProductID       string
	Quantity        int
	Personalization Personalization
}

// UpdateCartItemCommand sets the quantity of a cart line.
type UpdateCartItemCommand struct {
	UserID   string
	LineID   string
	Quantity int
}

// RemoveCartItemCommand deletes a cart line.
type RemoveCartItemCommand struct {
	UserID string
	LineID string
}

// CreateOrderCommand carries the checkout request.
type CreateOrderCommand struct {
	UserID          string
	ShippingAddress string
	PaymentMethod   string
}

// GetOrderQuery fetches an order. An empty UserID skips the ownership check.
type GetOrderQuery struct {
	OrderID string
	UserID  string
}

// ListOrdersQuery lists orders newest first.
type ListOrdersQuery struct {
	UserID string
	Status string
	Limit  int
}

// UpdateOrderStatusCommand sets the order status directly.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
	Reason  string
}

// UpdatePaymentStatusCommand sets the payment status of an order.
type UpdatePaymentStatusCommand struct {
	OrderID   string
	Status    string
	Reference string
}

// UpdateShipmentCommand applies a partial shipment update. Nil fields are left untouched.
type UpdateShipmentCommand struct {
	OrderID      string
	Status       *string
	Address      *string
	TrackingCode *string
	ShipDate     *time.Time
}

// CancelOrderCommand cancels an order and returns its stock.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
}

// ExpirePendingOrdersCommand cancels PENDING orders older than OlderThan.
type ExpirePendingOrdersCommand struct {
	OlderThan time.Duration
	Limit     int
}

// ExpireCartHoldsCommand empties carts whose last change is older than OlderThan.
type ExpireCartHoldsCommand struct {
	OlderThan time.Duration
	Limit     int
}

// ExpireCartHoldsResult lists the users whose carts were emptied and those skipped.
type ExpireCartHoldsResult struct {
	Expired []string
	Skipped []string
}

// ExpirePendingOrdersResult lists the orders cancelled and those skipped.
type ExpirePendingOrdersResult struct {
	Expired []string
	Skipped []string
}
