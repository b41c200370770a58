package repositories

import (
	"context"
	"time"

	domain "github.com/orderflow/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Catalog() CatalogRepository
	Inventory() InventoryRepository
	Carts() CartRepository
	Orders() OrderRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository calls into one atomic transaction. Repositories invoked with the
// context passed to fn participate in the transaction; nested calls reuse the outer one.
//
// Backends that follow Firestore semantics require every read to happen before the first write
// inside fn.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CatalogRepository reads products and the promotions attached to them.
type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	// GetProducts returns the products found; missing ids are simply absent from the map.
	GetProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	// ListPromotionsForProduct returns every promotion referencing the product regardless of its
	// window or active flag. Callers filter.
	ListPromotionsForProduct(ctx context.Context, productID string) ([]domain.Promotion, error)
	SaveProduct(ctx context.Context, product domain.Product) error
	SavePromotion(ctx context.Context, promotion domain.Promotion) error
}

// InventoryRepository persists per-product stock records.
type InventoryRepository interface {
	// GetStocks loads the records for the given products. Inside a transaction the records are
	// locked in product id order. Products without a record are absent from the map.
	GetStocks(ctx context.Context, productIDs []string) (map[string]domain.InventoryStock, error)
	PutStocks(ctx context.Context, stocks []domain.InventoryStock) error
	ListLowStock(ctx context.Context, threshold int, limit int) ([]domain.InventoryStock, error)
}

// CartRepository persists the single cart owned by each user.
type CartRepository interface {
	// LoadCart returns the user's cart, or an empty cart with CreatedAt zero when none exists.
	// Inside a transaction the cart is locked for the remainder of it.
	LoadCart(ctx context.Context, userID string) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) error
	// FindLineOwner returns the user whose cart holds lineID, or a not-found error.
	FindLineOwner(ctx context.Context, lineID string) (string, error)
	// ListStaleCarts returns up to limit non-empty carts last updated before the cutoff, oldest first.
	ListStaleCarts(ctx context.Context, before time.Time, limit int) ([]domain.Cart, error)
}

// OrderRepository persists orders together with their payment and shipment.
type OrderRepository interface {
	InsertOrder(ctx context.Context, order domain.Order) error
	// GetOrder returns RepositoryError.IsNotFound when absent. Inside a transaction the order is locked.
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	UpdateOrder(ctx context.Context, order domain.Order) error
	ListOrders(ctx context.Context, query OrderListQuery) ([]domain.Order, error)
}

// HealthRepository probes backing dependencies for readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.ReadinessReport, error)
}

// OrderListQuery filters order listings. Results are ordered newest first.
type OrderListQuery struct {
	UserID        string
	Status        domain.OrderStatus
	CreatedBefore *time.Time
	Limit         int
}
