package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/metric/noop"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories/memory"
)

var fixtureNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type captureEvents struct {
	mu     sync.Mutex
	events []DomainEvent
	err    error
}

func (c *captureEvents) Publish(_ context.Context, event DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return c.err
}

func (c *captureEvents) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, e := range c.events {
		out[i] = e.Type
	}
	return out
}

type captureLog struct {
	mu     sync.Mutex
	events []string
}

func (c *captureLog) log(_ context.Context, event string, _ map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureLog) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e == event {
			return true
		}
	}
	return false
}

type fixture struct {
	store     *memory.Store
	now       time.Time
	events    *captureEvents
	logs      *captureLog
	pricing   PricingService
	inventory InventoryService
	carts     CartService
	checkout  CheckoutService
	orders    OrderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(),
		now:    fixtureNow,
		events: &captureEvents{},
		logs:   &captureLog{},
	}
	clock := func() time.Time { return f.now }
	var seq atomic.Int64
	ids := func() string { return fmt.Sprintf("id-%04d", seq.Add(1)) }

	var err error
	f.pricing, err = NewPricingService(PricingServiceDeps{
		Promotions: PromotionsFromCatalog(f.store.Catalog()),
		Logger:     f.logs.log,
	})
	if err != nil {
		t.Fatalf("NewPricingService: %v", err)
	}
	f.inventory, err = NewInventoryService(InventoryServiceDeps{
		Inventory:  f.store.Inventory(),
		UnitOfWork: f.store,
		Events:     f.events,
		Clock:      clock,
		Logger:     f.logs.log,
	})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}
	f.carts, err = NewCartService(CartServiceDeps{
		Carts:       f.store.Carts(),
		Catalog:     f.store.Catalog(),
		Inventory:   f.inventory,
		Pricing:     f.pricing,
		UnitOfWork:  f.store,
		Clock:       clock,
		Logger:      f.logs.log,
		IDGenerator: ids,
	})
	if err != nil {
		t.Fatalf("NewCartService: %v", err)
	}
	f.checkout, err = NewCheckoutService(CheckoutServiceDeps{
		Carts:       f.store.Carts(),
		Catalog:     f.store.Catalog(),
		Orders:      f.store.Orders(),
		Inventory:   f.inventory,
		Pricing:     f.pricing,
		UnitOfWork:  f.store,
		Events:      f.events,
		Meter:       noop.NewMeterProvider().Meter("test"),
		Clock:       clock,
		IDGenerator: ids,
		Logger:      f.logs.log,
	})
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	f.orders, err = NewOrderService(OrderServiceDeps{
		Orders:     f.store.Orders(),
		Inventory:  f.inventory,
		UnitOfWork: f.store,
		Events:     f.events,
		Clock:      clock,
		Logger:     f.logs.log,
	})
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	return f
}

func (f *fixture) addProduct(t *testing.T, id, price string, stock int) domain.Product {
	t.Helper()
	ctx := context.Background()
	product := domain.Product{
		ID:        id,
		Name:      "Product " + id,
		BasePrice: decimal.RequireFromString(price),
		Active:    true,
		Personalization: domain.PersonalizationPricing{
			CustomTextCost: decimal.RequireFromString("5.00"),
		},
	}
	if err := f.store.Catalog().SaveProduct(ctx, product); err != nil {
		t.Fatalf("SaveProduct: %v", err)
	}
	if err := f.store.Inventory().PutStocks(ctx, []domain.InventoryStock{{ProductID: id, OnHand: stock}}); err != nil {
		t.Fatalf("PutStocks: %v", err)
	}
	return product
}

func (f *fixture) addPromotion(t *testing.T, id, pct string, productIDs ...string) {
	t.Helper()
	err := f.store.Catalog().SavePromotion(context.Background(), domain.Promotion{
		ID:              id,
		Code:            "CODE-" + id,
		DiscountPercent: decimal.RequireFromString(pct),
		Active:          true,
		StartsAt:        fixtureNow.Add(-time.Hour),
		EndsAt:          fixtureNow.Add(30 * 24 * time.Hour),
		ProductIDs:      productIDs,
	})
	if err != nil {
		t.Fatalf("SavePromotion: %v", err)
	}
}

func (f *fixture) stock(t *testing.T, productID string) domain.InventoryStock {
	t.Helper()
	levels, err := f.inventory.GetStockLevels(context.Background(), []string{productID})
	if err != nil {
		t.Fatalf("GetStockLevels: %v", err)
	}
	return levels[productID]
}

func (f *fixture) placeOrder(t *testing.T, userID, productID string, qty int) Order {
	t.Helper()
	ctx := context.Background()
	if _, err := f.carts.AddItem(ctx, AddCartItemCommand{UserID: userID, ProductID: productID, Quantity: qty}); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	order, err := f.checkout.CreateOrder(ctx, CreateOrderCommand{UserID: userID, ShippingAddress: "1 Main St", PaymentMethod: "card"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return order
}

func money(t *testing.T, d decimal.Decimal, want string) {
	t.Helper()
	if got := d.StringFixed(2); got != want {
		t.Fatalf("amount = %s, want %s", got, want)
	}
}
