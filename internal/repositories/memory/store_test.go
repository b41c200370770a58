package memory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
)

const seedYAML = `
products:
  - id: p-1
    name: Home Jersey
    basePrice: "59.90"
    stock: 5
    customTextCost: "5.00"
  - id: p-2
    name: Scarf
    basePrice: "15"
    active: false
    stock: 0
promotions:
  - id: promo-1
    code: SUMMER10
    discountPercent: "10"
    startsAt: 2024-01-01T00:00:00Z
    endsAt: 2030-01-01T00:00:00Z
    productIds: [p-1]
`

func TestApplySeed(t *testing.T) {
	seed, err := DecodeSeed(strings.NewReader(seedYAML))
	if err != nil {
		t.Fatalf("DecodeSeed: %v", err)
	}
	store := NewStore()
	if err := store.Apply(context.Background(), seed, time.Now()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	product, err := store.Catalog().GetProduct(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	if product.BasePrice.String() != "59.9" || !product.Active {
		t.Fatalf("unexpected product %+v", product)
	}
	if len(product.PromotionIDs) != 1 || product.PromotionIDs[0] != "promo-1" {
		t.Fatalf("expected promotion link, got %v", product.PromotionIDs)
	}
	if product.Personalization.CustomTextCost.String() != "5" {
		t.Fatalf("unexpected custom text cost %s", product.Personalization.CustomTextCost)
	}

	scarf, _ := store.Catalog().GetProduct(context.Background(), "p-2")
	if scarf.Active {
		t.Fatalf("expected p-2 inactive")
	}

	stocks, _ := store.Inventory().GetStocks(context.Background(), []string{"p-1", "p-2"})
	if stocks["p-1"].Available != 5 || stocks["p-2"].OnHand != 0 {
		t.Fatalf("unexpected stocks %+v", stocks)
	}

	promos, _ := store.Catalog().ListPromotionsForProduct(context.Background(), "p-1")
	if len(promos) != 1 || promos[0].DiscountPercent.String() != "10" {
		t.Fatalf("unexpected promotions %+v", promos)
	}
}

func TestDecodeSeedRejectsUnknownFields(t *testing.T) {
	_, err := DecodeSeed(strings.NewReader("products:\n  - id: p\n    colour: red\n"))
	if err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.RunInTx(ctx, func(txCtx context.Context) error {
		if err := store.Inventory().PutStocks(txCtx, []domain.InventoryStock{{ProductID: "p-1", OnHand: 3}}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	stocks, _ := store.Inventory().GetStocks(ctx, []string{"p-1"})
	if _, ok := stocks["p-1"]; ok {
		t.Fatalf("expected rollback, found %+v", stocks["p-1"])
	}
}

func TestRunInTxNestedReusesOuter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.RunInTx(ctx, func(outer context.Context) error {
		return store.RunInTx(outer, func(inner context.Context) error {
			return store.Carts().SaveCart(inner, domain.Cart{UserID: "u-1", Lines: []domain.CartLine{{ID: "l-1", ProductID: "p-1", Quantity: 1}}})
		})
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	cart, _ := store.Carts().LoadCart(ctx, "u-1")
	if len(cart.Lines) != 1 {
		t.Fatalf("expected committed line, got %+v", cart)
	}
}

func TestLoadedValuesAreIsolated(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	_ = store.Carts().SaveCart(ctx, domain.Cart{UserID: "u-1", Lines: []domain.CartLine{{ID: "l-1", Quantity: 1}}})

	cart, _ := store.Carts().LoadCart(ctx, "u-1")
	cart.Lines[0].Quantity = 99

	again, _ := store.Carts().LoadCart(ctx, "u-1")
	if again.Lines[0].Quantity != 1 {
		t.Fatalf("mutation leaked into store: %+v", again)
	}
}

func TestOrdersListAndNotFound(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusPaid, domain.OrderStatusPending} {
		order := domain.Order{ID: string(rune('a' + i)), UserID: "u-1", Status: status, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := store.Orders().InsertOrder(ctx, order); err != nil {
			t.Fatalf("InsertOrder: %v", err)
		}
	}
	if err := store.Orders().InsertOrder(ctx, domain.Order{ID: "a"}); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}

	cutoff := base.Add(90 * time.Minute)
	pending, err := store.Orders().ListOrders(ctx, repositories.OrderListQuery{Status: domain.OrderStatusPending, CreatedBefore: &cutoff})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "a" {
		t.Fatalf("unexpected pending orders %+v", pending)
	}

	all, _ := store.Orders().ListOrders(ctx, repositories.OrderListQuery{UserID: "u-1"})
	if len(all) != 3 || all[0].ID != "c" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	if _, err := store.Orders().GetOrder(ctx, "missing"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCartLineOwnerAndStaleListing(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	carts := []domain.Cart{
		{UserID: "u-old", UpdatedAt: base, Lines: []domain.CartLine{{ID: "line-1", ProductID: "p-1", Quantity: 1}}},
		{UserID: "u-older", UpdatedAt: base.Add(-time.Hour), Lines: []domain.CartLine{{ID: "line-2", ProductID: "p-1", Quantity: 2}}},
		{UserID: "u-empty", UpdatedAt: base.Add(-2 * time.Hour)},
		{UserID: "u-fresh", UpdatedAt: base.Add(time.Hour), Lines: []domain.CartLine{{ID: "line-3", ProductID: "p-1", Quantity: 1}}},
	}
	for _, cart := range carts {
		if err := store.Carts().SaveCart(ctx, cart); err != nil {
			t.Fatalf("SaveCart: %v", err)
		}
	}

	owner, err := store.Carts().FindLineOwner(ctx, "line-2")
	if err != nil || owner != "u-older" {
		t.Fatalf("expected u-older, got %q %v", owner, err)
	}
	if _, err := store.Carts().FindLineOwner(ctx, "missing"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	stale, err := store.Carts().ListStaleCarts(ctx, base.Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("ListStaleCarts: %v", err)
	}
	if len(stale) != 2 || stale[0].UserID != "u-older" || stale[1].UserID != "u-old" {
		t.Fatalf("unexpected stale carts %+v", stale)
	}
	limited, _ := store.Carts().ListStaleCarts(ctx, base.Add(time.Minute), 1)
	if len(limited) != 1 || limited[0].UserID != "u-older" {
		t.Fatalf("expected the oldest cart only, got %+v", limited)
	}
}
