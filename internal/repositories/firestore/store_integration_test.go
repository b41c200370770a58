//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/orderflow/api/internal/domain"
	pconfig "github.com/orderflow/api/internal/platform/config"
	pfirestore "github.com/orderflow/api/internal/platform/firestore"
	"github.com/orderflow/api/internal/repositories"
	repofs "github.com/orderflow/api/internal/repositories/firestore"
	"github.com/orderflow/api/internal/services"
)

func newEmulatorStore(t *testing.T) *repofs.Store {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "orderflow-" + ulid.Make().String()[:8], EmulatorHost: host})
	store, err := repofs.NewStore(provider)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestStoreConcurrentReservationsNeverOvercommit(t *testing.T) {
	store := newEmulatorStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	productID := "p-" + ulid.Make().String()
	if err := store.Inventory().PutStocks(ctx, []domain.InventoryStock{{ProductID: productID, OnHand: 3}}); err != nil {
		t.Fatalf("PutStocks: %v", err)
	}
	inventory, err := services.NewInventoryService(services.InventoryServiceDeps{Inventory: store.Inventory(), UnitOfWork: store})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	const attempts = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reserved int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := inventory.Reserve(ctx, []services.InventoryLine{{ProductID: productID, Quantity: 1}})
			if err == nil {
				mu.Lock()
				reserved++
				mu.Unlock()
				return
			}
			// Contention may exhaust retries; only stock errors and conflicts are acceptable.
			if !errors.Is(err, services.ErrInsufficientStock) && !repositories.IsConflict(err) {
				t.Errorf("unexpected reserve error: %v", err)
			}
		}()
	}
	wg.Wait()

	stocks, err := store.Inventory().GetStocks(ctx, []string{productID})
	if err != nil {
		t.Fatalf("GetStocks: %v", err)
	}
	if got := stocks[productID]; got.Reserved != reserved || got.Reserved > 3 || got.Available != 3-got.Reserved {
		t.Fatalf("ledger drifted: reserved=%d successes=%d record=%+v", got.Reserved, reserved, got)
	}
}

func TestStoreCartLineOwnerAndStaleListing(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	stale := domain.Cart{UserID: "u-stale", CreatedAt: now.Add(-time.Hour), UpdatedAt: now.Add(-time.Hour),
		Lines: []domain.CartLine{{ID: "line-1", ProductID: "p-1", Quantity: 1, AddedAt: now, UpdatedAt: now}}}
	fresh := domain.Cart{UserID: "u-fresh", CreatedAt: now, UpdatedAt: now,
		Lines: []domain.CartLine{{ID: "line-2", ProductID: "p-1", Quantity: 1, AddedAt: now, UpdatedAt: now}}}
	empty := domain.Cart{UserID: "u-empty", CreatedAt: now.Add(-2 * time.Hour), UpdatedAt: now.Add(-2 * time.Hour)}
	for _, cart := range []domain.Cart{stale, fresh, empty} {
		if err := store.Carts().SaveCart(ctx, cart); err != nil {
			t.Fatalf("SaveCart: %v", err)
		}
	}

	owner, err := store.Carts().FindLineOwner(ctx, "line-2")
	if err != nil || owner != "u-fresh" {
		t.Fatalf("expected u-fresh, got %q %v", owner, err)
	}
	if _, err := store.Carts().FindLineOwner(ctx, "missing"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	carts, err := store.Carts().ListStaleCarts(ctx, now.Add(-time.Minute), 10)
	if err != nil {
		t.Fatalf("ListStaleCarts: %v", err)
	}
	if len(carts) != 1 || carts[0].UserID != "u-stale" || len(carts[0].Lines) != 1 {
		t.Fatalf("unexpected stale carts %+v", carts)
	}
}

func TestStoreOrderRoundTrip(t *testing.T) {
	store := newEmulatorStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	number := 10

	order := domain.Order{
		ID:     ulid.Make().String(),
		UserID: "user-1",
		Status: domain.OrderStatusPending,
		Total:  decimal.RequireFromString("49.50"),
		Lines: []domain.OrderLine{{
			ID: "l-1", ProductID: "p-1", ProductName: "Jersey", Quantity: 1,
			UnitPriceBase: decimal.RequireFromString("55"), UnitPriceFinal: decimal.RequireFromString("49.50"),
			DiscountPercent: decimal.RequireFromString("10"), PromotionCode: "SPRING",
			Subtotal: decimal.RequireFromString("49.50"), Discount: decimal.RequireFromString("5.50"),
			Personalization: domain.Personalization{CustomNumber: &number},
		}},
		Payment:   &domain.Payment{ID: "pay-1", Method: domain.PaymentMethodCard, Amount: decimal.RequireFromString("49.50"), Status: domain.PaymentStatusPending, CreatedAt: now, UpdatedAt: now},
		Shipment:  &domain.Shipment{ID: "ship-1", Address: "1 Main St", Status: domain.ShipmentStatusInPreparation, CreatedAt: now, UpdatedAt: now},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.RunInTx(ctx, func(txCtx context.Context) error {
		return store.Orders().InsertOrder(txCtx, order)
	}); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}
	if err := store.Orders().InsertOrder(ctx, order); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}

	got, err := store.Orders().GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if !got.Total.Equal(order.Total) || got.Lines[0].Personalization.CustomNumber == nil || *got.Lines[0].Personalization.CustomNumber != 10 {
		t.Fatalf("unexpected order %+v", got)
	}
	if got.Payment == nil || got.Payment.Method != domain.PaymentMethodCard || got.Shipment == nil {
		t.Fatalf("payment and shipment must survive the round trip: %+v", got)
	}
	if _, err := store.Orders().GetOrder(ctx, "missing"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	listed, err := store.Orders().ListOrders(ctx, repositories.OrderListQuery{UserID: "user-1", Status: domain.OrderStatusPending, Limit: 5})
	if err != nil || len(listed) != 1 {
		t.Fatalf("unexpected listing %+v %v", listed, err)
	}
}
