//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/repositories"
	"github.com/orderflow/api/internal/repositories/postgres"
	"github.com/orderflow/api/internal/services"
)

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := os.Getenv("ORDERFLOW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ORDERFLOW_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	store, err := postgres.Open(ctx, postgres.Config{DSN: dsn, MaxConns: 8, AutoMigrate: true}, zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestStoreConcurrentReservationsNeverOvercommit(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	productID := "p-" + ulid.Make().String()
	if err := store.Inventory().PutStocks(ctx, []domain.InventoryStock{{ProductID: productID, OnHand: 3, UpdatedAt: time.Now()}}); err != nil {
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
			if !errors.Is(err, services.ErrInsufficientStock) {
				t.Errorf("unexpected reserve error: %v", err)
			}
		}()
	}
	wg.Wait()

	if reserved != 3 {
		t.Fatalf("expected exactly 3 reservations under row locks, got %d", reserved)
	}
	stocks, err := store.Inventory().GetStocks(ctx, []string{productID})
	if err != nil {
		t.Fatalf("GetStocks: %v", err)
	}
	if got := stocks[productID]; got.Reserved != 3 || got.Available != 0 {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestStoreCartRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	userID := "u-" + ulid.Make().String()
	now := time.Now().UTC().Truncate(time.Microsecond)

	empty, err := store.Carts().LoadCart(ctx, userID)
	if err != nil {
		t.Fatalf("LoadCart: %v", err)
	}
	if !empty.CreatedAt.IsZero() || len(empty.Lines) != 0 {
		t.Fatalf("expected an empty cart, got %+v", empty)
	}

	number := 7
	cart := domain.Cart{
		UserID: userID,
		Lines: []domain.CartLine{
			{ID: ulid.Make().String(), ProductID: "p-2", Quantity: 2, AddedAt: now, UpdatedAt: now},
			{ID: ulid.Make().String(), ProductID: "p-1", Quantity: 1, Personalization: domain.Personalization{CustomText: "LEO", CustomNumber: &number}, AddedAt: now, UpdatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := store.Carts().LoadCart(txCtx, userID); err != nil {
			return err
		}
		return store.Carts().SaveCart(txCtx, cart)
	}); err != nil {
		t.Fatalf("SaveCart: %v", err)
	}

	got, err := store.Carts().LoadCart(ctx, userID)
	if err != nil {
		t.Fatalf("LoadCart: %v", err)
	}
	if len(got.Lines) != 2 || got.Lines[0].ProductID != "p-2" || got.Lines[1].Personalization.CustomNumber == nil {
		t.Fatalf("expected lines in insertion order, got %+v", got.Lines)
	}

	owner, err := store.Carts().FindLineOwner(ctx, cart.Lines[1].ID)
	if err != nil || owner != userID {
		t.Fatalf("expected line owner %s, got %q %v", userID, owner, err)
	}
	if _, err := store.Carts().FindLineOwner(ctx, "missing-"+ulid.Make().String()); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !containsCart(t, store, now.Add(time.Second), userID) {
		t.Fatalf("expected %s among stale carts", userID)
	}
	if containsCart(t, store, now, userID) {
		t.Fatalf("cart updated at the cutoff must not be stale")
	}

	cart.Lines = nil
	if err := store.Carts().SaveCart(ctx, cart); err != nil {
		t.Fatalf("SaveCart empty: %v", err)
	}
	if containsCart(t, store, now.Add(time.Second), userID) {
		t.Fatalf("empty carts must not be listed as stale")
	}
	got, err = store.Carts().LoadCart(ctx, userID)
	if err != nil || len(got.Lines) != 0 || got.CreatedAt.IsZero() {
		t.Fatalf("expected a cleared cart, got %+v %v", got, err)
	}
}

func containsCart(t *testing.T, store *postgres.Store, before time.Time, userID string) bool {
	t.Helper()
	carts, err := store.Carts().ListStaleCarts(context.Background(), before, 0)
	if err != nil {
		t.Fatalf("ListStaleCarts: %v", err)
	}
	for _, cart := range carts {
		if cart.UserID == userID {
			return true
		}
	}
	return false
}

func TestStoreOrderRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	userID := "u-" + ulid.Make().String()
	number := 10

	order := domain.Order{
		ID:     ulid.Make().String(),
		UserID: userID,
		Status: domain.OrderStatusPending,
		Total:  decimal.RequireFromString("49.50"),
		Lines: []domain.OrderLine{{
			ID: ulid.Make().String(), ProductID: "p-1", ProductName: "Jersey", Quantity: 1,
			UnitPriceBase: decimal.RequireFromString("55"), UnitPriceFinal: decimal.RequireFromString("49.50"),
			DiscountPercent: decimal.RequireFromString("10"), PromotionCode: "SPRING",
			Subtotal: decimal.RequireFromString("49.50"), Discount: decimal.RequireFromString("5.50"),
			Personalization: domain.Personalization{CustomNumber: &number},
		}},
		Payment:   &domain.Payment{ID: ulid.Make().String(), Method: domain.PaymentMethodCard, Amount: decimal.RequireFromString("49.50"), Status: domain.PaymentStatusPending, CreatedAt: now, UpdatedAt: now},
		Shipment:  &domain.Shipment{ID: ulid.Make().String(), Address: "1 Main St", Status: domain.ShipmentStatusInPreparation, CreatedAt: now, UpdatedAt: now},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.Orders().InsertOrder(ctx, order); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}
	if err := store.Orders().InsertOrder(ctx, order); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate insert, got %v", err)
	}

	paidAt := now.Add(time.Minute)
	if err := store.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := store.Orders().GetOrder(txCtx, order.ID)
		if err != nil {
			return err
		}
		current.Status = domain.OrderStatusPaid
		current.PaidAt = &paidAt
		current.Payment.Status = domain.PaymentStatusCompleted
		current.Payment.Reference = "pi_1"
		current.UpdatedAt = paidAt
		return store.Orders().UpdateOrder(txCtx, current)
	}); err != nil {
		t.Fatalf("UpdateOrder: %v", err)
	}

	got, err := store.Orders().GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != domain.OrderStatusPaid || got.PaidAt == nil || !got.Total.Equal(order.Total) {
		t.Fatalf("unexpected order %+v", got)
	}
	if got.Lines[0].Personalization.CustomNumber == nil || *got.Lines[0].Personalization.CustomNumber != 10 || !got.Lines[0].Discount.Equal(decimal.RequireFromString("5.50")) {
		t.Fatalf("unexpected line %+v", got.Lines[0])
	}
	if got.Payment == nil || got.Payment.Reference != "pi_1" || got.Shipment == nil || got.Shipment.Address != "1 Main St" {
		t.Fatalf("payment and shipment must survive the round trip: %+v", got)
	}

	if _, err := store.Orders().GetOrder(ctx, "missing"); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	missing := order
	missing.ID = "missing"
	if err := store.Orders().UpdateOrder(ctx, missing); !repositories.IsNotFound(err) {
		t.Fatalf("expected not found on update, got %v", err)
	}

	listed, err := store.Orders().ListOrders(ctx, repositories.OrderListQuery{UserID: userID, Status: domain.OrderStatusPaid, Limit: 5})
	if err != nil || len(listed) != 1 || len(listed[0].Lines) != 1 {
		t.Fatalf("unexpected listing %+v %v", listed, err)
	}
}

func TestStoreSavePromotionRejectsDuplicateCode(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	code := "CODE-" + ulid.Make().String()

	first := domain.Promotion{ID: ulid.Make().String(), Code: code, DiscountPercent: decimal.NewFromInt(10), Active: true, StartsAt: now, EndsAt: now.Add(time.Hour), ProductIDs: []string{"p-promo"}}
	if err := store.Catalog().SavePromotion(ctx, first); err != nil {
		t.Fatalf("SavePromotion: %v", err)
	}
	second := first
	second.ID = ulid.Make().String()
	if err := store.Catalog().SavePromotion(ctx, second); !repositories.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	promos, err := store.Catalog().ListPromotionsForProduct(ctx, "p-promo")
	if err != nil {
		t.Fatalf("ListPromotionsForProduct: %v", err)
	}
	found := false
	for _, promo := range promos {
		if promo.ID == first.ID {
			found = promo.DiscountPercent.Equal(decimal.NewFromInt(10))
		}
	}
	if !found {
		t.Fatalf("expected saved promotion to be listed, got %+v", promos)
	}
}
