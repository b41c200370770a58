package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/orderflow/api/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestOrderGetEnforcesOwnership(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", "10.00", 5)
	order := f.placeOrder(t, "u-1", "p-1", 1)
	ctx := context.Background()

	if _, err := f.orders.GetOrder(ctx, GetOrderQuery{OrderID: order.ID, UserID: "u-2"}); !errors.Is(err, ErrNotOwned) {
		t.Fatalf("expected ErrNotOwned, got %v", err)
	}
	if _, err := f.orders.GetOrder(ctx, GetOrderQuery{OrderID: order.ID}); err != nil {
		t.Fatalf("admin GetOrder: %v", err)
	}
	if _, err := f.orders.GetOrder(ctx, GetOrderQuery{OrderID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrderListFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", "10.00", 10)
	first := f.placeOrder(t, "u-1", "p-1", 1)
	f.now = f.now.Add(time.Minute)
	f.placeOrder(t, "u-1", "p-1", 1)
	ctx := context.Background()

	if _, err := f.orders.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: first.ID, Status: "paid"}); err != nil {
		t.Fatalf("UpdateOrderStatus: %v", err)
	}
	paid, err := f.orders.ListOrders(ctx, ListOrdersQuery{UserID: "u-1", Status: "PAID"})
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(paid) != 1 || paid[0].ID != first.ID {
		t.Fatalf("unexpected paid orders %+v", paid)
	}
	if _, err := f.orders.ListOrders(ctx, ListOrdersQuery{Status: "LOST"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestPaymentCompletionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", "10.00", 5)
	order := f.placeOrder(t, "u-1", "p-1", 1)
	ctx := context.Background()
	completedAt := f.now.Add(time.Hour)
	f.now = completedAt

	updated, err := f.orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: order.ID, Status: "COMPLETED", Reference: "pi_123"})
	if err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}
	if updated.Status != domain.OrderStatusPaid || updated.PaidAt == nil {
		t.Fatalf("expected order promoted to PAID, got %+v", updated)
	}
	if updated.Payment.CompletedAt == nil || !updated.Payment.CompletedAt.Equal(completedAt) {
		t.Fatalf("unexpected completion stamp %v", updated.Payment.CompletedAt)
	}

	f.now = completedAt.Add(time.Hour)
	again, err := f.orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: order.ID, Status: "completed"})
	if err != nil {
		t.Fatalf("UpdatePaymentStatus replay: %v", err)
	}
	if !again.Payment.CompletedAt.Equal(completedAt) {
		t.Fatalf("completion stamp moved to %v", again.Payment.CompletedAt)
	}
	if again.Payment.Reference != "pi_123" {
		t.Fatalf("reference lost: %q", again.Payment.Reference)
	}

	if _, err := f.orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: order.ID, Status: "FAILED"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPaymentFailedThenCompleted(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", "10.00", 5)
	order := f.placeOrder(t, "u-1", "p-1", 1)
	ctx := context.Background()

	failed, err := f.orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: order.ID, Status: "FAILED"})
	if err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}
	if failed.Status != domain.OrderStatusPending {
		t.Fatalf("failed payment must not move the order, got %s", failed.Status)
	}
	done, err := f.orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: order.ID, Status: "COMPLETED"})
	if err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}
	if done.Status != domain.OrderStatusPaid {
		t.Fatalf("expected PAID, got %s", done.Status)
	}
}

func TestShipmentPromotesOrder(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", "10.00", 5)
	order := f.placeOrder(t, "u-1", "p-1", 1)
	ctx := context.Background()

	if _, err := f.orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: order.ID, Status: "COMPLETED"}); err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}

	shippedAt := f.now.Add(2 * time.Hour)
	f.now = shippedAt
	shipped, err := f.orders.UpdateShipment(ctx, UpdateShipmentCommand{OrderID: order.ID, Status: strPtr("IN_TRANSIT"), TrackingCode: strPtr("TRK-1")})
	if err != nil {
		t.Fatalf("UpdateShipment: %v", err)
	}
	if shipped.Status != domain.OrderStatusShipped || shipped.Shipment.TrackingCode != "TRK-1" {
		t.Fatalf("unexpected order %+v", shipped)
	}
	if shipped.Shipment.ShipDate == nil || !shipped.Shipment.ShipDate.Equal(shippedAt) {
		t.Fatalf("expected ship date stamped, got %v", shipped.Shipment.ShipDate)
	}

	f.now = shippedAt.Add(time.Hour)
	replay, err := f.orders.UpdateShipment(ctx, UpdateShipmentCommand{OrderID: order.ID, Status: strPtr("in_transit")})
	if err != nil {
		t.Fatalf("UpdateShipment replay: %v", err)
	}
	if !replay.Shipment.ShipDate.Equal(shippedAt) {
		t.Fatalf("ship date moved to %v", replay.Shipment.ShipDate)
	}

	delivered, err := f.orders.UpdateShipment(ctx, UpdateShipmentCommand{OrderID: order.ID, Status: strPtr("DELIVERED")})
	if err != nil {
		t.Fatalf("UpdateShipment: %v", err)
	}
	if delivered.Status != domain.OrderStatusDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("expected DELIVERED, got %+v", delivered)
	}
	if _, err := f.orders.UpdateShipment(ctx, UpdateShipmentCommand{OrderID: order.ID, Status: strPtr("IN_TRANSIT")}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestInvalidStatusLeavesOrderUnchanged(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", "10.00", 5)
	order := f.placeOrder(t, "u-1", "p-1", 1)
	ctx := context.Background()

	if _, err := f.orders.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "LOST"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := f.orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: order.ID, Status: "REFUNDED"}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	_, err := f.orders.UpdateShipment(ctx, UpdateShipmentCommand{OrderID: order.ID, Status: strPtr("TELEPORTED"), TrackingCode: strPtr("T")})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	stored, _ := f.orders.GetOrder(ctx, GetOrderQuery{OrderID: order.ID})
	if stored.Status != domain.OrderStatusPending || stored.Payment.Status != domain.PaymentStatusPending || stored.Shipment.TrackingCode != "" {
		t.Fatalf("order changed: %+v", stored)
	}
}

func TestOrderStatusTransitions(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", "10.00", 5)
	order := f.placeOrder(t, "u-1", "p-1", 1)
	ctx := context.Background()

	shipped, err := f.orders.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "SHIPPED"})
	if err != nil {
		t.Fatalf("skip forward: %v", err)
	}
	if shipped.ShippedAt == nil {
		t.Fatal("expected shipped timestamp")
	}
	if _, err := f.orders.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "PAID"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.orders.UpdateOrderStatus(ctx, UpdateOrderStatusCommand{OrderID: order.ID, Status: "SHIPPED"}); err != nil {
		t.Fatalf("same status should be a no-op: %v", err)
	}
}

func TestCancelRestocksAndBlocksFurtherUpdates(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", "10.00", 5)
	order := f.placeOrder(t, "u-1", "p-1", 3)
	ctx := context.Background()
	if got := f.stock(t, "p-1"); got.OnHand != 2 {
		t.Fatalf("expected 2 on hand after checkout, got %+v", got)
	}

	cancelled, err := f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: order.ID, Reason: "customer request"})
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled || cancelled.CancelReason != "customer request" || cancelled.CancelledAt == nil {
		t.Fatalf("unexpected order %+v", cancelled)
	}
	if got := f.stock(t, "p-1"); got.OnHand != 5 {
		t.Fatalf("expected restock to 5, got %+v", got)
	}

	if _, err := f.orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: order.ID, Status: "COMPLETED"}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.orders.UpdateShipment(ctx, UpdateShipmentCommand{OrderID: order.ID, Status: strPtr("IN_TRANSIT")}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := f.orders.CancelOrder(ctx, CancelOrderCommand{OrderID: order.ID}); err != nil {
		t.Fatalf("repeat cancel should be a no-op: %v", err)
	}
	if got := f.stock(t, "p-1"); got.OnHand != 5 {
		t.Fatalf("repeat cancel restocked again: %+v", got)
	}
}

func TestMissingPaymentIsIntegrityFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	broken := domain.Order{ID: "o-1", UserID: "u-1", Status: domain.OrderStatusPending, CreatedAt: f.now}
	if err := f.store.Orders().InsertOrder(ctx, broken); err != nil {
		t.Fatalf("InsertOrder: %v", err)
	}

	if _, err := f.orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: "o-1", Status: "COMPLETED"}); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
	if _, err := f.orders.UpdateShipment(ctx, UpdateShipmentCommand{OrderID: "o-1", TrackingCode: strPtr("x")}); !errors.Is(err, ErrIntegrity) {
		t.Fatalf("expected ErrIntegrity, got %v", err)
	}
	if !f.logs.has(eventOrderIntegrity) {
		t.Fatal("expected integrity log")
	}
	stored, _ := f.store.Orders().GetOrder(ctx, "o-1")
	if stored.Payment != nil || stored.Shipment != nil {
		t.Fatal("records must not be recreated")
	}
}

func TestExpirePendingOrders(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "p-1", "10.00", 10)
	stale := f.placeOrder(t, "u-1", "p-1", 2)
	paid := f.placeOrder(t, "u-2", "p-1", 1)
	ctx := context.Background()
	if _, err := f.orders.UpdatePaymentStatus(ctx, UpdatePaymentStatusCommand{OrderID: paid.ID, Status: "COMPLETED"}); err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}

	f.now = f.now.Add(2 * time.Hour)
	fresh := f.placeOrder(t, "u-3", "p-1", 1)
	f.now = f.now.Add(30 * time.Minute)

	result, err := f.orders.ExpirePendingOrders(ctx, ExpirePendingOrdersCommand{OlderThan: time.Hour})
	if err != nil {
		t.Fatalf("ExpirePendingOrders: %v", err)
	}
	if len(result.Expired) != 1 || result.Expired[0] != stale.ID {
		t.Fatalf("unexpected result %+v", result)
	}
	got, _ := f.orders.GetOrder(ctx, GetOrderQuery{OrderID: stale.ID})
	if got.Status != domain.OrderStatusCancelled || got.CancelReason != expiredCancelReason {
		t.Fatalf("stale order not cancelled: %+v", got)
	}
	still, _ := f.orders.GetOrder(ctx, GetOrderQuery{OrderID: fresh.ID})
	if still.Status != domain.OrderStatusPending {
		t.Fatalf("fresh order touched: %s", still.Status)
	}
	if stock := f.stock(t, "p-1"); stock.OnHand != 8 {
		t.Fatalf("expected 8 on hand after restock, got %+v", stock)
	}
}
