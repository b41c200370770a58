package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/payments"
	"github.com/orderflow/api/internal/platform/auth"
	"github.com/orderflow/api/internal/services"
)

type stubCartService struct {
	getFunc    func(ctx context.Context, userID string) (services.CartView, error)
	addFunc    func(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error)
	updateFunc func(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error)
	removeFunc func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.CartView, error)
	expireFunc func(ctx context.Context, cmd services.ExpireCartHoldsCommand) (services.ExpireCartHoldsResult, error)
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.CartView, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return services.CartView{UserID: userID}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.CartView, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, cmd)
	}
	return services.CartView{UserID: cmd.UserID}, nil
}

func (s *stubCartService) UpdateQuantity(ctx context.Context, cmd services.UpdateCartItemCommand) (services.CartView, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.CartView{UserID: cmd.UserID}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.CartView, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, cmd)
	}
	return services.CartView{UserID: cmd.UserID}, nil
}

func (s *stubCartService) ExpireStaleHolds(ctx context.Context, cmd services.ExpireCartHoldsCommand) (services.ExpireCartHoldsResult, error) {
	if s.expireFunc != nil {
		return s.expireFunc(ctx, cmd)
	}
	return services.ExpireCartHoldsResult{}, nil
}

type stubCheckoutService struct {
	createFunc func(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error)
}

func (s *stubCheckoutService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

type stubOrderService struct {
	getFunc      func(ctx context.Context, query services.GetOrderQuery) (services.Order, error)
	listFunc     func(ctx context.Context, query services.ListOrdersQuery) ([]services.Order, error)
	statusFunc   func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error)
	paymentFunc  func(ctx context.Context, cmd services.UpdatePaymentStatusCommand) (services.Order, error)
	shipmentFunc func(ctx context.Context, cmd services.UpdateShipmentCommand) (services.Order, error)
	cancelFunc   func(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error)
	expireFunc   func(ctx context.Context, cmd services.ExpirePendingOrdersCommand) (services.ExpirePendingOrdersResult, error)
}

func (s *stubOrderService) GetOrder(ctx context.Context, query services.GetOrderQuery) (services.Order, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, query)
	}
	return services.Order{}, services.ErrNotFound
}

func (s *stubOrderService) ListOrders(ctx context.Context, query services.ListOrdersQuery) ([]services.Order, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, query)
	}
	return nil, nil
}

func (s *stubOrderService) UpdateOrderStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.statusFunc != nil {
		return s.statusFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) UpdatePaymentStatus(ctx context.Context, cmd services.UpdatePaymentStatusCommand) (services.Order, error) {
	if s.paymentFunc != nil {
		return s.paymentFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) UpdateShipment(ctx context.Context, cmd services.UpdateShipmentCommand) (services.Order, error) {
	if s.shipmentFunc != nil {
		return s.shipmentFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.Order, error) {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) ExpirePendingOrders(ctx context.Context, cmd services.ExpirePendingOrdersCommand) (services.ExpirePendingOrdersResult, error) {
	if s.expireFunc != nil {
		return s.expireFunc(ctx, cmd)
	}
	return services.ExpirePendingOrdersResult{}, nil
}

type stubInventoryService struct {
	services.InventoryService

	levelsFunc   func(ctx context.Context, productIDs []string) (map[string]services.InventoryStock, error)
	setFunc      func(ctx context.Context, cmd services.SetStockCommand) (services.InventoryStock, error)
	lowStockFunc func(ctx context.Context, filter services.LowStockFilter) ([]services.InventoryStock, error)
}

func (s *stubInventoryService) GetStockLevels(ctx context.Context, productIDs []string) (map[string]services.InventoryStock, error) {
	return s.levelsFunc(ctx, productIDs)
}

func (s *stubInventoryService) SetStock(ctx context.Context, cmd services.SetStockCommand) (services.InventoryStock, error) {
	return s.setFunc(ctx, cmd)
}

func (s *stubInventoryService) ListLowStock(ctx context.Context, filter services.LowStockFilter) ([]services.InventoryStock, error) {
	return s.lowStockFunc(ctx, filter)
}

type stubIntentCreator struct {
	requests []payments.IntentRequest
	intent   payments.Intent
	err      error
}

func (s *stubIntentCreator) CreateIntent(_ context.Context, req payments.IntentRequest) (payments.Intent, error) {
	s.requests = append(s.requests, req)
	return s.intent, s.err
}

type stubSystemService struct {
	report services.SystemHealthReport
	build  services.BuildInfo
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

func (s *stubSystemService) Build() services.BuildInfo {
	return s.build
}

func newAuthedRequest(method, target, body, uid string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: []string{auth.RoleUser}}))
	}
	return req
}

func sampleOrder(id, userID string, method domain.PaymentMethod) services.Order {
	created := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return services.Order{
		ID:     id,
		UserID: userID,
		Status: domain.OrderStatusPending,
		Total:  decimal.RequireFromString("45.5"),
		Lines: []services.OrderLine{{
			ID:             "line-1",
			ProductID:      "prod-1",
			ProductName:    "Jersey",
			Quantity:       2,
			UnitPriceBase:  decimal.RequireFromString("25"),
			UnitPriceFinal: decimal.RequireFromString("22.75"),
			Subtotal:       decimal.RequireFromString("45.5"),
			Discount:       decimal.RequireFromString("4.5"),
		}},
		Payment: &services.Payment{
			ID:     "pay-1",
			Method: method,
			Amount: decimal.RequireFromString("45.5"),
			Status: domain.PaymentStatusPending,
		},
		Shipment: &services.Shipment{
			ID:      "ship-1",
			Address: "1 Main St",
			Status:  domain.ShipmentStatusInPreparation,
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func decodeErrorCode(t *testing.T, body []byte) string {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	code, _ := payload["error"].(string)
	return code
}
