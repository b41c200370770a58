package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orderflow/api/internal/platform/auth"
	"github.com/orderflow/api/internal/platform/httpx"
	"github.com/orderflow/api/internal/platform/observability"
	"github.com/orderflow/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

// OrderHandlers exposes the caller's own orders.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs order handlers guarded by authentication.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleUser, auth.RoleAdmin), observability.AnnotateIdentity)
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
}

type orderListResponse struct {
	Items []orderPayload `json:"items"`
}

type orderPayload struct {
	ID           string             `json:"id"`
	UserID       string             `json:"userId"`
	Status       string             `json:"status"`
	Total        string             `json:"total"`
	Lines        []orderLinePayload `json:"lines"`
	Payment      *paymentPayload    `json:"payment,omitempty"`
	Shipment     *shipmentPayload   `json:"shipment,omitempty"`
	CreatedAt    string             `json:"createdAt"`
	UpdatedAt    string             `json:"updatedAt,omitempty"`
	PaidAt       string             `json:"paidAt,omitempty"`
	ShippedAt    string             `json:"shippedAt,omitempty"`
	DeliveredAt  string             `json:"deliveredAt,omitempty"`
	CancelledAt  string             `json:"cancelledAt,omitempty"`
	CancelReason string             `json:"cancelReason,omitempty"`
}

type orderLinePayload struct {
	ID              string                  `json:"id"`
	ProductID       string                  `json:"productId"`
	ProductName     string                  `json:"productName,omitempty"`
	Quantity        int                     `json:"quantity"`
	UnitPriceBase   string                  `json:"unitPriceBase"`
	UnitPriceFinal  string                  `json:"unitPriceFinal"`
	DiscountPercent string                  `json:"discountPercent,omitempty"`
	PromotionCode   string                  `json:"promotionCode,omitempty"`
	Subtotal        string                  `json:"subtotal"`
	Discount        string                  `json:"discount"`
	Personalization *personalizationPayload `json:"personalization,omitempty"`
}

type paymentPayload struct {
	ID          string `json:"id"`
	Method      string `json:"method"`
	Amount      string `json:"amount"`
	Status      string `json:"status"`
	Reference   string `json:"reference,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
}

type shipmentPayload struct {
	ID           string `json:"id"`
	Address      string `json:"address"`
	TrackingCode string `json:"trackingCode,omitempty"`
	Status       string `json:"status"`
	ShipDate     string `json:"shipDate,omitempty"`
	DeliveredAt  string `json:"deliveredAt,omitempty"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	limit, err := parseLimit(r, defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	orders, err := h.orders.ListOrders(ctx, services.ListOrdersQuery{
		UserID: identity.UID,
		Status: strings.TrimSpace(r.URL.Query().Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(orders))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderId")),
		UserID:  identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func buildOrderList(orders []services.Order) orderListResponse {
	resp := orderListResponse{Items: make([]orderPayload, 0, len(orders))}
	for _, order := range orders {
		resp.Items = append(resp.Items, buildOrderPayload(order))
	}
	return resp
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:           order.ID,
		UserID:       order.UserID,
		Status:       string(order.Status),
		Total:        formatMoney(order.Total),
		Lines:        make([]orderLinePayload, 0, len(order.Lines)),
		CreatedAt:    formatTime(order.CreatedAt),
		UpdatedAt:    formatTime(order.UpdatedAt),
		PaidAt:       formatTimePtr(order.PaidAt),
		ShippedAt:    formatTimePtr(order.ShippedAt),
		DeliveredAt:  formatTimePtr(order.DeliveredAt),
		CancelledAt:  formatTimePtr(order.CancelledAt),
		CancelReason: order.CancelReason,
	}
	for _, line := range order.Lines {
		payload.Lines = append(payload.Lines, orderLinePayload{
			ID:              line.ID,
			ProductID:       line.ProductID,
			ProductName:     line.ProductName,
			Quantity:        line.Quantity,
			UnitPriceBase:   formatMoney(line.UnitPriceBase),
			UnitPriceFinal:  formatMoney(line.UnitPriceFinal),
			DiscountPercent: formatPercent(line.DiscountPercent),
			PromotionCode:   line.PromotionCode,
			Subtotal:        formatMoney(line.Subtotal),
			Discount:        formatMoney(line.Discount),
			Personalization: buildPersonalizationPayload(line.Personalization),
		})
	}
	if p := order.Payment; p != nil {
		payload.Payment = &paymentPayload{
			ID:          p.ID,
			Method:      string(p.Method),
			Amount:      formatMoney(p.Amount),
			Status:      string(p.Status),
			Reference:   p.Reference,
			CompletedAt: formatTimePtr(p.CompletedAt),
		}
	}
	if s := order.Shipment; s != nil {
		payload.Shipment = &shipmentPayload{
			ID:           s.ID,
			Address:      s.Address,
			TrackingCode: s.TrackingCode,
			Status:       string(s.Status),
			ShipDate:     formatTimePtr(s.ShipDate),
			DeliveredAt:  formatTimePtr(s.DeliveredAt),
		}
	}
	return payload
}
