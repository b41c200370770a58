package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orderflow/api/internal/platform/auth"
	"github.com/orderflow/api/internal/platform/httpx"
	"github.com/orderflow/api/internal/platform/observability"
	"github.com/orderflow/api/internal/services"
)

const maxAdminRequestBody = 8 * 1024

// AdminHandlers exposes the staff-only order lifecycle and stock adjustment endpoints.
type AdminHandlers struct {
	authn     *auth.Authenticator
	orders    services.OrderService
	inventory services.InventoryService
}

// NewAdminHandlers constructs admin handlers. Every route requires the admin role.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService, inventory services.InventoryService) *AdminHandlers {
	return &AdminHandlers{
		authn:     authn,
		orders:    orders,
		inventory: inventory,
	}
}

// Routes registers the admin endpoints.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleAdmin), observability.AnnotateIdentity)
	}
	r.Route("/orders", func(rt chi.Router) {
		rt.Get("/", h.listOrders)
		rt.Get("/{orderId}", h.getOrder)
		rt.Patch("/{orderId}/status", h.updateStatus)
		rt.Patch("/{orderId}/payment", h.updatePayment)
		rt.Patch("/{orderId}/shipment", h.updateShipment)
		rt.Post("/{orderId}:cancel", h.cancelOrder)
	})
	r.Route("/inventory", func(rt chi.Router) {
		rt.Get("/low-stock", h.listLowStock)
		rt.Get("/{productId}", h.getStock)
		rt.Put("/{productId}", h.setStock)
	})
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type updatePaymentStatusRequest struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

type updateShipmentRequest struct {
	Status       *string `json:"status"`
	Address      *string `json:"address"`
	TrackingCode *string `json:"trackingCode"`
	ShipDate     *string `json:"shipDate"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandlers) ordersAvailable(w http.ResponseWriter, r *http.Request) bool {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersAvailable(w, r) {
		return
	}
	limit, err := parseLimit(r, defaultOrderPageSize, maxOrderPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	query := r.URL.Query()

	orders, err := h.orders.ListOrders(ctx, services.ListOrdersQuery{
		UserID: strings.TrimSpace(query.Get("userId")),
		Status: strings.TrimSpace(query.Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderList(orders))
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersAvailable(w, r) {
		return
	}
	order, err := h.orders.GetOrder(ctx, services.GetOrderQuery{OrderID: strings.TrimSpace(chi.URLParam(r, "orderId"))})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersAvailable(w, r) {
		return
	}
	var req updateOrderStatusRequest
	if !decodeJSONBody(w, r, maxAdminRequestBody, &req) {
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateOrderStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderId")),
		Status:  req.Status,
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) updatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersAvailable(w, r) {
		return
	}
	var req updatePaymentStatusRequest
	if !decodeJSONBody(w, r, maxAdminRequestBody, &req) {
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdatePaymentStatus(ctx, services.UpdatePaymentStatusCommand{
		OrderID:   strings.TrimSpace(chi.URLParam(r, "orderId")),
		Status:    req.Status,
		Reference: req.Reference,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) updateShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersAvailable(w, r) {
		return
	}
	var req updateShipmentRequest
	if !decodeJSONBody(w, r, maxAdminRequestBody, &req) {
		return
	}

	cmd := services.UpdateShipmentCommand{
		OrderID:      strings.TrimSpace(chi.URLParam(r, "orderId")),
		Status:       req.Status,
		Address:      req.Address,
		TrackingCode: req.TrackingCode,
	}
	if req.ShipDate != nil {
		var shipDate time.Time
		parsed, err := parseRFC3339(strings.TrimSpace(*req.ShipDate))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "shipDate must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		shipDate = parsed
		cmd.ShipDate = &shipDate
	}

	order, err := h.orders.UpdateShipment(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.ordersAvailable(w, r) {
		return
	}
	var req cancelOrderRequest
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, maxAdminRequestBody, &req) {
			return
		}
	}

	order, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderId")),
		Reason:  req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}
