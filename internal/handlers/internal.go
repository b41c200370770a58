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

// ExpirySettings carries the scheduler defaults applied when a request leaves them out.
type ExpirySettings struct {
	PendingOrderTTL time.Duration
	CartHoldTTL     time.Duration
	BatchSize       int
}

// InternalHandlers exposes maintenance endpoints invoked by the scheduler.
type InternalHandlers struct {
	authn    *auth.Authenticator
	orders   services.OrderService
	carts    services.CartService
	settings ExpirySettings
}

// NewInternalHandlers constructs the maintenance handlers. Callers need the service or admin role.
func NewInternalHandlers(authn *auth.Authenticator, orders services.OrderService, carts services.CartService, settings ExpirySettings) *InternalHandlers {
	return &InternalHandlers{
		authn:    authn,
		orders:   orders,
		carts:    carts,
		settings: settings,
	}
}

// Routes registers the internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleService, auth.RoleAdmin), observability.AnnotateIdentity)
	}
	r.Post("/orders:expire-pending", h.expirePending)
	r.Post("/carts:expire-holds", h.expireCartHolds)
}

type expireRequest struct {
	OlderThan string `json:"olderThan"`
	Limit     int    `json:"limit"`
}

type expireResponse struct {
	Expired []string `json:"expired"`
	Skipped []string `json:"skipped"`
}

// decodeExpireRequest applies the optional body over the defaults. It writes the error response
// itself and reports false when the request is unusable.
func decodeExpireRequest(w http.ResponseWriter, r *http.Request, olderThan time.Duration, limit int) (time.Duration, int, bool) {
	var req expireRequest
	if r.ContentLength != 0 {
		if !decodeJSONBody(w, r, maxAdminRequestBody, &req) {
			return 0, 0, false
		}
	}
	if raw := strings.TrimSpace(req.OlderThan); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "olderThan must be a positive duration", http.StatusBadRequest))
			return 0, 0, false
		}
		olderThan = d
	}
	if req.Limit < 0 {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "limit must not be negative", http.StatusBadRequest))
		return 0, 0, false
	}
	if req.Limit > 0 {
		limit = req.Limit
	}
	return olderThan, limit, true
}

func (h *InternalHandlers) expirePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	olderThan, limit, ok := decodeExpireRequest(w, r, h.settings.PendingOrderTTL, h.settings.BatchSize)
	if !ok {
		return
	}
	result, err := h.orders.ExpirePendingOrders(ctx, services.ExpirePendingOrdersCommand{OlderThan: olderThan, Limit: limit})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, expireResponse{Expired: result.Expired, Skipped: result.Skipped})
}

func (h *InternalHandlers) expireCartHolds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	olderThan, limit, ok := decodeExpireRequest(w, r, h.settings.CartHoldTTL, h.settings.BatchSize)
	if !ok {
		return
	}
	result, err := h.carts.ExpireStaleHolds(ctx, services.ExpireCartHoldsCommand{OlderThan: olderThan, Limit: limit})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, expireResponse{Expired: result.Expired, Skipped: result.Skipped})
}
