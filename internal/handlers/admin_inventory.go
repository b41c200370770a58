package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/orderflow/api/internal/platform/httpx"
	"github.com/orderflow/api/internal/services"
)

const (
	defaultLowStockThreshold = 5
	maxLowStockPageSize      = 500
)

type setStockRequest struct {
	OnHand *int `json:"onHand"`
}

type stockPayload struct {
	ProductID string `json:"productId"`
	OnHand    int    `json:"onHand"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type lowStockResponse struct {
	Threshold int            `json:"threshold"`
	Items     []stockPayload `json:"items"`
}

func (h *AdminHandlers) inventoryAvailable(w http.ResponseWriter, r *http.Request) bool {
	if h.inventory == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("inventory_service_unavailable", "inventory service is unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *AdminHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.inventoryAvailable(w, r) {
		return
	}
	threshold := defaultLowStockThreshold
	if raw := strings.TrimSpace(r.URL.Query().Get("threshold")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "threshold must be a non-negative integer", http.StatusBadRequest))
			return
		}
		threshold = parsed
	}
	limit, err := parseLimit(r, 0, maxLowStockPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	stocks, err := h.inventory.ListLowStock(ctx, services.LowStockFilter{Threshold: threshold, Limit: limit})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := lowStockResponse{Threshold: threshold, Items: make([]stockPayload, 0, len(stocks))}
	for _, stock := range stocks {
		resp.Items = append(resp.Items, buildStockPayload(stock))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *AdminHandlers) getStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.inventoryAvailable(w, r) {
		return
	}
	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	levels, err := h.inventory.GetStockLevels(ctx, []string{productID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStockPayload(levels[productID]))
}

func (h *AdminHandlers) setStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.inventoryAvailable(w, r) {
		return
	}
	var req setStockRequest
	if !decodeJSONBody(w, r, maxAdminRequestBody, &req) {
		return
	}
	if req.OnHand == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "onHand is required", http.StatusBadRequest))
		return
	}

	stock, err := h.inventory.SetStock(ctx, services.SetStockCommand{
		ProductID: strings.TrimSpace(chi.URLParam(r, "productId")),
		OnHand:    *req.OnHand,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildStockPayload(stock))
}

func buildStockPayload(stock services.InventoryStock) stockPayload {
	return stockPayload{
		ProductID: stock.ProductID,
		OnHand:    stock.OnHand,
		Reserved:  stock.Reserved,
		Available: stock.Available,
		UpdatedAt: formatTime(stock.UpdatedAt),
	}
}
