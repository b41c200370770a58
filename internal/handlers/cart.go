package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/platform/auth"
	"github.com/orderflow/api/internal/platform/httpx"
	"github.com/orderflow/api/internal/platform/observability"
	"github.com/orderflow/api/internal/platform/requestctx"
	"github.com/orderflow/api/internal/services"
)

const maxCartBodySize = 8 * 1024

// CartHandlers exposes the authenticated caller's cart.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth(auth.RoleUser, auth.RoleAdmin), observability.AnnotateIdentity)
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{lineId}", h.updateItem)
	r.Delete("/items/{lineId}", h.removeItem)
}

type personalizationRequest struct {
	CustomText   string `json:"customText"`
	CustomNumber *int   `json:"customNumber"`
	PatchID      string `json:"patchId"`
}

type addCartItemRequest struct {
	ProductID       string                  `json:"productId"`
	Quantity        int                     `json:"quantity"`
	Personalization *personalizationRequest `json:"personalization"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	UserID    string            `json:"userId"`
	Lines     []cartLinePayload `json:"lines"`
	ItemCount int               `json:"itemCount"`
	Total     string            `json:"total"`
	UpdatedAt string            `json:"updatedAt,omitempty"`
}

type cartLinePayload struct {
	LineID          string                  `json:"lineId"`
	ProductID       string                  `json:"productId"`
	ProductName     string                  `json:"productName,omitempty"`
	Quantity        int                     `json:"quantity"`
	Personalization *personalizationPayload `json:"personalization,omitempty"`
	UnitPriceBase   string                  `json:"unitPriceBase"`
	UnitPriceFinal  string                  `json:"unitPriceFinal"`
	DiscountPercent string                  `json:"discountPercent,omitempty"`
	PromotionCode   string                  `json:"promotionCode,omitempty"`
	Subtotal        string                  `json:"subtotal"`
	Discount        string                  `json:"discount"`
	Unavailable     bool                    `json:"unavailable,omitempty"`
}

type personalizationPayload struct {
	CustomText   string `json:"customText,omitempty"`
	CustomNumber *int   `json:"customNumber,omitempty"`
	PatchID      string `json:"patchId,omitempty"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	view, err := h.carts.GetCart(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, view)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req addCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "productId is required", http.StatusBadRequest))
		return
	}

	cmd := services.AddCartItemCommand{
		UserID:    identity.UID,
		ProductID: productID,
		Quantity:  req.Quantity,
	}
	if req.Personalization != nil {
		cmd.Personalization = domain.Personalization{
			CustomText:   req.Personalization.CustomText,
			CustomNumber: req.Personalization.CustomNumber,
			PatchID:      strings.TrimSpace(req.Personalization.PatchID),
		}
	}

	requestctx.Annotate(ctx, requestctx.ProductID, productID)
	view, err := h.carts.AddItem(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, view)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateCartItemRequest
	if !decodeJSONBody(w, r, maxCartBodySize, &req) {
		return
	}

	view, err := h.carts.UpdateQuantity(ctx, services.UpdateCartItemCommand{
		UserID:   identity.UID,
		LineID:   strings.TrimSpace(chi.URLParam(r, "lineId")),
		Quantity: req.Quantity,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, view)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	view, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		UserID: identity.UID,
		LineID: strings.TrimSpace(chi.URLParam(r, "lineId")),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCart(w, http.StatusOK, view)
}

func writeCart(w http.ResponseWriter, status int, view services.CartView) {
	setNoStoreHeaders(w)
	if !view.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", view.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	writeJSONResponse(w, status, cartResponse{Cart: buildCartPayload(view)})
}

func buildCartPayload(view services.CartView) cartPayload {
	payload := cartPayload{
		UserID:    view.UserID,
		Lines:     make([]cartLinePayload, 0, len(view.Lines)),
		ItemCount: view.ItemCount,
		Total:     formatMoney(view.Total),
		UpdatedAt: formatTime(view.UpdatedAt),
	}
	for _, line := range view.Lines {
		payload.Lines = append(payload.Lines, cartLinePayload{
			LineID:          line.LineID,
			ProductID:       line.ProductID,
			ProductName:     line.ProductName,
			Quantity:        line.Quantity,
			Personalization: buildPersonalizationPayload(line.Personalization),
			UnitPriceBase:   formatMoney(line.UnitPriceBase),
			UnitPriceFinal:  formatMoney(line.UnitPriceFinal),
			DiscountPercent: formatPercent(line.DiscountPercent),
			PromotionCode:   line.PromotionCode,
			Subtotal:        formatMoney(line.Subtotal),
			Discount:        formatMoney(line.Discount),
			Unavailable:     line.Unavailable,
		})
	}
	return payload
}

func buildPersonalizationPayload(p domain.Personalization) *personalizationPayload {
	if p.IsZero() {
		return nil
	}
	out := &personalizationPayload{
		CustomText: p.CustomText,
		PatchID:    p.PatchID,
	}
	if p.CustomNumber != nil {
		n := *p.CustomNumber
		out.CustomNumber = &n
	}
	return out
}
