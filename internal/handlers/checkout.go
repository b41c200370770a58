package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/orderflow/api/internal/domain"
	"github.com/orderflow/api/internal/payments"
	"github.com/orderflow/api/internal/platform/auth"
	"github.com/orderflow/api/internal/platform/httpx"
	"github.com/orderflow/api/internal/platform/observability"
	"github.com/orderflow/api/internal/platform/requestctx"
	"github.com/orderflow/api/internal/services"
)

const maxCheckoutRequestBody = 8 * 1024

// PaymentIntentCreator opens a card payment with the PSP for a freshly placed order.
type PaymentIntentCreator interface {
	CreateIntent(ctx context.Context, req payments.IntentRequest) (payments.Intent, error)
}

// CheckoutHandlers exposes checkout for authenticated users.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
	orders   services.OrderService
	intents  PaymentIntentCreator
	guard    []func(http.Handler) http.Handler
	limiter  rateLimiter
}

// CheckoutOption customises CheckoutHandlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutPayments enables card payment intents. The order service records the intent reference.
func WithCheckoutPayments(intents PaymentIntentCreator, orders services.OrderService) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.intents = intents
		h.orders = orders
	}
}

// WithCheckoutMiddlewares wraps the checkout endpoint, typically with the idempotency guard.
func WithCheckoutMiddlewares(mw ...func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.guard = append(h.guard, mw...)
	}
}

// WithCheckoutRateLimit caps checkout attempts per user within window.
func WithCheckoutRateLimit(limit int, window time.Duration, clock func() time.Time) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, clock)
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the checkout endpoint under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth(auth.RoleUser, auth.RoleAdmin), observability.AnnotateIdentity)
	}
	for _, mw := range h.guard {
		if mw != nil {
			group = group.With(mw)
		}
	}
	group.Post("/", h.createOrder)
}

type checkoutRequest struct {
	ShippingAddress string `json:"shippingAddress"`
	PaymentMethod   string `json:"paymentMethod"`
}

type checkoutResponse struct {
	Order   orderPayload          `json:"order"`
	Payment *paymentIntentPayload `json:"paymentIntent,omitempty"`
}

type paymentIntentPayload struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Status       string `json:"status"`
}

func (h *CheckoutHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.limiter != nil {
		if allowed, wait := h.limiter.Allow(identity.UID); !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many checkout attempts; retry later", http.StatusTooManyRequests))
			return
		}
	}

	var req checkoutRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}

	order, err := h.checkout.CreateOrder(ctx, services.CreateOrderCommand{
		UserID:          identity.UID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	requestctx.Annotate(ctx, requestctx.OrderID, order.ID)

	order, intent := h.openCardPayment(ctx, order)
	resp := checkoutResponse{Order: buildOrderPayload(order)}
	if intent != nil {
		resp.Payment = &paymentIntentPayload{
			ID:           intent.ID,
			ClientSecret: intent.ClientSecret,
			Status:       string(intent.Status),
		}
	}

	w.Header().Set("Location", "/api/v1/orders/"+order.ID)
	writeJSONResponse(w, http.StatusCreated, resp)
}

// openCardPayment creates the PSP intent for card orders. Failures are logged and leave the order
// PENDING without a reference.
func (h *CheckoutHandlers) openCardPayment(ctx context.Context, order services.Order) (services.Order, *payments.Intent) {
	if h.intents == nil || order.Payment == nil || order.Payment.Method != domain.PaymentMethodCard {
		return order, nil
	}
	logger := observability.FromContext(ctx).With(zap.String("order_id", order.ID))

	intent, err := h.intents.CreateIntent(ctx, payments.IntentRequest{
		OrderID: order.ID,
		UserID:  order.UserID,
		Amount:  order.Total,
	})
	if err != nil {
		logger.Warn("checkout.payment_intent_unavailable", zap.Error(err))
		return order, nil
	}

	if h.orders != nil {
		updated, err := h.orders.UpdatePaymentStatus(ctx, services.UpdatePaymentStatusCommand{
			OrderID:   order.ID,
			Status:    string(domain.PaymentStatusPending),
			Reference: intent.ID,
		})
		if err != nil {
			logger.Warn("checkout.payment_reference_unrecorded", zap.String("intent_id", intent.ID), zap.Error(err))
		} else {
			order = updated
		}
	}
	return order, &intent
}
