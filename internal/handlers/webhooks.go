package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/orderflow/api/internal/payments"
	"github.com/orderflow/api/internal/platform/httpx"
	"github.com/orderflow/api/internal/platform/observability"
	"github.com/orderflow/api/internal/services"
)

const (
	maxWebhookBodySize    = 64 * 1024
	stripeSignatureHeader = "Stripe-Signature"
)

// PaymentWebhookProcessor verifies and applies PSP webhook payloads.
type PaymentWebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) (payments.WebhookResult, error)
}

// WebhookHandlers receives PSP callbacks. Authenticity comes from the payload signature.
type WebhookHandlers struct {
	stripe PaymentWebhookProcessor
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(stripe PaymentWebhookProcessor) *WebhookHandlers {
	return &WebhookHandlers{stripe: stripe}
}

// Routes registers the webhook endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/stripe", h.stripeWebhook)
}

type webhookAckResponse struct {
	Received bool   `json:"received"`
	EventID  string `json:"eventId,omitempty"`
	Handled  bool   `json:"handled"`
}

func (h *WebhookHandlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.stripe == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "payment webhooks are not configured", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	logger := observability.FromContext(ctx)
	result, err := h.stripe.Process(ctx, body, r.Header.Get(stripeSignatureHeader))
	switch {
	case err == nil:
	case errors.Is(err, payments.ErrInvalidSignature):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	case errors.Is(err, payments.ErrMalformedEvent):
		httpx.WriteError(ctx, w, httpx.NewError("malformed_event", err.Error(), http.StatusBadRequest))
		return
	case errors.Is(err, services.ErrNotFound),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrInvalidStatus):
		// Permanent rejections are acknowledged to stop redelivery.
		logger.Warn("webhooks.stripe.update_rejected", zap.String("event_id", result.EventID), zap.Error(err))
		writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true, EventID: result.EventID})
		return
	default:
		logger.Error("webhooks.stripe.apply_failed", zap.String("event_id", result.EventID), zap.Error(err))
		writeServiceError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, webhookAckResponse{
		Received: true,
		EventID:  result.EventID,
		Handled:  result.Handled,
	})
}
