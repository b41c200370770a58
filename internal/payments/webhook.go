package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/orderflow/api/internal/domain"
)

const (
	eventPaymentIntentSucceeded = "payment_intent.succeeded"
	eventPaymentIntentFailed    = "payment_intent.payment_failed"
	eventPaymentIntentCanceled  = "payment_intent.canceled"
)

var (
	// ErrInvalidSignature indicates the webhook payload was not signed with the configured secret.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrMalformedEvent indicates the event could not be decoded or lacks the order reference.
	ErrMalformedEvent = errors.New("payments: malformed webhook event")
)

// PaymentUpdate is the payment status change derived from a PSP event.
type PaymentUpdate struct {
	OrderID   string
	Status    domain.PaymentStatus
	Reference string
}

// PaymentStatusApplier applies a payment update to the order it references.
type PaymentStatusApplier func(ctx context.Context, update PaymentUpdate) error

// WebhookResult reports what the processor did with an event.
type WebhookResult struct {
	EventID string
	Type    string
	Handled bool
	OrderID string
}

// StripeWebhookProcessor verifies and dispatches Stripe webhook events.
type StripeWebhookProcessor struct {
	secret    string
	tolerance time.Duration
	apply     PaymentStatusApplier
	logger    StripeLogger
}

// NewStripeWebhookProcessor constructs a processor. The signing secret is required.
func NewStripeWebhookProcessor(secret string, apply PaymentStatusApplier, logger StripeLogger) (*StripeWebhookProcessor, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("stripe webhook: signing secret is required")
	}
	if apply == nil {
		return nil, errors.New("stripe webhook: payment status applier is required")
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeWebhookProcessor{
		secret:    secret,
		tolerance: webhook.DefaultTolerance,
		apply:     apply,
		logger:    logger,
	}, nil
}

// Process verifies the signature header and applies supported payment intent events.
// Unsupported event types are acknowledged without side effects.
func (p *StripeWebhookProcessor) Process(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{
		Tolerance:                p.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return WebhookResult{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result := WebhookResult{EventID: event.ID, Type: string(event.Type)}

	var status domain.PaymentStatus
	switch string(event.Type) {
	case eventPaymentIntentSucceeded:
		status = domain.PaymentStatusCompleted
	case eventPaymentIntentFailed, eventPaymentIntentCanceled:
		status = domain.PaymentStatusFailed
	default:
		p.logger(ctx, "payments.stripe.event_ignored", map[string]any{"eventId": event.ID, "type": event.Type})
		return result, nil
	}

	if event.Data == nil {
		return result, fmt.Errorf("%w: event %s has no data", ErrMalformedEvent, event.ID)
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return result, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	orderID := strings.TrimSpace(intent.Metadata[MetadataOrderID])
	if orderID == "" {
		return result, fmt.Errorf("%w: payment intent %s has no %s metadata", ErrMalformedEvent, intent.ID, MetadataOrderID)
	}

	update := PaymentUpdate{OrderID: orderID, Status: status, Reference: intent.ID}
	if err := p.apply(ctx, update); err != nil {
		return result, err
	}

	p.logger(ctx, "payments.stripe.event_applied", map[string]any{
		"eventId":       event.ID,
		"type":          event.Type,
		"orderId":       orderID,
		"paymentIntent": intent.ID,
		"status":        status,
	})
	result.Handled = true
	result.OrderID = orderID
	return result, nil
}
