package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/orderflow/api/internal/domain"
)

// Metadata keys stamped on payment intents and read back by the webhook.
const (
	MetadataOrderID = "order_id"
	MetadataUserID  = "user_id"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey    string
	AccountID string
	Currency  string
	Backends  *stripe.Backends
	Logger    StripeLogger

	intents stripePaymentIntentAPI
}

// StripeProvider creates and inspects payment intents for card orders.
type StripeProvider struct {
	intents  stripePaymentIntentAPI
	account  string
	currency string
	logger   StripeLogger
}

// IntentRequest describes the amount to collect for an order.
type IntentRequest struct {
	OrderID        string
	UserID         string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// Intent is the client-facing part of a payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       domain.PaymentStatus
	AmountMinor  int64
	Currency     string
}

// NewStripeProvider constructs a Stripe provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	intents := cfg.intents
	if intents == nil {
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents:  intents,
		account:  strings.TrimSpace(cfg.AccountID),
		currency: currency,
		logger:   logger,
	}, nil
}

// CreateIntent opens a payment intent for the order total.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return Intent{}, errors.New("stripe: order id is required")
	}
	amount := MinorUnits(req.Amount)
	if amount <= 0 {
		return Intent{}, fmt.Errorf("stripe: amount must be positive, got %s", req.Amount.StringFixed(2))
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(p.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataOrderID, orderID)
	if uid := strings.TrimSpace(req.UserID); uid != "" {
		params.AddMetadata(MetadataUserID, uid)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	} else {
		params.SetIdempotencyKey("order-" + orderID)
	}
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	p.logger(ctx, "payments.stripe.intent_created", map[string]any{
		"orderId":       orderID,
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
	})
	return toIntent(intent), nil
}

// LookupIntent fetches the current state of an intent.
func (p *StripeProvider) LookupIntent(ctx context.Context, intentID string) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	if p.account != "" {
		params.SetStripeAccount(p.account)
	}
	intent, err := p.intents.Get(intentID, params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	return toIntent(intent), nil
}

// MinorUnits converts a two-decimal amount into the integer minor units Stripe expects.
func MinorUnits(amount decimal.Decimal) int64 {
	return domain.RoundMoney(amount).Shift(2).IntPart()
}

func toIntent(intent *stripe.PaymentIntent) Intent {
	if intent == nil {
		return Intent{}
	}
	return Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       paymentStatusFromIntent(intent.Status),
		AmountMinor:  intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
	}
}

func paymentStatusFromIntent(status stripe.PaymentIntentStatus) domain.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return domain.PaymentStatusCompleted
	case stripe.PaymentIntentStatusCanceled:
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}
