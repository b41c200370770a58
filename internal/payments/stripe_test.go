package payments

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"

	"github.com/orderflow/api/internal/domain"
)

type stubIntentAPI struct {
	params *stripe.PaymentIntentParams
	intent *stripe.PaymentIntent
	err    error
}

func (s *stubIntentAPI) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.params = params
	return s.intent, s.err
}

func (s *stubIntentAPI) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.params = params
	if s.err != nil {
		return nil, s.err
	}
	return s.intent, nil
}

func TestStripeProviderCreateIntent(t *testing.T) {
	api := &stubIntentAPI{intent: &stripe.PaymentIntent{
		ID:           "pi_1",
		ClientSecret: "pi_1_secret",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
		Amount:       9050,
		Currency:     stripe.CurrencyEUR,
	}}
	provider, err := NewStripeProvider(StripeProviderConfig{Currency: "EUR", intents: api})
	if err != nil {
		t.Fatalf("NewStripeProvider: %v", err)
	}

	intent, err := provider.CreateIntent(context.Background(), IntentRequest{
		OrderID: "ord_1",
		UserID:  "user-1",
		Amount:  decimal.RequireFromString("90.50"),
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if intent.ClientSecret != "pi_1_secret" || intent.Status != domain.PaymentStatusPending {
		t.Fatalf("unexpected intent %#v", intent)
	}
	if got := *api.params.Amount; got != 9050 {
		t.Fatalf("expected 9050 minor units, got %d", got)
	}
	if got := *api.params.Currency; got != "eur" {
		t.Fatalf("expected eur currency, got %s", got)
	}
	if api.params.Metadata[MetadataOrderID] != "ord_1" {
		t.Fatalf("expected order metadata, got %#v", api.params.Metadata)
	}
	if key := api.params.IdempotencyKey; key == nil || *key != "order-ord_1" {
		t.Fatalf("expected default idempotency key, got %v", key)
	}
}

func TestStripeProviderCreateIntentRejectsZeroAmount(t *testing.T) {
	provider, _ := NewStripeProvider(StripeProviderConfig{intents: &stubIntentAPI{}})
	if _, err := provider.CreateIntent(context.Background(), IntentRequest{OrderID: "ord_1", Amount: decimal.Zero}); err == nil {
		t.Fatalf("expected error for zero amount")
	}
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestMinorUnitsRoundsHalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{in: "10", want: 1000},
		{in: "10.005", want: 1001},
		{in: "0.994", want: 99},
	}
	for _, tc := range cases {
		if got := MinorUnits(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Fatalf("MinorUnits(%s) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

const testWebhookSecret = "whsec_test"

func signPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func intentEvent(eventType, orderID string) []byte {
	return []byte(fmt.Sprintf(`{
  "id": "evt_1",
  "object": "event",
  "type": %q,
  "api_version": "2020-08-27",
  "data": {"object": {"id": "pi_1", "object": "payment_intent", "metadata": {"order_id": %q}}}
}`, eventType, orderID))
}

func TestStripeWebhookProcessorAppliesSucceededIntent(t *testing.T) {
	var applied []PaymentUpdate
	processor, err := NewStripeWebhookProcessor(testWebhookSecret, func(_ context.Context, u PaymentUpdate) error {
		applied = append(applied, u)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("NewStripeWebhookProcessor: %v", err)
	}

	payload := intentEvent("payment_intent.succeeded", "ord_42")
	result, err := processor.Process(context.Background(), payload, signPayload(payload, testWebhookSecret, time.Now()))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !result.Handled || result.OrderID != "ord_42" {
		t.Fatalf("unexpected result %#v", result)
	}
	if len(applied) != 1 || applied[0].Status != domain.PaymentStatusCompleted || applied[0].Reference != "pi_1" {
		t.Fatalf("unexpected updates %#v", applied)
	}
}

func TestStripeWebhookProcessorFailures(t *testing.T) {
	boom := errors.New("store down")
	var calls int
	processor, _ := NewStripeWebhookProcessor(testWebhookSecret, func(context.Context, PaymentUpdate) error {
		calls++
		return boom
	}, nil)

	failed := intentEvent("payment_intent.payment_failed", "ord_1")
	if _, err := processor.Process(context.Background(), failed, signPayload(failed, "wrong", time.Now())); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}

	noOrder := intentEvent("payment_intent.succeeded", "")
	if _, err := processor.Process(context.Background(), noOrder, signPayload(noOrder, testWebhookSecret, time.Now())); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected malformed event, got %v", err)
	}

	if _, err := processor.Process(context.Background(), failed, signPayload(failed, testWebhookSecret, time.Now())); !errors.Is(err, boom) {
		t.Fatalf("expected applier error, got %v", err)
	}

	other := intentEvent("charge.refunded", "ord_1")
	result, err := processor.Process(context.Background(), other, signPayload(other, testWebhookSecret, time.Now()))
	if err != nil || result.Handled {
		t.Fatalf("expected unsupported event to be acknowledged, got %#v, %v", result, err)
	}
	if calls != 1 {
		t.Fatalf("expected applier to be called once, got %d", calls)
	}
}
