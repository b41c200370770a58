package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHS256VerifierRoundTrip(t *testing.T) {
	v, err := NewHS256Verifier(HS256Config{Secret: "s3cret", Issuer: "orderflow", Audience: "api"})
	if err != nil {
		t.Fatalf("NewHS256Verifier: %v", err)
	}
	token, err := v.Issue("scheduler", []string{RoleService}, time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	identity, err := v.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if identity.UID != "scheduler" || !identity.HasRole(RoleService) {
		t.Fatalf("unexpected identity %#v", identity)
	}
}

func TestHS256VerifierRejects(t *testing.T) {
	v, _ := NewHS256Verifier(HS256Config{Secret: "s3cret"})
	other, _ := NewHS256Verifier(HS256Config{Secret: "other"})

	foreign, _ := other.Issue("u1", nil, time.Minute)
	if _, err := v.Verify(context.Background(), foreign); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}

	v.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _ := v.Issue("u1", nil, time.Minute)
	if _, err := v.Verify(context.Background(), stale); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected expired token, got %v", err)
	}

	if _, err := NewHS256Verifier(HS256Config{}); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestHS256VerifierRequiresIssuer(t *testing.T) {
	issuer, _ := NewHS256Verifier(HS256Config{Secret: "s3cret", Issuer: "someone-else"})
	v, _ := NewHS256Verifier(HS256Config{Secret: "s3cret", Issuer: "orderflow"})

	token, _ := issuer.Issue("u1", []string{RoleUser}, time.Minute)
	if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected issuer mismatch to be rejected, got %v", err)
	}
}
