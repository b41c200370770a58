package auth

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrTokenExpired signals that the presented bearer token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the presented bearer token failed verification.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Verifier turns a raw bearer token into an Identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(ctx context.Context, token string) (*Identity, error)

// Verify implements Verifier.
func (f VerifierFunc) Verify(ctx context.Context, token string) (*Identity, error) {
	return f(ctx, token)
}

// ChainVerifier tries each verifier in order and returns the first success.
// An expired token short-circuits the chain.
type ChainVerifier []Verifier

// Verify implements Verifier.
func (c ChainVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	lastErr := ErrTokenInvalid
	for _, v := range c {
		if v == nil {
			continue
		}
		identity, err := v.Verify(ctx, token)
		if err == nil && identity != nil {
			return identity, nil
		}
		if errors.Is(err, ErrTokenExpired) {
			return nil, err
		}
		if err != nil {
			lastErr = err
		}
	}
	return nil, lastErr
}

func rolesFromClaims(claims map[string]any, key string) []string {
	raw, ok := claims[key]
	if !ok {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(role string) {
		role = normaliseRole(role)
		if role == "" {
			return
		}
		if _, exists := seen[role]; exists {
			return
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}

	switch v := raw.(type) {
	case string:
		add(v)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case []string:
		for _, item := range v {
			add(item)
		}
	case map[string]any:
		for key, value := range v {
			if enabled, ok := value.(bool); ok && enabled {
				add(key)
			}
		}
	}
	return out
}

func claimAsString(claims map[string]any, key string) string {
	if v, ok := claims[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
