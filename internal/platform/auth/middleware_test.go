package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubIDTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubIDTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequireAuth_AllowsValidFirebaseToken(t *testing.T) {
	stub := &stubIDTokenVerifier{
		token: &firebaseauth.Token{
			UID: "uid-123",
			Claims: map[string]any{
				"role":  []any{"admin", "user"},
				"email": "user@example.com",
			},
		},
	}
	authn := NewAuthenticator(NewFirebaseVerifierWithClient(stub))

	handlerCalled := false
	handler := authn.RequireAuth(RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" || identity.Email != "user@example.com" {
			t.Fatalf("unexpected identity %#v", identity)
		}
		if !identity.IsAdmin() || identity.Source != "firebase" {
			t.Fatalf("expected admin firebase identity, got %#v", identity)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !handlerCalled {
		t.Fatalf("expected handler to be invoked")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if stub.received != "token-abc" {
		t.Fatalf("expected token to be forwarded, got %q", stub.received)
	}
}

func TestRequireAuth_DefaultsToUserRole(t *testing.T) {
	stub := &stubIDTokenVerifier{token: &firebaseauth.Token{UID: "uid-1", Claims: map[string]any{}}}
	authn := NewAuthenticator(NewFirebaseVerifierWithClient(stub))

	var got *Identity
	handler := authn.RequireAuth(RoleUser)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer t")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got == nil || !got.HasRole(RoleUser) {
		t.Fatalf("expected fallback user role, got %#v", got)
	}
}

func TestRequireAuth_Rejections(t *testing.T) {
	userVerifier := VerifierFunc(func(context.Context, string) (*Identity, error) {
		return &Identity{UID: "u", Roles: []string{RoleUser}}, nil
	})
	expired := VerifierFunc(func(context.Context, string) (*Identity, error) {
		return nil, fmt.Errorf("%w: exp", ErrTokenExpired)
	})

	cases := []struct {
		name     string
		verifier Verifier
		header   string
		roles    []string
		status   int
		code     string
	}{
		{name: "missing header", verifier: userVerifier, header: "", status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "wrong scheme", verifier: userVerifier, header: "Basic abc", status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "expired", verifier: expired, header: "Bearer x", status: http.StatusUnauthorized, code: "token_expired"},
		{name: "insufficient role", verifier: userVerifier, header: "Bearer x", roles: []string{RoleAdmin}, status: http.StatusForbidden, code: "insufficient_role"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authn := NewAuthenticator(tc.verifier)
			handler := authn.RequireAuth(tc.roles...)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler should not be called")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body["error"] != tc.code {
				t.Fatalf("expected error %q, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestChainVerifierFallsThrough(t *testing.T) {
	failing := VerifierFunc(func(context.Context, string) (*Identity, error) {
		return nil, ErrTokenInvalid
	})
	ok := VerifierFunc(func(context.Context, string) (*Identity, error) {
		return &Identity{UID: "svc", Roles: []string{RoleService}}, nil
	})

	identity, err := ChainVerifier{failing, nil, ok}.Verify(context.Background(), "t")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.UID != "svc" {
		t.Fatalf("expected second verifier identity, got %#v", identity)
	}

	_, err = ChainVerifier{failing}.Verify(context.Background(), "t")
	if !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected invalid token error, got %v", err)
	}
}
