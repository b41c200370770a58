package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
)

// HS256Config configures shared-secret token verification.
type HS256Config struct {
	Secret   string
	Issuer   string
	Audience string
}

// HS256Verifier verifies HMAC-signed JWTs issued to internal callers and local tooling.
type HS256Verifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewHS256Verifier constructs a verifier. The secret must be non-empty.
func NewHS256Verifier(cfg HS256Config) (*HS256Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: hs256 secret is required")
	}
	return &HS256Verifier{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		now:      time.Now,
	}, nil
}

// Verify implements Verifier.
func (v *HS256Verifier) Verify(_ context.Context, raw string) (*Identity, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if v.audience != "" && !claims.VerifyAudience(v.audience, true) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrTokenInvalid)
	}

	subject := claimAsString(claims, "sub")
	if subject == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrTokenInvalid)
	}
	roles := rolesFromClaims(claims, defaultRoleClaim)
	if len(roles) == 0 {
		roles = []string{RoleUser}
	}
	return &Identity{
		UID:    subject,
		Email:  claimAsString(claims, defaultEmailClaim),
		Roles:  roles,
		Source: "hs256",
	}, nil
}

// Issue signs a token for subject with the given roles. Used by local tooling and tests.
func (v *HS256Verifier) Issue(subject string, roles []string, ttl time.Duration) (string, error) {
	now := v.now().UTC()
	claims := jwt.MapClaims{
		"sub":  subject,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
		"role": roles,
	}
	if v.issuer != "" {
		claims["iss"] = v.issuer
	}
	if v.audience != "" {
		claims["aud"] = v.audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
