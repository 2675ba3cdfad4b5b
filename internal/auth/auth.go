// Package auth issues and parses the JWTs the HTTP layer authenticates with.
package auth

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/goliatone/go-pickup-market/pkg/apperr"
)

// Role separates the two account kinds. The role decides which side of the
// API an identity may call.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleProducer Role = "producer"
)

// Claims is the token payload. Subject carries the account ID.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

type ctxKey struct{}

// ClaimsKey indexes the parsed claims in a request context.
var ClaimsKey ctxKey

// FromContext returns the claims the middleware stored, if any.
func FromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(Claims)
	return claims, ok
}

// Keys signs and verifies tokens with a shared HS256 secret.
type Keys struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewKeys(secret, issuer string, ttl time.Duration) *Keys {
	return &Keys{secret: []byte(secret), issuer: issuer, ttl: ttl}
}

// Sign mints a token for the account.
func (k *Keys) Sign(accountID string, role Role) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    k.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(k.ttl)),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(k.secret)
	if err != nil {
		return "", apperr.Wrap(err, apperr.Internal, "token_sign_failed", "signing token")
	}
	return signed, nil
}

// Parse verifies a token and returns its claims. Every failure mode maps to
// Unauthenticated.
func (k *Keys) Parse(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return k.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, apperr.Wrap(err, apperr.Unauthenticated, "invalid_token", "invalid or expired token")
	}
	if claims.Role != RoleCustomer && claims.Role != RoleProducer {
		return Claims{}, apperr.New(apperr.Unauthenticated, "invalid_token", "token carries no known role")
	}
	return claims, nil
}
