package http

import (
	"context"
	"errors"
	"strings"

	"github.com/asgared/elarcabeer/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are issued by the identity provider. The subject is the user id.
type Claims struct {
	Email string        `json:"email,omitempty"`
	Roles []domain.Role `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// ParseToken verifies an HS256 token and returns the identity it carries.
// Tokens without an expiry or a subject are rejected.
func ParseToken(secret []byte, raw string) (*domain.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &domain.Identity{UserID: claims.Subject, Email: claims.Email, Roles: claims.Roles}, nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

type ctxKey int

const (
	identityKey ctxKey = iota
	requestIDKey
)

func withIdentity(ctx context.Context, id *domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller set by the customer or admin middleware.
func IdentityFrom(ctx context.Context) *domain.Identity {
	id, _ := ctx.Value(identityKey).(*domain.Identity)
	return id
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}
