// Package identity carries caller identity through invocation contexts.
//
// The engine never provisions identities; it consumes the caller id and org
// id supplied by the embedding host. In-process callers attach a Caller to
// the context directly, daemon and CLI callers present a signed bearer token.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/segledger/segledger/internal/platform/errors"
)

// Caller identifies the invoking user and the org namespace that drives
// collection routing and authorization decisions.
type Caller struct {
	ID  string
	Org string
}

type callerKey struct{}

type transactionKey struct{}

// WithCaller returns a context carrying the given caller identity.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// FromContext extracts the caller identity from the context.
func FromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	if !ok || caller.Org == "" {
		return Caller{}, false
	}
	return caller, true
}

// Require extracts the caller identity or fails with an UNAUTHORIZED error.
func Require(ctx context.Context) (Caller, error) {
	caller, ok := FromContext(ctx)
	if !ok {
		return Caller{}, apperrors.New(apperrors.CodeUnauthorized, "caller identity is required")
	}
	return caller, nil
}

// WithTransaction returns a context carrying an explicit transaction id.
func WithTransaction(ctx context.Context, txID string) context.Context {
	return context.WithValue(ctx, transactionKey{}, txID)
}

// TransactionFromContext extracts the transaction id from the context.
func TransactionFromContext(ctx context.Context) (string, bool) {
	txID, ok := ctx.Value(transactionKey{}).(string)
	if !ok || txID == "" {
		return "", false
	}
	return txID, true
}

// tokenClaims is the internal claims type used for JWT parsing.
type tokenClaims struct {
	jwt.RegisteredClaims
	Org string `json:"org"`
}

// ParseToken verifies an HS256 bearer token and extracts the caller identity.
// The subject claim supplies the caller id and the org claim the org id.
func ParseToken(token, secret string) (Caller, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Caller{}, apperrors.New(apperrors.CodeUnauthorized, "bearer token is required")
	}
	if secret == "" {
		return Caller{}, apperrors.New(apperrors.CodeUnauthorized, "token verifier is not configured")
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithTimeFunc(time.Now),
	)
	if err != nil {
		return Caller{}, apperrors.Wrap(apperrors.CodeUnauthorized, "invalid bearer token", err)
	}
	if parsed.Subject == "" {
		return Caller{}, apperrors.New(apperrors.CodeUnauthorized, "token subject is required")
	}
	if parsed.Org == "" {
		return Caller{}, apperrors.New(apperrors.CodeUnauthorized, "token org claim is required")
	}
	return Caller{ID: parsed.Subject, Org: parsed.Org}, nil
}
