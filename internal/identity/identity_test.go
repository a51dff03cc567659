package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/segledger/segledger/internal/platform/errors"
)

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithCaller(context.Background(), Caller{ID: "user-1", Org: "OrgA"})
	caller, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected caller on context")
	}
	if caller.ID != "user-1" || caller.Org != "OrgA" {
		t.Fatalf("caller = %+v, want user-1/OrgA", caller)
	}
}

func TestRequireFailsWithoutCaller(t *testing.T) {
	t.Parallel()

	_, err := Require(context.Background())
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("error code = %q, want %q", apperrors.GetCode(err), apperrors.CodeUnauthorized)
	}
}

func TestTransactionRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := WithTransaction(context.Background(), "tx-42")
	txID, ok := TransactionFromContext(ctx)
	if !ok || txID != "tx-42" {
		t.Fatalf("transaction = %q/%v, want tx-42", txID, ok)
	}

	if _, ok := TransactionFromContext(context.Background()); ok {
		t.Fatal("expected no transaction on empty context")
	}
}

func signToken(t *testing.T, secret string, claims tokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestParseTokenExtractsCaller(t *testing.T) {
	t.Parallel()

	token := signToken(t, "secret", tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Org: "OrgB",
	})

	caller, err := ParseToken(token, "secret")
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if caller.ID != "user-2" || caller.Org != "OrgB" {
		t.Fatalf("caller = %+v, want user-2/OrgB", caller)
	}
}

func TestParseTokenRejectsBadSecret(t *testing.T) {
	t.Parallel()

	token := signToken(t, "secret", tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-2"},
		Org:              "OrgB",
	})

	_, err := ParseToken(token, "other-secret")
	if !apperrors.IsCode(err, apperrors.CodeUnauthorized) {
		t.Fatalf("error code = %q, want %q", apperrors.GetCode(err), apperrors.CodeUnauthorized)
	}
}

func TestParseTokenRejectsMissingClaims(t *testing.T) {
	t.Parallel()

	token := signToken(t, "secret", tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-2"},
	})

	_, err := ParseToken(token, "secret")
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if appErr.Code != apperrors.CodeUnauthorized {
		t.Fatalf("error code = %q, want %q", appErr.Code, apperrors.CodeUnauthorized)
	}
}
