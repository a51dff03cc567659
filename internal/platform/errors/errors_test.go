package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := New(CodeNotFound, "record missing")
	if !errors.Is(err, New(CodeNotFound, "other message")) {
		t.Fatal("expected errors with the same code to match")
	}
	if errors.Is(err, New(CodeConflict, "record missing")) {
		t.Fatal("expected errors with different codes not to match")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("disk failure")
	err := Wrap(CodeInternal, "put record", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected wrapped cause to be reachable via errors.Is")
	}
	if GetCode(err) != CodeInternal {
		t.Fatalf("code = %q, want %q", GetCode(err), CodeInternal)
	}
}

func TestGetCodeUnknownForPlainErrors(t *testing.T) {
	t.Parallel()

	if got := GetCode(fmt.Errorf("plain")); got != CodeUnknown {
		t.Fatalf("code = %q, want %q", got, CodeUnknown)
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code Code
		want codes.Code
	}{
		{CodeConflict, codes.AlreadyExists},
		{CodeNotFound, codes.NotFound},
		{CodeInvalidCollection, codes.InvalidArgument},
		{CodeValidation, codes.InvalidArgument},
		{CodeUnauthorized, codes.PermissionDenied},
		{CodeInternal, codes.Internal},
		{CodeUnknown, codes.Internal},
	}
	for _, tc := range cases {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Fatalf("GRPCCode(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestHandleErrorProducesStatus(t *testing.T) {
	t.Parallel()

	err := HandleError(WithMetadata(CodeConflict, "key exists", map[string]string{"table": "asset"}))
	st, ok := status.FromError(err)
	if !ok {
		t.Fatal("expected a gRPC status error")
	}
	if st.Code() != codes.AlreadyExists {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.AlreadyExists)
	}
}
