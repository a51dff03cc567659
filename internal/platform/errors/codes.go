package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeConflict is returned when a create targets a key that already exists.
	CodeConflict Code = "CONFLICT"

	// CodeNotFound is returned when a read, update, or delete targets an
	// absent key.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidCollection is returned when a collection resolver produces
	// no name for a private or shared field.
	CodeInvalidCollection Code = "INVALID_COLLECTION"

	// CodeUnauthorized is returned on an org or role policy failure.
	CodeUnauthorized Code = "UNAUTHORIZED"

	// CodeValidation is returned on a pre-write field validation failure.
	CodeValidation Code = "VALIDATION"

	// CodeInternal is returned on unexpected or serialization failures.
	CodeInternal Code = "INTERNAL"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeValidation,
		CodeInvalidCollection:
		return codes.InvalidArgument

	case CodeConflict:
		return codes.AlreadyExists

	case CodeNotFound:
		return codes.NotFound

	case CodeUnauthorized:
		return codes.PermissionDenied

	default:
		return codes.Internal
	}
}
