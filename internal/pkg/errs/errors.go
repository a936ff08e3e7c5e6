// internal/pkg/errs/errors.go
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a service error so the transport layer can map it to a
// response without inspecting error strings.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindNotFound   Kind = "not_found"
	KindState      Kind = "state"
	KindGateway    Kind = "gateway"
)

// GatewayCode is the uniform taxonomy for payment gateway failures.
type GatewayCode string

const (
	GatewayCardError      GatewayCode = "card_error"
	GatewayRateLimit      GatewayCode = "rate_limit"
	GatewayInvalidRequest GatewayCode = "invalid_request"
	GatewayAuthError      GatewayCode = "authentication_error"
	GatewayConnection     GatewayCode = "api_connection_error"
	GatewayUnknown        GatewayCode = "unknown"
)

// Error is a kinded service error.
type Error struct {
	Kind    Kind
	Code    GatewayCode // set only for KindGateway
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation creates a validation error surfaced verbatim to the caller.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a conflict error for lost reservation races.
func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not-found error for a missing referenced entity.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// State creates an error for an operation against an entity whose
// lifecycle state forbids it.
func State(format string, args ...interface{}) *Error {
	return &Error{Kind: KindState, Message: fmt.Sprintf(format, args...)}
}

// Gateway wraps a payment gateway failure under the uniform code taxonomy.
func Gateway(code GatewayCode, message string, cause error) *Error {
	return &Error{Kind: KindGateway, Code: code, Message: message, Err: cause}
}

// KindOf returns the kind of err, or an empty Kind for plain errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// GatewayCodeOf returns the gateway code of err, or GatewayUnknown if err
// is not a gateway error.
func GatewayCodeOf(err error) GatewayCode {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindGateway {
		return e.Code
	}
	return GatewayUnknown
}
