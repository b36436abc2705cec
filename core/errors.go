package core

import (
	"errors"
	"net"
)

// Sentinel errors for pre-authentication.
var (
	// ErrValidationFailed is matched by every *ValidationError. It covers
	// rejected, inactive and unverifiable tokens as well as failed
	// authorization-code exchanges.
	ErrValidationFailed = errors.New("access token validation failed")

	// ErrAuthServerUnreachable marks I/O failures talking to the
	// authorization server. It is the only failure kind that fail-open mode
	// coerces into "no principal".
	ErrAuthServerUnreachable = errors.New("authorization server unreachable")

	// ErrRoleSourceUnavailable wraps failures of the configured role source.
	ErrRoleSourceUnavailable = errors.New("role source unavailable")

	// ErrUserLookupFailed wraps failures of the user-group service during the
	// disabled-user check.
	ErrUserLookupFailed = errors.New("user lookup failed")

	// ErrAuthenticationNotFound is returned when no authentication is installed
	// in the context.
	ErrAuthenticationNotFound = errors.New("authentication not found in context")
)

// ValidationError carries structured information about a failed validation
// attempt that can be used for logging, metrics and error responses.
type ValidationError struct {
	// Code is a machine-readable error code (e.g., "token_inactive")
	Code string

	// Message is a human-readable error message
	Message string

	// Details contains the underlying error
	Details error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Details != nil {
		return e.Message + ": " + e.Details.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error for error unwrapping.
func (e *ValidationError) Unwrap() error {
	return e.Details
}

// Is allows the error to be compared with ErrValidationFailed.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Common error codes
const (
	ErrorCodeTokenInactive         = "token_inactive"
	ErrorCodeTokenRejected         = "token_rejected"
	ErrorCodeIntrospectionFailed   = "introspection_failed"
	ErrorCodeAuthServerUnreachable = "auth_server_unreachable"
	ErrorCodeCodeExchangeFailed    = "code_exchange_failed"
	ErrorCodeStateMismatch         = "state_mismatch"
	ErrorCodeUnknownResult         = "unknown_result"
	ErrorCodeClientContextMissing  = "client_context_missing"
	ErrorCodeConfigInvalid         = "config_invalid"
	ErrorCodeValidatorNotSet       = "validator_not_set"
)

// NewValidationError creates a new ValidationError with the given code and message.
func NewValidationError(code, message string, details error) *ValidationError {
	return &ValidationError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// IsUnreachable reports whether err is an I/O-kind failure talking to the
// authorization server.
func IsUnreachable(err error) bool {
	if errors.Is(err, ErrAuthServerUnreachable) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
