package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedTransactionType is returned when a gateway has no code
	// for the requested (transaction type, security model) pair.
	ErrUnsupportedTransactionType = errors.New("unsupported transaction type")

	// ErrNotImplemented is returned when a gateway does not offer an operation.
	ErrNotImplemented = errors.New("operation not implemented by gateway")

	// ErrSecurityRejected is returned when a callback signature does not
	// verify. It is never retryable and never downgraded to a decline.
	ErrSecurityRejected = errors.New("security rejected: callback hash mismatch")

	// ErrPrecondition is returned for out-of-order 3-D flow calls.
	ErrPrecondition = errors.New("precondition failed")

	// ErrUnknownGateway is returned by the registry for unregistered names.
	ErrUnknownGateway = errors.New("unknown gateway")

	// ErrUnsignedDecline marks a callback the bank sent without a signature
	// because authentication failed. It completes as a decline and never
	// reaches final authorization.
	ErrUnsignedDecline = errors.New("unsigned 3D decline")
)

// ValidationError reports a missing or malformed input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// TransportError wraps a failed gateway call. The caller decides whether
// to retry; mappers never see it.
type TransportError struct {
	Gateway    string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s transport error (%s, HTTP %d): %v", e.Gateway, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s transport error (%s): %v", e.Gateway, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnsignedDeclineError carries the bank's code and message for an
// unsigned failed-authentication callback. It matches ErrUnsignedDecline.
type UnsignedDeclineError struct {
	Gateway string
	Code    string
	Message string
}

func (e *UnsignedDeclineError) Error() string {
	return fmt.Sprintf("%s: %v: %s %s", e.Gateway, ErrUnsignedDecline, e.Code, e.Message)
}

func (e *UnsignedDeclineError) Is(target error) bool { return target == ErrUnsignedDecline }

// UnsupportedTxType builds an ErrUnsupportedTransactionType with context.
func UnsupportedTxType(gateway string, txType TransactionType, model SecurityModel) error {
	if model == "" {
		return fmt.Errorf("%s: %w: %s", gateway, ErrUnsupportedTransactionType, txType)
	}
	return fmt.Errorf("%s: %w: %s (%s)", gateway, ErrUnsupportedTransactionType, txType, model)
}

// NotImplemented builds an ErrNotImplemented with context.
func NotImplemented(gateway, operation string) error {
	return fmt.Errorf("%s: %w: %s", gateway, ErrNotImplemented, operation)
}

// Precondition builds an ErrPrecondition with context.
func Precondition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}

// SecurityRejected builds an ErrSecurityRejected naming the gateway.
func SecurityRejected(gateway string) error {
	return fmt.Errorf("%s: %w", gateway, ErrSecurityRejected)
}
