package backend

import (
	"errors"
	"fmt"
)

// Sentinel errors for the backend package.
var (
	// ErrNotInitialized indicates a domain operation was called before a
	// successful Init.
	ErrNotInitialized = errors.New("backend: not initialized")

	// ErrDisposed indicates the adapter was disposed; every operation
	// fails with this afterwards.
	ErrDisposed = errors.New("backend: adapter disposed")

	// ErrUnsupported indicates a capability-gated operation was called on
	// an adapter whose capability flag is false.
	ErrUnsupported = errors.New("backend: operation not supported by this backend")

	// ErrUnknownMode indicates an unrecognized backend mode in the config.
	ErrUnknownMode = errors.New("backend: unknown mode")

	// ErrInvalidLanguage indicates a language code outside the known set.
	ErrInvalidLanguage = errors.New("backend: invalid language code")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("backend: not found")
)

// APIError represents an error response from the gateway API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the human-readable error message.
	Message string

	// Retryable indicates if the request can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("backend: API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the request can be retried.
func (e *APIError) IsRetryable() bool {
	return e.Retryable
}

// NewAPIError creates a new APIError.
func NewAPIError(statusCode int, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		Message:    message,
		Retryable:  statusCode == 429 || statusCode >= 500,
	}
}

// ConnectionError represents a transport-level failure talking to the
// backend.
type ConnectionError struct {
	// Reason describes what failed.
	Reason string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("backend: connection error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("backend: connection error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Error checking helpers.

// IsUnsupported returns true if the error is a capability-gating failure.
func IsUnsupported(err error) bool {
	return errors.Is(err, ErrUnsupported)
}

// IsDisposed returns true if the error is due to a disposed adapter.
func IsDisposed(err error) bool {
	return errors.Is(err, ErrDisposed)
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
