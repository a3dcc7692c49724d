package cozi

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrNotAuthenticated is matched by every *StateError.
var ErrNotAuthenticated = errors.New("not authenticated")

// AuthError reports a rejected or unusable login exchange.
type AuthError struct {
	// StatusCode is the HTTP status of the login response, 0 when the
	// response was successful but its body was unusable.
	StatusCode int

	// Reason is a short description such as "credentials rejected" or "empty auth response".
	Reason string

	// Err is the underlying error, if any
	Err error
}

// Error implements the error interface
func (e *AuthError) Error() string {
	msg := "cozi auth: " + e.Reason
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface
func (e *AuthError) Unwrap() error {
	return e.Err
}

// StateError reports an authenticated operation attempted before any login.
// It is always returned before network I/O.
type StateError struct {
	// Op is the operation that was refused (e.g., "lists.list")
	Op string
}

// Error implements the error interface
func (e *StateError) Error() string {
	return fmt.Sprintf("cozi %s: %v; call Login first", e.Op, ErrNotAuthenticated)
}

// Unwrap implements the errors.Unwrap interface
func (e *StateError) Unwrap() error {
	return ErrNotAuthenticated
}

// TransportError reports a request that still failed after the retry budget.
// Either StatusCode/Body (last 5xx response) or Err (last network error) is set.
type TransportError struct {
	Op       string
	Endpoint string
	Attempts int

	StatusCode int
	Body       string

	Err error
}

// Error implements the error interface
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cozi %s: %s failed after %d attempts: %v", e.Op, e.Endpoint, e.Attempts, e.Err)
	}
	return fmt.Sprintf("cozi %s: %s failed after %d attempts: status %d: %s",
		e.Op, e.Endpoint, e.Attempts, e.StatusCode, truncate(e.Body, 256))
}

// Unwrap implements the errors.Unwrap interface
func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError reports a non-success, non-retryable HTTP status.
type APIError struct {
	Op         string
	Endpoint   string
	StatusCode int
	Body       string
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("cozi %s: %s returned status %d: %s", e.Op, e.Endpoint, e.StatusCode, truncate(e.Body, 256))
}

// NotFoundError reports a resource that was absent under every API version tried.
type NotFoundError struct {
	Resource string
	ID       string
	Versions []string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("cozi: %s %q not found in API versions %s", e.Resource, e.ID, strings.Join(e.Versions, ", "))
}

// ProtocolError reports a success response whose body could not be used.
type ProtocolError struct {
	Op       string
	Endpoint string
	Reason   string
	Err      error
}

// Error implements the error interface
func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cozi %s: %s: %s: %v", e.Op, e.Endpoint, e.Reason, e.Err)
	}
	return fmt.Sprintf("cozi %s: %s: %s", e.Op, e.Endpoint, e.Reason)
}

// Unwrap implements the errors.Unwrap interface
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ValidationError reports an argument rejected before any request was made.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("cozi: invalid %s: %s", e.Field, e.Reason)
}

// IsNotFound reports whether err is a *NotFoundError or an *APIError with status 404.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// truncate shortens s to at most n bytes plus an ellipsis, never splitting a
// UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
