package provider

import (
	"errors"
	"fmt"
	"net"
	"net/url"
)

// =============================================================================
// Error Classification
// =============================================================================

// ErrorKind classifies adapter failures so the orchestrator can decide
// what happens next without inspecting provider-specific error types.
type ErrorKind string

const (
	// KindAuth means the credential was rejected. Fatal for the whole run.
	KindAuth ErrorKind = "auth"

	// KindCapability means this strategy cannot serve this workload.
	// The orchestrator falls through to the next strategy.
	KindCapability ErrorKind = "capability"

	// KindTransient means a timeout or rate limit. Retried once within
	// the same strategy, then treated as recoverable.
	KindTransient ErrorKind = "transient"

	// KindFatal means an unexpected provider failure. Aborts the run.
	KindFatal ErrorKind = "fatal"
)

// Error wraps a provider API failure with its classification.
type Error struct {
	Kind     ErrorKind
	Provider string
	Strategy string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Strategy != "" {
		return fmt.Sprintf("%s/%s: %s: %s", e.Provider, e.Strategy, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified provider error.
func NewError(kind ErrorKind, providerName, strategy, message string, err error) *Error {
	return &Error{
		Kind:     kind,
		Provider: providerName,
		Strategy: strategy,
		Message:  message,
		Err:      err,
	}
}

// KindOf extracts the classification from an error chain. Unclassified
// errors are treated as fatal.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindFatal
}

// Recoverable reports whether the orchestrator may fall through to the
// next strategy after this error.
func Recoverable(err error) bool {
	return KindOf(err) == KindCapability
}

// Retryable reports whether the same strategy may be retried once.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}

// isNetworkError reports whether err is a transport-level failure such
// as a refused connection or a failed DNS lookup, as opposed to an API
// response the provider SDK could decode.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// classifyHTTPStatus maps an HTTP status code from a provider API to an
// error kind. Shared by the godo and hcloud adapters.
func classifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == 401 || status == 403:
		return KindAuth
	case status == 429 || status >= 500:
		return KindTransient
	case status == 400 || status == 404 || status == 422:
		return KindCapability
	default:
		return KindFatal
	}
}
