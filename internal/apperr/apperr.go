// Package apperr classifies task failures so the orchestrator can decide
// between retrying, recording a terminal error and reporting back.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Code identifies a failure class.
type Code string

const (
	// CodeLookup: template, provider app or credential could not be resolved.
	CodeLookup Code = "LOOKUP_FAULT"
	// CodeRejected: the provider answered with a well-formed business failure.
	CodeRejected Code = "PROVIDER_REJECTED"
	// CodeTransport: network error, timeout or an unparseable non-2xx response.
	CodeTransport Code = "TRANSPORT_FAULT"
	// CodeData: a provider payload that could not be interpreted.
	CodeData Code = "DATA_FAULT"
	// CodeInternal: anything unexpected, including recovered panics.
	CodeInternal Code = "INTERNAL_FAULT"
)

// Error is a classified task failure.
type Error struct {
	Code       Code      `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code,omitempty"`
	Retryable  bool      `json:"retryable"`
	Timestamp  time.Time `json:"timestamp"`

	cause error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// AuditPayload renders the error as the payload of an error-audit entry.
func (e *Error) AuditPayload() map[string]any {
	p := map[string]any{
		"code":    string(e.Code),
		"message": e.Message,
	}
	if e.Details != "" {
		p["details"] = e.Details
	}
	if e.StatusCode != 0 {
		p["status_code"] = e.StatusCode
	}
	return p
}

func newError(code Code, message, details string, retryable bool) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// Lookup reports a missing template, app instance or an undecryptable credential.
func Lookup(what string, err error) *Error {
	e := newError(CodeLookup, what+" lookup failed", "", false)
	if err != nil {
		e.Details = err.Error()
		e.cause = err
	}
	return e
}

// Rejected carries the provider's own failure message verbatim.
func Rejected(statusCode int, message string) *Error {
	e := newError(CodeRejected, message, "", false)
	e.StatusCode = statusCode
	return e
}

// Transport reports a failure worth retrying. statusCode is 0 for network errors.
func Transport(statusCode int, message string) *Error {
	e := newError(CodeTransport, message, "", true)
	e.StatusCode = statusCode
	return e
}

// Data reports a provider payload that could not be interpreted.
func Data(message string, err error) *Error {
	e := newError(CodeData, message, "", false)
	if err != nil {
		e.Details = err.Error()
		e.cause = err
	}
	return e
}

// Internal wraps an unexpected fault.
func Internal(err error) *Error {
	e := newError(CodeInternal, "internal error", "", false)
	if err != nil {
		e.Details = err.Error()
		e.cause = err
	}
	return e
}

// Exhausted marks a retryable failure as terminal after the retry budget ran out.
func Exhausted(last *Error, attempts int) *Error {
	e := *last
	e.Retryable = false
	e.Details = fmt.Sprintf("gave up after %d attempts", attempts)
	e.Timestamp = time.Now().UTC()
	return &e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether err is a classified failure marked retryable.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable
}

// CodeOf returns the failure class of err, CodeInternal for unclassified errors.
func CodeOf(err error) Code {
	if e, ok := As(err); ok {
		return e.Code
	}
	return CodeInternal
}
