package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the different kinds of failures the pipeline distinguishes
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeNetwork         ErrorType = "network"
	ErrorTypeUpstream        ErrorType = "upstream"
	ErrorTypeFormUnavailable ErrorType = "form_unavailable"
	ErrorTypeDuplicate       ErrorType = "duplicate"
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypeParsing         ErrorType = "parsing"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeBusy            ErrorType = "busy"
	ErrorTypeUnknown         ErrorType = "unknown"
)

// Error represents a classified error with an optional HTTP status code
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same type, so sentinel-style checks work
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.Message == "" || t.Message == e.Message)
}

// Validation returns a caller-level validation error
func Validation(msg string) *Error {
	return &Error{Type: ErrorTypeValidation, Message: msg}
}

// Network wraps a transport failure
func Network(err error) *Error {
	return &Error{Type: ErrorTypeNetwork, Message: fmt.Sprintf("network error: %v", err), Err: err}
}

// Upstream reports a non-success response from the platform
func Upstream(code int, msg string) *Error {
	if msg == "" {
		msg = fmt.Sprintf("unexpected status code: %d", code)
	}
	return &Error{Type: ErrorTypeUpstream, Message: msg, Code: code}
}

// FormUnavailable reports a compose form without a usable token
func FormUnavailable(msg string) *Error {
	return &Error{Type: ErrorTypeFormUnavailable, Message: msg}
}

// Duplicate reports an already-recorded ledger key
func Duplicate(key string) *Error {
	return &Error{Type: ErrorTypeDuplicate, Message: fmt.Sprintf("member %s is already recorded", key)}
}

// Auth reports a missing or rejected login
func Auth(msg string) *Error {
	return &Error{Type: ErrorTypeAuth, Message: msg}
}

// Busy reports that an orchestrator is already running
func Busy(what string) *Error {
	return &Error{Type: ErrorTypeBusy, Message: fmt.Sprintf("%s already in progress", what)}
}

// Parsing wraps a decode failure
func Parsing(err error) *Error {
	return &Error{Type: ErrorTypeParsing, Message: fmt.Sprintf("failed to parse response: %v", err), Err: err}
}

// TypeOf returns the ErrorType of err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType checks whether err carries the given type anywhere in its chain
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeNetwork, ErrorTypeRateLimit:
		return true
	case ErrorTypeUpstream:
		// classified per status code by IsRetryableStatusCode
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 401, 403, 404:
		return false
	default:
		return statusCode >= 500
	}
}
