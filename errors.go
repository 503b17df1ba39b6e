package lookoutstream

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode categorizes client errors.
type ErrorCode string

const (
	ErrAuth           ErrorCode = "auth"
	ErrValidation     ErrorCode = "validation"
	ErrConnect        ErrorCode = "connect"
	ErrStreamRead     ErrorCode = "stream_read"
	ErrMalformedFrame ErrorCode = "malformed_frame"
	ErrCanceled       ErrorCode = "canceled"
	ErrInternal       ErrorCode = "internal"
)

// StreamError provides rich context for stream consumers. Retryable marks
// whether the session manager may attempt the operation again; permanent
// errors terminate the run.
type StreamError struct {
	Code       ErrorCode
	Message    string
	Status     int
	Retryable  bool
	RetryAfter time.Duration
	wrapped    error
}

func (e *StreamError) Error() string {
	if e == nil {
		return ""
	}
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.wrapped)
	}
	return e.Message
}

func (e *StreamError) Unwrap() error { return e.wrapped }

// WrapError creates a new StreamError with the provided code, passing an
// existing StreamError through unchanged.
func WrapError(err error, code ErrorCode) *StreamError {
	if err == nil {
		return nil
	}
	var se *StreamError
	if errors.As(err, &se) {
		return se
	}
	return &StreamError{Code: code, Message: err.Error(), wrapped: err}
}

// NewError builds a StreamError explicitly.
func NewError(code ErrorCode, message string, opts ...ErrorOption) *StreamError {
	e := &StreamError{Code: code, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ErrorOption mutates a StreamError during construction.
type ErrorOption func(*StreamError)

// WithStatus sets the HTTP status code.
func WithStatus(status int) ErrorOption {
	return func(e *StreamError) { e.Status = status }
}

// WithRetryable marks whether retry is recommended.
func WithRetryable(retryable bool) ErrorOption {
	return func(e *StreamError) { e.Retryable = retryable }
}

// WithRetryAfter sets the server-advised reconnect delay.
func WithRetryAfter(d time.Duration) ErrorOption {
	return func(e *StreamError) { e.RetryAfter = d }
}

// WithWrapped attaches an underlying error.
func WithWrapped(err error) ErrorOption {
	return func(e *StreamError) { e.wrapped = err }
}

func classify(code ErrorCode) func(error) bool {
	return func(err error) bool {
		var se *StreamError
		if err == nil {
			return false
		}
		if errors.As(err, &se) {
			return se.Code == code
		}
		return false
	}
}

// Helper predicates for common error handling patterns.
var (
	IsAuthError       = classify(ErrAuth)
	IsValidationError = classify(ErrValidation)
	IsConnectError    = classify(ErrConnect)
	IsStreamReadError = classify(ErrStreamRead)
	IsMalformedFrame  = classify(ErrMalformedFrame)
	IsCanceled        = classify(ErrCanceled)
)

// IsRetryable reports whether the session manager may retry after err.
func IsRetryable(err error) bool {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// RetryAfterHint extracts the server-advised reconnect delay, if any.
func RetryAfterHint(err error) time.Duration {
	var se *StreamError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}
