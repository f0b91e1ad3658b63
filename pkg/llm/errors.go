package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType classifies a provider failure.
type ErrorType string

const (
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeTransient ErrorType = "transient"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error is a classified provider failure.
type Error struct {
	Type      ErrorType
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("llm %s: %v", e.Type, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the operation can be retried.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// ClassifyError categorizes a provider error for consistent retry handling.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Type: ErrorTypeTimeout, Retryable: true, Cause: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &Error{Type: ErrorTypeTimeout, Retryable: true, Cause: err}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "status code: 429") || strings.Contains(msg, "rate limit"):
		return &Error{Type: ErrorTypeRateLimit, Retryable: true, Cause: err}
	case strings.Contains(msg, "status code: 401") || strings.Contains(msg, "status code: 403") ||
		strings.Contains(msg, "authentication"):
		return &Error{Type: ErrorTypeAuth, Retryable: false, Cause: err}
	case strings.Contains(msg, "status code: 5"):
		return &Error{Type: ErrorTypeTransient, Retryable: true, Cause: err}
	}
	return &Error{Type: ErrorTypeUnknown, Retryable: false, Cause: err}
}
