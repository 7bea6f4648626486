package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// APIError represents a provider API error with an HTTP status code.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the status code indicates a transient condition.
func (e *APIError) IsRetryable() bool {
	switch e.StatusCode {
	case 408, 429, 500, 502, 503, 504, 529:
		return true
	}
	return false
}

// IsDegraded reports whether the status code indicates the provider itself is
// overloaded or failing, which justifies switching to a fallback model rather
// than retrying the same one.
func (e *APIError) IsDegraded() bool {
	switch e.StatusCode {
	case 500, 502, 503, 529:
		return true
	}
	return false
}

// IsRetryableError classifies an error as transient. Typed checks come first;
// the string fallback only covers untyped errors from third-party SDKs.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Caller-driven cancellation is never retried.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"rate limit",
		"overloaded",
		"timeout",
		"connection refused",
		"connection reset",
		"eof",
		"tls handshake",
		"no such host",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// IsDegradedError reports whether the failure class indicates the provider is
// degraded and a fallback model should take over immediately.
func IsDegradedError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsDegraded()
	}
	msg := strings.ToLower(errMessage(err))
	return strings.Contains(msg, "overloaded") || strings.Contains(msg, "connection refused")
}

func errMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
