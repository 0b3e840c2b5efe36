// Package errors provides coded errors and utilities for categorizing them in the rich list indexer.
package errors

import (
	"context"
	"errors"
	"strings"
)

// IsRetryableError determines if an error is transient and the operation should be retried.
// This includes network timeouts, temporary unavailability, and other transient conditions.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Check if context was cancelled - not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var tErr *Error
	if As(err, &tErr) {
		switch tErr.Code() {
		case ERR_NETWORK_TIMEOUT,
			ERR_NETWORK_ERROR,
			ERR_SERVICE_UNAVAILABLE,
			ERR_STORAGE_UNAVAILABLE:
			return true
		}

		return false
	}

	return IsNetworkError(err)
}

// IsNetworkError determines if an error is network-related.
// This includes timeouts, connection failures, and invalid responses.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var tErr *Error
	if As(err, &tErr) {
		switch tErr.Code() {
		case ERR_NETWORK_ERROR,
			ERR_NETWORK_TIMEOUT:
			return true
		}
	}

	// Check for common network error strings
	errStr := strings.ToLower(err.Error())
	networkStrings := []string{
		"connection",
		"timeout",
		"dial tcp",
		"no such host",
		"connection refused",
		"connection reset",
		"broken pipe",
		"eof",
	}

	for _, s := range networkStrings {
		if strings.Contains(errStr, s) {
			return true
		}
	}

	return false
}

// IsContextError determines if an error is related to context cancellation or deadline.
func IsContextError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var tErr *Error
	if As(err, &tErr) {
		if tErr.Code() == ERR_CONTEXT_CANCELED || tErr.Code() == ERR_CONTEXT {
			return true
		}
	}

	return false
}

// GetErrorCategory returns a string representing the category of the error, used to label the
// scanner's fatal error counter.
func GetErrorCategory(err error) string {
	if err == nil {
		return "none"
	}

	if IsContextError(err) {
		return "context"
	}

	var tErr *Error
	if As(err, &tErr) {
		code := tErr.Code()
		switch {
		case code >= 20 && code <= 29:
			return "block"
		case code >= 30 && code <= 39:
			return "transaction"
		case code >= 40 && code <= 49:
			return "service"
		case code >= 50 && code <= 59:
			return "storage"
		case code >= 60 && code <= 69:
			return "network"
		case code >= 70 && code <= 79:
			return "kafka"
		}
	}

	if IsNetworkError(err) {
		return "network"
	}

	return "unknown"
}
