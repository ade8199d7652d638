package tool

import (
	"context"
	"errors"
	"strings"

	"pocketsage/internal/domain"
)

// retryableSentinels lists domain errors that indicate transient failures
// worth retrying. These typically represent backend or network issues
// that resolve on their own.
var retryableSentinels = []error{
	domain.ErrToolTimeout,
	domain.ErrNetworkUnavailable,
	domain.ErrModelUnavailable,
	domain.ErrRateLimit,
	domain.ErrContextOverflow,
}

// retryablePatterns are substrings in error messages that indicate
// transient failures. Checked case-insensitively.
var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"try again",
	"unavailable",
}

// classifyToolError returns true if the error is transient and the tool
// call may succeed on retry. Returns false for nil, permanent, or
// unknown errors.
func classifyToolError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	for _, sentinel := range retryableSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}

	return false
}
