package reliability

import (
	"context"
	"errors"
	"time"

	"github.com/aiko-app/aiko/internal/llm"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableTurnError reports whether a failed turn is worth retrying
// with the same input. Cancellation is never retryable; the caller
// replaced or abandoned the turn on purpose.
func IsRetryableTurnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if te, ok := llm.AsTransportError(err); ok {
		if te.StatusCode > 0 {
			return IsRetryableHTTPStatus(te.StatusCode)
		}
		switch te.Reason {
		case "endpoint unreachable", "stream read", "empty response":
			return true
		default:
			return false
		}
	}
	return false
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
