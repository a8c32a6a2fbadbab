// Package reliability classifies upstream failures and paces retries.
package reliability

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// IsRetryableHTTPStatus reports whether an upstream answer is worth another
// attempt.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsRetryableStreamError classifies error codes sent over the speech stream.
func IsRetryableStreamError(code string) bool {
	switch code {
	case "rate_limited", "resource_exhausted", "queue_overflow", "error":
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err carries a Retryable() hint that allows
// another attempt. Context cancellation never does.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var hint interface{ Retryable() bool }
	if errors.As(err, &hint) {
		return hint.Retryable()
	}
	return false
}

// Backoff doubles Base per attempt up to Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	return d
}

// Retry calls fn up to attempts times, sleeping per b between failures.
// onRetry, when set, sees each failure that will be retried. The last error
// is returned.
func Retry(ctx context.Context, attempts int, b Backoff, fn func(context.Context) error, onRetry func(attempt int, wait time.Duration, err error)) error {
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt+1 == attempts {
			break
		}
		wait := b.Delay(attempt)
		if onRetry != nil {
			onRetry(attempt+1, wait, err)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
