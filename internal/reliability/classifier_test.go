package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{401, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		if got := IsRetryableHTTPStatus(tc.code); got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

type hinted bool

func (h hinted) Error() string   { return "hinted" }
func (h hinted) Retryable() bool { return bool(h) }

func TestIsRetryableFollowsWrappedHint(t *testing.T) {
	if !IsRetryable(fmt.Errorf("wrap: %w", hinted(true))) {
		t.Fatalf("wrapped retryable hint not detected")
	}
	if IsRetryable(hinted(false)) {
		t.Fatalf("non-retryable hint reported retryable")
	}
	if IsRetryable(errors.New("plain")) || IsRetryable(context.Canceled) || IsRetryable(nil) {
		t.Fatalf("errors without a hint must not be retryable")
	}
}

func TestBackoffDelayCaps(t *testing.T) {
	b := Backoff{Base: 100 * time.Millisecond, Max: 700 * time.Millisecond}
	if got := b.Delay(0); got != b.Base {
		t.Fatalf("attempt 0 = %v, want %v", got, b.Base)
	}
	if got := b.Delay(2); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want 400ms", got)
	}
	if got := b.Delay(10); got != b.Max {
		t.Fatalf("attempt 10 = %v, want %v", got, b.Max)
	}
}

func TestRetryStopsOnSuccess(t *testing.T) {
	calls, retries := 0, 0
	err := Retry(context.Background(), 5, Backoff{Base: time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("not yet")
		}
		return nil
	}, func(int, time.Duration, error) { retries++ })
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 || retries != 2 {
		t.Fatalf("calls=%d retries=%d, want 3 and 2", calls, retries)
	}
}

func TestRetryReturnsLastError(t *testing.T) {
	last := errors.New("still down")
	calls := 0
	err := Retry(context.Background(), 2, Backoff{Base: time.Millisecond}, func(context.Context) error {
		calls++
		return last
	}, nil)
	if !errors.Is(err, last) || calls != 2 {
		t.Fatalf("Retry() = %v after %d calls", err, calls)
	}
}

func TestRetryHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Retry(ctx, 3, Backoff{Base: time.Hour}, func(context.Context) error {
		cancel()
		return errors.New("down")
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry() error = %v, want context.Canceled", err)
	}
}
