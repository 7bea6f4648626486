package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"cancelled", context.Canceled, false},
		{"wrapped cancelled", fmt.Errorf("call: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, true},
		{"rate limited", &APIError{StatusCode: 429, Message: "slow down"}, true},
		{"server error", &APIError{StatusCode: 500, Message: "oops"}, true},
		{"overloaded", &APIError{StatusCode: 529, Message: "overloaded"}, true},
		{"auth failure", &APIError{StatusCode: 401, Message: "bad key"}, false},
		{"bad request", &APIError{StatusCode: 400, Message: "malformed"}, false},
		{"untyped timeout", errors.New("request timeout talking upstream"), true},
		{"untyped refusal", errors.New("connection refused"), true},
		{"plain failure", errors.New("schema validation failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryableError(tt.err))
		})
	}
}

func TestIsDegradedError(t *testing.T) {
	assert.True(t, IsDegradedError(&APIError{StatusCode: 529}))
	assert.True(t, IsDegradedError(&APIError{StatusCode: 503}))
	assert.False(t, IsDegradedError(&APIError{StatusCode: 429}))
	assert.True(t, IsDegradedError(errors.New("model overloaded")))
	assert.False(t, IsDegradedError(errors.New("timeout")))
}

func TestCalculateBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := 2 * time.Second

	prev := time.Duration(0)
	for attempt := 0; attempt < 4; attempt++ {
		d := CalculateBackoff(base, attempt, max)
		assert.GreaterOrEqual(t, d, base*(1<<attempt), "attempt %d below exponential floor", attempt)
		assert.LessOrEqual(t, d, max+max/4, "attempt %d above cap plus jitter", attempt)
		assert.Greater(t, d, prev/2, "backoff should broadly grow")
		prev = d
	}

	// Far past the cap the delay stays bounded.
	d := CalculateBackoff(base, 60, max)
	assert.LessOrEqual(t, d, max+max/4)
}

func TestSleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Sleep(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
