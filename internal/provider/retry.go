package provider

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig holds retry timing shared by the retry policy and providers.
type RetryConfig struct {
	MaxAttempts int           // Total attempts per call, including the first
	RetryDelay  time.Duration // Initial delay between retries
	MaxDelay    time.Duration // Backoff cap
}

// DefaultRetryConfig returns sensible retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		RetryDelay:  1 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// CalculateBackoff computes exponential backoff with jitter. Jitter spreads
// simultaneous retries so clients do not stampede a recovering provider.
func CalculateBackoff(baseDelay time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	// Random value between 0 and 25% of the delay.
	jitter := time.Duration(rand.Int63n(int64(delay / 4)))
	return delay + jitter
}

// Sleep waits for d or until the context is cancelled.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
