package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Limiter rate-limits model provider requests by request count and by
// estimated token volume.
type Limiter struct {
	requestBucket *TokenBucket
	tokenBucket   *TokenBucket
	enabled       bool
	mu            sync.RWMutex

	totalRequests   int64
	blockedRequests int64
}

// Config holds rate limiter configuration.
type Config struct {
	Enabled           bool
	RequestsPerMinute int
	TokensPerMinute   int64
	BurstSize         int
}

// NewLimiter creates a rate limiter from the given configuration.
func NewLimiter(cfg Config) *Limiter {
	requestBurst := float64(cfg.BurstSize)
	if requestBurst < 1 {
		requestBurst = 1
	}
	// Token bucket burst is 10% of the per-minute budget.
	tokenBurst := float64(cfg.TokensPerMinute) / 10.0

	return &Limiter{
		requestBucket: NewTokenBucket(requestBurst, float64(cfg.RequestsPerMinute)/60.0),
		tokenBucket:   NewTokenBucket(tokenBurst, float64(cfg.TokensPerMinute)/60.0),
		enabled:       cfg.Enabled,
	}
}

func (l *Limiter) isEnabled() bool {
	if l == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

// AcquireWithContext blocks until a request slot and token capacity are
// available, respecting context cancellation.
func (l *Limiter) AcquireWithContext(ctx context.Context, estimatedTokens int64) error {
	if !l.isEnabled() {
		return nil
	}

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	done := make(chan error, 1)
	go func() {
		done <- l.acquireWithTimeout(estimatedTokens, timeout)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) acquireWithTimeout(estimatedTokens int64, timeout time.Duration) error {
	l.mu.Lock()
	l.totalRequests++
	l.mu.Unlock()

	if !l.requestBucket.ConsumeWithTimeout(1, timeout) {
		l.mu.Lock()
		l.blockedRequests++
		l.mu.Unlock()
		return fmt.Errorf("rate limit exceeded: request limit")
	}
	if estimatedTokens > 0 {
		if !l.tokenBucket.ConsumeWithTimeout(float64(estimatedTokens), timeout) {
			l.requestBucket.Return(1)
			l.mu.Lock()
			l.blockedRequests++
			l.mu.Unlock()
			return fmt.Errorf("rate limit exceeded: token limit")
		}
	}
	return nil
}

// ReturnTokens gives capacity back after a failed request so failures do not
// exhaust the buckets.
func (l *Limiter) ReturnTokens(requests int, estimatedTokens int64) {
	if !l.isEnabled() {
		return
	}
	if requests > 0 {
		l.requestBucket.Return(float64(requests))
	}
	if estimatedTokens > 0 {
		l.tokenBucket.Return(float64(estimatedTokens))
	}
}

// Stats reports limiter counters.
func (l *Limiter) Stats() (total, blocked int64) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalRequests, l.blockedRequests
}
