package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements a token bucket rate limiter.
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a bucket holding at most maxTokens, refilled at
// refillRate tokens per second.
func NewTokenBucket(maxTokens, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

func (b *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
}

// TryConsume attempts to consume tokens without blocking. Returns false if
// not enough tokens are available.
func (b *TokenBucket) TryConsume(tokens float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= tokens {
		b.tokens -= tokens
		return true
	}
	return false
}

// ConsumeWithTimeout blocks until tokens are available or the timeout expires.
func (b *TokenBucket) ConsumeWithTimeout(tokens float64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		b.mu.Lock()
		b.refill()
		if b.tokens >= tokens {
			b.tokens -= tokens
			b.mu.Unlock()
			return true
		}
		deficit := tokens - b.tokens
		b.mu.Unlock()

		waitTime := time.Duration(deficit / b.refillRate * float64(time.Second))
		if remaining := time.Until(deadline); waitTime > remaining {
			waitTime = remaining
		}
		if waitTime < 10*time.Millisecond {
			waitTime = 10 * time.Millisecond
		}
		time.Sleep(waitTime)
	}
	return false
}

// Return puts tokens back, e.g. after a failed request.
func (b *TokenBucket) Return(tokens float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens += tokens
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
}

// Available returns the current number of available tokens.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}
