package llm

import (
	"sync"
	"time"
)

// RateLimitExceededError is returned when the request budget is exhausted.
type RateLimitExceededError struct {
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	return "rate limit exceeded"
}

// TokenBucketRateLimiter implements a token bucket for limiting outbound
// LLM requests.
type TokenBucketRateLimiter struct {
	capacity     int           // Maximum number of tokens
	tokens       int           // Current number of tokens
	refillRate   time.Duration // Interval between refills
	refillAmount int           // Tokens added per refill
	lastRefill   time.Time     // Time of last refill
	mu           sync.Mutex
	metrics      *RateLimitMetrics
}

// RateLimitMetrics stores rate limiting counters.
type RateLimitMetrics struct {
	TotalRequests    int64
	AllowedRequests  int64
	RejectedRequests int64
}

// NewTokenBucketRateLimiter creates a new rate limiter.
// capacity: maximum number of tokens
// refillInterval: interval between refills (e.g. time.Second for 1 token/sec)
// refillAmount: tokens added per interval
func NewTokenBucketRateLimiter(capacity int, refillInterval time.Duration, refillAmount int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		capacity:     capacity,
		tokens:       capacity,
		refillRate:   refillInterval,
		refillAmount: refillAmount,
		lastRefill:   time.Now(),
		metrics:      &RateLimitMetrics{},
	}
}

// TryAcquire attempts to take a token. Returns true if one was available,
// otherwise false with the time to wait until the next refill.
func (r *TokenBucketRateLimiter) TryAcquire() (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.TotalRequests++

	now := time.Now()
	elapsed := now.Sub(r.lastRefill)

	if elapsed >= r.refillRate {
		intervals := int(elapsed / r.refillRate)

		tokensToAdd := intervals * r.refillAmount
		if r.tokens+tokensToAdd > r.capacity {
			r.tokens = r.capacity
		} else {
			r.tokens += tokensToAdd
		}

		// Keep the remainder for accuracy
		r.lastRefill = now.Add(-elapsed % r.refillRate)
	}

	if r.tokens > 0 {
		r.tokens--
		r.metrics.AllowedRequests++
		return true, 0
	}

	r.metrics.RejectedRequests++
	wait := r.refillRate - now.Sub(r.lastRefill)
	if wait < 0 {
		wait = 0
	}
	return false, wait
}

// Metrics returns a snapshot of the limiter's counters.
func (r *TokenBucketRateLimiter) Metrics() RateLimitMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.metrics
}
