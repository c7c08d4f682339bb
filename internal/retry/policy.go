package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"aurax/internal/config"
	"aurax/internal/services"
)

// Policy describes how one stage call is retried.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// NonRetryable lists error markers that abort immediately.
	NonRetryable []error
	// RetryIf, when set, must also accept an error for it to be retried.
	RetryIf func(error) bool
}

// FromConfig converts a configured stage policy. Unknown non-retryable kinds
// are ignored.
func FromConfig(p config.StagePolicy) Policy {
	policy := Policy{
		MaxAttempts:     p.MaxAttempts,
		InitialInterval: p.InitialInterval(),
		MaxInterval:     p.MaxInterval(),
		Multiplier:      p.Multiplier,
	}
	for _, kind := range p.NonRetryable {
		if marker := services.MarkerForKind(kind); marker != nil {
			policy.NonRetryable = append(policy.NonRetryable, marker)
		}
	}
	return policy
}

// NoRetry is a single-try policy.
func NoRetry() Policy {
	return Policy{MaxAttempts: 1}
}

// Attempts returns the effective try ceiling (at least 1).
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Backoff returns the wait before retry number n (1 = first retry):
// InitialInterval * Multiplier^(n-1), capped at MaxInterval.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 || p.InitialInterval <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := float64(p.InitialInterval) * math.Pow(mult, float64(n-1))
	if p.MaxInterval > 0 && delay > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	if delay > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Retryable reports whether err may be retried under this policy.
// Cancellation and explicitly non-retryable markers are never retried.
func (p Policy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if services.IsCancelled(err) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, services.ErrNonRetryable) || errors.Is(err, services.ErrInvalidRequest) {
		return false
	}
	for _, marker := range p.NonRetryable {
		if errors.Is(err, marker) {
			return false
		}
	}
	if p.RetryIf != nil {
		return p.RetryIf(err)
	}
	return true
}
