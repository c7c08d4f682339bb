package retry

import (
	"context"
	"time"

	"aurax/internal/services"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Outcome summarizes a Do call.
type Outcome struct {
	Tries        int
	NonRetryable bool
	Exhausted    bool
	Cancelled    bool
}

// Option customizes Do.
type Option func(*options)

type options struct {
	sleep   Sleeper
	onRetry func(try int, delay time.Duration, err error)
}

// WithSleeper overrides the backoff sleeper.
func WithSleeper(s Sleeper) Option {
	return func(o *options) {
		if s != nil {
			o.sleep = s
		}
	}
}

// OnRetry registers a callback invoked before each backoff wait.
func OnRetry(fn func(try int, delay time.Duration, err error)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

// Do calls op until it succeeds, returns a non-retryable error, the policy's
// try ceiling is reached, or ctx is done. The last error is returned as-is;
// the Outcome says which of those ended the loop.
func Do[T any](ctx context.Context, policy Policy, op func(ctx context.Context, try int) (T, error), opts ...Option) (T, Outcome, error) {
	o := options{sleep: Sleep}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	var outcome Outcome
	maxTries := policy.Attempts()
	for try := 1; ; try++ {
		outcome.Tries = try
		value, err := op(ctx, try)
		if err == nil {
			return value, outcome, nil
		}
		if ctx.Err() != nil || services.IsCancelled(err) {
			outcome.Cancelled = true
			if !services.IsCancelled(err) {
				err = services.Cancelled(err)
			}
			return zero, outcome, err
		}
		if !policy.Retryable(err) {
			outcome.NonRetryable = true
			return zero, outcome, err
		}
		if try >= maxTries {
			outcome.Exhausted = true
			return zero, outcome, err
		}
		delay := policy.Backoff(try)
		if o.onRetry != nil {
			o.onRetry(try, delay, err)
		}
		if serr := o.sleep(ctx, delay); serr != nil {
			outcome.Cancelled = true
			return zero, outcome, services.Cancelled(serr)
		}
	}
}

// Sleep is the default context-aware sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
