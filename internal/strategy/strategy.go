// Package strategy holds the retry and fallback plumbing shared by the
// generation components. Retry/backoff and fallback chaining are kept
// orthogonal: a component retries one strategy via Do, then moves to the next
// strategy via FirstSuccess.
package strategy

import (
	"context"
	"errors"
	"time"
)

// Strategy is one way of producing a T. Strategies are pure with respect to
// the package: all state rides on the closure.
type Strategy[T any] func(ctx context.Context) (T, error)

// FirstSuccess runs the strategies in order and returns the first successful
// result. When every strategy fails the last error is returned.
func FirstSuccess[T any](ctx context.Context, strategies ...Strategy[T]) (T, error) {
	var zero T
	if len(strategies) == 0 {
		return zero, errors.New("strategy: no strategies provided")
	}
	var lastErr error
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := s(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return zero, lastErr
}

// Policy configures Do. Backoff receives the 1-based retry number and returns
// the delay to sleep before that retry.
type Policy struct {
	MaxRetries int
	Backoff    func(retry int) time.Duration
	Retryable  func(error) bool
	WarmUp     time.Duration
	Sleep      func(ctx context.Context, d time.Duration) error
	OnRetry    func(retry int, delay time.Duration, err error)
}

// Exponential returns a doubling backoff schedule starting at base for the
// first retry, capped at max when max is positive.
func Exponential(base, max time.Duration) func(retry int) time.Duration {
	return func(retry int) time.Duration {
		if retry < 1 {
			retry = 1
		}
		d := base << (retry - 1)
		if max > 0 && d > max {
			d = max
		}
		return d
	}
}

// Do runs op, retrying per the policy. A warm-up delay, when configured, is
// slept before the first attempt even with zero prior failures, to
// desynchronize bursts against rate-limited services.
func Do[T any](ctx context.Context, p Policy, op Strategy[T]) (T, error) {
	var zero T
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	if p.WarmUp > 0 {
		if err := sleep(ctx, p.WarmUp); err != nil {
			return zero, err
		}
	}
	var lastErr error
	for attempt := 0; ; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if attempt >= p.MaxRetries {
			break
		}
		if p.Retryable != nil && !p.Retryable(err) {
			break
		}
		retry := attempt + 1
		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(retry)
		}
		if p.OnRetry != nil {
			p.OnRetry(retry, delay, err)
		}
		if delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return zero, err
			}
		}
	}
	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
