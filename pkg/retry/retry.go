package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Policy bounds an outbound call: at most Attempts tries, Backoff*n between
// tries, each try cut off after Timeout. Limiter, when set, is shared by every
// call made with the policy.
type Policy struct {
	Attempts int           `envconfig:"ATTEMPTS" split_words:"true" default:"3"`
	Backoff  time.Duration `envconfig:"BACKOFF" split_words:"true" default:"500ms"`
	Timeout  time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"8s"`

	Limiter *rate.Limiter `ignored:"true"`
}

// ErrExhausted wraps the last attempt's error once all attempts failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// WithLimit returns a copy of p that waits on a limiter allowing rps calls per second.
func (p Policy) WithLimit(rps float64, burst int) Policy {
	if rps <= 0 {
		return p
	}
	if burst <= 0 {
		burst = 1
	}
	p.Limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return p
}

// Do runs fn until it succeeds, returns a permanent error, the attempts run
// out, or ctx is done.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff * time.Duration(attempt-1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return zero, err
			}
		}

		out, err := runAttempt(ctx, p.Timeout, fn)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, lastErr)
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(attemptCtx)
}
