// Package retry runs operations against flaky collaborators with bounded,
// jittered exponential backoff.
package retry

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop. AttemptTimeout applies to each call of the
// operation; zero leaves the caller's deadline alone.
type Policy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	AttemptTimeout  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		AttemptTimeout:  5 * time.Second,
	}
}

// Do calls op until it succeeds, fails with an error retryable rejects, or
// the attempts run out. A nil retryable retries every error.
func Do[T any](ctx context.Context, name string, p Policy, retryable func(error) bool, op func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	return backoff.Retry(ctx, func() (T, error) {
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		defer cancel()

		v, err := op(attemptCtx)
		if err != nil && retryable != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Printf("[Retry] %s failed, retrying in %v: %v", name, next, err)
		}),
	)
}
