// Package retry provides a cenkalti/backoff/v4-based retry helper for
// the bounded-attempt and unbounded retry policies the error handling
// design calls for: storage GET retries (3 attempts, exponential,
// 100ms base) and broker heartbeat retries (unbounded, with backoff).
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy configures a bounded retry sequence.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	Multiplier      float64
}

// StorageGet is the retry policy for chunk GET retries during
// consumption: 3 attempts, exponential, 100ms base.
var StorageGet = Policy{MaxAttempts: 3, InitialInterval: 100 * time.Millisecond, Multiplier: 2}

// newBackoff builds a backoff.BackOff from p, bounded to p.MaxAttempts
// tries (0 or negative means unbounded) and to ctx's lifetime.
func (p Policy) newBackoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialInterval
	if p.Multiplier > 0 {
		eb.Multiplier = p.Multiplier
	}
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Do runs fn, retrying per p until it succeeds, p's attempt budget is
// exhausted, or ctx is done. The final error is returned unwrapped.
func Do(ctx context.Context, p Policy, fn func() error) error {
	return backoff.Retry(fn, p.newBackoff(ctx))
}

// Forever runs fn, retrying indefinitely with an exponential backoff that
// starts at initialInterval, until it succeeds or ctx is done. Intended for the broker heartbeat task, which
// per the concurrency model retries forever with backoff.
func Forever(ctx context.Context, initialInterval time.Duration, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initialInterval
	eb.MaxElapsedTime = 0
	return backoff.Retry(fn, backoff.WithContext(eb, ctx))
}
