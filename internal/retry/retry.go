// Package retry runs operations that may lose an optimistic-lock race,
// backing off between attempts. Only version conflicts are retried; every
// other error fails the operation on the spot.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/agentfoundry/sessiond/internal/core"
)

type Options struct {
	MaxRetries   int           `envconfig:"SESSIOND_RETRY_MAX_RETRIES" default:"3"`
	BaseDelay    time.Duration `envconfig:"SESSIOND_RETRY_BASE_DELAY" default:"100ms"`
	MaxDelay     time.Duration `envconfig:"SESSIOND_RETRY_MAX_DELAY" default:"1s"`
	JitterFactor float64       `envconfig:"SESSIOND_RETRY_JITTER_FACTOR" default:"0.1"`
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:   3,
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     time.Second,
		JitterFactor: 0.1,
	}
}

func (o Options) normalized() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 100 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = time.Second
	}
	if o.JitterFactor < 0 {
		o.JitterFactor = 0
	}
	return o
}

// Outcome is the immutable result of running one operation under the retry
// policy. Attempts counts every call made, so an exhausted run reports
// MaxRetries+1.
type Outcome[T any] struct {
	Success          bool
	Value            T
	Attempts         int
	RetriesExhausted bool
	Err              error
}

// Do runs op until it succeeds, fails with a non-conflict error, or exhausts
// the retry budget. The backoff sleep aborts when ctx is done, which in the
// daemons only happens at shutdown.
func Do[T any](ctx context.Context, opts Options, op func(context.Context) (T, error)) Outcome[T] {
	opts = opts.normalized()

	attempts := 0
	for {
		attempts++
		v, err := op(ctx)
		if err == nil {
			return Outcome[T]{Success: true, Value: v, Attempts: attempts}
		}

		var conflict *core.VersionConflictError
		if !errors.As(err, &conflict) {
			return Outcome[T]{Attempts: attempts, Err: err}
		}
		if attempts > opts.MaxRetries {
			return Outcome[T]{Attempts: attempts, RetriesExhausted: true, Err: err}
		}

		select {
		case <-ctx.Done():
			return Outcome[T]{Attempts: attempts, Err: ctx.Err()}
		case <-time.After(backoffDelay(attempts, opts)):
		}
	}
}

// backoffDelay doubles the base delay per attempt, caps it at MaxDelay, and
// spreads it by a uniform jitter within ±JitterFactor of the capped value.
// Never negative.
func backoffDelay(attempt int, opts Options) time.Duration {
	backoff := opts.BaseDelay << uint(attempt-1)
	if backoff <= 0 || backoff > opts.MaxDelay {
		backoff = opts.MaxDelay
	}
	if opts.JitterFactor > 0 {
		span := time.Duration(float64(backoff) * opts.JitterFactor)
		if span > 0 {
			backoff += time.Duration(rand.Int64N(int64(2*span)+1)) - span
		}
	}
	if backoff < 0 {
		backoff = 0
	}
	return backoff
}
