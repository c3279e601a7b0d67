// Package retry implements capped exponential backoff with jitter for
// calls to external dependencies.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Retryable decides whether an error is worth another attempt.
// A nil predicate retries every error.
type Retryable func(error) bool

type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    time.Duration
}

// DefaultPolicy bounds external provider calls to three attempts total.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:  3,
		BaseDelay: 200 * time.Millisecond,
		MaxDelay:  5 * time.Second,
		Jitter:    50 * time.Millisecond,
	}
}

type Retrier struct {
	policy    Policy
	retryable Retryable
}

func New(policy Policy, retryable Retryable) *Retrier {
	if policy.Attempts < 1 {
		policy.Attempts = 1
	}
	return &Retrier{
		policy:    policy,
		retryable: retryable,
	}
}

// Do runs op until it succeeds, the error is classified permanent, the
// attempt budget runs out, or ctx is cancelled. The last error is
// returned as-is so callers can inspect its type. A Retrier is safe for
// concurrent use.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	delay := r.policy.BaseDelay

	// Jitter source is per call; the Retrier itself is shared between
	// goroutines and holds no mutable state.
	var rnd *rand.Rand
	if r.policy.Jitter > 0 {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if r.retryable != nil && !r.retryable(err) {
			return err
		}
		if attempt >= r.policy.Attempts {
			return err
		}

		wait := delay
		if rnd != nil {
			wait += time.Duration(rnd.Int63n(int64(r.policy.Jitter)))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
		if delay > r.policy.MaxDelay {
			delay = r.policy.MaxDelay
		}
	}
}
