// Package retry provides the bounded retry policy shared by the staging
// writer and the source transport. A Policy is a value: attempt budget,
// exponential delay schedule, and a classifier deciding which errors are
// worth another attempt.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Classifier reports whether an error is transient. A nil classifier treats
// every error as transient.
type Classifier func(error) bool

// Policy is a reusable bounded-retry strategy. The zero value retries 3
// attempts with a 500ms initial delay.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// InitialDelay is the delay before the second attempt; it doubles on
	// each subsequent attempt.
	InitialDelay time.Duration
	// Transient classifies errors; a permanent error aborts immediately.
	Transient Classifier
}

func (p Policy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 3
	}
	return p.MaxAttempts
}

func (p Policy) initialDelay() time.Duration {
	if p.InitialDelay <= 0 {
		return 500 * time.Millisecond
	}
	return p.InitialDelay
}

// Do runs op until it succeeds, returns a permanent error, or the attempt
// budget is exhausted. The last error is returned on exhaustion.
func (p Policy) Do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialDelay()
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxElapsedTime = 0

	sched := backoff.WithContext(backoff.WithMaxRetries(b, uint64(p.attempts()-1)), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if p.Transient != nil && !p.Transient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, sched)
}
