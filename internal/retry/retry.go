// Package retry provides bounded retry with polynomial backoff.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Outcome is the aggregated result of a retried operation.
// Err holds the last attempt's error, or nil if any attempt succeeded.
type Outcome struct {
	Attempts int
	Err      error
}

// Succeeded reports whether any attempt succeeded.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// Retrier invokes operations up to a fixed number of attempts, waiting
// (i-1)^2 backoff units before attempt i. The first attempt runs immediately
// and there is no wait after the final failure.
type Retrier struct {
	attempts int
	unit     time.Duration

	// sleep is swappable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Retrier. attempts below 1 is treated as a single attempt.
func New(attempts int, unit time.Duration) *Retrier {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrier{
		attempts: attempts,
		unit:     unit,
		sleep:    sleepCtx,
	}
}

// Do runs op until it succeeds or the attempt budget is exhausted.
// Failures are logged at warn level; exhaustion is reported through the
// Outcome, never raised, so callers stay best-effort by default.
func (r *Retrier) Do(ctx context.Context, logger zerolog.Logger, op func(ctx context.Context) error) Outcome {
	var lastErr error

	for i := 0; i < r.attempts; i++ {
		if i > 0 {
			wait := time.Duration(i-1) * time.Duration(i-1) * r.unit
			if err := r.sleep(ctx, wait); err != nil {
				return Outcome{Attempts: i, Err: err}
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return Outcome{Attempts: i + 1}
		}

		logger.Warn().Err(lastErr).Int("attempt", i+1).Int("max_attempts", r.attempts).Msg("Attempt failed")
	}

	return Outcome{Attempts: r.attempts, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
