package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// failNTimes returns an op that fails the first n invocations and counts calls.
func failNTimes(n int, calls *int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		*calls++
		if *calls <= n {
			return errors.New("transient failure")
		}
		return nil
	}
}

// stubSleep records requested waits and never blocks.
func stubSleep(waits *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestDoCallCounts(t *testing.T) {
	tests := []struct {
		name          string
		attempts      int
		failures      int // failures before first success
		wantCalls     int
		wantSucceeded bool
	}{
		{
			name:          "immediate_success",
			attempts:      3,
			failures:      0,
			wantCalls:     1,
			wantSucceeded: true,
		},
		{
			name:          "success_after_one_failure",
			attempts:      3,
			failures:      1,
			wantCalls:     2,
			wantSucceeded: true,
		},
		{
			name:          "success_on_last_attempt",
			attempts:      3,
			failures:      2,
			wantCalls:     3,
			wantSucceeded: true,
		},
		{
			name:          "all_attempts_fail",
			attempts:      3,
			failures:      99,
			wantCalls:     3,
			wantSucceeded: false,
		},
		{
			name:          "single_attempt_no_retry",
			attempts:      1,
			failures:      99,
			wantCalls:     1,
			wantSucceeded: false,
		},
		{
			name:          "zero_attempts_normalized_to_one",
			attempts:      0,
			failures:      99,
			wantCalls:     1,
			wantSucceeded: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.attempts, time.Second)
			var waits []time.Duration
			r.sleep = stubSleep(&waits)

			var calls int
			outcome := r.Do(context.Background(), zerolog.Nop(), failNTimes(tt.failures, &calls))

			if calls != tt.wantCalls {
				t.Errorf("op called %d times, want %d", calls, tt.wantCalls)
			}
			if outcome.Succeeded() != tt.wantSucceeded {
				t.Errorf("Succeeded() = %v, want %v (err: %v)", outcome.Succeeded(), tt.wantSucceeded, outcome.Err)
			}
			if outcome.Attempts != tt.wantCalls {
				t.Errorf("Outcome.Attempts = %d, want %d", outcome.Attempts, tt.wantCalls)
			}
		})
	}
}

func TestDoBackoffProgression(t *testing.T) {
	r := New(4, time.Second)
	var waits []time.Duration
	r.sleep = stubSleep(&waits)

	var calls int
	outcome := r.Do(context.Background(), zerolog.Nop(), failNTimes(99, &calls))

	if outcome.Succeeded() {
		t.Fatal("expected exhausted outcome")
	}

	// Wait before attempt i (0-indexed) is (i-1)^2 units; no wait before the
	// first attempt, no wait after the final failure.
	want := []time.Duration{0, 1 * time.Second, 4 * time.Second}
	if len(waits) != len(want) {
		t.Fatalf("got %d waits (%v), want %d", len(waits), waits, len(want))
	}
	for i := range want {
		if waits[i] != want[i] {
			t.Errorf("wait %d = %v, want %v", i, waits[i], want[i])
		}
	}
}

func TestDoNoWaitOnImmediateSuccess(t *testing.T) {
	r := New(3, time.Second)
	var waits []time.Duration
	r.sleep = stubSleep(&waits)

	var calls int
	r.Do(context.Background(), zerolog.Nop(), failNTimes(0, &calls))

	if len(waits) != 0 {
		t.Errorf("expected no waits, got %v", waits)
	}
}

func TestDoStopsOnCancelledContext(t *testing.T) {
	r := New(3, time.Second)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	var calls int
	outcome := r.Do(context.Background(), zerolog.Nop(), failNTimes(99, &calls))

	if calls != 1 {
		t.Errorf("op called %d times, want 1 (no retry after cancelled wait)", calls)
	}
	if !errors.Is(outcome.Err, context.Canceled) {
		t.Errorf("Outcome.Err = %v, want context.Canceled", outcome.Err)
	}
}

func TestSleepCtxReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepCtx(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("sleepCtx() = %v, want context.Canceled", err)
	}
}
