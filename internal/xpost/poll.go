package xpost

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultMaxAttempts bounds every status poll.
const DefaultMaxAttempts = 60

// ErrPollTimeout is wrapped by PollTimeoutError.
var ErrPollTimeout = errors.New("poll attempts exhausted")

// PollTimeoutError reports a poll that never reached a terminal state.
type PollTimeoutError struct {
	Attempts int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("no terminal state after %d checks", e.Attempts)
}

func (e *PollTimeoutError) Unwrap() error { return ErrPollTimeout }

// Sleeper suspends between poll attempts.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

// Poller holds the budget for one status-polling loop.
type Poller struct {
	// Delay is used after any check that reports no interval of its own.
	Delay       time.Duration
	MaxAttempts int
	Sleep       Sleeper
}

// CheckFunc queries the current state. A positive next overrides the delay
// before the following check only; zero falls back to Poller.Delay.
type CheckFunc[S any] func(ctx context.Context, attempt int) (state S, next time.Duration, err error)

// PollUntilTerminal calls check until isTerminal accepts its state, sleeping
// between calls for the interval the previous check reported. It makes at
// most MaxAttempts calls and returns a *PollTimeoutError when they run out.
// Whether the terminal state means success is for the caller to decide.
func PollUntilTerminal[S any](ctx context.Context, p Poller, check CheckFunc[S], isTerminal func(S) bool) (S, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var (
		state S
		delay time.Duration
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, delay); err != nil {
				return state, err
			}
		}

		var (
			next time.Duration
			err  error
		)
		state, next, err = check(ctx, attempt)
		if err != nil {
			return state, err
		}
		if isTerminal(state) {
			return state, nil
		}
		delay = p.Delay
		if next > 0 {
			delay = next
		}
	}
	return state, &PollTimeoutError{Attempts: maxAttempts}
}
