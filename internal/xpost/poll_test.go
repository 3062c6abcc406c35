package xpost_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blacktop/crosspub/internal/xpost"
	"github.com/blacktop/crosspub/internal/xpost/xposttest"
)

func TestPollUntilTerminalSucceedsOnNthCall(t *testing.T) {
	for _, n := range []int{1, 2, 5, 60} {
		var sleeps xposttest.Sleeps
		calls := 0
		check := func(ctx context.Context, attempt int) (string, time.Duration, error) {
			calls++
			assert.Equal(t, calls, attempt)
			if calls < n {
				return "processing", 0, nil
			}
			return "succeeded", 0, nil
		}

		state, err := xpost.PollUntilTerminal(context.Background(), sleeps.Poller(time.Second, 60), check, func(s string) bool {
			return s == "succeeded" || s == "failed"
		})
		require.NoError(t, err)
		assert.Equal(t, "succeeded", state)
		assert.Equal(t, n, calls)
		assert.Len(t, sleeps.Delays, n-1)
	}
}

func TestPollUntilTerminalTimesOut(t *testing.T) {
	var sleeps xposttest.Sleeps
	calls := 0
	check := func(ctx context.Context, attempt int) (string, time.Duration, error) {
		calls++
		return "in_progress", 0, nil
	}

	_, err := xpost.PollUntilTerminal(context.Background(), sleeps.Poller(time.Second, 7), check, func(s string) bool { return s == "succeeded" })
	require.Error(t, err)
	assert.ErrorIs(t, err, xpost.ErrPollTimeout)
	var timeout *xpost.PollTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 7, timeout.Attempts)
	assert.Equal(t, 7, calls)
	assert.Len(t, sleeps.Delays, 6)
}

func TestPollUntilTerminalUsesReportedDelay(t *testing.T) {
	var sleeps xposttest.Sleeps
	reported := []time.Duration{2 * time.Second, 0, 10 * time.Second, 0}
	check := func(ctx context.Context, attempt int) (string, time.Duration, error) {
		if attempt == len(reported) {
			return "done", 0, nil
		}
		return "pending", reported[attempt-1], nil
	}

	_, err := xpost.PollUntilTerminal(context.Background(), sleeps.Poller(5*time.Second, 10), check, func(s string) bool { return s == "done" })
	require.NoError(t, err)
	// A check that reports no interval falls back to the configured delay.
	assert.Equal(t, []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second}, sleeps.Delays)
}

func TestPollUntilTerminalFailedStateIsTerminal(t *testing.T) {
	var sleeps xposttest.Sleeps
	state, err := xpost.PollUntilTerminal(context.Background(), sleeps.Poller(0, 3),
		func(ctx context.Context, attempt int) (string, time.Duration, error) { return "failed", 0, nil },
		func(s string) bool { return s == "succeeded" || s == "failed" })
	require.NoError(t, err)
	assert.Equal(t, "failed", state)
	assert.Empty(t, sleeps.Delays)
}

func TestPollUntilTerminalPropagatesCheckError(t *testing.T) {
	var sleeps xposttest.Sleeps
	boom := errors.New("status endpoint down")
	calls := 0
	_, err := xpost.PollUntilTerminal(context.Background(), sleeps.Poller(0, 5),
		func(ctx context.Context, attempt int) (string, time.Duration, error) {
			calls++
			if attempt == 2 {
				return "", 0, boom
			}
			return "pending", 0, nil
		},
		func(s string) bool { return false })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, xpost.Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, xpost.Sleep(context.Background(), 0))
}
