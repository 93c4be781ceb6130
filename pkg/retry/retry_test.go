package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fast(attempts int) Policy {
	return Policy{MaxAttempts: attempts, InitialInterval: time.Millisecond, Multiplier: 1, MaxInterval: time.Millisecond}
}

func TestDoFirstTrySucceeds(t *testing.T) {
	calls, retries := 0, 0
	err := fast(3).Do(context.Background(), func() error {
		calls++
		return nil
	}, func(int, error) { retries++ })
	require.NoError(t, err)
	require.Equal(t, 1, calls)
	require.Zero(t, retries)
}

func TestDoRecoversWithinBudget(t *testing.T) {
	calls := 0
	var observed []int
	err := fast(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(attempt int, err error) {
		observed = append(observed, attempt)
		require.Error(t, err)
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Equal(t, []int{1, 2}, observed, "observer sees each failed attempt before the wait")
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := fast(3).Do(context.Background(), func() error {
		calls++
		return boom
	}, nil)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
}

func TestDoPermanentStopsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("bad request")
	err := fast(5).Do(context.Background(), func() error {
		calls++
		return Permanent(fatal)
	}, nil)
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, calls)
}

func TestDoContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := fast(5).Do(ctx, func() error {
		calls++
		return errors.New("transient")
	}, nil)
	require.Error(t, err)
	require.Equal(t, 1, calls, "a dead context stops the retry loop")
}

func TestPermanentNil(t *testing.T) {
	require.NoError(t, Permanent(nil))
}
