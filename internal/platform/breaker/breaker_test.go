package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreaker_ClosedAllowsCalls(t *testing.T) {
	b := New(Config{WindowSize: 5, FailureRateThresh: 0.5, OpenDuration: time.Minute})
	require.NoError(t, b.Allow())
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_OpensAtFailureRateThreshold(t *testing.T) {
	b := New(Config{WindowSize: 4, FailureRateThresh: 0.5, OpenDuration: time.Minute})

	// 2 successes, 2 failures -> rate == 0.5, meets the threshold.
	for _, ok := range []bool{true, true, false, false} {
		require.NoError(t, b.Allow())
		b.Report(ok)
	}

	assert.Equal(t, Open, b.State())
	assert.ErrorIs(t, b.Allow(), ErrOpen{})
}

func TestBreaker_StaysClosedBelowWindowSize(t *testing.T) {
	b := New(Config{WindowSize: 10, FailureRateThresh: 0.1, OpenDuration: time.Minute})

	for i := 0; i < 9; i++ {
		require.NoError(t, b.Allow())
		b.Report(false)
	}

	assert.Equal(t, Closed, b.State(), "breaker must not trip before the rolling window fills")
}

func TestBreaker_HalfOpenProbeAfterOpenDuration(t *testing.T) {
	b := New(Config{WindowSize: 2, FailureRateThresh: 0.5, OpenDuration: 10 * time.Millisecond, HalfOpenProbes: 1})

	require.NoError(t, b.Allow())
	b.Report(false)
	require.NoError(t, b.Allow())
	b.Report(false)
	require.Equal(t, Open, b.State())

	time.Sleep(15 * time.Millisecond)

	require.NoError(t, b.Allow(), "a probe must be let through once openDuration elapses")
	assert.Equal(t, HalfOpen, b.State())

	// A second concurrent probe beyond HalfOpenProbes must be rejected.
	assert.Error(t, b.Allow())
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b := New(Config{WindowSize: 2, FailureRateThresh: 0.5, OpenDuration: 10 * time.Millisecond, HalfOpenProbes: 1})
	require.NoError(t, b.Allow())
	b.Report(false)
	require.NoError(t, b.Allow())
	b.Report(false)

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.Report(true)

	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(Config{WindowSize: 2, FailureRateThresh: 0.5, OpenDuration: 10 * time.Millisecond, HalfOpenProbes: 1})
	require.NoError(t, b.Allow())
	b.Report(false)
	require.NoError(t, b.Allow())
	b.Report(false)

	time.Sleep(15 * time.Millisecond)
	require.NoError(t, b.Allow())
	b.Report(false)

	assert.Equal(t, Open, b.State())
}
