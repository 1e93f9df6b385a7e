package bootstrap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThrottleStartsUnthrottled(t *testing.T) {
	th := NewThrottle(2)
	require.False(t, th.Throttled())
}

func TestThrottleOfSizeTwoBecomesThrottledAfterTwoFailures(t *testing.T) {
	th := NewThrottle(2)
	th.Add(false)
	require.False(t, th.Throttled())
	th.Add(false)
	require.True(t, th.Throttled())
}

func TestThrottleRecoversOnSuccess(t *testing.T) {
	th := NewThrottle(2)
	th.Add(false)
	th.Add(false)
	require.True(t, th.Throttled())
	th.Add(true)
	require.False(t, th.Throttled())
}

func TestThrottleResizeGrowsWithFailures(t *testing.T) {
	th := NewThrottle(2)
	th.Resize(4)
	require.Equal(t, 4, th.Size())
	// the two grown slots are failures, the original two still successes.
	require.False(t, th.Throttled())
}

func TestThrottleResizeShrinksFromFront(t *testing.T) {
	th := NewThrottle(4)
	th.Add(false)
	th.Add(false)
	// window is now [true, true, false, false]; shrinking to 2 drops the
	// two leading successes, leaving only failures.
	th.Resize(2)
	require.True(t, th.Throttled())
}
