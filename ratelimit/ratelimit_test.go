package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZeroZeroIsUnlimited(t *testing.T) {
	b := New(0, 0)
	for i := 0; i < 1000; i++ {
		require.True(t, b.TryConsume(1000))
	}
}

func TestCapacityStartsFull(t *testing.T) {
	b := New(10, 1)
	require.True(t, b.TryConsume(10))
	require.False(t, b.TryConsume(1))
}
