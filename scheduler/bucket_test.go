package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/numeric"
)

func hashOf(v uint64) numeric.Uint256 { return numeric.Uint256FromUint64(v) }

func TestBucketPushDropsHighestOnOverflow(t *testing.T) {
	b := newBucket(2, 10, 0)
	ok1 := b.Push(10, hashOf(1), &block.Block{})
	ok2 := b.Push(5, hashOf(2), &block.Block{})
	require.True(t, ok1)
	require.True(t, ok2)
	require.Equal(t, 2, b.Size())

	// This third push has the highest (time, hash); it should be the one
	// dropped, so Push reports false.
	ok3 := b.Push(20, hashOf(3), &block.Block{})
	require.False(t, ok3)
	require.Equal(t, 2, b.Size())
}

func TestBucketActivateOrdersByLowestTimeHash(t *testing.T) {
	b := newBucket(10, 10, 0)
	b.Push(10, hashOf(1), &block.Block{})
	b.Push(5, hashOf(2), &block.Block{})

	el, ok := b.Activate()
	require.True(t, ok)
	require.Equal(t, uint64(5), el.Priority)
	require.Equal(t, 1, b.ElectionCount())
}

func TestBucketActivateEvictsWorstOnOverflow(t *testing.T) {
	b := newBucket(10, 1, 0)
	b.Push(5, hashOf(1), &block.Block{})
	b.Push(10, hashOf(2), &block.Block{})

	_, ok := b.Activate()
	require.True(t, ok)
	require.Equal(t, 1, b.ElectionCount())

	_, ok = b.Activate()
	require.True(t, ok)
	// Election count stays at the cap: the worse of the two (highest
	// priority value == largest timestamp == lowest real priority) was
	// evicted.
	require.Equal(t, 1, b.ElectionCount())
}

func TestBucketAvailableRespectsReservedAndVacancy(t *testing.T) {
	b := newBucket(10, 2, 1)
	require.False(t, b.Available(func() bool { return false }))

	b.Push(1, hashOf(1), &block.Block{})
	require.True(t, b.Available(func() bool { return false }), "under reserved floor, vacancy isn't consulted")

	b.Activate()
	b.Push(2, hashOf(2), &block.Block{})
	require.False(t, b.Available(func() bool { return false }), "at reserved floor, vacancy gates further activation")
	require.True(t, b.Available(func() bool { return true }))
}
