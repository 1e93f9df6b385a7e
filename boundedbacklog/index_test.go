package boundedbacklog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/numeric"
)

func hashOf(v uint64) block.Hash { return numeric.Uint256FromUint64(v) }

func acctOf(v uint64) account.Address { return account.FromPublicKey(numeric.Uint256FromUint64(v)) }

func TestIndexInsertAndLookupByHash(t *testing.T) {
	idx := NewIndex()
	idx.Insert(Entry{Hash: hashOf(1), Account: acctOf(1), Bucket: 5, Priority: 10})
	require.True(t, idx.Contains(hashOf(1)))
	require.False(t, idx.Contains(hashOf(2)))
	require.Equal(t, 1, idx.Size())

	// Re-inserting an already-present hash is a no-op.
	idx.Insert(Entry{Hash: hashOf(1), Account: acctOf(2), Bucket: 9, Priority: 99})
	require.Equal(t, 1, idx.SizeByBucket(5))
	require.Equal(t, 0, idx.SizeByBucket(9))
}

func TestIndexByAccountEqualRange(t *testing.T) {
	idx := NewIndex()
	idx.Insert(Entry{Hash: hashOf(1), Account: acctOf(1), Bucket: 0, Priority: 1})
	idx.Insert(Entry{Hash: hashOf(2), Account: acctOf(1), Bucket: 0, Priority: 2})
	idx.Insert(Entry{Hash: hashOf(3), Account: acctOf(2), Bucket: 0, Priority: 3})

	require.Len(t, idx.ByAccount(acctOf(1)), 2)
	require.Len(t, idx.ByAccount(acctOf(2)), 1)
	require.Len(t, idx.ByAccount(acctOf(3)), 0)
}

func TestIndexTopByBucketDescendingPriority(t *testing.T) {
	idx := NewIndex()
	idx.Insert(Entry{Hash: hashOf(1), Account: acctOf(1), Bucket: 3, Priority: 10})
	idx.Insert(Entry{Hash: hashOf(2), Account: acctOf(1), Bucket: 3, Priority: 30})
	idx.Insert(Entry{Hash: hashOf(3), Account: acctOf(1), Bucket: 3, Priority: 20})

	top := idx.TopByBucket(3, 2)
	require.Equal(t, []block.Hash{hashOf(2), hashOf(3)}, top)
}

func TestIndexRemoveKeepsSizeByBucketAccurate(t *testing.T) {
	idx := NewIndex()
	idx.Insert(Entry{Hash: hashOf(1), Account: acctOf(1), Bucket: 4, Priority: 1})
	idx.Insert(Entry{Hash: hashOf(2), Account: acctOf(1), Bucket: 4, Priority: 2})
	require.Equal(t, 2, idx.SizeByBucket(4))

	idx.Remove(hashOf(1))
	require.Equal(t, 1, idx.SizeByBucket(4))
	require.False(t, idx.Contains(hashOf(1)))
	require.Len(t, idx.ByAccount(acctOf(1)), 1)

	idx.Remove(hashOf(1)) // removing an absent hash is a no-op
	require.Equal(t, 1, idx.Size())
}

func TestIndexAllHashesSortedAndComplete(t *testing.T) {
	idx := NewIndex()
	idx.Insert(Entry{Hash: hashOf(5), Account: acctOf(1), Bucket: 0, Priority: 1})
	idx.Insert(Entry{Hash: hashOf(1), Account: acctOf(1), Bucket: 0, Priority: 1})
	idx.Insert(Entry{Hash: hashOf(3), Account: acctOf(1), Bucket: 0, Priority: 1})

	all := idx.AllHashes()
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		require.True(t, all[i-1].Cmp(all[i]) < 0)
	}
}
