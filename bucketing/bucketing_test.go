package bucketing

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/numeric"
)

func uint128FromBig(v *big.Int) numeric.Uint128 {
	b := v.Bytes()
	var padded [16]byte
	copy(padded[16-len(b):], b)
	var u numeric.Uint128
	_ = u.SetBytes(padded[:])
	return u
}

func TestSizeIs63(t *testing.T) {
	require.Equal(t, 63, Default.Size())
	require.Len(t, Default.Indices(), 63)
}

func TestBucketIndexInvariants(t *testing.T) {
	zero := numeric.Uint128{}
	require.Equal(t, Index(0), Default.BucketIndex(zero))

	rawRatio := numeric.Uint128FromUint64(1)
	require.Equal(t, Index(0), Default.BucketIndex(rawRatio))

	nanoRatio := uint128FromBig(new(big.Int).Exp(big.NewInt(10), big.NewInt(30), nil))
	require.Equal(t, Index(14), Default.BucketIndex(nanoRatio))

	knanoRatio := uint128FromBig(new(big.Int).Exp(big.NewInt(10), big.NewInt(33), nil))
	require.Equal(t, Index(49), Default.BucketIndex(knanoRatio))

	max := uint128FromBig(new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1)))
	require.Equal(t, Index(62), Default.BucketIndex(max))
}

func TestBucketIndexMonotonic(t *testing.T) {
	prev := Default.BucketIndex(numeric.Uint128{})
	for shift := uint(0); shift < 128; shift += 4 {
		v := uint128FromBig(new(big.Int).Lsh(big.NewInt(1), shift))
		idx := Default.BucketIndex(v)
		require.GreaterOrEqual(t, int(idx), int(prev))
		prev = idx
	}
}
