// Package bucketing implements the fixed table of 63 logarithmic balance
// buckets used to spread elections across the wealth spectrum, per
// spec.md §3.
package bucketing

import (
	"math/big"
	"sync"

	"github.com/yxse/nan-node/numeric"
)

// Index identifies one of the fixed buckets, in [0, Count).
type Index int

// Count is the fixed number of buckets: one global minimum at zero, a
// progression from 2^79 to 2^120 that widens then narrows around the
// middle of the range, and an implicit final bucket from 2^120 up to the
// top of the 128-bit balance space.
const Count = 63

// Bucketing holds the table of 63 minimum balances. A balance belongs to
// the bucket whose minimum is the greatest minimum <= balance, so the
// last entry's bucket extends to uint128::MAX.
type Bucketing struct {
	once     sync.Once
	minimums []numeric.Uint128
}

// Default is the process-wide bucket table; construction is pure and
// stateless so a single shared instance is safe to reuse.
var Default = &Bucketing{}

func (b *Bucketing) ensure() {
	b.once.Do(func() {
		b.minimums = buildMinimums()
	})
}

// BucketIndex returns the bucket a balance falls into: the greatest index
// i such that minimums[i] <= balance.
func (b *Bucketing) BucketIndex(balance numeric.Uint128) Index {
	b.ensure()
	lo, hi := 0, len(b.minimums)-1
	best := 0
	for lo <= hi {
		mid := (lo + hi) / 2
		if b.minimums[mid].Cmp(balance) <= 0 {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return Index(best)
}

// Indices returns every valid bucket index in ascending order.
func (b *Bucketing) Indices() []Index {
	b.ensure()
	out := make([]Index, len(b.minimums))
	for i := range out {
		out[i] = Index(i)
	}
	return out
}

// Size returns the number of buckets in the table.
func (b *Bucketing) Size() int {
	b.ensure()
	return len(b.minimums)
}

func buildMinimums() []numeric.Uint128 {
	var out []big.Int
	out = append(out, *big.NewInt(0))

	type region struct {
		beginShift, endShift uint
		count                int
	}
	regions := []region{
		{79, 88, 1},
		{88, 92, 2},
		{92, 96, 4},
		{96, 100, 8},
		{100, 104, 16},
		{104, 108, 16},
		{108, 112, 8},
		{112, 116, 4},
		{116, 120, 2},
	}

	for _, r := range regions {
		begin := new(big.Int).Lsh(big.NewInt(1), r.beginShift)
		end := new(big.Int).Lsh(big.NewInt(1), r.endShift)
		width := new(big.Int).Sub(end, begin)
		width.Div(width, big.NewInt(int64(r.count)))
		for i := 0; i < r.count; i++ {
			v := new(big.Int).Mul(width, big.NewInt(int64(i)))
			v.Add(v, begin)
			out = append(out, *v)
		}
	}

	out = append(out, *new(big.Int).Lsh(big.NewInt(1), 120))

	minimums := make([]numeric.Uint128, len(out))
	for i := range out {
		minimums[i] = bigToUint128(&out[i])
	}
	return minimums
}

func bigToUint128(v *big.Int) numeric.Uint128 {
	b := v.Bytes()
	var padded [16]byte
	copy(padded[16-len(b):], b)
	var u numeric.Uint128
	_ = u.SetBytes(padded[:])
	return u
}
