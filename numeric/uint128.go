// Package numeric implements the fixed-width unsigned integer unions
// (128/256/512 bit) spec.md §3 calls for: big-endian byte storage, hex/decimal
// codecs, lexicographic total order, and hashing suitable for map keys.
package numeric

import (
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// ErrMalformed is returned by every Decode* function when the input would
// not round-trip through Encode*, including oversized or non-canonical
// inputs. The destination is left untouched.
var ErrMalformed = errors.New("numeric: malformed input")

// Uint128 is a 128-bit unsigned integer stored big-endian, backing spec.md's
// Amount and other 128-bit quantities (account-chain balances).
type Uint128 struct {
	b [16]byte
}

// Uint128FromUint64 constructs a Uint128 from a small integer.
func Uint128FromUint64(v uint64) Uint128 {
	var u Uint128
	for i := 0; i < 8; i++ {
		u.b[15-i] = byte(v >> (8 * i))
	}
	return u
}

// Bytes returns the big-endian byte representation.
func (u Uint128) Bytes() [16]byte { return u.b }

// SetBytes sets u from a 16-byte big-endian slice.
func (u *Uint128) SetBytes(b []byte) error {
	if len(b) != 16 {
		return ErrMalformed
	}
	copy(u.b[:], b)
	return nil
}

// Cmp returns -1, 0, or 1 as u is less than, equal to, or greater than v,
// using lexicographic (== numeric, since both are big-endian) order.
func (u Uint128) Cmp(v Uint128) int {
	for i := 0; i < 16; i++ {
		if u.b[i] != v.b[i] {
			if u.b[i] < v.b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Add returns u+v and reports whether the addition overflowed 128 bits.
func (u Uint128) Add(v Uint128) (Uint128, bool) {
	sum := new(big.Int).Add(u.big(), v.big())
	return bigToUint128Checked(sum)
}

// Sub returns u-v and reports whether v > u (underflow).
func (u Uint128) Sub(v Uint128) (Uint128, bool) {
	if u.Cmp(v) < 0 {
		return Uint128{}, true
	}
	diff := new(big.Int).Sub(u.big(), v.big())
	out, _ := bigToUint128Checked(diff)
	return out, false
}

func bigToUint128Checked(v *big.Int) (Uint128, bool) {
	var out Uint128
	if v.Sign() < 0 || v.Cmp(maxUint128) > 0 {
		return out, true
	}
	b := v.Bytes()
	copy(out.b[16-len(b):], b)
	return out, false
}

// IsZero reports whether u is the zero value.
func (u Uint128) IsZero() bool {
	for _, b := range u.b {
		if b != 0 {
			return false
		}
	}
	return true
}

// HashKey returns a value suitable for use as a Go map key.
func (u Uint128) HashKey() [16]byte { return u.b }

// EncodeHex encodes u as a lowercase, exact-width (32 hex chars) string.
func (u Uint128) EncodeHex() string { return hex.EncodeToString(u.b[:]) }

// DecodeUint128Hex decodes a lowercase, exact-width hex string. Rejects any
// input that is not exactly 32 lowercase hex characters.
func DecodeUint128Hex(s string) (Uint128, error) {
	var out Uint128
	if len(s) != 32 {
		return out, ErrMalformed
	}
	if strings.ToLower(s) != s {
		return out, ErrMalformed
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, ErrMalformed
	}
	copy(out.b[:], b)
	return out, nil
}

// big returns a math/big.Int view of u for decimal formatting/arithmetic
// that the fixed-width representation doesn't need to carry natively.
func (u Uint128) big() *big.Int {
	return new(big.Int).SetBytes(u.b[:])
}

// EncodeDecimal renders u in base 10, no leading zeros, no sign.
func (u Uint128) EncodeDecimal() string { return u.big().String() }

var maxUint128 = func() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 128)
	return max.Sub(max, big.NewInt(1))
}()

// DecodeUint128Decimal decodes a base-10 string with no sign, no leading
// zeros (except the single digit "0"), and no overflow past 2^128-1.
func DecodeUint128Decimal(s string) (Uint128, error) {
	var out Uint128
	if s == "" {
		return out, ErrMalformed
	}
	if s != "0" && s[0] == '0' {
		return out, ErrMalformed
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return out, ErrMalformed
		}
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return out, ErrMalformed
	}
	if v.Sign() < 0 || v.Cmp(maxUint128) > 0 {
		return out, ErrMalformed
	}
	b := v.Bytes()
	if len(b) > 16 {
		return out, ErrMalformed
	}
	copy(out.b[16-len(b):], b)
	return out, nil
}
