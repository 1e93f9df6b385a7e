package numeric

import (
	"encoding/hex"
	"strings"
)

// Uint512 is a 512-bit unsigned integer stored big-endian, sized for
// signature material (Ed25519 signatures concatenated with auxiliary data)
// and other 64-byte quantities. It is represented as two Uint256 limbs; no
// library in the retrieval pack models a native 512-bit integer, so this
// composes the grounded Uint256 type rather than reaching for math/big,
// which would hide the fixed-width, zero-alias guarantees spec.md requires.
type Uint512 struct {
	hi, lo Uint256
}

// Bytes returns the big-endian byte representation.
func (u Uint512) Bytes() [64]byte {
	var out [64]byte
	hiB := u.hi.Bytes()
	loB := u.lo.Bytes()
	copy(out[:32], hiB[:])
	copy(out[32:], loB[:])
	return out
}

// SetBytes sets u from a 64-byte big-endian slice.
func (u *Uint512) SetBytes(b []byte) error {
	if len(b) != 64 {
		return ErrMalformed
	}
	if err := u.hi.SetBytes(b[:32]); err != nil {
		return err
	}
	return u.lo.SetBytes(b[32:])
}

// Cmp returns -1, 0, or 1 using lexicographic order.
func (u Uint512) Cmp(v Uint512) int {
	if c := u.hi.Cmp(v.hi); c != 0 {
		return c
	}
	return u.lo.Cmp(v.lo)
}

// IsZero reports whether u is the zero value.
func (u Uint512) IsZero() bool { return u.hi.IsZero() && u.lo.IsZero() }

// HashKey returns a value suitable for use as a Go map key.
func (u Uint512) HashKey() [64]byte { return u.Bytes() }

// EncodeHex encodes u as a lowercase, exact-width (128 hex chars) string.
func (u Uint512) EncodeHex() string {
	b := u.Bytes()
	return hex.EncodeToString(b[:])
}

// DecodeUint512Hex decodes a lowercase, exact-width hex string.
func DecodeUint512Hex(s string) (Uint512, error) {
	var out Uint512
	if len(s) != 128 {
		return out, ErrMalformed
	}
	if strings.ToLower(s) != s {
		return out, ErrMalformed
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, ErrMalformed
	}
	if err := out.SetBytes(b); err != nil {
		return out, ErrMalformed
	}
	return out, nil
}
