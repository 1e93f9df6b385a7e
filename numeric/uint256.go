package numeric

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/holiman/uint256"
)

// Uint256 is a 256-bit unsigned integer, used for public keys, block hashes,
// and work values. Arithmetic and codecs are backed by holiman/uint256 so the
// union isn't a hand-rolled big-int clone; the wire/hashing-facing surface
// stays the fixed [32]byte big-endian layout spec.md requires.
type Uint256 struct {
	inner uint256.Int
}

// Uint256FromUint64 constructs a Uint256 from a small integer.
func Uint256FromUint64(v uint64) Uint256 {
	return Uint256{inner: *uint256.NewInt(v)}
}

// Bytes returns the big-endian byte representation.
func (u Uint256) Bytes() [32]byte { return u.inner.Bytes32() }

// SetBytes sets u from a 32-byte big-endian slice.
func (u *Uint256) SetBytes(b []byte) error {
	if len(b) != 32 {
		return ErrMalformed
	}
	u.inner.SetBytes(b)
	return nil
}

// Cmp returns -1, 0, or 1, matching lexicographic order over the big-endian
// encoding (equivalent to numeric order for unsigned fixed-width integers).
func (u Uint256) Cmp(v Uint256) int { return u.inner.Cmp(&v.inner) }

// IsZero reports whether u is the zero value.
func (u Uint256) IsZero() bool { return u.inner.IsZero() }

// Xor returns u ^ v.
func (u Uint256) Xor(v Uint256) Uint256 {
	var out Uint256
	out.inner.Xor(&u.inner, &v.inner)
	return out
}

// HashKey returns a value suitable for use as a Go map key.
func (u Uint256) HashKey() [32]byte { return u.Bytes() }

// EncodeHex encodes u as a lowercase, exact-width (64 hex chars) string.
func (u Uint256) EncodeHex() string {
	b := u.Bytes()
	return hex.EncodeToString(b[:])
}

// DecodeUint256Hex decodes a lowercase, exact-width hex string.
func DecodeUint256Hex(s string) (Uint256, error) {
	var out Uint256
	if len(s) != 64 {
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

// EncodeDecimal renders u in base 10.
func (u Uint256) EncodeDecimal() string { return u.inner.Dec() }

// DecodeUint256Decimal decodes a base-10 string, no sign, no leading zeros.
func DecodeUint256Decimal(s string) (Uint256, error) {
	var out Uint256
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
	v, err := uint256.FromDecimal(s)
	if err != nil || v == nil {
		return out, ErrMalformed
	}
	out.inner = *v
	return out, nil
}

// ErrSealOpen is returned by Open when authentication fails.
var ErrSealOpen = errors.New("numeric: seal authentication failed")

// Seal performs authenticated symmetric encryption of u under key, using iv
// as both nonce and (truncated) associated data — the "IV-sized oword" slot
// spec.md calls for (syn-cookie sealing, encrypted wallet representative
// hints). AES-256-GCM backs this; key must be 32 bytes.
func Seal(value, key Uint256, iv [16]byte) ([]byte, error) {
	keyBytes := key.Bytes()
	block, err := aes.NewCipher(keyBytes[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, 16)
	if err != nil {
		return nil, err
	}
	plain := value.Bytes()
	return gcm.Seal(nil, iv[:], plain[:], nil), nil
}

// Open reverses Seal.
func Open(sealed []byte, key Uint256, iv [16]byte) (Uint256, error) {
	var out Uint256
	keyBytes := key.Bytes()
	block, err := aes.NewCipher(keyBytes[:])
	if err != nil {
		return out, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, 16)
	if err != nil {
		return out, err
	}
	plain, err := gcm.Open(nil, iv[:], sealed, nil)
	if err != nil {
		return out, ErrSealOpen
	}
	if err := out.SetBytes(plain); err != nil {
		return out, ErrSealOpen
	}
	return out, nil
}
