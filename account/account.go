// Package account implements the account address codec: a 256-bit public
// key plus the printable xrb_/nano_ encoding with a truncated BLAKE2b
// checksum, per spec.md §3/§6.
package account

import (
	"errors"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/yxse/nan-node/numeric"
)

// ErrMalformed is returned when an address string fails to decode: wrong
// length, invalid alphabet, non-canonical padding, or wrong checksum. The
// destination Address is never mutated in that case.
var ErrMalformed = errors.New("account: malformed address")

const (
	prefixXRB  = "xrb_"
	prefixNano = "nano_"
	bodyLen    = 52
	checkLen   = 8
	keyBits    = 256
	bodyBits   = bodyLen * 5 // 260: 4 padding bits + 256 key bits
	padBits    = bodyBits - keyBits
)

// alphabet is nano's base-32 alphabet: the digits 0 and 2 and the letters
// l and v are left out, and only lowercase letters are used.
const alphabet = "13456789abcdefghijkmnopqrstuwxyz"

var alphabetIndex = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i, c := range alphabet {
		idx[byte(c)] = int8(i)
	}
	return idx
}()

// Address is a 256-bit public key with an associated printable encoding.
type Address struct {
	key numeric.Uint256
}

// FromPublicKey wraps a raw 256-bit public key as an Address.
func FromPublicKey(key numeric.Uint256) Address { return Address{key: key} }

// PublicKey returns the underlying 256-bit public key.
func (a Address) PublicKey() numeric.Uint256 { return a.key }

// IsZero reports whether a is the zero-key address (the burn account).
func (a Address) IsZero() bool { return a.key.IsZero() }

// Cmp orders addresses by their underlying public key; this is the order
// spec.md §8 requires to match the encoded string's lexicographic order.
func (a Address) Cmp(b Address) int { return a.key.Cmp(b.key) }

// Encode renders the address using the given prefix ("xrb_" or "nano_").
func (a Address) Encode(prefix string) string {
	key := a.key.Bytes()
	body := encodeBits(key[:], keyBits, padBits, bodyLen)
	check := checksum(key[:])
	tail := encodeBits(check, len(check)*8, 0, checkLen)
	return prefix + body + tail
}

// String renders the address with the canonical "nano_" prefix.
func (a Address) String() string { return a.Encode(prefixNano) }

// Decode parses an address with either the "xrb_" or "nano_" prefix. Both
// prefixes decode identically for the same body+checksum.
func Decode(s string) (Address, error) {
	var prefix string
	switch {
	case strings.HasPrefix(s, prefixNano):
		prefix = prefixNano
	case strings.HasPrefix(s, prefixXRB):
		prefix = prefixXRB
	default:
		return Address{}, ErrMalformed
	}
	rest := s[len(prefix):]
	if len(rest) != bodyLen+checkLen {
		return Address{}, ErrMalformed
	}

	keyBytes, err := decodeBits(rest[:bodyLen], keyBits, padBits)
	if err != nil {
		return Address{}, ErrMalformed
	}
	wantCheck, err := decodeBits(rest[bodyLen:], checkLen*5, 0)
	if err != nil {
		return Address{}, ErrMalformed
	}

	gotCheck := checksum(keyBytes)
	if !constantTimeEqual(gotCheck, wantCheck) {
		return Address{}, ErrMalformed
	}

	var key numeric.Uint256
	if err := key.SetBytes(keyBytes); err != nil {
		return Address{}, ErrMalformed
	}
	return Address{key: key}, nil
}

// checksum is BLAKE2b(5-byte digest) over the key, byte-reversed per the
// wire convention in spec.md §6.
func checksum(key []byte) []byte {
	h, _ := blake2b.New(5, nil)
	h.Write(key)
	sum := h.Sum(nil)
	reverseBytes(sum)
	return sum
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}

// encodeBits renders payloadBits bits of data (MSB-first in data), prefixed
// by padBits zero bits, into nChars base-32 characters (5 bits each).
func encodeBits(data []byte, payloadBits, padBits, nChars int) string {
	out := make([]byte, nChars)
	totalBits := payloadBits + padBits
	for g := 0; g < nChars; g++ {
		var v byte
		for j := 0; j < 5; j++ {
			pos := g*5 + j
			var bit byte
			if pos >= padBits && pos < totalBits {
				keyBit := pos - padBits
				byteIdx := keyBit / 8
				bitIdx := 7 - (keyBit % 8)
				bit = (data[byteIdx] >> bitIdx) & 1
			}
			v = (v << 1) | bit
		}
		out[g] = alphabet[v]
	}
	return string(out)
}

// decodeBits reverses encodeBits, returning payloadBits/8 bytes. Any set bit
// within the padBits region is rejected as non-canonical (it would alias a
// different payload value on re-encode).
func decodeBits(s string, payloadBits, padBits int) ([]byte, error) {
	out := make([]byte, payloadBits/8)
	totalBits := payloadBits + padBits
	if len(s)*5 != totalBits {
		return nil, ErrMalformed
	}
	for g := 0; g < len(s); g++ {
		idx := alphabetIndex[s[g]]
		if idx < 0 {
			return nil, ErrMalformed
		}
		v := byte(idx)
		for j := 0; j < 5; j++ {
			pos := g*5 + j
			bit := (v >> (4 - j)) & 1
			if pos < padBits {
				if bit != 0 {
					return nil, ErrMalformed
				}
				continue
			}
			keyBit := pos - padBits
			byteIdx := keyBit / 8
			bitIdx := 7 - (keyBit % 8)
			out[byteIdx] |= bit << bitIdx
		}
	}
	return out, nil
}
