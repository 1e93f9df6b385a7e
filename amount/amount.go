// Package amount implements SI-denominated formatting and decoding of the
// 128-bit balance unit, per spec.md §3/§6.
package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/yxse/nan-node/numeric"
)

// ErrMalformed is returned by Decode on any input that isn't
// [0-9]+(\.[0-9]{0,30})? or that carries a leading zero, empty integer
// part, or more than 30 fractional digits.
var ErrMalformed = errors.New("amount: malformed decimal")

// Locale supplies the digit-grouping separator and decimal point used by
// Format when group_digits is requested.
type Locale struct {
	GroupSeparator string
	DecimalPoint   string
}

// DefaultLocale groups digits with commas and uses a dot as the decimal point.
var DefaultLocale = Locale{GroupSeparator: ",", DecimalPoint: "."}

var pow10Cache = map[int]*big.Int{}

func pow10(n int) *big.Int {
	if v, ok := pow10Cache[n]; ok {
		return v
	}
	v := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	pow10Cache[n] = v
	return v
}

// Format renders raw (a 128-bit integer amount) at scale 10^scale with up to
// precision fractional digits, truncating (never rounding) beyond precision,
// optionally grouping the integer part by three digits per locale.
func Format(raw numeric.Uint128, scale, precision int, groupDigits bool, locale Locale) string {
	v := new(big.Int).SetBytes(func() []byte { b := raw.Bytes(); return b[:] }())
	divisor := pow10(scale)
	intPart := new(big.Int)
	frac := new(big.Int)
	intPart.DivMod(v, divisor, frac)

	intStr := intPart.String()
	if groupDigits {
		intStr = groupThousands(intStr, locale.GroupSeparator)
	}

	if precision <= 0 {
		return intStr
	}

	// frac is in [0, 10^scale); render as a zero-padded string of `scale`
	// digits, then truncate to `precision` digits.
	fracStr := frac.String()
	if pad := scale - len(fracStr); pad > 0 {
		fracStr = strings.Repeat("0", pad) + fracStr
	}
	if len(fracStr) > precision {
		fracStr = fracStr[:precision]
	}
	fracStr = strings.TrimRight(fracStr, "0")
	if fracStr == "" {
		return intStr
	}
	return intStr + locale.DecimalPoint + fracStr
}

func groupThousands(s, sep string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	n := len(s)
	if n <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var parts []string
	for n > 3 {
		parts = append([]string{s[n-3:]}, parts...)
		s = s[:n-3]
		n = len(s)
	}
	parts = append([]string{s}, parts...)
	out := strings.Join(parts, sep)
	if neg {
		return "-" + out
	}
	return out
}

// Decode reverses Format at the given scale: accepts [0-9]+(\.[0-9]{0,30})?,
// rejects a leading zero in the integer part (except a bare "0"), an empty
// integer part, a sign, and more than 30 fractional digits.
func Decode(s string, scale int) (numeric.Uint128, error) {
	var out numeric.Uint128
	intPart, fracPart, hasFrac := strings.Cut(s, ".")
	if intPart == "" {
		return out, ErrMalformed
	}
	if !isDigits(intPart) {
		return out, ErrMalformed
	}
	if intPart != "0" && intPart[0] == '0' {
		return out, ErrMalformed
	}
	if hasFrac {
		if len(fracPart) > 30 {
			return out, ErrMalformed
		}
		if !isDigits(fracPart) {
			return out, ErrMalformed
		}
	}

	v, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return out, ErrMalformed
	}
	v.Mul(v, pow10(scale))

	if hasFrac && fracPart != "" {
		padded := fracPart
		if len(padded) < scale {
			padded = padded + strings.Repeat("0", scale-len(padded))
		} else if len(padded) > scale {
			padded = padded[:scale]
		}
		fracVal, ok := new(big.Int).SetString(padded, 10)
		if !ok {
			return out, ErrMalformed
		}
		v.Add(v, fracVal)
	}

	b, err := numeric.DecodeUint128Decimal(v.String())
	if err != nil {
		return out, fmt.Errorf("%w: overflow", ErrMalformed)
	}
	return b, nil
}

func isDigits(s string) bool {
	if s == "" {
		return true
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
