package numeric

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUint128HexRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 42, 1<<63 - 1}
	for _, c := range cases {
		u := Uint128FromUint64(c)
		enc := u.EncodeHex()
		require.Len(t, enc, 32)
		require.Equal(t, enc, strings.ToLower(enc))

		got, err := DecodeUint128Hex(enc)
		require.NoError(t, err)
		require.Equal(t, 0, u.Cmp(got))
	}
}

func TestUint128DecimalRoundTrip(t *testing.T) {
	cases := []string{"0", "1", "340282366920938463463374607431768211455"}
	for _, c := range cases {
		u, err := DecodeUint128Decimal(c)
		require.NoError(t, err)
		require.Equal(t, c, u.EncodeDecimal())
	}
}

func TestUint128DecimalRejectsMalformed(t *testing.T) {
	bad := []string{"", "01", "-1", "1.0", "340282366920938463463374607431768211456"}
	for _, c := range bad {
		got, err := DecodeUint128Decimal(c)
		require.Error(t, err)
		require.Equal(t, Uint128{}, got, "destination must be left untouched")
	}
}

func TestUint128Order(t *testing.T) {
	a := Uint128FromUint64(1)
	b := Uint128FromUint64(2)
	require.Equal(t, -1, a.Cmp(b))
	require.Equal(t, 1, b.Cmp(a))
	require.Equal(t, 0, a.Cmp(a))
}

func TestUint256HexRoundTrip(t *testing.T) {
	u := Uint256FromUint64(123456789)
	enc := u.EncodeHex()
	require.Len(t, enc, 64)
	got, err := DecodeUint256Hex(enc)
	require.NoError(t, err)
	require.Equal(t, 0, u.Cmp(got))
}

func TestUint256MalformedHexRejected(t *testing.T) {
	_, err := DecodeUint256Hex("not-hex")
	require.Error(t, err)
	_, err = DecodeUint256Hex("ab")
	require.Error(t, err)
}

func TestUint256Xor(t *testing.T) {
	a := Uint256FromUint64(0b1010)
	b := Uint256FromUint64(0b0110)
	require.Equal(t, Uint256FromUint64(0b1100).Bytes(), a.Xor(b).Bytes())
}

func TestUint256SealOpenRoundTrip(t *testing.T) {
	value := Uint256FromUint64(42)
	key := Uint256FromUint64(7)
	var iv [16]byte
	sealed, err := Seal(value, key, iv)
	require.NoError(t, err)
	opened, err := Open(sealed, key, iv)
	require.NoError(t, err)
	require.Equal(t, 0, value.Cmp(opened))
}

func TestUint256SealOpenRejectsTamper(t *testing.T) {
	value := Uint256FromUint64(42)
	key := Uint256FromUint64(7)
	var iv [16]byte
	sealed, err := Seal(value, key, iv)
	require.NoError(t, err)
	sealed[0] ^= 0xFF
	_, err = Open(sealed, key, iv)
	require.ErrorIs(t, err, ErrSealOpen)
}

func TestUint512HexRoundTrip(t *testing.T) {
	var u Uint512
	u.hi = Uint256FromUint64(1)
	u.lo = Uint256FromUint64(2)
	enc := u.EncodeHex()
	require.Len(t, enc, 128)
	got, err := DecodeUint512Hex(enc)
	require.NoError(t, err)
	require.Equal(t, 0, u.Cmp(got))
}

func TestUint128AddSub(t *testing.T) {
	a := Uint128FromUint64(100)
	b := Uint128FromUint64(40)

	sum, overflow := a.Add(b)
	require.False(t, overflow)
	require.Equal(t, 0, sum.Cmp(Uint128FromUint64(140)))

	diff, underflow := a.Sub(b)
	require.False(t, underflow)
	require.Equal(t, 0, diff.Cmp(Uint128FromUint64(60)))

	_, underflow = b.Sub(a)
	require.True(t, underflow)
}

func TestUint128AddOverflow(t *testing.T) {
	max, err := DecodeUint128Decimal(maxUint128.String())
	require.NoError(t, err)
	_, overflow := max.Add(Uint128FromUint64(1))
	require.True(t, overflow)
}
