package amount

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/numeric"
)

func TestFormatAndDecodeRoundTrip(t *testing.T) {
	raw, err := Decode("1.23", 30)
	require.NoError(t, err)
	got := Format(raw, 30, 6, false, DefaultLocale)
	require.Equal(t, "1.23", got)
}

func TestFormatTruncatesNotRounds(t *testing.T) {
	raw, err := Decode("1.999999", 6)
	require.NoError(t, err)
	got := Format(raw, 6, 2, false, DefaultLocale)
	require.Equal(t, "1.99", got)
}

func TestFormatGroupsDigits(t *testing.T) {
	raw, err := Decode("1234567", 0)
	require.NoError(t, err)
	got := Format(raw, 0, 0, true, DefaultLocale)
	require.Equal(t, "1,234,567", got)
}

func TestDecodeRejectsLeadingZero(t *testing.T) {
	_, err := Decode("01.5", 6)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsEmptyIntPart(t *testing.T) {
	_, err := Decode(".5", 6)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsTooManyFractionalDigits(t *testing.T) {
	frac := ""
	for i := 0; i < 31; i++ {
		frac += "1"
	}
	_, err := Decode("1."+frac, 30)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsSign(t *testing.T) {
	_, err := Decode("-1.5", 6)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestFormatZero(t *testing.T) {
	got := Format(numeric.Uint128{}, 30, 6, false, DefaultLocale)
	require.Equal(t, "0", got)
}
