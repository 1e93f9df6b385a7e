package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/numeric"
)

func TestStateBlockSerializeRoundTrip(t *testing.T) {
	acct := account.FromPublicKey(numeric.Uint256FromUint64(1))
	rep := account.FromPublicKey(numeric.Uint256FromUint64(2))
	b := &Block{
		Type:           State,
		Account:        acct,
		Previous:       numeric.Uint256FromUint64(5),
		Representative: rep,
		Balance:        numeric.Uint128FromUint64(7000),
		Link:           numeric.Uint256FromUint64(9),
		Work:           0x1234567890abcdef,
	}
	got, err := Deserialize(b.Serialize())
	require.NoError(t, err)
	require.Equal(t, b.Hash(), got.Hash())
	require.Equal(t, b.Work, got.Work)
}

func TestSendBlockSerializeRoundTrip(t *testing.T) {
	dest := account.FromPublicKey(numeric.Uint256FromUint64(3))
	b := &Block{
		Type:        Send,
		Previous:    numeric.Uint256FromUint64(1),
		Destination: dest,
		Balance:     numeric.Uint128FromUint64(42),
	}
	got, err := Deserialize(b.Serialize())
	require.NoError(t, err)
	require.Equal(t, b.Hash(), got.Hash())
}

func TestDeserializeShortBufferRejected(t *testing.T) {
	_, err := Deserialize([]byte{byte(Send), 1, 2, 3})
	require.ErrorIs(t, err, ErrShortBuffer)
}

func TestSidebandSerializeRoundTrip(t *testing.T) {
	acct := account.FromPublicKey(numeric.Uint256FromUint64(11))
	sb := &Sideband{
		Successor: numeric.Uint256FromUint64(0),
		Account:   acct,
		Balance:   numeric.Uint128FromUint64(123),
		Height:    4,
		Timestamp: 1700000000,
		Details:   Details{Epoch: Epoch1, IsSend: true},
	}
	got, err := DeserializeSideband(sb.SerializeSideband())
	require.NoError(t, err)
	require.Equal(t, sb.Details, got.Details)
	require.Equal(t, sb.Height, got.Height)
	require.Equal(t, sb.Timestamp, got.Timestamp)
	require.Equal(t, 0, sb.Balance.Cmp(got.Balance))
}
