package block

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/numeric"
)

func TestStateBlockHashIsDeterministic(t *testing.T) {
	acct := account.FromPublicKey(numeric.Uint256FromUint64(1))
	rep := account.FromPublicKey(numeric.Uint256FromUint64(2))
	b := &Block{
		Type:           State,
		Account:        acct,
		Previous:       numeric.Uint256FromUint64(0),
		Representative: rep,
		Balance:        numeric.Uint128FromUint64(1000),
		Link:           numeric.Uint256FromUint64(99),
	}
	h1 := b.Hash()
	h2 := b.Hash()
	require.Equal(t, 0, h1.Cmp(h2))
}

func TestStateBlockHashChangesWithBalance(t *testing.T) {
	acct := account.FromPublicKey(numeric.Uint256FromUint64(1))
	rep := account.FromPublicKey(numeric.Uint256FromUint64(2))
	base := &Block{
		Type:           State,
		Account:        acct,
		Previous:       numeric.Uint256FromUint64(5),
		Representative: rep,
		Balance:        numeric.Uint128FromUint64(1000),
		Link:           numeric.Uint256FromUint64(99),
	}
	changed := *base
	changed.Balance = numeric.Uint128FromUint64(1001)

	require.NotEqual(t, 0, base.Hash().Cmp(changed.Hash()))
}

func TestSendHashDependsOnDestinationNotRepresentative(t *testing.T) {
	dest := account.FromPublicKey(numeric.Uint256FromUint64(7))
	other := account.FromPublicKey(numeric.Uint256FromUint64(8))
	send := &Block{
		Type:        Send,
		Previous:    numeric.Uint256FromUint64(1),
		Destination: dest,
		Balance:     numeric.Uint128FromUint64(500),
	}
	sendDifferentDest := *send
	sendDifferentDest.Destination = other

	require.NotEqual(t, 0, send.Hash().Cmp(sendDifferentDest.Hash()))
}

func TestRootForOpenIsSource(t *testing.T) {
	b := &Block{Type: Open, Source: numeric.Uint256FromUint64(42)}
	require.Equal(t, 0, b.Root().Cmp(numeric.Uint256FromUint64(42)))
}

func TestRootForStateOpenIsAccount(t *testing.T) {
	acct := account.FromPublicKey(numeric.Uint256FromUint64(3))
	b := &Block{Type: State, Account: acct, Previous: numeric.Uint256FromUint64(0)}
	require.Equal(t, 0, b.Root().Cmp(acct.PublicKey()))
}

func TestDetailsPackRoundTrip(t *testing.T) {
	d := Details{Epoch: Epoch2, IsSend: true, IsEpoch: false, IsReceive: true}
	got := UnpackDetails(d.Pack())
	require.Equal(t, d, got)
}

func TestValidateWorkRejectsBelowThreshold(t *testing.T) {
	root := numeric.Uint256FromUint64(1)
	require.False(t, ValidateWork(0, root, WorkThresholdDefault))
}
