package blockprocessor

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/ledger"
	"github.com/yxse/nan-node/numeric"
	"github.com/yxse/nan-node/store"
	"github.com/yxse/nan-node/store/boltstore"
)

func newKeyedAccount(t *testing.T) (ed25519.PrivateKey, account.Address) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var key numeric.Uint256
	require.NoError(t, key.SetBytes(pub))
	return priv, account.FromPublicKey(key)
}

func TestProcessorDeliversBatchProcessedEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bp.db")
	s, err := boltstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	genesisPriv, genesisAddr := newKeyedAccount(t)
	l := ledger.New(genesisAddr, numeric.Uint128FromUint64(1000), 0)

	genesisHead := numeric.Uint256FromUint64(1)
	ctx := context.Background()
	seedTx, err := s.TxBeginWrite(ctx, store.SlotTesting)
	require.NoError(t, err)
	genesisBalance := numeric.Uint128FromUint64(1000)
	require.NoError(t, l.Seed(seedTx, genesisAddr, ledger.AccountInfo{
		Head: genesisHead, OpenBlock: genesisHead, Representative: genesisAddr,
		Balance: genesisBalance, BlockCount: 1,
	}, &block.Block{Type: block.State, Account: genesisAddr}, &block.Sideband{
		Account: genesisAddr, Balance: genesisBalance, Height: 1,
	}))
	require.NoError(t, seedTx.Commit())

	_, destAddr := newKeyedAccount(t)
	sendBlk := &block.Block{
		Type:           block.State,
		Account:        genesisAddr,
		Previous:       genesisHead,
		Representative: genesisAddr,
		Balance:        numeric.Uint128FromUint64(400),
		Link:           destAddr.PublicKey(),
	}
	h := sendBlk.Hash()
	hb := h.Bytes()
	sig := ed25519.Sign(genesisPriv, hb[:])
	var sigU numeric.Uint512
	require.NoError(t, sigU.SetBytes(sig))
	sendBlk.Signature = sigU

	proc := New(s, l, 4, 16)

	received := make(chan []Entry, 1)
	proc.OnBatchProcessed().Add(func(entries []Entry) { received <- entries })

	require.NoError(t, proc.Submit(sendBlk, "correlation-1"))

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- proc.Run(runCtx) }()

	entries := <-received
	require.Len(t, entries, 1)
	require.Equal(t, ledger.Progress, entries[0].Status)
	require.Equal(t, "correlation-1", entries[0].Context)

	cancel()
	require.NoError(t, <-done)
}

func TestProcessorResolvesForkAndEmitsRolledBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bp3.db")
	s, err := boltstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	genesisPriv, genesisAddr := newKeyedAccount(t)
	l := ledger.New(genesisAddr, numeric.Uint128FromUint64(1000), 0)

	genesisHead := numeric.Uint256FromUint64(1)
	ctx := context.Background()
	seedTx, err := s.TxBeginWrite(ctx, store.SlotTesting)
	require.NoError(t, err)
	genesisBalance := numeric.Uint128FromUint64(1000)
	require.NoError(t, l.Seed(seedTx, genesisAddr, ledger.AccountInfo{
		Head: genesisHead, OpenBlock: genesisHead, Representative: genesisAddr,
		Balance: genesisBalance, BlockCount: 1,
	}, &block.Block{Type: block.State, Account: genesisAddr}, &block.Sideband{
		Account: genesisAddr, Balance: genesisBalance, Height: 1,
	}))
	require.NoError(t, seedTx.Commit())

	sign := func(b *block.Block) *block.Block {
		h := b.Hash()
		hb := h.Bytes()
		sig := ed25519.Sign(genesisPriv, hb[:])
		var sigU numeric.Uint512
		require.NoError(t, sigU.SetBytes(sig))
		b.Signature = sigU
		return b
	}

	_, destA := newKeyedAccount(t)
	_, destB := newKeyedAccount(t)
	first := sign(&block.Block{
		Type: block.State, Account: genesisAddr, Previous: genesisHead,
		Representative: genesisAddr, Balance: numeric.Uint128FromUint64(400), Link: destA.PublicKey(),
	})
	second := sign(&block.Block{
		Type: block.State, Account: genesisAddr, Previous: genesisHead,
		Representative: genesisAddr, Balance: numeric.Uint128FromUint64(300), Link: destB.PublicKey(),
	})

	proc := New(s, l, 4, 16)

	batches := make(chan []Entry, 2)
	rolledBack := make(chan RolledBack, 1)
	proc.OnBatchProcessed().Add(func(entries []Entry) { batches <- entries })
	proc.OnRolledBack().Add(func(rb RolledBack) { rolledBack <- rb })

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- proc.Run(runCtx) }()

	require.NoError(t, proc.Submit(first, nil))
	entries := <-batches
	require.Len(t, entries, 1)
	require.Equal(t, ledger.Progress, entries[0].Status)

	require.NoError(t, proc.Submit(second, nil))
	entries = <-batches
	require.Len(t, entries, 1)
	require.Equal(t, ledger.Progress, entries[0].Status)

	rb := <-rolledBack
	require.Len(t, rb.Blocks, 1)
	require.Equal(t, first.Hash(), rb.Blocks[0].Hash())
	require.Equal(t, second.Root(), rb.QualifiedRoot)

	cancel()
	require.NoError(t, <-done)
}

func TestProcessorSubmitRejectsWhenFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bp2.db")
	s, err := boltstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, genesisAddr := newKeyedAccount(t)
	l := ledger.New(genesisAddr, numeric.Uint128FromUint64(1000), 0)
	proc := New(s, l, 1, 1)

	blk := &block.Block{Type: block.State}
	require.NoError(t, proc.Submit(blk, nil))
	require.ErrorIs(t, proc.Submit(blk, nil), ErrQueueFull)
}
