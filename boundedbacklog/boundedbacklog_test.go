package boundedbacklog

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/ledger"
	"github.com/yxse/nan-node/numeric"
	"github.com/yxse/nan-node/store"
	"github.com/yxse/nan-node/store/boltstore"
)

type testActor struct {
	priv ed25519.PrivateKey
	addr account.Address
}

func newActor(t *testing.T) testActor {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var key numeric.Uint256
	require.NoError(t, key.SetBytes(pub))
	return testActor{priv: priv, addr: account.FromPublicKey(key)}
}

func (a testActor) sign(blk *block.Block) {
	h := blk.Hash()
	hb := h.Bytes()
	sig := ed25519.Sign(a.priv, hb[:])
	var sigU numeric.Uint512
	_ = sigU.SetBytes(sig)
	blk.Signature = sigU
}

func openTestLedgerAndStore(t *testing.T) (store.Store, *ledger.Ledger, testActor) {
	path := filepath.Join(t.TempDir(), "bb.db")
	s, err := boltstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	genesis := newActor(t)
	l := ledger.New(genesis.addr, numeric.Uint128FromUint64(1000), 0)

	ctx := context.Background()
	genesisHead := numeric.Uint256FromUint64(1)
	tx, err := s.TxBeginWrite(ctx, store.SlotTesting)
	require.NoError(t, err)
	balance := numeric.Uint128FromUint64(1000)
	require.NoError(t, l.Seed(tx, genesis.addr, ledger.AccountInfo{
		Head: genesisHead, OpenBlock: genesisHead, Representative: genesis.addr,
		Balance: balance, BlockCount: 1,
	}, &block.Block{Type: block.State, Account: genesis.addr}, &block.Sideband{
		Account: genesis.addr, Balance: balance, Height: 1,
	}))
	require.NoError(t, tx.Commit())
	return s, l, genesis
}

func TestBacklogInsertOnProcessedAndRemoveOnCemented(t *testing.T) {
	s, l, genesis := openTestLedgerAndStore(t)
	ctx := context.Background()

	dest := newActor(t)
	sendBlk := &block.Block{
		Type: block.State, Account: genesis.addr, Previous: numeric.Uint256FromUint64(1),
		Representative: genesis.addr, Balance: numeric.Uint128FromUint64(500),
		Link: dest.addr.PublicKey(),
	}
	genesis.sign(sendBlk)
	sendHash := sendBlk.Hash()

	tx, err := s.TxBeginWrite(ctx, store.SlotTesting)
	require.NoError(t, err)
	status, err := l.Process(tx, sendBlk)
	require.NoError(t, err)
	require.Equal(t, ledger.Progress, status)
	require.NoError(t, tx.Commit())

	bb := New(s, l, Config{MaxBacklog: 100, BucketThreshold: 100, BatchSize: 10}, Interlocks{})
	bb.insert(sendBlk)
	require.True(t, bb.Index().Contains(sendHash))

	wtx, err := s.TxBeginWrite(ctx, store.SlotConfirmationHeight)
	require.NoError(t, err)
	chain, err := l.Cement(wtx, sendHash)
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())
	for _, h := range chain {
		bb.Index().Remove(h)
	}

	require.False(t, bb.Index().Contains(sendHash))
}

func TestBacklogRollbackLoopKeepsUnderMaxBacklog(t *testing.T) {
	s, l, genesis := openTestLedgerAndStore(t)
	ctx := context.Background()

	prev := numeric.Uint256FromUint64(1)
	prevBalance := numeric.Uint128FromUint64(1000)
	var lastHash block.Hash

	for i := 0; i < 5; i++ {
		dest := newActor(t)
		nextBalance, _ := prevBalance.Sub(numeric.Uint128FromUint64(10))
		blk := &block.Block{
			Type: block.State, Account: genesis.addr, Previous: prev,
			Representative: genesis.addr, Balance: nextBalance,
			Link: dest.addr.PublicKey(),
		}
		genesis.sign(blk)

		tx, err := s.TxBeginWrite(ctx, store.SlotTesting)
		require.NoError(t, err)
		status, err := l.Process(tx, blk)
		require.NoError(t, err)
		require.Equal(t, ledger.Progress, status)
		require.NoError(t, tx.Commit())

		lastHash = blk.Hash()
		prev = lastHash
		prevBalance = nextBalance
	}

	require.Equal(t, int64(5), l.BacklogCount())

	bb := New(s, l, Config{MaxBacklog: 2, BucketThreshold: 0, BatchSize: 10}, Interlocks{})

	rtx, err := s.TxBeginRead()
	require.NoError(t, err)
	lastBlk, _, ok, err := l.BlockAt(rtx, lastHash)
	require.NoError(t, err)
	require.True(t, ok)
	rtx.End()
	bb.insert(lastBlk)

	targets := bb.gatherTargets(3)
	require.Len(t, targets, 1)
	require.True(t, targets[0].Cmp(lastHash) == 0)

	bb.rollbackTargets(ctx, targets)
	require.False(t, bb.Index().Contains(lastHash))
	require.Equal(t, int64(4), l.BacklogCount())

	received := make(chan RolledBack, 1)
	bb.OnRolledBack().Add(func(rb RolledBack) { received <- rb })

	notifyCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bb.RunNotifier(notifyCtx)

	select {
	case rb := <-received:
		require.Len(t, rb.Blocks, 1)
		require.True(t, rb.Blocks[0].Cmp(lastHash) == 0)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for rolled_back notification")
	}
}

func TestShouldRollbackRespectsConfirmingSetInterlock(t *testing.T) {
	s, l, genesis := openTestLedgerAndStore(t)
	ctx := context.Background()

	dest := newActor(t)
	blk := &block.Block{
		Type: block.State, Account: genesis.addr, Previous: numeric.Uint256FromUint64(1),
		Representative: genesis.addr, Balance: numeric.Uint128FromUint64(500),
		Link: dest.addr.PublicKey(),
	}
	genesis.sign(blk)
	hash := blk.Hash()

	tx, err := s.TxBeginWrite(ctx, store.SlotTesting)
	require.NoError(t, err)
	_, err = l.Process(tx, blk)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	blocked := false
	bb := New(s, l, Config{MaxBacklog: 0, BucketThreshold: 0, BatchSize: 10}, Interlocks{
		VoteCache: func(h block.Hash) bool { return blocked && h.Cmp(hash) == 0 },
	})

	rtx, err := s.TxBeginRead()
	require.NoError(t, err)
	require.True(t, bb.shouldRollback(rtx, hash))
	rtx.End()

	blocked = true
	rtx, err = s.TxBeginRead()
	require.NoError(t, err)
	require.False(t, bb.shouldRollback(rtx, hash))
	rtx.End()
}
