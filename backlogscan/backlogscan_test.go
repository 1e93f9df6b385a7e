package backlogscan

import (
	"context"
	"crypto/ed25519"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/boundedbacklog"
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
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var key numeric.Uint256
	require.NoError(t, key.SetBytes(pub))
	return testActor{priv: priv, addr: account.FromPublicKey(key)}
}

func (a testActor) sign(blk *block.Block) {
	hb := blk.Hash().Bytes()
	sig := ed25519.Sign(a.priv, hb[:])
	var sigU numeric.Uint512
	_ = sigU.SetBytes(sig)
	blk.Signature = sigU
}

func openTestLedgerAndStore(t *testing.T) (*boltstore.Store, *ledger.Ledger, testActor) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backlogscan.db")
	s, err := boltstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	genesis := newActor(t)
	l := ledger.New(genesis.addr, numeric.Uint128FromUint64(1_000_000), 0)

	tx, err := s.TxBeginWrite(context.Background(), store.SlotTesting)
	require.NoError(t, err)
	head := numeric.Uint256FromUint64(1)
	info := ledger.AccountInfo{Head: head, OpenBlock: head, Representative: genesis.addr, Balance: numeric.Uint128FromUint64(1_000_000), BlockCount: 1}
	blk := &block.Block{Type: block.State, Account: genesis.addr}
	sb := &block.Sideband{Account: genesis.addr, Balance: numeric.Uint128FromUint64(1_000_000), Height: 1}
	require.NoError(t, l.Seed(tx, genesis.addr, info, blk, sb))
	require.NoError(t, tx.Commit())

	return s, l, genesis
}

func TestScannerActivatesAccountBehindConfirmationHeight(t *testing.T) {
	s, l, genesis := openTestLedgerAndStore(t)
	backlog := boundedbacklog.New(s, l, boundedbacklog.Config{MaxBacklog: 100, BucketThreshold: 10, BatchSize: 10, MaxQueuedNotifications: 4}, boundedbacklog.Interlocks{})

	// Confirmation height for genesis is left at zero (never written),
	// while BlockCount is 1, so the account reads as behind.
	scanner := New(s, l, backlog, Config{Enable: true, BatchSize: 10, RateLimit: 0})

	var batches []Batch
	scanner.OnBatch().Add(func(b Batch) { batches = append(batches, b) })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, scanner.runPass(ctx))

	require.Len(t, batches, 1)
	require.Len(t, batches[0].Scanned, 1)
	require.Len(t, batches[0].Activated, 1)
	require.Equal(t, 0, genesis.addr.Cmp(batches[0].Activated[0]))

	require.True(t, backlog.Index().Contains(numeric.Uint256FromUint64(1)))
}
