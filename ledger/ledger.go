package ledger

import (
	"sync/atomic"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/numeric"
	"github.com/yxse/nan-node/store"
)

// Ledger applies and rolls back blocks against a store.Store, per
// spec.md §4.1. It caches an aggregate backlog_count so the bounded
// backlog and scheduler can poll it cheaply; the cache is updated on
// every process, rollback, and cement.
type Ledger struct {
	genesisAccount account.Address
	genesisBalance numeric.Uint128
	workThreshold  uint64
	epochLinks     map[block.Epoch]numeric.Uint256

	backlogCount atomic.Int64
}

// Option configures a Ledger at construction.
type Option func(*Ledger)

// WithEpochLink registers the sentinel Link value a state block must carry
// to count as an epoch-upgrade marker for the given epoch.
func WithEpochLink(epoch block.Epoch, link numeric.Uint256) Option {
	return func(l *Ledger) { l.epochLinks[epoch] = link }
}

// New constructs a Ledger. genesisAccount/genesisBalance seed
// block_priority's special-cased genesis answer.
func New(genesisAccount account.Address, genesisBalance numeric.Uint128, workThreshold uint64, opts ...Option) *Ledger {
	l := &Ledger{
		genesisAccount: genesisAccount,
		genesisBalance: genesisBalance,
		workThreshold:  workThreshold,
		epochLinks:     make(map[block.Epoch]numeric.Uint256),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// BacklogCount returns the cached sum of (block_count - confirmation
// height) across every account.
func (l *Ledger) BacklogCount() int64 { return l.backlogCount.Load() }

// SeedBacklogCount initializes the cache (used at startup after scanning
// the store once).
func (l *Ledger) SeedBacklogCount(v int64) { l.backlogCount.Store(v) }

func (l *Ledger) getAccountInfo(tx store.ReadTxn, acct account.Address) (AccountInfo, bool, error) {
	key := acct.PublicKey().Bytes()
	raw, err := tx.Get(store.TableAccount, key[:])
	if err == store.ErrNotFound {
		return AccountInfo{}, false, nil
	}
	if err != nil {
		return AccountInfo{}, false, err
	}
	info, err := decodeAccountInfo(raw)
	if err != nil {
		return AccountInfo{}, false, err
	}
	return info, true, nil
}

func (l *Ledger) putAccountInfo(tx store.WriteTxn, acct account.Address, info AccountInfo) error {
	key := acct.PublicKey().Bytes()
	return tx.Put(store.TableAccount, key[:], info.encode())
}

func (l *Ledger) getConfirmationHeightInfo(tx store.ReadTxn, acct account.Address) (ConfirmationHeightInfo, bool, error) {
	key := acct.PublicKey().Bytes()
	raw, err := tx.Get(store.TableConfirmationHeight, key[:])
	if err == store.ErrNotFound {
		return ConfirmationHeightInfo{}, false, nil
	}
	if err != nil {
		return ConfirmationHeightInfo{}, false, err
	}
	info, err := decodeConfirmationHeightInfo(raw)
	if err != nil {
		return ConfirmationHeightInfo{}, false, err
	}
	return info, true, nil
}

func (l *Ledger) putConfirmationHeightInfo(tx store.WriteTxn, acct account.Address, info ConfirmationHeightInfo) error {
	key := acct.PublicKey().Bytes()
	return tx.Put(store.TableConfirmationHeight, key[:], info.encode())
}

type blockRecord struct {
	blk *block.Block
	sb  *block.Sideband
}

func encodeBlockRecord(blk *block.Block, sb *block.Sideband) []byte {
	bb := blk.Serialize()
	sbb := sb.SerializeSideband()
	out := make([]byte, 4+len(bb)+len(sbb))
	out[0] = byte(len(bb) >> 24)
	out[1] = byte(len(bb) >> 16)
	out[2] = byte(len(bb) >> 8)
	out[3] = byte(len(bb))
	copy(out[4:], bb)
	copy(out[4+len(bb):], sbb)
	return out
}

func decodeBlockRecord(buf []byte) (*blockRecord, error) {
	if len(buf) < 4 {
		return nil, block.ErrShortBuffer
	}
	n := int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
	buf = buf[4:]
	if len(buf) < n {
		return nil, block.ErrShortBuffer
	}
	blk, err := block.Deserialize(buf[:n])
	if err != nil {
		return nil, err
	}
	sb, err := block.DeserializeSideband(buf[n:])
	if err != nil {
		return nil, err
	}
	return &blockRecord{blk: blk, sb: sb}, nil
}

func (l *Ledger) getBlockRecord(tx store.ReadTxn, hash block.Hash) (*blockRecord, bool, error) {
	key := hash.Bytes()
	raw, err := tx.Get(store.TableBlock, key[:])
	if err == store.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	rec, err := decodeBlockRecord(raw)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (l *Ledger) putBlockRecord(tx store.WriteTxn, hash block.Hash, blk *block.Block, sb *block.Sideband) error {
	key := hash.Bytes()
	return tx.Put(store.TableBlock, key[:], encodeBlockRecord(blk, sb))
}

func (l *Ledger) deleteBlockRecord(tx store.WriteTxn, hash block.Hash) error {
	key := hash.Bytes()
	return tx.Delete(store.TableBlock, key[:])
}

func (l *Ledger) getPending(tx store.ReadTxn, dest account.Address, sendHash block.Hash) (PendingInfo, bool, error) {
	raw, err := tx.Get(store.TablePending, pendingKey(dest, sendHash))
	if err == store.ErrNotFound {
		return PendingInfo{}, false, nil
	}
	if err != nil {
		return PendingInfo{}, false, err
	}
	p, err := decodePendingInfo(raw)
	if err != nil {
		return PendingInfo{}, false, err
	}
	return p, true, nil
}

func (l *Ledger) putPending(tx store.WriteTxn, dest account.Address, sendHash block.Hash, p PendingInfo) error {
	return tx.Put(store.TablePending, pendingKey(dest, sendHash), p.encode())
}

func (l *Ledger) deletePending(tx store.WriteTxn, dest account.Address, sendHash block.Hash) error {
	return tx.Delete(store.TablePending, pendingKey(dest, sendHash))
}

func (l *Ledger) adjustWeight(tx store.WriteTxn, rep account.Address, delta numeric.Uint128, negative bool) error {
	key := rep.PublicKey().Bytes()
	var current numeric.Uint128
	raw, err := tx.Get(store.TableRepWeight, key[:])
	if err == nil {
		if err := current.SetBytes(raw); err != nil {
			return err
		}
	} else if err != store.ErrNotFound {
		return err
	}
	var next numeric.Uint128
	if negative {
		next, _ = current.Sub(delta)
	} else {
		next, _ = current.Add(delta)
	}
	nb := next.Bytes()
	return tx.Put(store.TableRepWeight, key[:], nb[:])
}

// Seed writes an account's ledger state directly, bypassing Process. The
// node uses this exactly once at startup to materialize the genesis
// account, which has no send block crediting it the way every other
// account's open block does.
func (l *Ledger) Seed(tx store.WriteTxn, acct account.Address, info AccountInfo, blk *block.Block, sb *block.Sideband) error {
	if err := l.putBlockRecord(tx, info.Head, blk, sb); err != nil {
		return err
	}
	if err := l.putAccountInfo(tx, acct, info); err != nil {
		return err
	}
	return l.adjustWeight(tx, info.Representative, info.Balance, false)
}

// AccountInfoOf exposes account_info to external readers (the scheduler,
// backlog scanner) that need an account's head/balance/representative
// without duplicating the store's encoding.
func (l *Ledger) AccountInfoOf(tx store.ReadTxn, acct account.Address) (AccountInfo, bool, error) {
	return l.getAccountInfo(tx, acct)
}

// ConfirmationHeightOf exposes confirmation_height_info to external
// readers for the same reason as AccountInfoOf.
func (l *Ledger) ConfirmationHeightOf(tx store.ReadTxn, acct account.Address) (ConfirmationHeightInfo, bool, error) {
	return l.getConfirmationHeightInfo(tx, acct)
}

// BlockAt returns hash's block and sideband, if present.
func (l *Ledger) BlockAt(tx store.ReadTxn, hash block.Hash) (*block.Block, *block.Sideband, bool, error) {
	rec, ok, err := l.getBlockRecord(tx, hash)
	if err != nil || !ok {
		return nil, nil, ok, err
	}
	return rec.blk, rec.sb, true, nil
}

// Weight returns the total balance whose representative is acct.
func (l *Ledger) Weight(tx store.ReadTxn, acct account.Address) (numeric.Uint128, error) {
	key := acct.PublicKey().Bytes()
	raw, err := tx.Get(store.TableRepWeight, key[:])
	if err == store.ErrNotFound {
		return numeric.Uint128{}, nil
	}
	if err != nil {
		return numeric.Uint128{}, err
	}
	var w numeric.Uint128
	if err := w.SetBytes(raw); err != nil {
		return numeric.Uint128{}, err
	}
	return w, nil
}
