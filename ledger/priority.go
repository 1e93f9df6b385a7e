package ledger

import (
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/numeric"
	"github.com/yxse/nan-node/store"
)

// maxBalance returns whichever of a, b is larger.
func maxBalance(a, b numeric.Uint128) numeric.Uint128 {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// BlockPriority returns the (balance, timestamp) pair the priority
// scheduler buckets and orders elections by, per spec.md §4.1's five-case
// contract. The block need not be the account's canonical head: both
// sides of a fork compute the same answer, since the query only looks at
// blk.Previous and the account's state as of that previous block.
func (l *Ledger) BlockPriority(tx store.ReadTxn, blk *block.Block) (numeric.Uint128, uint64, error) {
	if blk.Previous.IsZero() && blk.Type != block.Open {
		// Genesis-equivalent: a state block opening the genesis account
		// directly with the full initial supply.
		if blk.Type == block.State {
			signer := blk.Account
			if signer.Cmp(l.genesisAccount) == 0 {
				return l.genesisBalance, 0, nil
			}
		}
	}

	switch blk.Type {
	case block.Open:
		if blk.Account.Cmp(l.genesisAccount) == 0 {
			return l.genesisBalance, 0, nil
		}
	}

	prevRec, hasPrev, err := l.getBlockRecord(tx, blk.Previous)
	if err != nil {
		return numeric.Uint128{}, 0, err
	}

	switch blk.Type {
	case block.Open:
		// Legacy open: current balance and this block's own sideband
		// timestamp. The block hasn't been committed yet when callers
		// invoke this ahead of Process, so derive its balance from the
		// pending entry it will consume.
		pending, ok, err := l.getPending(tx, blk.Account, blk.Source)
		if err != nil {
			return numeric.Uint128{}, 0, err
		}
		if !ok {
			return numeric.Uint128{}, 0, ErrNotFound
		}
		return pending.Amount, 0, nil

	case block.Receive:
		// Legacy receive: current balance (previous + pending amount) and
		// this block's own sideband timestamp (0 pre-commit, same as open).
		if !hasPrev {
			return numeric.Uint128{}, 0, ErrNotFound
		}
		pending, ok, err := l.getPending(tx, prevRec.sb.Account, blk.Source)
		if err != nil {
			return numeric.Uint128{}, 0, err
		}
		if !ok {
			return numeric.Uint128{}, 0, ErrNotFound
		}
		balance, _ := prevRec.sb.Balance.Add(pending.Amount)
		return balance, 0, nil

	case block.Send:
		if !hasPrev {
			return numeric.Uint128{}, 0, ErrNotFound
		}
		return maxBalance(blk.Balance, prevRec.sb.Balance), prevRec.sb.Timestamp, nil

	case block.Change:
		if !hasPrev {
			return numeric.Uint128{}, 0, ErrNotFound
		}
		return prevRec.sb.Balance, prevRec.sb.Timestamp, nil

	case block.State:
		if blk.Previous.IsZero() {
			// State-open: if it's a receive (balance > 0), the timestamp
			// floor is the sending block's own timestamp.
			if blk.Balance.IsZero() {
				return blk.Balance, 0, nil
			}
			srcRec, ok, err := l.getBlockRecord(tx, blk.Link)
			if err != nil {
				return numeric.Uint128{}, 0, err
			}
			if !ok {
				return numeric.Uint128{}, 0, ErrNotFound
			}
			return blk.Balance, srcRec.sb.Timestamp, nil
		}
		if !hasPrev {
			return numeric.Uint128{}, 0, ErrNotFound
		}
		if blk.Balance.IsZero() {
			// Full-balance send.
			return prevRec.sb.Balance, prevRec.sb.Timestamp, nil
		}
		return maxBalance(blk.Balance, prevRec.sb.Balance), prevRec.sb.Timestamp, nil

	default:
		return numeric.Uint128{}, 0, ErrNotFound
	}
}

// UnconfirmedExists reports whether hash names a block that is present in
// the store but above the account's confirmation frontier.
func (l *Ledger) UnconfirmedExists(tx store.ReadTxn, hash block.Hash) (bool, error) {
	rec, ok, err := l.getBlockRecord(tx, hash)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	confInfo, ok, err := l.getConfirmationHeightInfo(tx, rec.sb.Account)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return rec.sb.Height > confInfo.Height, nil
}

// DependentsConfirmed reports whether blk's previous block (if any) and
// source block (if it's a receive/open variant) are both at or below
// their accounts' confirmation frontiers.
func (l *Ledger) DependentsConfirmed(tx store.ReadTxn, blk *block.Block) (bool, error) {
	if !blk.Previous.IsZero() {
		confirmed, err := l.blockConfirmed(tx, blk.Previous)
		if err != nil || !confirmed {
			return false, err
		}
	}

	var source block.Hash
	switch blk.Type {
	case block.Open, block.Receive:
		source = blk.Source
	case block.State:
		if !blk.Balance.IsZero() {
			source = blk.Link
		}
	}
	if !source.IsZero() {
		confirmed, err := l.blockConfirmed(tx, source)
		if err != nil {
			return false, err
		}
		if !confirmed {
			// State send/change blocks point their Link at a destination
			// account, not a dependency; only treat it as a dependency
			// when a block with that hash actually exists.
			if _, ok, err := l.getBlockRecord(tx, source); err != nil {
				return false, err
			} else if !ok {
				return true, nil
			}
			return false, nil
		}
	}
	return true, nil
}

func (l *Ledger) blockConfirmed(tx store.ReadTxn, hash block.Hash) (bool, error) {
	rec, ok, err := l.getBlockRecord(tx, hash)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	confInfo, ok, err := l.getConfirmationHeightInfo(tx, rec.sb.Account)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	return rec.sb.Height <= confInfo.Height, nil
}
