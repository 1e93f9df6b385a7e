package ledger

import (
	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/numeric"
	"github.com/yxse/nan-node/store"
)

// representativeAsOf returns the representative in effect immediately
// after hash was processed, walking backward until it finds a block that
// carries an explicit representative (open, change, state). Send/receive
// blocks never change representative, so this is O(1) for state chains
// and bounded by the legacy chain's change-block spacing otherwise.
func (l *Ledger) representativeAsOf(tx store.ReadTxn, hash block.Hash) (account.Address, error) {
	if hash.IsZero() {
		return account.Address{}, nil
	}
	rec, ok, err := l.getBlockRecord(tx, hash)
	if err != nil {
		return account.Address{}, err
	}
	if !ok {
		return account.Address{}, ErrNotFound
	}
	switch rec.blk.Type {
	case block.Open, block.Change, block.State:
		return rec.blk.Representative, nil
	default:
		return l.representativeAsOf(tx, rec.blk.Previous)
	}
}

func destinationOf(blk *block.Block) account.Address {
	if blk.Type == block.State {
		return account.FromPublicKey(blk.Link)
	}
	return blk.Destination
}

func sourceHashOf(blk *block.Block) block.Hash {
	if blk.Type == block.State {
		return blk.Link
	}
	return blk.Source
}

// undoBlock reverses a single block's effect on account_info, pending, and
// rep_weight, and removes its block record, returning the AccountInfo that
// was in effect immediately before this block was processed (the zero
// value if this block was the account's open).
func (l *Ledger) undoBlock(tx store.WriteTxn, hash block.Hash, rec *blockRecord, info AccountInfo) (AccountInfo, error) {
	blk := rec.blk
	acct := rec.sb.Account
	isOpen := blk.Type == block.Open || (blk.Type == block.State && blk.Previous.IsZero())

	if err := l.adjustWeight(tx, info.Representative, info.Balance, true); err != nil {
		return info, err
	}
	if err := l.deleteBlockRecord(tx, hash); err != nil {
		return info, err
	}

	if rec.sb.Details.IsSend {
		if err := l.deletePending(tx, destinationOf(blk), hash); err != nil {
			return info, err
		}
	}

	var prevRec *blockRecord
	if !isOpen {
		var ok bool
		var err error
		prevRec, ok, err = l.getBlockRecord(tx, blk.Previous)
		if err != nil {
			return info, err
		}
		if !ok {
			return info, ErrNotFound
		}
	}

	if rec.sb.Details.IsReceive {
		srcHash := sourceHashOf(blk)
		srcRec, ok, err := l.getBlockRecord(tx, srcHash)
		if err != nil {
			return info, err
		}
		if !ok {
			return info, ErrNotFound
		}
		var amount numeric.Uint128
		if isOpen {
			amount = info.Balance
		} else {
			amount, _ = info.Balance.Sub(prevRec.sb.Balance)
		}
		if err := l.putPending(tx, acct, srcHash, PendingInfo{
			Source: srcRec.sb.Account.PublicKey(),
			Amount: amount,
			Epoch:  rec.sb.Details.Epoch,
		}); err != nil {
			return info, err
		}
	}

	if isOpen {
		key := acct.PublicKey().Bytes()
		if err := tx.Delete(store.TableAccount, key[:]); err != nil {
			return info, err
		}
		return AccountInfo{}, nil
	}

	prevRec.sb.Successor = block.Hash{}
	if err := l.putBlockRecord(tx, blk.Previous, prevRec.blk, prevRec.sb); err != nil {
		return info, err
	}

	prevRep, err := l.representativeAsOf(tx, blk.Previous)
	if err != nil {
		return info, err
	}
	prior := AccountInfo{
		Head:           blk.Previous,
		OpenBlock:      info.OpenBlock,
		Representative: prevRep,
		Balance:        prevRec.sb.Balance,
		Modified:       prevRec.sb.Timestamp,
		BlockCount:     info.BlockCount - 1,
		Epoch:          prevRec.sb.Details.Epoch,
	}
	if err := l.adjustWeight(tx, prior.Representative, prior.Balance, false); err != nil {
		return info, err
	}
	if err := l.putAccountInfo(tx, acct, prior); err != nil {
		return info, err
	}
	return prior, nil
}

// Rollback reverses blocks in height-descending order from acct's head
// down to (not including) hash, returning every reversed block. Fails if
// hash is already at or below the confirmation frontier.
func (l *Ledger) Rollback(tx store.WriteTxn, hash block.Hash) ([]*block.Block, error) {
	rec, ok, err := l.getBlockRecord(tx, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	acct := rec.sb.Account

	confInfo, hasConf, err := l.getConfirmationHeightInfo(tx, acct)
	if err != nil {
		return nil, err
	}
	if hasConf && rec.sb.Height <= confInfo.Height {
		return nil, ErrAlreadyCemented
	}

	info, ok, err := l.getAccountInfo(tx, acct)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	var reversed []*block.Block
	cur := info.Head
	curInfo := info
	for cur.Cmp(hash) != 0 {
		curRec, ok, err := l.getBlockRecord(tx, cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotFound
		}
		wasOpen := curRec.blk.Type == block.Open || (curRec.blk.Type == block.State && curRec.blk.Previous.IsZero())
		next, err := l.undoBlock(tx, cur, curRec, curInfo)
		if err != nil {
			return nil, err
		}
		reversed = append(reversed, curRec.blk)
		l.backlogCount.Add(-1)
		curInfo = next
		cur = curRec.blk.Previous
		if wasOpen {
			break
		}
	}
	return reversed, nil
}
