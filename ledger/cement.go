package ledger

import (
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/store"
)

// Cement advances hash's account past its confirmation frontier, returning
// every newly-cemented hash in height-ascending order. A hash already at
// or below the frontier is a no-op (nil, nil). This is the operation the
// confirming set drives from externally-nominated cemented hashes; the
// ledger itself never decides what to cement.
func (l *Ledger) Cement(tx store.WriteTxn, hash block.Hash) ([]block.Hash, error) {
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
		return nil, nil
	}

	var chain []block.Hash
	cur := hash
	for {
		curRec, ok, err := l.getBlockRecord(tx, cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNotFound
		}
		if hasConf && curRec.sb.Height <= confInfo.Height {
			break
		}
		chain = append(chain, cur)
		if curRec.blk.Previous.IsZero() {
			break
		}
		cur = curRec.blk.Previous
	}

	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	if err := l.putConfirmationHeightInfo(tx, acct, ConfirmationHeightInfo{
		Frontier: hash,
		Height:   rec.sb.Height,
	}); err != nil {
		return nil, err
	}
	l.backlogCount.Add(-int64(len(chain)))
	return chain, nil
}
