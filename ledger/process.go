package ledger

import (
	"crypto/ed25519"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/numeric"
	"github.com/yxse/nan-node/store"
)

// burnAccount is the all-zero public key: opening it is always rejected.
var burnAccount = account.FromPublicKey(numeric.Uint256{})

func verifySignature(signer account.Address, hash block.Hash, sig numeric.Uint512) bool {
	pub := signer.PublicKey().Bytes()
	h := hash.Bytes()
	s := sig.Bytes()
	return ed25519.Verify(pub[:], h[:], s[:])
}

// Process applies a single block to the store, in the normative check
// order spec.md §4.1 requires: work, signature, structural, semantic. For
// legacy (non-open, non-state) blocks, resolving the signing account
// itself requires the previous block's sideband, so a missing previous is
// surfaced as gap_previous ahead of the signature check for those variants
// only; state and open blocks carry their account explicitly and so check
// signature strictly before any structural lookup, matching the order
// exactly.
func (l *Ledger) Process(tx store.WriteTxn, blk *block.Block) (Status, error) {
	hash := blk.Hash()

	if _, ok, err := l.getBlockRecord(tx, hash); err != nil {
		return 0, err
	} else if ok {
		return Old, nil
	}

	root := blk.Root()
	if !block.ValidateWork(blk.Work, root, l.workThreshold) {
		return InsufficientWork, nil
	}

	var signer account.Address
	switch blk.Type {
	case block.Open, block.State:
		signer = blk.Account
	default:
		prevRec, ok, err := l.getBlockRecord(tx, blk.Previous)
		if err != nil {
			return 0, err
		}
		if !ok {
			return GapPrevious, nil
		}
		signer = prevRec.sb.Account
	}

	if !verifySignature(signer, hash, blk.Signature) {
		return BadSignature, nil
	}

	info, exists, err := l.getAccountInfo(tx, signer)
	if err != nil {
		return 0, err
	}

	switch blk.Type {
	case block.Open:
		return l.processOpen(tx, blk, hash, signer, info, exists)
	case block.State:
		return l.processState(tx, blk, hash, signer, info, exists)
	case block.Send:
		return l.processSend(tx, blk, hash, signer, info, exists)
	case block.Receive:
		return l.processReceive(tx, blk, hash, signer, info, exists)
	case block.Change:
		return l.processChange(tx, blk, hash, signer, info, exists)
	default:
		return BlockPosition, nil
	}
}

func (l *Ledger) commonPredecessorCheck(tx store.ReadTxn, blk *block.Block, info AccountInfo, exists bool) (Status, bool, error) {
	if !exists {
		return GapPrevious, false, nil
	}
	if info.Head.Cmp(blk.Previous) == 0 {
		return Progress, true, nil
	}
	status, err := l.forkOrBlockPosition(tx, blk.Previous)
	return status, false, err
}

// forkOrBlockPosition distinguishes a genuine fork — the previous block is
// on the account's chain but already has a different recorded successor —
// from a block whose previous has no successor recorded yet.
func (l *Ledger) forkOrBlockPosition(tx store.ReadTxn, prev block.Hash) (Status, error) {
	prevRec, ok, err := l.getBlockRecord(tx, prev)
	if err != nil {
		return 0, err
	}
	if ok && !prevRec.sb.Successor.IsZero() {
		return Fork, nil
	}
	return BlockPosition, nil
}

func (l *Ledger) processOpen(tx store.WriteTxn, blk *block.Block, hash block.Hash, signer account.Address, info AccountInfo, exists bool) (Status, error) {
	if exists {
		if info.OpenBlock.Cmp(hash) == 0 {
			return Old, nil
		}
		return Fork, nil
	}
	if signer.Cmp(burnAccount) == 0 {
		return OpenedBurnAccount, nil
	}
	pending, ok, err := l.getPending(tx, signer, blk.Source)
	if err != nil {
		return 0, err
	}
	if !ok {
		return GapSource, nil
	}
	if err := l.deletePending(tx, signer, blk.Source); err != nil {
		return 0, err
	}
	newInfo := AccountInfo{
		Head:           hash,
		OpenBlock:      hash,
		Representative: blk.Representative,
		Balance:        pending.Amount,
		Modified:       0,
		BlockCount:     1,
		Epoch:          pending.Epoch,
	}
	if err := l.commit(tx, hash, blk, &block.Sideband{
		Account:   signer,
		Balance:   pending.Amount,
		Height:    1,
		Details:   block.Details{Epoch: pending.Epoch, IsReceive: true},
	}, newInfo); err != nil {
		return 0, err
	}
	if err := l.adjustWeight(tx, blk.Representative, pending.Amount, false); err != nil {
		return 0, err
	}
	l.backlogCount.Add(1)
	return Progress, nil
}

func (l *Ledger) processSend(tx store.WriteTxn, blk *block.Block, hash block.Hash, signer account.Address, info AccountInfo, exists bool) (Status, error) {
	status, ok, err := l.commonPredecessorCheck(tx, blk, info, exists)
	if err != nil {
		return 0, err
	}
	if !ok {
		return status, nil
	}
	if blk.Balance.Cmp(info.Balance) > 0 {
		return NegativeSpend, nil
	}
	sent, _ := info.Balance.Sub(blk.Balance)

	newInfo := info
	newInfo.Head = hash
	newInfo.Balance = blk.Balance
	newInfo.BlockCount = info.BlockCount + 1

	if err := l.commit(tx, hash, blk, &block.Sideband{
		Account: signer,
		Balance: blk.Balance,
		Height:  newInfo.BlockCount,
		Details: block.Details{Epoch: info.Epoch, IsSend: true},
	}, newInfo); err != nil {
		return 0, err
	}
	if err := l.putPending(tx, blk.Destination, hash, PendingInfo{
		Source: signer.PublicKey(),
		Amount: sent,
		Epoch:  info.Epoch,
	}); err != nil {
		return 0, err
	}
	if err := l.adjustWeight(tx, info.Representative, sent, true); err != nil {
		return 0, err
	}
	l.backlogCount.Add(1)
	return Progress, nil
}

func (l *Ledger) processReceive(tx store.WriteTxn, blk *block.Block, hash block.Hash, signer account.Address, info AccountInfo, exists bool) (Status, error) {
	status, ok, err := l.commonPredecessorCheck(tx, blk, info, exists)
	if err != nil {
		return 0, err
	}
	if !ok {
		return status, nil
	}
	pending, ok, err := l.getPending(tx, signer, blk.Source)
	if err != nil {
		return 0, err
	}
	if !ok {
		return GapSource, nil
	}
	if err := l.deletePending(tx, signer, blk.Source); err != nil {
		return 0, err
	}
	newBalance, overflow := info.Balance.Add(pending.Amount)
	if overflow {
		return BalanceMismatch, nil
	}

	newInfo := info
	newInfo.Head = hash
	newInfo.Balance = newBalance
	newInfo.BlockCount = info.BlockCount + 1

	if err := l.commit(tx, hash, blk, &block.Sideband{
		Account: signer,
		Balance: newBalance,
		Height:  newInfo.BlockCount,
		Details: block.Details{Epoch: info.Epoch, IsReceive: true},
	}, newInfo); err != nil {
		return 0, err
	}
	if err := l.adjustWeight(tx, info.Representative, pending.Amount, false); err != nil {
		return 0, err
	}
	l.backlogCount.Add(1)
	return Progress, nil
}

func (l *Ledger) processChange(tx store.WriteTxn, blk *block.Block, hash block.Hash, signer account.Address, info AccountInfo, exists bool) (Status, error) {
	status, ok, err := l.commonPredecessorCheck(tx, blk, info, exists)
	if err != nil {
		return 0, err
	}
	if !ok {
		return status, nil
	}
	newInfo := info
	newInfo.Head = hash
	newInfo.Representative = blk.Representative
	newInfo.BlockCount = info.BlockCount + 1

	if err := l.commit(tx, hash, blk, &block.Sideband{
		Account: signer,
		Balance: info.Balance,
		Height:  newInfo.BlockCount,
		Details: block.Details{Epoch: info.Epoch},
	}, newInfo); err != nil {
		return 0, err
	}
	if err := l.adjustWeight(tx, info.Representative, info.Balance, true); err != nil {
		return 0, err
	}
	if err := l.adjustWeight(tx, blk.Representative, info.Balance, false); err != nil {
		return 0, err
	}
	l.backlogCount.Add(1)
	return Progress, nil
}

// processState handles the unified state-block variant, which infers
// send/receive/change/open from the relationship between blk.Balance,
// the account's current balance, and blk.Link.
func (l *Ledger) processState(tx store.WriteTxn, blk *block.Block, hash block.Hash, signer account.Address, info AccountInfo, exists bool) (Status, error) {
	if epoch, ok := l.epochForLink(blk.Link); ok {
		return l.processEpoch(tx, blk, hash, signer, info, exists, epoch)
	}

	if !exists {
		if !blk.Previous.IsZero() {
			return GapPrevious, nil
		}
		return l.processStateOpen(tx, blk, hash, signer)
	}
	if info.Head.Cmp(blk.Previous) != 0 {
		status, err := l.forkOrBlockPosition(tx, blk.Previous)
		if err != nil {
			return 0, err
		}
		return status, nil
	}

	switch cmp := blk.Balance.Cmp(info.Balance); {
	case cmp < 0:
		return l.processStateSend(tx, blk, hash, signer, info)
	case cmp > 0:
		return l.processStateReceive(tx, blk, hash, signer, info)
	default:
		return l.processStateChangeOnly(tx, blk, hash, signer, info)
	}
}

func (l *Ledger) epochForLink(link numeric.Uint256) (block.Epoch, bool) {
	for epoch, want := range l.epochLinks {
		if want.Cmp(link) == 0 {
			return epoch, true
		}
	}
	return 0, false
}

func (l *Ledger) processEpoch(tx store.WriteTxn, blk *block.Block, hash block.Hash, signer account.Address, info AccountInfo, exists bool, epoch block.Epoch) (Status, error) {
	if !exists {
		return GapEpochOpenPending, nil
	}
	if info.Head.Cmp(blk.Previous) != 0 {
		status, err := l.forkOrBlockPosition(tx, blk.Previous)
		if err != nil {
			return 0, err
		}
		return status, nil
	}
	if epoch < info.Epoch {
		return BalanceMismatch, nil
	}
	if blk.Balance.Cmp(info.Balance) != 0 {
		return BalanceMismatch, nil
	}
	if blk.Representative.Cmp(info.Representative) != 0 {
		return RepresentativeMismatch, nil
	}
	newInfo := info
	newInfo.Head = hash
	newInfo.Epoch = epoch
	newInfo.BlockCount = info.BlockCount + 1
	if err := l.commit(tx, hash, blk, &block.Sideband{
		Account: signer,
		Balance: info.Balance,
		Height:  newInfo.BlockCount,
		Details: block.Details{Epoch: epoch, IsEpoch: true},
	}, newInfo); err != nil {
		return 0, err
	}
	l.backlogCount.Add(1)
	return Progress, nil
}

func (l *Ledger) processStateOpen(tx store.WriteTxn, blk *block.Block, hash block.Hash, signer account.Address) (Status, error) {
	if signer.Cmp(burnAccount) == 0 {
		return OpenedBurnAccount, nil
	}
	var epoch block.Epoch
	if !blk.Balance.IsZero() {
		pending, ok, err := l.getPending(tx, signer, blk.Link)
		if err != nil {
			return 0, err
		}
		if !ok {
			return GapSource, nil
		}
		if pending.Amount.Cmp(blk.Balance) != 0 {
			return BalanceMismatch, nil
		}
		epoch = pending.Epoch
		if err := l.deletePending(tx, signer, blk.Link); err != nil {
			return 0, err
		}
	}
	newInfo := AccountInfo{
		Head: hash, OpenBlock: hash, Representative: blk.Representative,
		Balance: blk.Balance, BlockCount: 1, Epoch: epoch,
	}
	if err := l.commit(tx, hash, blk, &block.Sideband{
		Account: signer, Balance: blk.Balance, Height: 1,
		Details: block.Details{Epoch: epoch, IsReceive: !blk.Balance.IsZero()},
	}, newInfo); err != nil {
		return 0, err
	}
	if !blk.Balance.IsZero() {
		if err := l.adjustWeight(tx, blk.Representative, blk.Balance, false); err != nil {
			return 0, err
		}
	}
	l.backlogCount.Add(1)
	return Progress, nil
}

func (l *Ledger) processStateSend(tx store.WriteTxn, blk *block.Block, hash block.Hash, signer account.Address, info AccountInfo) (Status, error) {
	sent, underflow := info.Balance.Sub(blk.Balance)
	if underflow {
		return NegativeSpend, nil
	}
	dest := account.FromPublicKey(blk.Link)
	newInfo := info
	newInfo.Head = hash
	newInfo.Balance = blk.Balance
	newInfo.Representative = blk.Representative
	newInfo.BlockCount = info.BlockCount + 1

	if err := l.commit(tx, hash, blk, &block.Sideband{
		Account: signer, Balance: blk.Balance, Height: newInfo.BlockCount,
		Details: block.Details{Epoch: info.Epoch, IsSend: true},
	}, newInfo); err != nil {
		return 0, err
	}
	if err := l.putPending(tx, dest, hash, PendingInfo{Source: signer.PublicKey(), Amount: sent, Epoch: info.Epoch}); err != nil {
		return 0, err
	}
	if blk.Representative.Cmp(info.Representative) != 0 {
		if err := l.adjustWeight(tx, info.Representative, info.Balance, true); err != nil {
			return 0, err
		}
		if err := l.adjustWeight(tx, blk.Representative, blk.Balance, false); err != nil {
			return 0, err
		}
	} else {
		if err := l.adjustWeight(tx, info.Representative, sent, true); err != nil {
			return 0, err
		}
	}
	l.backlogCount.Add(1)
	return Progress, nil
}

func (l *Ledger) processStateReceive(tx store.WriteTxn, blk *block.Block, hash block.Hash, signer account.Address, info AccountInfo) (Status, error) {
	pending, ok, err := l.getPending(tx, signer, blk.Link)
	if err != nil {
		return 0, err
	}
	if !ok {
		return GapSource, nil
	}
	received, _ := blk.Balance.Sub(info.Balance)
	if pending.Amount.Cmp(received) != 0 {
		return BalanceMismatch, nil
	}
	if err := l.deletePending(tx, signer, blk.Link); err != nil {
		return 0, err
	}
	newInfo := info
	newInfo.Head = hash
	newInfo.Balance = blk.Balance
	newInfo.Representative = blk.Representative
	newInfo.BlockCount = info.BlockCount + 1

	if err := l.commit(tx, hash, blk, &block.Sideband{
		Account: signer, Balance: blk.Balance, Height: newInfo.BlockCount,
		Details: block.Details{Epoch: info.Epoch, IsReceive: true},
	}, newInfo); err != nil {
		return 0, err
	}
	if blk.Representative.Cmp(info.Representative) != 0 {
		if err := l.adjustWeight(tx, info.Representative, info.Balance, true); err != nil {
			return 0, err
		}
		if err := l.adjustWeight(tx, blk.Representative, blk.Balance, false); err != nil {
			return 0, err
		}
	} else {
		if err := l.adjustWeight(tx, info.Representative, received, false); err != nil {
			return 0, err
		}
	}
	l.backlogCount.Add(1)
	return Progress, nil
}

func (l *Ledger) processStateChangeOnly(tx store.WriteTxn, blk *block.Block, hash block.Hash, signer account.Address, info AccountInfo) (Status, error) {
	newInfo := info
	newInfo.Head = hash
	newInfo.Representative = blk.Representative
	newInfo.BlockCount = info.BlockCount + 1

	if err := l.commit(tx, hash, blk, &block.Sideband{
		Account: signer, Balance: info.Balance, Height: newInfo.BlockCount,
		Details: block.Details{Epoch: info.Epoch},
	}, newInfo); err != nil {
		return 0, err
	}
	if blk.Representative.Cmp(info.Representative) != 0 {
		if err := l.adjustWeight(tx, info.Representative, info.Balance, true); err != nil {
			return 0, err
		}
		if err := l.adjustWeight(tx, blk.Representative, info.Balance, false); err != nil {
			return 0, err
		}
	}
	l.backlogCount.Add(1)
	return Progress, nil
}

// commit persists the block and its sideband, links the previous block's
// successor pointer to it, and updates account_info. Weight adjustments
// are the caller's responsibility since they depend on which
// representative(s) changed.
func (l *Ledger) commit(tx store.WriteTxn, hash block.Hash, blk *block.Block, sb *block.Sideband, newInfo AccountInfo) error {
	if err := l.putBlockRecord(tx, hash, blk, sb); err != nil {
		return err
	}
	if !blk.Previous.IsZero() {
		if err := l.linkSuccessor(tx, blk.Previous, hash); err != nil {
			return err
		}
	}
	return l.putAccountInfo(tx, sb.Account, newInfo)
}

// linkSuccessor sets prev's sideband.Successor to succ, the pointer the
// scheduler's activate(account) uses to find the next unconfirmed block
// after a given height without walking the chain from its head.
func (l *Ledger) linkSuccessor(tx store.WriteTxn, prev, succ block.Hash) error {
	prevRec, ok, err := l.getBlockRecord(tx, prev)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	prevRec.sb.Successor = succ
	return l.putBlockRecord(tx, prev, prevRec.blk, prevRec.sb)
}
