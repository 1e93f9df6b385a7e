// Package ledger implements account-chain block processing: applying and
// rolling back blocks against the store, and answering the priority,
// dependents-confirmed, and backlog queries the scheduler and bounded
// backlog depend on, per spec.md §4.1.
package ledger

import (
	"encoding/binary"
	"errors"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/numeric"
)

// Status is the result of Process, in the normative check order: work,
// signature, structural, then semantic.
type Status int

const (
	Progress Status = iota
	Fork
	GapPrevious
	GapSource
	GapEpochOpenPending
	Old
	BadSignature
	NegativeSpend
	Unreceivable
	BlockPosition
	InsufficientWork
	RepresentativeMismatch
	BalanceMismatch
	OpenedBurnAccount
)

func (s Status) String() string {
	switch s {
	case Progress:
		return "progress"
	case Fork:
		return "fork"
	case GapPrevious:
		return "gap_previous"
	case GapSource:
		return "gap_source"
	case GapEpochOpenPending:
		return "gap_epoch_open_pending"
	case Old:
		return "old"
	case BadSignature:
		return "bad_signature"
	case NegativeSpend:
		return "negative_spend"
	case Unreceivable:
		return "unreceivable"
	case BlockPosition:
		return "block_position"
	case InsufficientWork:
		return "insufficient_work"
	case RepresentativeMismatch:
		return "representative_mismatch"
	case BalanceMismatch:
		return "balance_mismatch"
	case OpenedBurnAccount:
		return "opened_burn_account"
	default:
		return "unknown"
	}
}

// ErrAlreadyCemented is returned by Rollback when the requested hash is at
// or below the confirmation frontier.
var ErrAlreadyCemented = errors.New("ledger: hash already cemented")

// ErrNotFound is returned when a query names a hash or account the store
// has no record of.
var ErrNotFound = errors.New("ledger: not found")

// AccountInfo is the per-account head-of-chain record spec.md §3 names.
type AccountInfo struct {
	Head           block.Hash
	OpenBlock      block.Hash
	Representative account.Address
	Balance        numeric.Uint128
	Modified       uint64
	BlockCount     uint64
	Epoch          block.Epoch
}

const accountInfoLen = 32 + 32 + 32 + 16 + 8 + 8 + 1

func (a AccountInfo) encode() []byte {
	buf := make([]byte, 0, accountInfoLen)
	hb := a.Head.Bytes()
	ob := a.OpenBlock.Bytes()
	rb := a.Representative.PublicKey().Bytes()
	bb := a.Balance.Bytes()
	buf = append(buf, hb[:]...)
	buf = append(buf, ob[:]...)
	buf = append(buf, rb[:]...)
	buf = append(buf, bb[:]...)
	var mod, count [8]byte
	binary.BigEndian.PutUint64(mod[:], a.Modified)
	binary.BigEndian.PutUint64(count[:], a.BlockCount)
	buf = append(buf, mod[:]...)
	buf = append(buf, count[:]...)
	buf = append(buf, byte(a.Epoch))
	return buf
}

func decodeAccountInfo(buf []byte) (AccountInfo, error) {
	var a AccountInfo
	if len(buf) != accountInfoLen {
		return a, errors.New("ledger: malformed account_info record")
	}
	_ = a.Head.SetBytes(buf[:32])
	buf = buf[32:]
	_ = a.OpenBlock.SetBytes(buf[:32])
	buf = buf[32:]
	var repKey numeric.Uint256
	_ = repKey.SetBytes(buf[:32])
	a.Representative = account.FromPublicKey(repKey)
	buf = buf[32:]
	_ = a.Balance.SetBytes(buf[:16])
	buf = buf[16:]
	a.Modified = binary.BigEndian.Uint64(buf[:8])
	buf = buf[8:]
	a.BlockCount = binary.BigEndian.Uint64(buf[:8])
	buf = buf[8:]
	a.Epoch = block.Epoch(buf[0])
	return a, nil
}

// ConfirmationHeightInfo is the per-account confirmation frontier record.
type ConfirmationHeightInfo struct {
	Frontier block.Hash
	Height   uint64
}

const confirmationHeightInfoLen = 32 + 8

func (c ConfirmationHeightInfo) encode() []byte {
	buf := make([]byte, 0, confirmationHeightInfoLen)
	fb := c.Frontier.Bytes()
	buf = append(buf, fb[:]...)
	var h [8]byte
	binary.BigEndian.PutUint64(h[:], c.Height)
	buf = append(buf, h[:]...)
	return buf
}

func decodeConfirmationHeightInfo(buf []byte) (ConfirmationHeightInfo, error) {
	var c ConfirmationHeightInfo
	if len(buf) != confirmationHeightInfoLen {
		return c, errors.New("ledger: malformed confirmation_height record")
	}
	_ = c.Frontier.SetBytes(buf[:32])
	c.Height = binary.BigEndian.Uint64(buf[32:40])
	return c, nil
}

// PendingInfo is a receivable amount awaiting a receive/open/state block,
// keyed in the store by destination account || send block hash.
type PendingInfo struct {
	Source numeric.Uint256
	Amount numeric.Uint128
	Epoch  block.Epoch
}

const pendingInfoLen = 32 + 16 + 1

func (p PendingInfo) encode() []byte {
	buf := make([]byte, 0, pendingInfoLen)
	sb := p.Source.Bytes()
	ab := p.Amount.Bytes()
	buf = append(buf, sb[:]...)
	buf = append(buf, ab[:]...)
	buf = append(buf, byte(p.Epoch))
	return buf
}

func decodePendingInfo(buf []byte) (PendingInfo, error) {
	var p PendingInfo
	if len(buf) != pendingInfoLen {
		return p, errors.New("ledger: malformed pending record")
	}
	_ = p.Source.SetBytes(buf[:32])
	_ = p.Amount.SetBytes(buf[32:48])
	p.Epoch = block.Epoch(buf[48])
	return p, nil
}

func pendingKey(dest account.Address, sendHash block.Hash) []byte {
	db := dest.PublicKey().Bytes()
	hb := sendHash.Bytes()
	out := make([]byte, 0, 64)
	out = append(out, db[:]...)
	out = append(out, hb[:]...)
	return out
}
