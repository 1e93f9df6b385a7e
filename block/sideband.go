package block

import (
	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/numeric"
)

// Epoch numbers the ledger epoch a block was created under.
type Epoch uint8

const (
	Epoch0 Epoch = iota
	Epoch1
	Epoch2
)

// Details packs a block's derived epoch and boolean flags into a single
// byte, the way spec.md §3 requires sideband to store them: bits 0-3 hold
// the resolved epoch, bit 5 is send, bit 6 is receive, bit 7 is epoch (an
// epoch-upgrade marker block).
type Details struct {
	Epoch     Epoch
	IsSend    bool
	IsReceive bool
	IsEpoch   bool
}

func (d Details) Pack() byte {
	var b byte
	b |= byte(d.Epoch) & 0x0f
	if d.IsSend {
		b |= 1 << 5
	}
	if d.IsReceive {
		b |= 1 << 6
	}
	if d.IsEpoch {
		b |= 1 << 7
	}
	return b
}

func UnpackDetails(b byte) Details {
	return Details{
		Epoch:     Epoch(b & 0x0f),
		IsSend:    b&(1<<5) != 0,
		IsReceive: b&(1<<6) != 0,
		IsEpoch:   b&(1<<7) != 0,
	}
}

// Sideband holds the data the ledger derives and attaches to a block at
// process time: none of it is part of the block's content hash.
type Sideband struct {
	Successor   Hash // zero until a successor is processed
	Account     account.Address
	Balance     numeric.Uint128
	Height      uint64
	Timestamp   uint64 // POSIX seconds
	Details     Details
	SourceEpoch Epoch
}
