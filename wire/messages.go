package wire

import (
	"net"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/numeric"
)

// PeerEndpoint is one entry of a keepalive's peer list: an IPv6 address
// (IPv4-mapped when the peer is IPv4) plus a port.
type PeerEndpoint struct {
	IP   net.IP
	Port uint16
}

// KeepaliveSlots is the fixed peer-list length spec.md's keepalive carries.
const KeepaliveSlots = 8

// Keepalive is the periodic liveness/peer-exchange message.
type Keepalive struct {
	Peers [KeepaliveSlots]PeerEndpoint
}

// Publish carries one block, serialized in its canonical hashing form.
type Publish struct {
	Block *block.Block
}

// ConfirmReq asks the peer to vote on the named block hashes.
type ConfirmReq struct {
	Hashes []block.Hash
}

// ConfirmAck is a vote: an account's signature over a set of hashes it is
// voting to confirm, timestamped so repeated votes can be ordered.
type ConfirmAck struct {
	Account   account.Address
	Signature numeric.Uint512
	Timestamp uint64
	Hashes    []block.Hash
}

// NodeIDHandshake carries an optional syn-cookie query and/or an optional
// signed response, per spec.md §4.8's handshake. HasQuery/HasResponse are
// carried in the header's Extensions field on the wire.
type NodeIDHandshake struct {
	HasQuery  bool
	Query     [32]byte
	HasResponse bool
	Account     account.Address
	Signature   numeric.Uint512
}

// extQuery/extResponse are the Extensions bit flags NodeIDHandshake uses.
const (
	extQuery    uint16 = 1 << 0
	extResponse uint16 = 1 << 1
)

// TelemetryReq has no body; requesting telemetry is the message itself.
type TelemetryReq struct{}

// TelemetryAck is a snapshot of the responder's ledger and network state.
type TelemetryAck struct {
	BlockCount     uint64
	CementedCount  uint64
	UncheckedCount uint64
	AccountCount   uint64
	BandwidthCap   uint64
	PeerCount      uint32
	Uptime         uint64
}

// AscPullReq asks for up to Count blocks starting at Start on Account's
// chain — the "asc" (ascending) bootstrap pull spec.md §6 names.
type AscPullReq struct {
	ID      uint64
	Account account.Address
	Start   block.Hash
	Count   uint8
}

// AscPullAck answers an AscPullReq with the blocks found, each paired
// with its sideband so the requester can verify height/account without a
// further round trip.
type AscPullAck struct {
	ID     uint64
	Blocks []*block.Block
	Sidebands []*block.Sideband
}
