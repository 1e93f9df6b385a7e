// Package block implements the immutable block variants (send, receive,
// open, change, state) and their canonical hashing, per spec.md §3/§6.
package block

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/blake2b"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/numeric"
)

// Type tags the block variant.
type Type uint8

const (
	Invalid Type = iota
	Send
	Receive
	Open
	Change
	State
)

func (t Type) String() string {
	switch t {
	case Send:
		return "send"
	case Receive:
		return "receive"
	case Open:
		return "open"
	case Change:
		return "change"
	case State:
		return "state"
	default:
		return "invalid"
	}
}

// ErrMalformed is returned by deserialization on any input that can't
// round-trip through Serialize.
var ErrMalformed = errors.New("block: malformed encoding")

// Hash is a block's content-derived identity: BLAKE2b-256 of its canonical
// serialized form.
type Hash = numeric.Uint256

// Block is a tagged variant over the five legacy/state block kinds. Only the
// fields relevant to Type are meaningful; this mirrors the teacher's use of
// a single struct with a discriminant rather than five separate wire types,
// simplifying storage and queueing at the cost of a few unused fields per
// variant — the same trade-off spec.md's sideband makes by packing details
// into one byte regardless of variant.
type Block struct {
	Type Type

	// Legacy send
	Previous    Hash
	Destination account.Address
	Balance     numeric.Uint128 // legacy send: post-send balance

	// Legacy receive/open
	Source Hash

	// Legacy open
	Representative account.Address
	Account        account.Address

	// Legacy change reuses Previous + Representative.

	// State block
	Link Hash // send destination / receive source / epoch marker, depending on context

	Signature numeric.Uint512
	Work      uint64
}

// Root returns the block's root: Previous for non-open blocks, Source for
// legacy open, Account for state-block opens (previous is zero).
func (b *Block) Root() Hash {
	switch b.Type {
	case Open:
		return b.Source
	case State:
		if b.Previous.IsZero() {
			return accountAsHash(b.Account)
		}
		return b.Previous
	default:
		return b.Previous
	}
}

func accountAsHash(a account.Address) Hash { return a.PublicKey() }

// Hash computes the canonical BLAKE2b-256 digest of the block.
func (b *Block) Hash() Hash {
	h, _ := blake2b.New256(nil)
	switch b.Type {
	case Send:
		h.Write(u256(b.Previous))
		h.Write(u256(accountAsHash(b.Destination)))
		h.Write(u128BE(b.Balance))
	case Receive:
		h.Write(u256(b.Previous))
		h.Write(u256(b.Source))
	case Open:
		h.Write(u256(b.Source))
		h.Write(u256(accountAsHash(b.Representative)))
		h.Write(u256(accountAsHash(b.Account)))
	case Change:
		h.Write(u256(b.Previous))
		h.Write(u256(accountAsHash(b.Representative)))
	case State:
		var preamble [32]byte
		preamble[31] = 0x6
		h.Write(preamble[:])
		h.Write(u256(accountAsHash(b.Account)))
		h.Write(u256(b.Previous))
		h.Write(u256(accountAsHash(b.Representative)))
		h.Write(u128BE(b.Balance))
		h.Write(u256(b.Link))
	}
	var out Hash
	sum := h.Sum(nil)
	_ = out.SetBytes(sum)
	return out
}

func u256(h Hash) []byte {
	b := h.Bytes()
	return b[:]
}

func u128BE(v numeric.Uint128) []byte {
	b := v.Bytes()
	return b[:]
}

// WorkThresholdDefault is the default minimum work difficulty for non-epoch
// blocks, matching the order of magnitude of nano's live-network threshold.
const WorkThresholdDefault uint64 = 0xffffffc000000000

// ValidateWork reports whether work is a valid proof-of-work solution for
// root at the given threshold. Work generation itself is out of scope
// (spec.md §1 names it an external collaborator); only validation, which
// the ledger needs for the `insufficient_work` check, is implemented here.
func ValidateWork(work uint64, root Hash, threshold uint64) bool {
	h, _ := blake2b.New(8, nil)
	var workBuf [8]byte
	binary.LittleEndian.PutUint64(workBuf[:], work)
	h.Write(workBuf[:])
	rb := root.Bytes()
	h.Write(rb[:])
	sum := h.Sum(nil)
	result := binary.LittleEndian.Uint64(sum)
	return result >= threshold
}
