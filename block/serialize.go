package block

import (
	"encoding/binary"
	"errors"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/numeric"
)

// ErrShortBuffer is returned by Deserialize/DeserializeSideband when the
// input is too short for the encoded type.
var ErrShortBuffer = errors.New("block: short buffer")

// Serialize renders b in the canonical per-type wire form spec.md §6 calls
// for: a one-byte type tag, the type's fields in hashing order, then the
// common signature and work trailer.
func (b *Block) Serialize() []byte {
	buf := []byte{byte(b.Type)}
	switch b.Type {
	case Send:
		buf = append(buf, put256(b.Previous)...)
		buf = append(buf, putAccount(b.Destination)...)
		buf = append(buf, put128(b.Balance)...)
	case Receive:
		buf = append(buf, put256(b.Previous)...)
		buf = append(buf, put256(b.Source)...)
	case Open:
		buf = append(buf, put256(b.Source)...)
		buf = append(buf, putAccount(b.Representative)...)
		buf = append(buf, putAccount(b.Account)...)
	case Change:
		buf = append(buf, put256(b.Previous)...)
		buf = append(buf, putAccount(b.Representative)...)
	case State:
		buf = append(buf, putAccount(b.Account)...)
		buf = append(buf, put256(b.Previous)...)
		buf = append(buf, putAccount(b.Representative)...)
		buf = append(buf, put128(b.Balance)...)
		buf = append(buf, put256(b.Link)...)
	}
	buf = append(buf, put512(b.Signature)...)
	var work [8]byte
	binary.BigEndian.PutUint64(work[:], b.Work)
	buf = append(buf, work[:]...)
	return buf
}

// Deserialize reverses Serialize.
func Deserialize(buf []byte) (*Block, error) {
	if len(buf) < 1 {
		return nil, ErrShortBuffer
	}
	b := &Block{Type: Type(buf[0])}
	buf = buf[1:]

	need := func(n int) error {
		if len(buf) < n {
			return ErrShortBuffer
		}
		return nil
	}

	switch b.Type {
	case Send:
		if err := need(32 + 32 + 16); err != nil {
			return nil, err
		}
		b.Previous = get256(buf[:32])
		buf = buf[32:]
		b.Destination = getAccount(buf[:32])
		buf = buf[32:]
		b.Balance = get128(buf[:16])
		buf = buf[16:]
	case Receive:
		if err := need(32 + 32); err != nil {
			return nil, err
		}
		b.Previous = get256(buf[:32])
		buf = buf[32:]
		b.Source = get256(buf[:32])
		buf = buf[32:]
	case Open:
		if err := need(32 + 32 + 32); err != nil {
			return nil, err
		}
		b.Source = get256(buf[:32])
		buf = buf[32:]
		b.Representative = getAccount(buf[:32])
		buf = buf[32:]
		b.Account = getAccount(buf[:32])
		buf = buf[32:]
	case Change:
		if err := need(32 + 32); err != nil {
			return nil, err
		}
		b.Previous = get256(buf[:32])
		buf = buf[32:]
		b.Representative = getAccount(buf[:32])
		buf = buf[32:]
	case State:
		if err := need(32 + 32 + 32 + 16 + 32); err != nil {
			return nil, err
		}
		b.Account = getAccount(buf[:32])
		buf = buf[32:]
		b.Previous = get256(buf[:32])
		buf = buf[32:]
		b.Representative = getAccount(buf[:32])
		buf = buf[32:]
		b.Balance = get128(buf[:16])
		buf = buf[16:]
		b.Link = get256(buf[:32])
		buf = buf[32:]
	default:
		return nil, ErrMalformed
	}

	if err := need(64 + 8); err != nil {
		return nil, err
	}
	b.Signature = get512(buf[:64])
	buf = buf[64:]
	b.Work = binary.BigEndian.Uint64(buf[:8])
	return b, nil
}

// SerializeSideband renders sb in its fixed-width wire form.
func (sb *Sideband) SerializeSideband() []byte {
	buf := make([]byte, 0, 32+32+16+8+8+1+1)
	buf = append(buf, put256(sb.Successor)...)
	buf = append(buf, putAccount(sb.Account)...)
	buf = append(buf, put128(sb.Balance)...)
	var height, ts [8]byte
	binary.BigEndian.PutUint64(height[:], sb.Height)
	binary.BigEndian.PutUint64(ts[:], sb.Timestamp)
	buf = append(buf, height[:]...)
	buf = append(buf, ts[:]...)
	buf = append(buf, sb.Details.Pack())
	buf = append(buf, byte(sb.SourceEpoch))
	return buf
}

// DeserializeSideband reverses SerializeSideband.
func DeserializeSideband(buf []byte) (*Sideband, error) {
	const want = 32 + 32 + 16 + 8 + 8 + 1 + 1
	if len(buf) < want {
		return nil, ErrShortBuffer
	}
	sb := &Sideband{}
	sb.Successor = get256(buf[:32])
	buf = buf[32:]
	sb.Account = getAccount(buf[:32])
	buf = buf[32:]
	sb.Balance = get128(buf[:16])
	buf = buf[16:]
	sb.Height = binary.BigEndian.Uint64(buf[:8])
	buf = buf[8:]
	sb.Timestamp = binary.BigEndian.Uint64(buf[:8])
	buf = buf[8:]
	sb.Details = UnpackDetails(buf[0])
	sb.SourceEpoch = Epoch(buf[1])
	return sb, nil
}

func put256(h Hash) []byte {
	b := h.Bytes()
	return append([]byte(nil), b[:]...)
}

func get256(b []byte) Hash {
	var h Hash
	_ = h.SetBytes(b)
	return h
}

func put128(v numeric.Uint128) []byte {
	b := v.Bytes()
	return append([]byte(nil), b[:]...)
}

func get128(b []byte) numeric.Uint128 {
	var v numeric.Uint128
	_ = v.SetBytes(b)
	return v
}

func put512(v numeric.Uint512) []byte {
	b := v.Bytes()
	return append([]byte(nil), b[:]...)
}

func get512(b []byte) numeric.Uint512 {
	var v numeric.Uint512
	_ = v.SetBytes(b)
	return v
}

func putAccount(a account.Address) []byte {
	b := a.PublicKey().Bytes()
	return append([]byte(nil), b[:]...)
}

func getAccount(b []byte) account.Address {
	var k numeric.Uint256
	_ = k.SetBytes(b)
	return account.FromPublicKey(k)
}
