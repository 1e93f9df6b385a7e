package wire

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/numeric"
)

// ErrBodyTooLarge guards against a peer claiming an absurd body length.
var ErrBodyTooLarge = errors.New("wire: body exceeds maximum message size")

// MaxBodySize bounds a single message body; block lists (asc_pull_ack) are
// the largest legitimate payload and stay well under this.
const MaxBodySize = 4 << 20

// EncodeMessage frames body behind a header and a 4-byte little-endian
// length prefix — the concrete choice this implementation makes for
// spec.md §6's "type-dependent body", since spec.md leaves each body's
// own length implicit in its type.
func EncodeMessage(networkID byte, msgType MessageType, extensions uint16, body []byte) []byte {
	h := Header{NetworkID: networkID, VersionMax: 1, VersionUsing: 1, VersionMin: 1, Type: msgType, Extensions: extensions}
	out := make([]byte, 0, HeaderSize+4+len(body))
	out = append(out, h.Encode()...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	out = append(out, lenBuf[:]...)
	out = append(out, body...)
	return out
}

// ReadMessage reads one framed message from r: header, length prefix, body.
func ReadMessage(r io.Reader, expectedNetwork byte) (Header, []byte, error) {
	var hdrBuf [HeaderSize]byte
	if _, err := io.ReadFull(r, hdrBuf[:]); err != nil {
		return Header{}, nil, err
	}
	h, err := DecodeHeader(hdrBuf[:], expectedNetwork)
	if err != nil {
		return Header{}, nil, err
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Header{}, nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxBodySize {
		return Header{}, nil, ErrBodyTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, nil, err
	}
	return h, body, nil
}

func put256(h numeric.Uint256) []byte { b := h.Bytes(); return b[:] }

func putAccount(a account.Address) []byte { b := a.PublicKey().Bytes(); return b[:] }

// Marshal renders a Keepalive's fixed-size peer list.
func (k Keepalive) Marshal() []byte {
	out := make([]byte, 0, KeepaliveSlots*18)
	for _, p := range k.Peers {
		ip16 := p.IP.To16()
		if ip16 == nil {
			ip16 = make([]byte, 16)
		}
		out = append(out, ip16...)
		var portBuf [2]byte
		binary.LittleEndian.PutUint16(portBuf[:], p.Port)
		out = append(out, portBuf[:]...)
	}
	return out
}

// UnmarshalKeepalive parses a Keepalive body.
func UnmarshalKeepalive(buf []byte) (Keepalive, error) {
	if len(buf) < KeepaliveSlots*18 {
		return Keepalive{}, ErrShortBuffer
	}
	var k Keepalive
	for i := 0; i < KeepaliveSlots; i++ {
		off := i * 18
		ip := make([]byte, 16)
		copy(ip, buf[off:off+16])
		port := binary.LittleEndian.Uint16(buf[off+16 : off+18])
		k.Peers[i] = PeerEndpoint{IP: ip, Port: port}
	}
	return k, nil
}

// Marshal renders a Publish's block in canonical hashing form.
func (p Publish) Marshal() []byte { return p.Block.Serialize() }

// UnmarshalPublish parses a Publish body.
func UnmarshalPublish(buf []byte) (Publish, error) {
	blk, err := block.Deserialize(buf)
	if err != nil {
		return Publish{}, err
	}
	return Publish{Block: blk}, nil
}

// Marshal renders a ConfirmReq's hash list.
func (c ConfirmReq) Marshal() []byte {
	out := make([]byte, 2, 2+len(c.Hashes)*32)
	binary.LittleEndian.PutUint16(out, uint16(len(c.Hashes)))
	for _, h := range c.Hashes {
		out = append(out, put256(h)...)
	}
	return out
}

// UnmarshalConfirmReq parses a ConfirmReq body.
func UnmarshalConfirmReq(buf []byte) (ConfirmReq, error) {
	if len(buf) < 2 {
		return ConfirmReq{}, ErrShortBuffer
	}
	n := int(binary.LittleEndian.Uint16(buf[:2]))
	buf = buf[2:]
	if len(buf) < n*32 {
		return ConfirmReq{}, ErrShortBuffer
	}
	hashes := make([]block.Hash, n)
	for i := 0; i < n; i++ {
		var h numeric.Uint256
		if err := h.SetBytes(buf[i*32 : i*32+32]); err != nil {
			return ConfirmReq{}, err
		}
		hashes[i] = h
	}
	return ConfirmReq{Hashes: hashes}, nil
}

// Marshal renders a ConfirmAck's vote.
func (c ConfirmAck) Marshal() []byte {
	out := make([]byte, 0, 32+64+8+2+len(c.Hashes)*32)
	out = append(out, putAccount(c.Account)...)
	sig := c.Signature.Bytes()
	out = append(out, sig[:]...)
	var tsBuf [8]byte
	binary.LittleEndian.PutUint64(tsBuf[:], c.Timestamp)
	out = append(out, tsBuf[:]...)
	var nBuf [2]byte
	binary.LittleEndian.PutUint16(nBuf[:], uint16(len(c.Hashes)))
	out = append(out, nBuf[:]...)
	for _, h := range c.Hashes {
		out = append(out, put256(h)...)
	}
	return out
}

// UnmarshalConfirmAck parses a ConfirmAck body.
func UnmarshalConfirmAck(buf []byte) (ConfirmAck, error) {
	if len(buf) < 32+64+8+2 {
		return ConfirmAck{}, ErrShortBuffer
	}
	var pub numeric.Uint256
	if err := pub.SetBytes(buf[:32]); err != nil {
		return ConfirmAck{}, err
	}
	var sig numeric.Uint512
	if err := sig.SetBytes(buf[32:96]); err != nil {
		return ConfirmAck{}, err
	}
	ts := binary.LittleEndian.Uint64(buf[96:104])
	n := int(binary.LittleEndian.Uint16(buf[104:106]))
	buf = buf[106:]
	if len(buf) < n*32 {
		return ConfirmAck{}, ErrShortBuffer
	}
	hashes := make([]block.Hash, n)
	for i := 0; i < n; i++ {
		var h numeric.Uint256
		if err := h.SetBytes(buf[i*32 : i*32+32]); err != nil {
			return ConfirmAck{}, err
		}
		hashes[i] = h
	}
	return ConfirmAck{Account: account.FromPublicKey(pub), Signature: sig, Timestamp: ts, Hashes: hashes}, nil
}

// Marshal renders a NodeIDHandshake's cookie and/or response fields. The
// caller is responsible for setting the header's Extensions bits so the
// decoder knows which half is meaningful.
func (h NodeIDHandshake) Marshal() []byte {
	out := make([]byte, 128)
	copy(out[0:32], h.Query[:])
	acct := putAccount(h.Account)
	copy(out[32:64], acct)
	sig := h.Signature.Bytes()
	copy(out[64:128], sig[:])
	return out
}

// Extensions returns the header bit flags this handshake should be sent
// with.
func (h NodeIDHandshake) Extensions() uint16 {
	var ext uint16
	if h.HasQuery {
		ext |= extQuery
	}
	if h.HasResponse {
		ext |= extResponse
	}
	return ext
}

// UnmarshalNodeIDHandshake parses a NodeIDHandshake body given the
// header's Extensions flags.
func UnmarshalNodeIDHandshake(buf []byte, extensions uint16) (NodeIDHandshake, error) {
	if len(buf) < 128 {
		return NodeIDHandshake{}, ErrShortBuffer
	}
	var h NodeIDHandshake
	h.HasQuery = extensions&extQuery != 0
	h.HasResponse = extensions&extResponse != 0
	copy(h.Query[:], buf[0:32])
	var pub numeric.Uint256
	if err := pub.SetBytes(buf[32:64]); err != nil {
		return NodeIDHandshake{}, err
	}
	h.Account = account.FromPublicKey(pub)
	if err := h.Signature.SetBytes(buf[64:128]); err != nil {
		return NodeIDHandshake{}, err
	}
	return h, nil
}

// Marshal renders a TelemetryReq's (empty) body.
func (TelemetryReq) Marshal() []byte { return nil }

// Marshal renders a TelemetryAck snapshot.
func (t TelemetryAck) Marshal() []byte {
	out := make([]byte, 52)
	binary.LittleEndian.PutUint64(out[0:8], t.BlockCount)
	binary.LittleEndian.PutUint64(out[8:16], t.CementedCount)
	binary.LittleEndian.PutUint64(out[16:24], t.UncheckedCount)
	binary.LittleEndian.PutUint64(out[24:32], t.AccountCount)
	binary.LittleEndian.PutUint64(out[32:40], t.BandwidthCap)
	binary.LittleEndian.PutUint32(out[40:44], t.PeerCount)
	binary.LittleEndian.PutUint64(out[44:52], t.Uptime)
	return out
}

// UnmarshalTelemetryAck parses a TelemetryAck body.
func UnmarshalTelemetryAck(buf []byte) (TelemetryAck, error) {
	if len(buf) < 52 {
		return TelemetryAck{}, ErrShortBuffer
	}
	return TelemetryAck{
		BlockCount:     binary.LittleEndian.Uint64(buf[0:8]),
		CementedCount:  binary.LittleEndian.Uint64(buf[8:16]),
		UncheckedCount: binary.LittleEndian.Uint64(buf[16:24]),
		AccountCount:   binary.LittleEndian.Uint64(buf[24:32]),
		BandwidthCap:   binary.LittleEndian.Uint64(buf[32:40]),
		PeerCount:      binary.LittleEndian.Uint32(buf[40:44]),
		Uptime:         binary.LittleEndian.Uint64(buf[44:52]),
	}, nil
}

// Marshal renders an AscPullReq.
func (r AscPullReq) Marshal() []byte {
	out := make([]byte, 73)
	binary.LittleEndian.PutUint64(out[0:8], r.ID)
	copy(out[8:40], putAccount(r.Account))
	copy(out[40:72], put256(r.Start))
	out[72] = r.Count
	return out
}

// UnmarshalAscPullReq parses an AscPullReq body.
func UnmarshalAscPullReq(buf []byte) (AscPullReq, error) {
	if len(buf) < 73 {
		return AscPullReq{}, ErrShortBuffer
	}
	var pub, start numeric.Uint256
	if err := pub.SetBytes(buf[8:40]); err != nil {
		return AscPullReq{}, err
	}
	if err := start.SetBytes(buf[40:72]); err != nil {
		return AscPullReq{}, err
	}
	return AscPullReq{
		ID:      binary.LittleEndian.Uint64(buf[0:8]),
		Account: account.FromPublicKey(pub),
		Start:   start,
		Count:   buf[72],
	}, nil
}

// Marshal renders an AscPullAck's block list, each length-prefixed and
// paired with its sideband.
func (a AscPullAck) Marshal() []byte {
	out := make([]byte, 10)
	binary.LittleEndian.PutUint64(out[0:8], a.ID)
	binary.LittleEndian.PutUint16(out[8:10], uint16(len(a.Blocks)))
	for i, blk := range a.Blocks {
		bb := blk.Serialize()
		var sbb []byte
		if i < len(a.Sidebands) && a.Sidebands[i] != nil {
			sbb = a.Sidebands[i].SerializeSideband()
		}
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(bb)))
		out = append(out, lenBuf[:]...)
		out = append(out, bb...)
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(sbb)))
		out = append(out, lenBuf[:]...)
		out = append(out, sbb...)
	}
	return out
}

// UnmarshalAscPullAck parses an AscPullAck body.
func UnmarshalAscPullAck(buf []byte) (AscPullAck, error) {
	if len(buf) < 10 {
		return AscPullAck{}, ErrShortBuffer
	}
	id := binary.LittleEndian.Uint64(buf[0:8])
	n := int(binary.LittleEndian.Uint16(buf[8:10]))
	buf = buf[10:]

	blocks := make([]*block.Block, 0, n)
	sidebands := make([]*block.Sideband, 0, n)
	for i := 0; i < n; i++ {
		if len(buf) < 4 {
			return AscPullAck{}, ErrShortBuffer
		}
		blen := int(binary.LittleEndian.Uint32(buf[:4]))
		buf = buf[4:]
		if len(buf) < blen {
			return AscPullAck{}, ErrShortBuffer
		}
		blk, err := block.Deserialize(buf[:blen])
		if err != nil {
			return AscPullAck{}, err
		}
		buf = buf[blen:]

		if len(buf) < 4 {
			return AscPullAck{}, ErrShortBuffer
		}
		slen := int(binary.LittleEndian.Uint32(buf[:4]))
		buf = buf[4:]
		if len(buf) < slen {
			return AscPullAck{}, ErrShortBuffer
		}
		var sb *block.Sideband
		if slen > 0 {
			sb, err = block.DeserializeSideband(buf[:slen])
			if err != nil {
				return AscPullAck{}, err
			}
		}
		buf = buf[slen:]

		blocks = append(blocks, blk)
		sidebands = append(sidebands, sb)
	}
	return AscPullAck{ID: id, Blocks: blocks, Sidebands: sidebands}, nil
}
