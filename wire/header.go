// Package wire implements the network message framing spec.md §6 defines:
// an 8-byte header followed by a type-dependent body, matching the
// sideband-aware canonical block form used for hashing.
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned by any Decode given too few bytes for its
// fixed-size fields.
var ErrShortBuffer = errors.New("wire: short buffer")

// ErrBadMagic is returned when a header's network byte doesn't match the
// expected network.
var ErrBadMagic = errors.New("wire: bad magic")

// MessageType tags a message's body.
type MessageType byte

const (
	Invalid MessageType = iota
	TypeKeepalive
	TypePublish
	TypeConfirmReq
	TypeConfirmAck
	TypeNodeIDHandshake
	TypeTelemetryReq
	TypeTelemetryAck
	TypeAscPullReq
	TypeAscPullAck
)

// HeaderSize is the fixed 8-byte header length spec.md §6 specifies.
const HeaderSize = 8

// Header is every message's common prefix: a 2-byte magic (the letter 'R'
// plus a network identifier byte), three protocol version fields, a type
// tag, and a little-endian extensions field whose meaning is
// type-dependent (e.g. a block-type sub-tag for publish).
type Header struct {
	NetworkID    byte
	VersionMax   byte
	VersionUsing byte
	VersionMin   byte
	Type         MessageType
	Extensions   uint16
}

// Encode renders h as its 8-byte wire form.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = 'R'
	buf[1] = h.NetworkID
	buf[2] = h.VersionMax
	buf[3] = h.VersionUsing
	buf[4] = h.VersionMin
	buf[5] = byte(h.Type)
	binary.LittleEndian.PutUint16(buf[6:8], h.Extensions)
	return buf
}

// DecodeHeader parses an 8-byte header, rejecting anything whose magic
// byte isn't 'R' or whose network byte doesn't match expectedNetwork.
func DecodeHeader(buf []byte, expectedNetwork byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortBuffer
	}
	if buf[0] != 'R' || buf[1] != expectedNetwork {
		return Header{}, ErrBadMagic
	}
	return Header{
		NetworkID:    buf[1],
		VersionMax:   buf[2],
		VersionUsing: buf[3],
		VersionMin:   buf[4],
		Type:         MessageType(buf[5]),
		Extensions:   binary.LittleEndian.Uint16(buf[6:8]),
	}, nil
}
