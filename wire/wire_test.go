package wire

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/block"
	"github.com/yxse/nan-node/numeric"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{NetworkID: 'C', VersionMax: 20, VersionUsing: 19, VersionMin: 18, Type: TypeKeepalive, Extensions: 0x1234}
	decoded, err := DecodeHeader(h.Encode(), 'C')
	require.NoError(t, err)
	require.Equal(t, h, decoded)
}

func TestDecodeHeaderRejectsWrongNetwork(t *testing.T) {
	h := Header{NetworkID: 'C', Type: TypeKeepalive}
	_, err := DecodeHeader(h.Encode(), 'B')
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestKeepaliveRoundTrip(t *testing.T) {
	var k Keepalive
	k.Peers[0] = PeerEndpoint{IP: net.ParseIP("127.0.0.1"), Port: 7075}
	decoded, err := UnmarshalKeepalive(k.Marshal())
	require.NoError(t, err)
	require.Equal(t, uint16(7075), decoded.Peers[0].Port)
	require.True(t, decoded.Peers[0].IP.Equal(net.ParseIP("127.0.0.1")))
}

func TestConfirmReqRoundTrip(t *testing.T) {
	req := ConfirmReq{Hashes: []block.Hash{numeric.Uint256FromUint64(1), numeric.Uint256FromUint64(2)}}
	decoded, err := UnmarshalConfirmReq(req.Marshal())
	require.NoError(t, err)
	require.Len(t, decoded.Hashes, 2)
	require.True(t, decoded.Hashes[1].Cmp(numeric.Uint256FromUint64(2)) == 0)
}

func TestConfirmAckRoundTrip(t *testing.T) {
	ack := ConfirmAck{
		Account:   account.FromPublicKey(numeric.Uint256FromUint64(5)),
		Timestamp: 1700000000,
		Hashes:    []block.Hash{numeric.Uint256FromUint64(9)},
	}
	decoded, err := UnmarshalConfirmAck(ack.Marshal())
	require.NoError(t, err)
	require.Equal(t, ack.Timestamp, decoded.Timestamp)
	require.True(t, decoded.Account.PublicKey().Cmp(ack.Account.PublicKey()) == 0)
	require.Len(t, decoded.Hashes, 1)
}

func TestNodeIDHandshakeRoundTrip(t *testing.T) {
	h := NodeIDHandshake{HasQuery: true, Account: account.FromPublicKey(numeric.Uint256FromUint64(3))}
	h.Query[0] = 0xAB
	decoded, err := UnmarshalNodeIDHandshake(h.Marshal(), h.Extensions())
	require.NoError(t, err)
	require.True(t, decoded.HasQuery)
	require.False(t, decoded.HasResponse)
	require.Equal(t, byte(0xAB), decoded.Query[0])
}

func TestEncodeReadMessageRoundTrip(t *testing.T) {
	body := ConfirmReq{Hashes: []block.Hash{numeric.Uint256FromUint64(1)}}.Marshal()
	framed := EncodeMessage('C', TypeConfirmReq, 0, body)

	h, gotBody, err := ReadMessage(bytes.NewReader(framed), 'C')
	require.NoError(t, err)
	require.Equal(t, TypeConfirmReq, h.Type)
	require.Equal(t, body, gotBody)
}

func TestAscPullAckRoundTrip(t *testing.T) {
	blk := &block.Block{Type: block.State, Account: account.FromPublicKey(numeric.Uint256FromUint64(1))}
	sb := &block.Sideband{Account: account.FromPublicKey(numeric.Uint256FromUint64(1)), Height: 1}
	ack := AscPullAck{ID: 42, Blocks: []*block.Block{blk}, Sidebands: []*block.Sideband{sb}}

	decoded, err := UnmarshalAscPullAck(ack.Marshal())
	require.NoError(t, err)
	require.Equal(t, uint64(42), decoded.ID)
	require.Len(t, decoded.Blocks, 1)
	require.Equal(t, uint64(1), decoded.Sidebands[0].Height)
}
