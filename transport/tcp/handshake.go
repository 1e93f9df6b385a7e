package tcp

import (
	"context"
	"crypto/rand"
	"errors"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/crypto"
	"github.com/yxse/nan-node/wire"
)

// ErrHandshakeFailed covers any node-id handshake step that didn't
// produce a verified peer account within the deadline.
var ErrHandshakeFailed = errors.New("tcp: handshake failed")

// ClientHandshake runs the initiator side of the node-id handshake
// against an already-open socket: answer the server's syn-cookie query
// with a signed response plus a query of our own, then verify the
// server's signed response to that counter-query.
func ClientHandshake(ctx context.Context, socket *Socket, self *crypto.KeyPair, networkID byte) (account.Address, error) {
	hdr, body, err := wire.ReadMessage(socket, networkID)
	if err != nil {
		return account.Address{}, err
	}
	if hdr.Type != wire.TypeNodeIDHandshake {
		return account.Address{}, ErrHandshakeFailed
	}
	serverQuery, err := wire.UnmarshalNodeIDHandshake(body, hdr.Extensions)
	if err != nil {
		return account.Address{}, err
	}
	if !serverQuery.HasQuery {
		return account.Address{}, ErrHandshakeFailed
	}

	selfAddr, err := self.Address()
	if err != nil {
		return account.Address{}, err
	}
	sig := self.Sign(serverQuery.Query[:])

	var ourNonce [32]byte
	if _, err := rand.Read(ourNonce[:]); err != nil {
		return account.Address{}, err
	}
	reply := wire.NodeIDHandshake{
		HasQuery:    true,
		Query:       ourNonce,
		HasResponse: true,
		Account:     selfAddr,
		Signature:   sig,
	}
	if err := sendHandshake(ctx, socket, networkID, reply); err != nil {
		return account.Address{}, err
	}

	hdr2, body2, err := wire.ReadMessage(socket, networkID)
	if err != nil {
		return account.Address{}, err
	}
	if hdr2.Type != wire.TypeNodeIDHandshake {
		return account.Address{}, ErrHandshakeFailed
	}
	serverResponse, err := wire.UnmarshalNodeIDHandshake(body2, hdr2.Extensions)
	if err != nil {
		return account.Address{}, err
	}
	if !serverResponse.HasResponse {
		return account.Address{}, ErrHandshakeFailed
	}
	if err := crypto.Verify(serverResponse.Account, ourNonce[:], serverResponse.Signature); err != nil {
		return account.Address{}, err
	}
	return serverResponse.Account, nil
}

func sendHandshake(ctx context.Context, socket *Socket, networkID byte, hs wire.NodeIDHandshake) error {
	framed := wire.EncodeMessage(networkID, wire.TypeNodeIDHandshake, hs.Extensions(), hs.Marshal())
	select {
	case err := <-socket.AsyncWrite(framed):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
