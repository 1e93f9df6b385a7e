package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/crypto"
)

func TestListenerHandshakeMutualVerification(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	serverSocket := NewSocket(a, true, time.Second, time.Second, nil)
	clientSocket := NewSocket(b, false, time.Second, time.Second, nil)
	t.Cleanup(func() { serverSocket.Close(); clientSocket.Close() })

	serverKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	clientKey, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	ln := NewListener(nil, ListenerConfig{
		NetworkID:        'C',
		MaxInbound:       1,
		MaxPerIP:         1,
		MaxPerSubnetwork: 1,
		HandshakeTimeout: 2 * time.Second,
		DefaultTimeout:   time.Second,
		SilentTolerance:  time.Second,
	}, serverKey, nil)

	serverDone := make(chan error, 1)
	clientDone := make(chan error, 1)

	go func() {
		_, err := ln.handshake(context.Background(), serverSocket)
		serverDone <- err
	}()
	go func() {
		_, err := ClientHandshake(context.Background(), clientSocket, clientKey, 'C')
		clientDone <- err
	}()

	require.NoError(t, <-serverDone)
	require.NoError(t, <-clientDone)
}

func TestListenerAdmitEnforcesOrderedCaps(t *testing.T) {
	ln := &Listener{
		cfg: ListenerConfig{MaxInbound: 2, MaxPerIP: 1, MaxPerSubnetwork: 2},
	}
	ln.perIP = make(map[string]int)
	ln.perSubnet = make(map[string]int)

	require.Equal(t, "", ln.admit("1.1.1.1", "1.1.1.0/24"))
	require.Equal(t, "max_per_ip", ln.admit("1.1.1.1", "1.1.1.0/24"))
	require.Equal(t, "", ln.admit("1.1.1.2", "1.1.1.0/24"))
	require.Equal(t, "max_attempts", ln.admit("1.1.1.3", "1.1.1.0/24"))
}
