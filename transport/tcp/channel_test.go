package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yxse/nan-node/ratelimit"
)

func TestChannelSendRoundRobinsAcrossTrafficTypes(t *testing.T) {
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })

	socket := NewSocket(a, false, time.Second, time.Second, nil)
	unlimited := ratelimit.New(0, 0)
	ch := NewChannel(socket, unlimited)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ch.Run(ctx)

	done := make(chan error, 2)
	require.True(t, ch.Send([]byte("generic"), TrafficGeneric, func(err error) { done <- err }))
	require.True(t, ch.Send([]byte("bootstr"), TrafficBootstrap, func(err error) { done <- err }))

	peer := NewSocket(b, true, time.Second, time.Second, nil)
	defer peer.Close()

	first := make([]byte, len("generic"))
	_, err := peer.Read(first)
	require.NoError(t, err)
	second := make([]byte, len("bootstr"))
	_, err = peer.Read(second)
	require.NoError(t, err)

	require.NoError(t, <-done)
	require.NoError(t, <-done)
}

func TestChannelMaxAndFullReflectQueueDepth(t *testing.T) {
	a, _ := net.Pipe()
	t.Cleanup(func() { a.Close() })
	socket := NewSocket(a, false, time.Second, time.Second, nil)
	ch := NewChannel(socket, ratelimit.New(0, 0))

	require.False(t, ch.Max(TrafficGeneric))
	ch.mu.Lock()
	for i := 0; i < writeSoftCap; i++ {
		ch.queues[TrafficGeneric] = append(ch.queues[TrafficGeneric], queuedSend{buf: []byte("x"), done: func(error) {}})
	}
	ch.mu.Unlock()
	require.True(t, ch.Max(TrafficGeneric))
	require.False(t, ch.Full(TrafficGeneric))
}

func TestChannelAliveTracksSocketState(t *testing.T) {
	a, _ := net.Pipe()
	socket := NewSocket(a, false, time.Second, time.Second, nil)
	ch := NewChannel(socket, ratelimit.New(0, 0))
	require.True(t, ch.Alive())
	socket.Close()
	require.False(t, ch.Alive())
}
