package tcp

import (
	"context"
	"sync"
	"time"

	"github.com/yxse/nan-node/ratelimit"
)

// TrafficType distinguishes a channel's sub-queues, each with its own
// soft/hard cap but sharing one bandwidth limiter and one socket.
type TrafficType string

const (
	TrafficGeneric   TrafficType = "generic"
	TrafficBootstrap TrafficType = "bootstrap"
)

// BandwidthChunk is the allocation granularity spec.md §4.7 specifies:
// the limiter is consulted once per 128 KiB, not once per message.
const BandwidthChunk = 128 * 1024

// sendBatchSize is how many entries the sending task drains per
// round-robin pass across traffic types.
const sendBatchSize = 8

type queuedSend struct {
	buf  []byte
	done func(error)
}

// Channel owns a shared Socket and a per-traffic-type send queue, per
// spec.md §4.7.
type Channel struct {
	socket *Socket

	mu            sync.Mutex
	queues        map[TrafficType][]queuedSend
	order         []TrafficType
	lastPacketSent time.Time

	notify    chan struct{}
	bandwidth *ratelimit.Bucket
}

// NewChannel constructs a Channel over socket, sharing bandwidth (a
// single token bucket per traffic class, per spec.md §5) across every
// channel that's handed the same *ratelimit.Bucket.
func NewChannel(socket *Socket, bandwidth *ratelimit.Bucket) *Channel {
	return &Channel{
		socket:    socket,
		queues:    make(map[TrafficType][]queuedSend),
		order:     []TrafficType{TrafficGeneric, TrafficBootstrap},
		notify:    make(chan struct{}, 1),
		bandwidth: bandwidth,
	}
}

// Send serializes and queues message's already-framed bytes under
// trafficType, returning true iff it was queued (false at the sub-queue's
// hard cap).
func (c *Channel) Send(framed []byte, trafficType TrafficType, done func(error)) bool {
	c.mu.Lock()
	q := c.queues[trafficType]
	if len(q) >= writeHardCap {
		c.mu.Unlock()
		return false
	}
	c.queues[trafficType] = append(q, queuedSend{buf: framed, done: done})
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
	return true
}

// Max reports whether trafficType's sub-queue is at its soft cap.
func (c *Channel) Max(trafficType TrafficType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues[trafficType]) >= writeSoftCap
}

// Full reports whether trafficType's sub-queue is at its hard cap.
func (c *Channel) Full(trafficType TrafficType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queues[trafficType]) >= writeHardCap
}

// Alive delegates to the socket.
func (c *Channel) Alive() bool { return c.socket.State() == StateOpen }

// LastPacketSent returns when the channel last completed a write.
func (c *Channel) LastPacketSent() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPacketSent
}

func (c *Channel) takeBatch() []queuedSend {
	c.mu.Lock()
	defer c.mu.Unlock()
	var batch []queuedSend
	for len(batch) < sendBatchSize {
		progressed := false
		for _, tt := range c.order {
			q := c.queues[tt]
			if len(q) == 0 {
				continue
			}
			batch = append(batch, q[0])
			c.queues[tt] = q[1:]
			progressed = true
			if len(batch) >= sendBatchSize {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return batch
}

// Run drains the send queues until ctx is cancelled: a round-robin batch
// of up to 8 entries per pass, each waiting on socket back-pressure and
// the shared bandwidth limiter before writing.
func (c *Channel) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.notify:
		}
		for {
			batch := c.takeBatch()
			if len(batch) == 0 {
				break
			}
			for _, entry := range batch {
				if err := c.sendOne(ctx, entry); err != nil {
					if ctx.Err() != nil {
						return nil
					}
				}
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
		}
	}
}

func (c *Channel) sendOne(ctx context.Context, entry queuedSend) error {
	for c.socket.Full() {
		select {
		case <-ctx.Done():
			entry.done(ErrOperationAborted)
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	for remaining := len(entry.buf); remaining > 0; {
		chunk := BandwidthChunk
		if chunk > remaining {
			chunk = remaining
		}
		if err := c.bandwidth.Wait(ctx, chunk); err != nil {
			entry.done(err)
			return err
		}
		remaining -= chunk
	}

	err := <-c.socket.AsyncWrite(entry.buf)
	if err == nil {
		c.mu.Lock()
		c.lastPacketSent = time.Now()
		c.mu.Unlock()
	}
	entry.done(err)
	return err
}
