package bootstrap

import "sync"

// Channel is the subset of a transport channel peer scoring needs: just
// enough to prune entries whose channel has gone away and to skip
// channels already saturated with bootstrap traffic. Defined locally
// rather than importing transport/tcp.Channel so this package stays
// testable without a real socket.
type Channel interface {
	Alive() bool
}

// PeerScoreConfig bounds a PeerScore.
type PeerScoreConfig struct {
	ChannelLimit uint64
}

type peerScore struct {
	channel            Channel
	outstanding        uint64
	requestCountTotal  uint64
	responseCountTotal uint64
}

// PeerScore spreads ascending-bootstrap request load across peers by
// capping how many requests can be outstanding on any one channel at
// once, per spec.md §4.10.
type PeerScore struct {
	mu  sync.Mutex
	cfg PeerScoreConfig

	scoring  map[Channel]*peerScore
	channels []Channel
}

// NewPeerScore constructs a PeerScore.
func NewPeerScore(cfg PeerScoreConfig) *PeerScore {
	return &PeerScore{
		cfg:     cfg,
		scoring: make(map[Channel]*peerScore),
	}
}

// TrySendMessage reports whether ch is already at its outstanding-request
// limit (true means "blocked, do not send"); otherwise it records a new
// outstanding request and returns false. Note the inverted sense: the
// spec names this after the caller's intent ("try to send"), not the
// boolean's polarity.
func (p *PeerScore) TrySendMessage(ch Channel) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	score, ok := p.scoring[ch]
	if !ok {
		p.scoring[ch] = &peerScore{channel: ch, outstanding: 1, requestCountTotal: 1}
		return false
	}
	if score.outstanding >= p.cfg.ChannelLimit {
		return true
	}
	score.outstanding++
	score.requestCountTotal++
	return false
}

// ReceivedMessage records a response arriving on ch, decrementing its
// outstanding count.
func (p *PeerScore) ReceivedMessage(ch Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()

	score, ok := p.scoring[ch]
	if !ok || score.outstanding == 0 {
		return
	}
	score.outstanding--
	score.responseCountTotal++
}

// Channel scans the known-alive channel list for the first one not
// already maxed out on bootstrap traffic and accepted by TrySendMessage.
// maxBootstrap reports whether ch is at its bootstrap-traffic bandwidth
// cap (transport/tcp.Channel.Max(TrafficBootstrap) in the real wiring).
func (p *PeerScore) Channel(maxBootstrap func(Channel) bool) Channel {
	p.mu.Lock()
	channels := append([]Channel(nil), p.channels...)
	p.mu.Unlock()

	for _, ch := range channels {
		if maxBootstrap(ch) {
			continue
		}
		if !p.TrySendMessage(ch) {
			return ch
		}
	}
	return nil
}

// Sync replaces the known channel list, matching the real node's
// periodic resync from the live channel set.
func (p *PeerScore) Sync(channels []Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append([]Channel(nil), channels...)
}

// Size returns the number of channels currently tracked.
func (p *PeerScore) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.scoring)
}

// Available counts channels not yet at their outstanding-request limit.
func (p *PeerScore) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ch := range p.channels {
		score, ok := p.scoring[ch]
		if !ok || score.outstanding < p.cfg.ChannelLimit {
			n++
		}
	}
	return n
}

// Timeout prunes entries whose channel is no longer alive and halves
// every remaining outstanding counter, per spec.md §4.10.
func (p *PeerScore) Timeout() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for ch, score := range p.scoring {
		if !score.channel.Alive() {
			delete(p.scoring, ch)
		}
	}
	for _, score := range p.scoring {
		score.outstanding /= 2
	}
}
