package tcp

import (
	"context"
	"crypto/rand"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/yxse/nan-node/account"
	"github.com/yxse/nan-node/crypto"
	"github.com/yxse/nan-node/stats"
	"github.com/yxse/nan-node/wire"
)

// ErrTooManyConnections is returned (and the connection closed) when an
// accepted connection breaches one of the listener's three caps.
var ErrTooManyConnections = errors.New("tcp: too many connections")

// CookieTTL is how long an issued syn-cookie remains valid.
const CookieTTL = 5 * time.Second

// cookie is a per-endpoint singleton: only the most recently issued
// challenge for a given remote address is accepted.
type cookie struct {
	nonce   [32]byte
	issued  time.Time
}

// ListenerConfig bounds the accept loop, per spec.md §4.8.
type ListenerConfig struct {
	NetworkID        byte
	MaxInbound       int
	MaxPerIP         int // per-/128 (single address)
	MaxPerSubnetwork int // per-/64 (per-/24 for IPv4)
	HandshakeTimeout time.Duration
	DefaultTimeout   time.Duration
	SilentTolerance  time.Duration
}

// Listener accepts inbound connections, enforcing three ordered caps
// before handing a connection to the syn-cookie handshake, per spec.md
// §4.8: total inbound, then per-address, then per-subnet (/64, or /24 for
// IPv4).
type Listener struct {
	ln   net.Listener
	cfg  ListenerConfig
	self *crypto.KeyPair
	reg  *stats.Registry

	mu         sync.Mutex
	total      int
	perIP      map[string]int
	perSubnet  map[string]int
	cookies    map[string]cookie
}

// NewListener wraps ln, accepting connections under cfg and signing
// handshake cookies with self.
func NewListener(ln net.Listener, cfg ListenerConfig, self *crypto.KeyPair, reg *stats.Registry) *Listener {
	if reg == nil {
		reg = stats.Default
	}
	return &Listener{
		ln:        ln,
		cfg:       cfg,
		self:      self,
		reg:       reg,
		perIP:     make(map[string]int),
		perSubnet: make(map[string]int),
		cookies:   make(map[string]cookie),
	}
}

// Accept blocks for the next inbound connection that clears every cap and
// completes the node-id handshake, or returns an error when the
// underlying listener fails or ctx is cancelled.
func (l *Listener) Accept(ctx context.Context) (*Socket, account.Address, error) {
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			return nil, account.Address{}, err
		}

		ip, subnet := endpointKeys(conn.RemoteAddr())
		if reject := l.admit(ip, subnet); reject != "" {
			l.reg.Inc("tcp_listener_rejected", reject)
			conn.Close()
			continue
		}

		socket := NewSocket(conn, true, l.cfg.DefaultTimeout, l.cfg.SilentTolerance, l.reg)
		peer, err := l.handshake(ctx, socket)
		if err != nil {
			l.release(ip, subnet)
			socket.Close()
			continue
		}
		// The release on eventual disconnect is the caller's
		// responsibility via Release, since the socket now outlives
		// Accept.
		return socket, peer, nil
	}
}

// Release must be called once the socket returned by Accept closes, so
// its slot against the per-IP/per-subnet caps is freed.
func (l *Listener) Release(remote net.Addr) {
	ip, subnet := endpointKeys(remote)
	l.release(ip, subnet)
}

func (l *Listener) admit(ip, subnet string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.total >= l.cfg.MaxInbound {
		return "max_attempts"
	}
	if l.perIP[ip] >= l.cfg.MaxPerIP {
		return "max_per_ip"
	}
	if l.perSubnet[subnet] >= l.cfg.MaxPerSubnetwork {
		return "max_per_subnetwork"
	}
	l.total++
	l.perIP[ip]++
	l.perSubnet[subnet]++
	return ""
}

func (l *Listener) release(ip, subnet string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.total > 0 {
		l.total--
	}
	if l.perIP[ip] > 0 {
		l.perIP[ip]--
	}
	if l.perSubnet[subnet] > 0 {
		l.perSubnet[subnet]--
	}
}

// handshake runs the server side of the node-id handshake: issue a
// syn-cookie, expect the peer to sign it and present its own query,
// answer that query in turn, and verify the peer's signature before
// the handshake timeout expires.
func (l *Listener) handshake(ctx context.Context, socket *Socket) (account.Address, error) {
	hctx, cancel := context.WithTimeout(ctx, l.cfg.HandshakeTimeout)
	defer cancel()

	remote := socket.RemoteAddr().String()
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return account.Address{}, err
	}
	l.mu.Lock()
	l.cookies[remote] = cookie{nonce: nonce, issued: time.Now()}
	l.mu.Unlock()

	query := wire.NodeIDHandshake{HasQuery: true, Query: nonce}
	if err := l.send(hctx, socket, query); err != nil {
		return account.Address{}, err
	}

	hdr, body, err := wire.ReadMessage(socket, l.cfg.NetworkID)
	if err != nil {
		return account.Address{}, err
	}
	if hdr.Type != wire.TypeNodeIDHandshake {
		return account.Address{}, errors.New("tcp: expected node_id_handshake")
	}
	hs, err := wire.UnmarshalNodeIDHandshake(body, hdr.Extensions)
	if err != nil {
		return account.Address{}, err
	}
	if !hs.HasResponse {
		return account.Address{}, errors.New("tcp: handshake missing response")
	}

	l.mu.Lock()
	c, ok := l.cookies[remote]
	delete(l.cookies, remote)
	l.mu.Unlock()
	if !ok || time.Since(c.issued) > CookieTTL {
		return account.Address{}, errors.New("tcp: handshake cookie expired or unknown")
	}
	if err := crypto.Verify(hs.Account, c.nonce[:], hs.Signature); err != nil {
		return account.Address{}, err
	}

	if hs.HasQuery {
		sig := l.self.Sign(hs.Query[:])
		selfAddr, err := l.self.Address()
		if err != nil {
			return account.Address{}, err
		}
		response := wire.NodeIDHandshake{HasResponse: true, Account: selfAddr, Signature: sig}
		if err := l.send(hctx, socket, response); err != nil {
			return account.Address{}, err
		}
	}

	return hs.Account, nil
}

// send frames and writes one node-id handshake message, honoring ctx's
// deadline as a hard cutoff on the wait for the write to complete.
func (l *Listener) send(ctx context.Context, socket *Socket, hs wire.NodeIDHandshake) error {
	framed := wire.EncodeMessage(l.cfg.NetworkID, wire.TypeNodeIDHandshake, hs.Extensions(), hs.Marshal())
	select {
	case err := <-socket.AsyncWrite(framed):
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func endpointKeys(addr net.Addr) (ip, subnet string) {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	parsed := net.ParseIP(host)
	if parsed == nil {
		return host, host
	}
	ip = parsed.String()
	if v4 := parsed.To4(); v4 != nil {
		subnet = v4.Mask(net.CIDRMask(24, 32)).String()
		return ip, subnet
	}
	subnet = parsed.Mask(net.CIDRMask(64, 128)).String()
	return ip, subnet
}
