package host

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/quic-go/quic-go"
)

// PeerState is the lifecycle state of a Peer.
type PeerState int32

const (
	PeerConnecting PeerState = iota
	PeerConnected
	PeerDisconnected
)

func (s PeerState) String() string {
	switch s {
	case PeerConnecting:
		return "connecting"
	case PeerConnected:
		return "connected"
	case PeerDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Peer is one remote endpoint of a Host. Peers are owned by their host and
// compared by pointer.
type Peer struct {
	id       uint64
	addr     net.Addr
	outgoing bool

	mu     sync.Mutex
	state  PeerState
	conn   *quic.Conn
	stream *quic.Stream
	cancel context.CancelFunc

	outbound  chan []byte
	datagrams chan []byte

	// gone is set once Service returned the peer's DisconnectEvent.
	gone atomic.Bool
}

func newPeer(id uint64, addr net.Addr, outgoing bool, outboundSize, datagramSize int) *Peer {
	return &Peer{
		id:        id,
		addr:      addr,
		outgoing:  outgoing,
		state:     PeerConnecting,
		outbound:  make(chan []byte, outboundSize),
		datagrams: make(chan []byte, datagramSize),
	}
}

// ID returns the host-unique peer number.
func (p *Peer) ID() uint64 {
	return p.id
}

// RemoteAddr returns the remote UDP address of the peer.
func (p *Peer) RemoteAddr() net.Addr {
	return p.addr
}

// Outgoing reports whether the connection was initiated by this host.
func (p *Peer) Outgoing() bool {
	return p.outgoing
}

// State returns the current lifecycle state.
func (p *Peer) State() PeerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Peer) String() string {
	if p == nil {
		return "peer(nil)"
	}
	return fmt.Sprintf("peer#%d(%s)", p.id, p.addr)
}

func (p *Peer) connection() *quic.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PeerConnected {
		return nil
	}
	return p.conn
}
