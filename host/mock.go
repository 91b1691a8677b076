package host

import (
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// MockHost is an in-memory stand-in for Host used in tests. Events are
// injected with the Simulate methods and returned by Service in order.
type MockHost struct {
	mu           sync.Mutex
	addr         *net.UDPAddr
	events       []Event
	sent         []MockPacket
	disconnected map[*Peer]uint32
	flushes      int
	failErr      error
	destroyed    bool
	dialed       []*Peer
	nextID       atomic.Uint64
	wake         chan struct{}

	// ConnectErr is returned by Connect when set.
	ConnectErr error
	// SendErr is returned by Send when set.
	SendErr error
}

// MockPacket records a packet passed to Send.
type MockPacket struct {
	Peer      *Peer
	ChannelID uint8
	Packet    Packet
}

// NewMockHost creates a mock host reporting addr as its local address.
func NewMockHost(addr *net.UDPAddr) *MockHost {
	return &MockHost{
		addr:         addr,
		disconnected: make(map[*Peer]uint32),
		wake:         make(chan struct{}, 1),
	}
}

// NewMockPeer creates a connected peer detached from any real host.
func (m *MockHost) NewMockPeer(addr net.Addr) *Peer {
	p := newPeer(m.nextID.Add(1), addr, false, 1, 1)
	p.state = PeerConnected
	return p
}

// Connect returns a connecting peer. Use SimulateConnect to complete it.
func (m *MockHost) Connect(addr *net.UDPAddr, data uint32) (*Peer, error) {
	if m.ConnectErr != nil {
		return nil, m.ConnectErr
	}
	p := newPeer(m.nextID.Add(1), addr, true, 1, 1)
	m.mu.Lock()
	m.dialed = append(m.dialed, p)
	m.mu.Unlock()
	return p, nil
}

// Dialed returns the peers created by Connect.
func (m *MockHost) Dialed() []*Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Peer(nil), m.dialed...)
}

// SimulateConnect queues a ConnectEvent and marks the peer connected.
func (m *MockHost) SimulateConnect(p *Peer, data uint32) {
	p.mu.Lock()
	p.state = PeerConnected
	p.mu.Unlock()
	m.push(ConnectEvent{Peer: p, Data: data})
}

// SimulateReceive queues a ReceiveEvent.
func (m *MockHost) SimulateReceive(p *Peer, channelID uint8, data []byte) {
	m.push(ReceiveEvent{Peer: p, ChannelID: channelID, Data: data})
}

// SimulateDisconnect queues a DisconnectEvent and marks the peer disconnected.
func (m *MockHost) SimulateDisconnect(p *Peer, cause DisconnectCause, data uint32) {
	p.mu.Lock()
	p.state = PeerDisconnected
	p.mu.Unlock()
	m.push(DisconnectEvent{Peer: p, Cause: cause, Data: data})
}

// SimulateFailure makes Service report ErrHostFailed once queued events are consumed.
func (m *MockHost) SimulateFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
	m.notify()
}

func (m *MockHost) push(ev Event) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	m.notify()
}

func (m *MockHost) notify() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Service returns the next queued event, waiting up to timeout for one.
func (m *MockHost) Service(timeout time.Duration) (Event, error) {
	var timer *time.Timer
	for {
		m.mu.Lock()
		if m.destroyed {
			m.mu.Unlock()
			return nil, ErrHostDestroyed
		}
		if len(m.events) > 0 {
			ev := m.events[0]
			m.events = m.events[1:]
			m.mu.Unlock()
			return ev, nil
		}
		if m.failErr != nil {
			m.mu.Unlock()
			return nil, ErrHostFailed
		}
		m.mu.Unlock()

		if timeout <= 0 {
			return nil, nil
		}
		if timer == nil {
			timer = time.NewTimer(timeout)
			defer timer.Stop()
		}
		select {
		case <-m.wake:
		case <-timer.C:
			timeout = 0
		}
	}
}

// Send records the packet.
func (m *MockHost) Send(p *Peer, channelID uint8, packet Packet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendErr != nil {
		return m.SendErr
	}
	if p == nil || p.State() != PeerConnected {
		return ErrPeerNotConnected
	}
	data := append([]byte(nil), packet.Data...)
	m.sent = append(m.sent, MockPacket{Peer: p, ChannelID: channelID, Packet: Packet{Data: data, Flags: packet.Flags}})
	return nil
}

// Flush counts the call.
func (m *MockHost) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
}

// DisconnectNow records the close code and queues a local DisconnectEvent
// for connected peers.
func (m *MockHost) DisconnectNow(p *Peer, data uint32) {
	p.mu.Lock()
	prev := p.state
	p.state = PeerDisconnected
	p.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected[p] = data
	if prev == PeerConnected {
		m.events = append(m.events, DisconnectEvent{Peer: p, Cause: CauseLocal, Data: data})
		m.notify()
	}
}

// Destroy marks the mock destroyed.
func (m *MockHost) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destroyed = true
}

// LocalAddr returns the address given to NewMockHost.
func (m *MockHost) LocalAddr() *net.UDPAddr {
	return m.addr
}

// Sent returns a copy of every packet passed to Send.
func (m *MockHost) Sent() []MockPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockPacket(nil), m.sent...)
}

// Flushes returns the number of Flush calls.
func (m *MockHost) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// DisconnectData returns the close code passed to DisconnectNow for p.
func (m *MockHost) DisconnectData(p *Peer) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.disconnected[p]
	return data, ok
}

// Destroyed reports whether Destroy was called.
func (m *MockHost) Destroyed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destroyed
}
