package netplay

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/netplay/host"
	"github.com/opd-ai/netplay/limits"
)

// transportHost is the subset of *host.Host used by the manager.
type transportHost interface {
	Connect(addr *net.UDPAddr, data uint32) (*host.Peer, error)
	Service(timeout time.Duration) (host.Event, error)
	Send(peer *host.Peer, channelID uint8, packet host.Packet) error
	Flush()
	DisconnectNow(peer *host.Peer, data uint32)
	Destroy()
	LocalAddr() *net.UDPAddr
}

type role int

const (
	roleNone role = iota
	roleClient
	roleServer
)

func createHost(cfg host.Config) (transportHost, error) {
	return host.Create(cfg)
}

// ConnectionManager runs one client or server endpoint and delivers its
// events to a ConnectionHandler from a single background goroutine.
type ConnectionManager struct {
	opts Options

	// lifecycle serializes CreateClient, CreateServer and Dispose.
	lifecycle sync.Mutex

	// sendMu guards the host. The background goroutine holds it while polling.
	sendMu sync.Mutex
	host   transportHost
	role   role
	server Peer
	bind   *net.UDPAddr

	handler  ConnectionHandler
	state    atomic.Int32
	registry *peerRegistry

	stop chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	newHost func(host.Config) (transportHost, error)
}

// NewConnectionManager creates an idle manager. A nil opts uses NewOptions.
func NewConnectionManager(opts *Options) *ConnectionManager {
	if opts == nil {
		opts = NewOptions()
	}
	return &ConnectionManager{
		opts:     opts.normalize(),
		registry: newPeerRegistry(),
		newHost:  createHost,
	}
}

// State returns the current network state.
func (m *ConnectionManager) State() NetworkState {
	return NetworkState(m.state.Load())
}

// IsServer reports whether the manager runs the server role.
func (m *ConnectionManager) IsServer() bool {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	return m.role == roleServer
}

// Peers returns the accepted peers.
func (m *ConnectionManager) Peers() []Peer {
	return m.registry.snapshot()
}

// PeerCount returns the number of accepted peers.
func (m *ConnectionManager) PeerCount() int {
	return m.registry.count()
}

// LocalAddr returns the host's bound address, or nil when not running.
func (m *ConnectionManager) LocalAddr() *net.UDPAddr {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	if m.host == nil {
		return nil
	}
	return m.host.LocalAddr()
}

// CreateClient connects to a server at address:port, sending clientData in
// the handshake. The outcome is reported to handler: OnPeerConnected once the
// server answers, or OnPeerDisconnected with ReasonConnectionTimedOut when it
// does not answer within ConnectAttempts polls.
func (m *ConnectionManager) CreateClient(handler ConnectionHandler, address string, port uint16, clientData uint32) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if err := m.prepare(handler); err != nil {
		return err
	}

	target := net.JoinHostPort(address, strconv.Itoa(int(port)))
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return newManagerError("create client", target, err)
	}

	if err := host.Acquire(); err != nil {
		return newManagerError("create client", target, err)
	}
	h, err := m.newHost(m.hostConfig(nil, false))
	if err != nil {
		host.Release()
		return newManagerError("create client", target, err)
	}
	p, err := h.Connect(addr, clientData)
	if err != nil {
		h.Destroy()
		host.Release()
		return newManagerError("create client", target, err)
	}

	m.sendMu.Lock()
	m.host = h
	m.role = roleClient
	m.server = Peer{p: p}
	m.sendMu.Unlock()
	m.handler = handler
	m.state.Store(int32(StateConnecting))
	m.start(m.runClient)

	logrus.WithFields(logrus.Fields{
		"function":    "CreateClient",
		"server":      target,
		"client_data": clientData,
	}).Debug("Client connecting")
	return nil
}

// CreateServer listens on port on every interface, or on Options.BindAddress.
// Port 0 picks an ephemeral port reported by LocalAddr.
func (m *ConnectionManager) CreateServer(handler ConnectionHandler, port uint16) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if err := m.prepare(handler); err != nil {
		return err
	}

	bind := &net.UDPAddr{Port: int(port)}
	if m.opts.BindAddress != "" {
		ip := net.ParseIP(m.opts.BindAddress)
		if ip == nil {
			return newManagerError("create server", m.opts.BindAddress, fmt.Errorf("invalid bind address"))
		}
		bind.IP = ip
	}

	if err := host.Acquire(); err != nil {
		return newManagerError("create server", bind.String(), err)
	}
	h, err := m.newHost(m.hostConfig(bind, true))
	if err != nil {
		host.Release()
		return newManagerError("create server", bind.String(), err)
	}

	// recovery rebinds the same address, including an ephemeral port
	bound := h.LocalAddr()
	if bound != nil {
		bind = &net.UDPAddr{IP: bind.IP, Port: bound.Port, Zone: bind.Zone}
	}

	m.sendMu.Lock()
	m.host = h
	m.role = roleServer
	m.server = Peer{}
	m.bind = bind
	m.sendMu.Unlock()
	m.handler = handler
	m.state.Store(int32(StateListening))
	m.start(m.runServer)

	logrus.WithFields(logrus.Fields{
		"function":  "CreateServer",
		"bind":      bind.String(),
		"max_peers": m.opts.MaxPeers,
	}).Debug("Server listening")
	return nil
}

// prepare validates a Create call and tears down a manager whose background
// goroutine already ended on its own.
func (m *ConnectionManager) prepare(handler ConnectionHandler) error {
	if handler == nil {
		return ErrNilHandler
	}
	m.sendMu.Lock()
	running := m.host != nil
	m.sendMu.Unlock()
	if !running {
		return nil
	}
	select {
	case <-m.done:
		m.teardown()
		return nil
	default:
		return ErrAlreadyRunning
	}
}

func (m *ConnectionManager) hostConfig(bind *net.UDPAddr, listen bool) host.Config {
	cfg := host.DefaultConfig()
	cfg.Addr = bind
	cfg.Listen = listen
	cfg.MaxPeers = m.opts.MaxPeers
	cfg.ChannelCount = ChannelCount
	cfg.ConnectTimeout = time.Duration(m.opts.ConnectAttempts) * m.opts.ConnectPollInterval
	cfg.IdleTimeout = m.opts.IdleTimeout
	cfg.KeepAlive = m.opts.KeepAlive
	cfg.OutboundQueueSize = m.opts.OutboundQueueSize
	cfg.FullData = uint32(ReasonServerIsFull)
	cfg.ShutdownData = uint32(ReasonServerStopped)
	if !listen {
		cfg.ShutdownData = uint32(ReasonDisconnected)
	}
	return cfg
}

func (m *ConnectionManager) start(loop func()) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(m.done)
		loop()
	}()
}

// Dispose stops the background goroutine, destroys the host and releases
// the transport backend. It is idempotent and must not be called from a
// ConnectionHandler callback.
func (m *ConnectionManager) Dispose() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.teardown()
}

func (m *ConnectionManager) teardown() {
	m.sendMu.Lock()
	running := m.host != nil
	m.sendMu.Unlock()
	if !running {
		return
	}

	m.state.Store(int32(StateNone))
	close(m.stop)
	m.wg.Wait()

	m.sendMu.Lock()
	m.host.Destroy()
	m.host = nil
	m.role = roleNone
	m.server = Peer{}
	m.sendMu.Unlock()

	m.registry.clear()
	m.handler = nil
	host.Release()

	logrus.WithField("function", "Dispose").Debug("Connection manager disposed")
}

// SendTo queues one packet for peer. In the client role the invalid peer
// addresses the server. Packets on ChannelUnreliableUpdates are flushed
// immediately.
func (m *ConnectionManager) SendTo(peer Peer, channel NetworkChannel, packetType uint8, payload []byte) error {
	packet, err := buildPacket(channel, packetType, payload)
	if err != nil {
		return newManagerError("send", peer.String(), err)
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	if m.host == nil {
		return newManagerError("send", peer.String(), ErrNotRunning)
	}
	target := peer.p
	if target == nil {
		if m.role != roleClient {
			return newManagerError("send", "", ErrInvalidPeer)
		}
		target = m.server.p
	}

	if err := m.host.Send(target, uint8(channel), packet); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SendTo",
			"peer":     target.String(),
			"channel":  channel.String(),
			"error":    err.Error(),
		}).Debug("Packet discarded")
		return newManagerError("send", target.String(), fmt.Errorf("%w: %w", ErrSendFailed, err))
	}
	if channel == ChannelUnreliableUpdates {
		m.host.Flush()
	}
	return nil
}

// SendToMatching queues one packet for every accepted peer for which match
// returns true. It succeeds if at least one peer accepted the packet.
func (m *ConnectionManager) SendToMatching(match func(Peer) bool, channel NetworkChannel, packetType uint8, payload []byte) error {
	packet, err := buildPacket(channel, packetType, payload)
	if err != nil {
		return newManagerError("broadcast", "", err)
	}
	peers := m.registry.snapshot()

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	if m.host == nil {
		return newManagerError("broadcast", "", ErrNotRunning)
	}

	sent := 0
	for _, p := range peers {
		if match != nil && !match(p) {
			continue
		}
		if err := m.host.Send(p.p, uint8(channel), packet); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "SendToMatching",
				"peer":     p.String(),
				"channel":  channel.String(),
				"error":    err.Error(),
			}).Debug("Packet discarded for peer")
			continue
		}
		sent++
	}
	if sent == 0 {
		return newManagerError("broadcast", "", fmt.Errorf("%w: no peer accepted the packet", ErrSendFailed))
	}
	if channel == ChannelUnreliableUpdates {
		m.host.Flush()
	}
	return nil
}

// SendToAll queues one packet for every accepted peer.
func (m *ConnectionManager) SendToAll(channel NetworkChannel, packetType uint8, payload []byte) error {
	return m.SendToMatching(nil, channel, packetType, payload)
}

// Kick disconnects peer immediately with reason. The remote side observes
// reason; the local handler receives OnPeerDisconnected(peer, reason) from
// the background goroutine. In the client role the invalid peer addresses
// the server.
func (m *ConnectionManager) Kick(peer Peer, reason Reason) error {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	if m.host == nil {
		return newManagerError("kick", peer.String(), ErrNotRunning)
	}
	target := peer.p
	if target == nil {
		if m.role != roleClient {
			return newManagerError("kick", "", ErrInvalidPeer)
		}
		target = m.server.p
	}
	m.host.DisconnectNow(target, uint32(reason))

	logrus.WithFields(logrus.Fields{
		"function": "Kick",
		"peer":     target.String(),
		"reason":   reason.String(),
	}).Debug("Peer disconnected")
	return nil
}

// Disconnect closes a client's connection to its server with reason.
func (m *ConnectionManager) Disconnect(reason Reason) error {
	return m.Kick(Peer{}, reason)
}

// buildPacket prefixes payload with the packet type and checks it fits the channel.
func buildPacket(channel NetworkChannel, packetType uint8, payload []byte) (host.Packet, error) {
	if !channel.Valid() {
		return host.Packet{}, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
	data := make([]byte, 0, 1+len(payload))
	data = append(data, packetType)
	data = append(data, payload...)

	var err error
	if channel == ChannelMain {
		err = limits.ValidateReliable(data)
	} else {
		err = limits.ValidateUnreliable(data)
	}
	if err != nil {
		return host.Packet{}, err
	}
	return host.Packet{Data: data, Flags: channel.flags()}, nil
}
