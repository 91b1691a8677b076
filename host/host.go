package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/netplay/limits"
)

// Host is a reliable/unreliable UDP endpoint built on QUIC. Each peer gets one
// bidirectional stream for reliable packets and QUIC datagrams for
// unreliable ones.
//
// Events are produced by internal goroutines and consumed through Service.
// For every peer a ConnectEvent precedes any ReceiveEvent, and nothing is
// returned after its DisconnectEvent.
type Host struct {
	cfg Config
	id  *identity

	udp *net.UDPConn
	tr  *quic.Transport
	ln  *quic.Listener

	ctx    context.Context
	cancel context.CancelFunc

	closing     chan struct{}
	destroyOnce sync.Once
	wg          sync.WaitGroup

	// qmu guards the event queue and the failure state. It is never held
	// while blocking.
	qmu       sync.Mutex
	queueCond *sync.Cond
	queue     []Event
	failErr   error
	destroyed bool
	wake      chan struct{}

	mu     sync.Mutex
	peers  map[uint64]*Peer
	nextID atomic.Uint64
}

// Create binds a UDP socket and starts a host on it. The transport backend
// must have been acquired.
func Create(cfg Config) (*Host, error) {
	id, err := currentIdentity()
	if err != nil {
		return nil, newOpError("create", "", err)
	}
	cfg = cfg.withDefaults()

	laddr := cfg.Addr
	if laddr == nil {
		laddr = &net.UDPAddr{}
	}
	udp, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, newOpError("create", laddr.String(), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		cfg:     cfg,
		id:      id,
		udp:     udp,
		tr:      &quic.Transport{Conn: udp},
		ctx:     ctx,
		cancel:  cancel,
		closing: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		peers:   make(map[uint64]*Peer),
	}
	h.queueCond = sync.NewCond(&h.qmu)

	if cfg.Listen {
		ln, err := h.tr.Listen(id.server, cfg.quicConfig())
		if err != nil {
			cancel()
			h.tr.Close()
			udp.Close()
			return nil, newOpError("listen", laddr.String(), err)
		}
		h.ln = ln
		h.wg.Add(1)
		go h.acceptLoop()
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Create",
		"local_addr": udp.LocalAddr().String(),
		"listen":     cfg.Listen,
		"max_peers":  cfg.MaxPeers,
	}).Debug("Host created")

	return h, nil
}

// LocalAddr returns the bound UDP address.
func (h *Host) LocalAddr() *net.UDPAddr {
	addr, _ := h.udp.LocalAddr().(*net.UDPAddr)
	return addr
}

// PeerCount returns the number of connecting and connected peers.
func (h *Host) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

// Connect starts an asynchronous connection to addr carrying data in the
// handshake. The outcome is reported by a ConnectEvent or a DisconnectEvent.
func (h *Host) Connect(addr *net.UDPAddr, data uint32) (*Peer, error) {
	if h.isClosing() {
		return nil, ErrHostDestroyed
	}
	if addr == nil {
		return nil, newOpError("connect", "", errors.New("nil address"))
	}

	p := h.addPeer(addr, true)
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.ConnectTimeout)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	h.wg.Add(1)
	go h.dial(ctx, p, data)

	logrus.WithFields(logrus.Fields{
		"function": "Connect",
		"peer":     p.String(),
		"data":     data,
	}).Debug("Connecting to peer")
	return p, nil
}

func (h *Host) dial(ctx context.Context, p *Peer, data uint32) {
	defer h.wg.Done()

	conn, err := h.tr.Dial(ctx, p.addr, h.id.client, h.cfg.quicConfig())
	if err != nil {
		h.connectFailed(p, nil, err)
		return
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		h.connectFailed(p, conn, err)
		return
	}
	if _, err := stream.Write(appendFrame(nil, frameHello, 0, encodeHandshake(data))); err != nil {
		h.connectFailed(p, conn, err)
		return
	}

	if deadline, ok := ctx.Deadline(); ok {
		stream.SetReadDeadline(deadline)
	}
	br := bufio.NewReader(stream)
	kind, _, body, err := readFrame(br)
	if err == nil && kind != frameWelcome {
		err = fmt.Errorf("%w: kind %d during handshake", ErrUnexpectedFrame, kind)
	}
	var welcome uint32
	if err == nil {
		welcome, err = decodeHandshake(body)
	}
	if err != nil {
		h.connectFailed(p, conn, err)
		return
	}
	stream.SetReadDeadline(time.Time{})

	h.establish(p, conn, stream, br, welcome)
}

// connectFailed ends an outgoing connection attempt. The DisconnectEvent is
// only emitted if the attempt was not cancelled by DisconnectNow or Destroy.
func (h *Host) connectFailed(p *Peer, conn *quic.Conn, err error) {
	if conn != nil {
		conn.CloseWithError(0, "")
	}
	cause, data := classify(err)

	p.mu.Lock()
	if p.state == PeerDisconnected || h.isClosing() {
		p.mu.Unlock()
		return
	}
	p.state = PeerDisconnected
	h.emit(DisconnectEvent{Peer: p, Cause: cause, Data: data})
	p.mu.Unlock()
	h.removePeer(p)

	logrus.WithFields(logrus.Fields{
		"function": "connectFailed",
		"peer":     p.String(),
		"cause":    cause.String(),
		"error":    err.Error(),
	}).Debug("Connection attempt failed")
}

func (h *Host) acceptLoop() {
	defer h.wg.Done()

	for {
		conn, err := h.ln.Accept(h.ctx)
		if err != nil {
			if !h.isClosing() {
				h.fail(newOpError("accept", h.udp.LocalAddr().String(), err))
			}
			return
		}

		if h.PeerCount() >= h.cfg.MaxPeers {
			logrus.WithFields(logrus.Fields{
				"function":    "acceptLoop",
				"remote_addr": conn.RemoteAddr().String(),
				"max_peers":   h.cfg.MaxPeers,
			}).Debug("Refusing connection, host is full")
			conn.CloseWithError(quic.ApplicationErrorCode(h.cfg.FullData), "full")
			continue
		}

		p := h.addPeer(conn.RemoteAddr(), false)
		h.wg.Add(1)
		go h.handshake(p, conn)
	}
}

// handshake completes the server side of an incoming connection. Failures
// before the ConnectEvent are silent.
func (h *Host) handshake(p *Peer, conn *quic.Conn) {
	defer h.wg.Done()

	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.ConnectTimeout)
	defer cancel()

	abort := func(err error) {
		conn.CloseWithError(0, "handshake failed")
		p.mu.Lock()
		p.state = PeerDisconnected
		p.mu.Unlock()
		h.removePeer(p)
		logrus.WithFields(logrus.Fields{
			"function": "handshake",
			"peer":     p.String(),
			"error":    err.Error(),
		}).Debug("Incoming handshake failed")
	}

	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		abort(err)
		return
	}
	stream.SetReadDeadline(time.Now().Add(h.cfg.ConnectTimeout))
	br := bufio.NewReader(stream)
	kind, _, body, err := readFrame(br)
	if err == nil && kind != frameHello {
		err = fmt.Errorf("%w: kind %d during handshake", ErrUnexpectedFrame, kind)
	}
	var data uint32
	if err == nil {
		data, err = decodeHandshake(body)
	}
	if err != nil {
		abort(err)
		return
	}
	stream.SetReadDeadline(time.Time{})

	if _, err := stream.Write(appendFrame(nil, frameWelcome, 0, encodeHandshake(data))); err != nil {
		abort(err)
		return
	}

	h.establish(p, conn, stream, br, data)
}

// establish moves a peer to the connected state, emits its ConnectEvent and
// starts its stream and datagram goroutines.
func (h *Host) establish(p *Peer, conn *quic.Conn, stream *quic.Stream, br *bufio.Reader, data uint32) {
	p.mu.Lock()
	if p.state == PeerDisconnected || h.isClosing() {
		p.mu.Unlock()
		conn.CloseWithError(quic.ApplicationErrorCode(h.cfg.ShutdownData), "")
		return
	}
	p.conn = conn
	p.stream = stream
	p.state = PeerConnected
	h.emit(ConnectEvent{Peer: p, Data: data})
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "establish",
		"peer":     p.String(),
		"data":     data,
	}).Debug("Peer connected")

	h.wg.Add(3)
	go h.writeLoop(p, conn, stream)
	go h.readLoop(p, br)
	go h.datagramLoop(p, conn)
}

func (h *Host) writeLoop(p *Peer, conn *quic.Conn, stream *quic.Stream) {
	defer h.wg.Done()
	for {
		select {
		case frame := <-p.outbound:
			if _, err := stream.Write(frame); err != nil {
				h.peerFailed(p, err)
				return
			}
		case <-conn.Context().Done():
			return
		case <-h.closing:
			return
		}
	}
}

func (h *Host) readLoop(p *Peer, br *bufio.Reader) {
	defer h.wg.Done()
	for {
		if !h.waitForRoom() {
			return
		}
		kind, channel, body, err := readFrame(br)
		if err != nil {
			h.peerFailed(p, err)
			return
		}
		if kind != frameData {
			h.peerFailed(p, fmt.Errorf("%w: kind %d on established stream", ErrUnexpectedFrame, kind))
			return
		}
		h.emitForPeer(p, ReceiveEvent{Peer: p, ChannelID: channel, Data: body})
	}
}

func (h *Host) datagramLoop(p *Peer, conn *quic.Conn) {
	defer h.wg.Done()
	for {
		msg, err := conn.ReceiveDatagram(h.ctx)
		if err != nil {
			return
		}
		if len(msg) < 2 || h.queueFull() {
			continue
		}
		h.emitForPeer(p, ReceiveEvent{Peer: p, ChannelID: msg[0], Data: msg[1:]})
	}
}

// peerFailed reports the end of an established connection.
func (h *Host) peerFailed(p *Peer, err error) {
	if h.isClosing() {
		return
	}
	// every quic close error unwraps to net.ErrClosed; only a dead
	// transport is fatal for the host
	if errors.Is(err, quic.ErrTransportClosed) {
		p.mu.Lock()
		p.state = PeerDisconnected
		p.mu.Unlock()
		h.removePeer(p)
		h.fail(newOpError("service", h.udp.LocalAddr().String(), err))
		return
	}

	cause, data := classify(err)

	p.mu.Lock()
	if p.state == PeerDisconnected {
		p.mu.Unlock()
		return
	}
	p.state = PeerDisconnected
	conn := p.conn
	h.emit(DisconnectEvent{Peer: p, Cause: cause, Data: data})
	p.mu.Unlock()
	h.removePeer(p)

	if cause == CauseLost && conn != nil {
		conn.CloseWithError(0, "")
	}

	logrus.WithFields(logrus.Fields{
		"function": "peerFailed",
		"peer":     p.String(),
		"cause":    cause.String(),
		"data":     data,
		"error":    err.Error(),
	}).Debug("Peer disconnected")
}

// classify maps a connection error to a disconnect cause and close code.
func classify(err error) (DisconnectCause, uint32) {
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		if appErr.Remote {
			return CauseRemote, uint32(appErr.ErrorCode)
		}
		return CauseLocal, uint32(appErr.ErrorCode)
	}
	var idleErr *quic.IdleTimeoutError
	var hsErr *quic.HandshakeTimeoutError
	if errors.As(err, &idleErr) || errors.As(err, &hsErr) || errors.Is(err, context.DeadlineExceeded) {
		return CauseTimeout, 0
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CauseTimeout, 0
	}
	if errors.Is(err, io.EOF) {
		return CauseRemote, 0
	}
	return CauseLost, 0
}

// Service flushes queued datagrams and returns the next event. It waits up
// to timeout for one; a nil event with a nil error means none arrived.
// ErrHostFailed is returned once every queued event has been consumed after
// the socket failed.
func (h *Host) Service(timeout time.Duration) (Event, error) {
	h.Flush()

	var timer *time.Timer
	for {
		h.qmu.Lock()
		if h.destroyed {
			h.qmu.Unlock()
			return nil, ErrHostDestroyed
		}
		if len(h.queue) > 0 {
			ev := h.queue[0]
			h.queue[0] = nil
			h.queue = h.queue[1:]
			h.queueCond.Broadcast()
			h.qmu.Unlock()

			p := ev.EventPeer()
			if p.gone.Load() {
				continue
			}
			if _, ok := ev.(DisconnectEvent); ok {
				p.gone.Store(true)
			}
			return ev, nil
		}
		if h.failErr != nil {
			err := h.failErr
			h.qmu.Unlock()
			return nil, fmt.Errorf("%w: %v", ErrHostFailed, err)
		}
		h.qmu.Unlock()

		if timeout <= 0 {
			return nil, nil
		}
		if timer == nil {
			timer = time.NewTimer(timeout)
			defer timer.Stop()
		}
		select {
		case <-h.wake:
		case <-timer.C:
			timeout = 0
		case <-h.closing:
			return nil, ErrHostDestroyed
		}
	}
}

// Send queues a packet for a connected peer. Reliable packets are written by
// the peer's stream goroutine; unreliable packets wait for the next Flush.
func (h *Host) Send(p *Peer, channelID uint8, packet Packet) error {
	if h.isClosing() {
		return ErrHostDestroyed
	}
	if p == nil || p.State() != PeerConnected {
		return ErrPeerNotConnected
	}
	if int(channelID) >= h.cfg.ChannelCount {
		return fmt.Errorf("%w: %d of %d", ErrInvalidChannel, channelID, h.cfg.ChannelCount)
	}

	if packet.Reliable() {
		if len(packet.Data) > limits.MaxFrameBody {
			return fmt.Errorf("%w: %d bytes on reliable channel", ErrPacketTooLarge, len(packet.Data))
		}
		select {
		case p.outbound <- appendFrame(make([]byte, 0, frameHeaderSize+len(packet.Data)), frameData, channelID, packet.Data):
			return nil
		default:
			return ErrQueueFull
		}
	}

	if len(packet.Data) > limits.MaxUnreliablePacket {
		return fmt.Errorf("%w: %d bytes on unreliable channel", ErrPacketTooLarge, len(packet.Data))
	}
	dg := make([]byte, 0, 1+len(packet.Data))
	dg = append(dg, channelID)
	dg = append(dg, packet.Data...)
	select {
	case p.datagrams <- dg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Flush sends every queued unreliable packet.
func (h *Host) Flush() {
	for _, p := range h.snapshotPeers() {
		conn := p.connection()
		for {
			var dg []byte
			select {
			case dg = <-p.datagrams:
			default:
			}
			if dg == nil {
				break
			}
			if conn == nil {
				continue
			}
			if err := conn.SendDatagram(dg); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "Flush",
					"peer":     p.String(),
					"error":    err.Error(),
				}).Trace("Dropping unreliable packet")
			}
		}
	}
}

// DisconnectNow closes the peer's connection immediately with data as the
// close code. A connected peer produces a DisconnectEvent with CauseLocal;
// an outgoing attempt still in progress is cancelled silently.
func (h *Host) DisconnectNow(p *Peer, data uint32) {
	if p == nil {
		return
	}

	p.mu.Lock()
	prev := p.state
	if prev == PeerDisconnected {
		p.mu.Unlock()
		return
	}
	p.state = PeerDisconnected
	conn, cancel := p.conn, p.cancel
	if prev == PeerConnected {
		h.emit(DisconnectEvent{Peer: p, Cause: CauseLocal, Data: data})
	}
	p.mu.Unlock()
	h.removePeer(p)

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.CloseWithError(quic.ApplicationErrorCode(data), "")
	}

	logrus.WithFields(logrus.Fields{
		"function": "DisconnectNow",
		"peer":     p.String(),
		"data":     data,
	}).Debug("Peer disconnected locally")
}

// Destroy closes every peer with ShutdownData, closes the socket and waits
// for the host's goroutines. It is safe to call more than once.
func (h *Host) Destroy() {
	h.destroyOnce.Do(func() {
		close(h.closing)

		h.qmu.Lock()
		h.destroyed = true
		h.queue = nil
		h.queueCond.Broadcast()
		h.qmu.Unlock()

		for _, p := range h.snapshotPeers() {
			p.mu.Lock()
			p.state = PeerDisconnected
			conn, cancel := p.conn, p.cancel
			p.mu.Unlock()
			if cancel != nil {
				cancel()
			}
			if conn != nil {
				conn.CloseWithError(quic.ApplicationErrorCode(h.cfg.ShutdownData), "shutdown")
			}
		}
		h.mu.Lock()
		h.peers = make(map[uint64]*Peer)
		h.mu.Unlock()

		h.cancel()
		if h.ln != nil {
			h.ln.Close()
		}
		h.tr.Close()
		h.udp.Close()
		h.wg.Wait()

		logrus.WithFields(logrus.Fields{
			"function":   "Destroy",
			"local_addr": h.udp.LocalAddr().String(),
		}).Debug("Host destroyed")
	})
}

func (h *Host) isClosing() bool {
	select {
	case <-h.closing:
		return true
	default:
		return false
	}
}

// fail records a fatal socket error. Service reports it once the queue drains.
func (h *Host) fail(err error) {
	h.qmu.Lock()
	if h.failErr == nil {
		h.failErr = err
		logrus.WithFields(logrus.Fields{
			"function": "fail",
			"error":    err.Error(),
		}).Debug("Host failed")
	}
	h.qmu.Unlock()
	h.notify()
}

// emit appends an event to the queue. Callers emitting peer events hold the
// peer's mutex so per-peer ordering follows state transitions.
func (h *Host) emit(ev Event) {
	h.qmu.Lock()
	if h.destroyed {
		h.qmu.Unlock()
		return
	}
	h.queue = append(h.queue, ev)
	h.qmu.Unlock()
	h.notify()
}

// emitForPeer emits ev only while the peer is connected.
func (h *Host) emitForPeer(p *Peer, ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != PeerConnected {
		return
	}
	h.emit(ev)
}

func (h *Host) notify() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// waitForRoom blocks while the event queue is over its soft bound. It
// returns false once the host is destroyed.
func (h *Host) waitForRoom() bool {
	h.qmu.Lock()
	defer h.qmu.Unlock()
	for len(h.queue) >= h.cfg.EventQueueSize && !h.destroyed {
		h.queueCond.Wait()
	}
	return !h.destroyed
}

func (h *Host) queueFull() bool {
	h.qmu.Lock()
	defer h.qmu.Unlock()
	return len(h.queue) >= h.cfg.EventQueueSize
}

func (h *Host) addPeer(addr net.Addr, outgoing bool) *Peer {
	p := newPeer(h.nextID.Add(1), addr, outgoing, h.cfg.OutboundQueueSize, h.cfg.DatagramQueueSize)
	h.mu.Lock()
	h.peers[p.id] = p
	h.mu.Unlock()
	return p
}

func (h *Host) removePeer(p *Peer) {
	h.mu.Lock()
	delete(h.peers, p.id)
	h.mu.Unlock()
}

func (h *Host) snapshotPeers() []*Peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := make([]*Peer, 0, len(h.peers))
	for _, p := range h.peers {
		peers = append(peers, p)
	}
	return peers
}
