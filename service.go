package netplay

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/netplay/host"
)

func (m *ConnectionManager) stopped() bool {
	select {
	case <-m.stop:
		return true
	default:
		return false
	}
}

// poll services the host once under the send lock.
func (m *ConnectionManager) poll(timeout time.Duration) (host.Event, error) {
	m.sendMu.Lock()
	defer m.sendMu.Unlock()
	return m.host.Service(timeout)
}

// runClient waits for the connection to the server and then services it
// until the server disconnects, the host fails or Dispose is called.
func (m *ConnectionManager) runClient() {
	server := m.server

	for attempt := 0; attempt < m.opts.ConnectAttempts; attempt++ {
		if m.stopped() {
			return
		}
		ev, err := m.poll(m.opts.ConnectPollInterval)
		if err != nil {
			if m.stopped() {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "runClient",
				"error":    err.Error(),
			}).Debug("Host failed while connecting")
			m.state.Store(int32(StateNone))
			m.handler.OnPeerDisconnected(server, ReasonConnectionLost)
			return
		}

		switch e := ev.(type) {
		case host.ConnectEvent:
			if e.Peer != server.p {
				continue
			}
			result := m.handler.OnPeerConnected(server, e.Data)
			if !result.IsAccepted() {
				m.sendMu.Lock()
				m.host.DisconnectNow(server.p, uint32(result.Reason()))
				m.sendMu.Unlock()
				m.state.Store(int32(StateNone))
				logrus.WithFields(logrus.Fields{
					"function": "runClient",
					"reason":   result.Reason().String(),
				}).Debug("Client rejected the server")
				return
			}
			m.registry.add(server)
			m.state.Store(int32(StateConnected))
			logrus.WithFields(logrus.Fields{
				"function": "runClient",
				"server":   server.String(),
			}).Debug("Client connected")
			m.serviceLoop()
			return
		case host.DisconnectEvent:
			if e.Peer != server.p {
				continue
			}
			m.state.Store(int32(StateNone))
			m.handler.OnPeerDisconnected(server, disconnectReason(e))
			return
		}
	}

	if m.stopped() {
		return
	}
	m.sendMu.Lock()
	m.host.DisconnectNow(server.p, uint32(ReasonConnectionTimedOut))
	m.sendMu.Unlock()
	m.state.Store(int32(StateNone))
	logrus.WithFields(logrus.Fields{
		"function": "runClient",
		"attempts": m.opts.ConnectAttempts,
	}).Debug("Client connection timed out")
	m.handler.OnPeerDisconnected(server, ReasonConnectionTimedOut)
}

func (m *ConnectionManager) runServer() {
	m.serviceLoop()
}

// serviceLoop polls the host without waiting, sleeps IdlePollInterval when
// nothing is pending and dispatches events outside the send lock.
func (m *ConnectionManager) serviceLoop() {
	idle := time.NewTimer(m.opts.IdlePollInterval)
	defer idle.Stop()

	for {
		if m.stopped() {
			return
		}
		ev, err := m.poll(0)
		if err != nil {
			if m.stopped() || !m.recover(err) {
				return
			}
			continue
		}
		if ev == nil {
			idle.Reset(m.opts.IdlePollInterval)
			select {
			case <-m.stop:
				return
			case <-idle.C:
			}
			continue
		}
		if !m.dispatch(ev) {
			return
		}
	}
}

// dispatch delivers one event to the handler. It returns false when the
// client's connection to its server ended.
func (m *ConnectionManager) dispatch(ev host.Event) bool {
	switch e := ev.(type) {
	case host.ConnectEvent:
		peer := Peer{p: e.Peer}
		if m.role != roleServer {
			return true
		}
		result := m.handler.OnPeerConnected(peer, e.Data)
		if !result.IsAccepted() {
			m.sendMu.Lock()
			m.host.DisconnectNow(e.Peer, uint32(result.Reason()))
			m.sendMu.Unlock()
			logrus.WithFields(logrus.Fields{
				"function": "dispatch",
				"peer":     peer.String(),
				"reason":   result.Reason().String(),
			}).Debug("Peer rejected")
			return true
		}
		m.registry.add(peer)

	case host.DisconnectEvent:
		peer := Peer{p: e.Peer}
		if m.registry.remove(peer) {
			m.handler.OnPeerDisconnected(peer, disconnectReason(e))
		}
		if m.role == roleClient && peer == m.server {
			m.state.Store(int32(StateNone))
			return false
		}

	case host.ReceiveEvent:
		peer := Peer{p: e.Peer}
		channel := NetworkChannel(e.ChannelID)
		if len(e.Data) == 0 || !channel.Valid() || !m.registry.contains(peer) {
			return true
		}
		m.handler.OnPacketReceived(peer, channel, e.Data[0], e.Data[1:])
	}
	return true
}

// recover handles a failed host. Every accepted peer is reported lost. A
// server then recreates its host on the same address; peers must reconnect.
// It returns false when the loop must end.
func (m *ConnectionManager) recover(cause error) bool {
	logrus.WithFields(logrus.Fields{
		"function": "recover",
		"error":    cause.Error(),
	}).Debug("Host failed")

	for _, p := range m.registry.clear() {
		m.handler.OnPeerDisconnected(p, ReasonConnectionLost)
	}

	if m.role != roleServer {
		m.state.Store(int32(StateNone))
		return false
	}

	m.sendMu.Lock()
	defer m.sendMu.Unlock()

	m.host.Destroy()
	h, err := m.newHost(m.hostConfig(m.bind, true))
	if err != nil {
		m.state.Store(int32(StateNone))
		logrus.WithFields(logrus.Fields{
			"function": "recover",
			"bind":     m.bind.String(),
			"error":    err.Error(),
		}).Debug("Host recreation failed, server stopped")
		return false
	}
	m.host = h

	logrus.WithFields(logrus.Fields{
		"function": "recover",
		"bind":     m.bind.String(),
	}).Debug("Host recreated")
	return true
}

// disconnectReason converts a host disconnect into a Reason.
func disconnectReason(e host.DisconnectEvent) Reason {
	switch e.Cause {
	case host.CauseRemote, host.CauseLocal:
		return ReasonFromCode(e.Data)
	case host.CauseTimeout:
		return ReasonConnectionTimedOut
	default:
		return ReasonConnectionLost
	}
}
