package host

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loopback = net.IPv4(127, 0, 0, 1)

func acquireBackend(t *testing.T) {
	t.Helper()
	require.NoError(t, Acquire())
	t.Cleanup(Release)
}

func newServer(t *testing.T, maxPeers int) *Host {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = &net.UDPAddr{IP: loopback}
	cfg.Listen = true
	cfg.MaxPeers = maxPeers
	cfg.FullData = 3
	h, err := Create(cfg)
	require.NoError(t, err)
	t.Cleanup(h.Destroy)
	return h
}

func newClient(t *testing.T) *Host {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ConnectTimeout = 3 * time.Second
	h, err := Create(cfg)
	require.NoError(t, err)
	t.Cleanup(h.Destroy)
	return h
}

// nextEvent services h until an event arrives or the timeout expires
func nextEvent(t *testing.T, h *Host, timeout time.Duration) Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		ev, err := h.Service(50 * time.Millisecond)
		require.NoError(t, err)
		if ev != nil {
			return ev
		}
	}
	t.Fatalf("no event within %v", timeout)
	return nil
}

// connectPair connects a client to server and returns both sides' peers
func connectPair(t *testing.T, server, client *Host, data uint32) (serverSide, clientSide *Peer) {
	t.Helper()
	p, err := client.Connect(server.LocalAddr(), data)
	require.NoError(t, err)
	assert.Equal(t, PeerConnecting, p.State())
	assert.True(t, p.Outgoing())

	ev := nextEvent(t, client, 5*time.Second)
	ce, ok := ev.(ConnectEvent)
	require.True(t, ok, "client got %v", ev)
	assert.Same(t, p, ce.Peer)
	assert.Equal(t, data, ce.Data)

	ev = nextEvent(t, server, 5*time.Second)
	se, ok := ev.(ConnectEvent)
	require.True(t, ok, "server got %v", ev)
	assert.Equal(t, data, se.Data)
	assert.False(t, se.Peer.Outgoing())
	return se.Peer, p
}

func TestConnectAndReliableOrdering(t *testing.T) {
	acquireBackend(t)
	server := newServer(t, 4)
	client := newClient(t)

	serverPeer, clientPeer := connectPair(t, server, client, 0x1)
	assert.Equal(t, PeerConnected, clientPeer.State())
	assert.Equal(t, 1, server.PeerCount())

	for i := 0; i < 20; i++ {
		require.NoError(t, client.Send(clientPeer, 0, Packet{Data: []byte{byte(i)}, Flags: FlagReliable}))
	}
	for i := 0; i < 20; i++ {
		ev := nextEvent(t, server, 5*time.Second)
		re, ok := ev.(ReceiveEvent)
		require.True(t, ok, "got %v", ev)
		assert.Same(t, serverPeer, re.Peer)
		assert.Equal(t, uint8(0), re.ChannelID)
		assert.Equal(t, []byte{byte(i)}, re.Data)
	}
}

func TestUnreliableDatagram(t *testing.T) {
	acquireBackend(t)
	server := newServer(t, 4)
	client := newClient(t)
	serverPeer, _ := connectPair(t, server, client, 0)

	// datagrams may be lost; resend until one arrives
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, server.Send(serverPeer, 1, Packet{Data: []byte{9, 1, 2}, Flags: FlagUnsequenced}))
		server.Flush()
		ev, err := client.Service(100 * time.Millisecond)
		require.NoError(t, err)
		if ev == nil {
			continue
		}
		re, ok := ev.(ReceiveEvent)
		require.True(t, ok, "got %v", ev)
		assert.Equal(t, uint8(1), re.ChannelID)
		assert.Equal(t, []byte{9, 1, 2}, re.Data)
		return
	}
	t.Fatal("no datagram received")
}

func TestSendValidation(t *testing.T) {
	acquireBackend(t)
	server := newServer(t, 4)
	client := newClient(t)
	serverPeer, clientPeer := connectPair(t, server, client, 0)

	err := client.Send(clientPeer, 5, Packet{Data: []byte{1}, Flags: FlagReliable})
	assert.ErrorIs(t, err, ErrInvalidChannel)

	err = server.Send(serverPeer, 1, Packet{Data: make([]byte, 4096), Flags: FlagUnsequenced})
	assert.ErrorIs(t, err, ErrPacketTooLarge)

	assert.ErrorIs(t, client.Send(nil, 0, Packet{Data: []byte{1}}), ErrPeerNotConnected)
}

func TestDisconnectNowCarriesCode(t *testing.T) {
	acquireBackend(t)
	server := newServer(t, 4)
	client := newClient(t)
	serverPeer, clientPeer := connectPair(t, server, client, 0)

	server.DisconnectNow(serverPeer, 12)

	ev := nextEvent(t, server, time.Second)
	local, ok := ev.(DisconnectEvent)
	require.True(t, ok, "server got %v", ev)
	assert.Equal(t, CauseLocal, local.Cause)
	assert.Equal(t, uint32(12), local.Data)
	assert.Equal(t, 0, server.PeerCount())

	ev = nextEvent(t, client, 5*time.Second)
	remote, ok := ev.(DisconnectEvent)
	require.True(t, ok, "client got %v", ev)
	assert.Same(t, clientPeer, remote.Peer)
	assert.Equal(t, CauseRemote, remote.Cause)
	assert.Equal(t, uint32(12), remote.Data)

	// a second disconnect is a no-op and nothing follows the disconnect
	server.DisconnectNow(serverPeer, 12)
	ev, err := server.Service(100 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.ErrorIs(t, server.Send(serverPeer, 0, Packet{Data: []byte{1}, Flags: FlagReliable}), ErrPeerNotConnected)
}

func TestServerFullRefusesConnection(t *testing.T) {
	acquireBackend(t)
	server := newServer(t, 1)
	first := newClient(t)
	connectPair(t, server, first, 0)

	second := newClient(t)
	_, err := second.Connect(server.LocalAddr(), 0)
	require.NoError(t, err)

	ev := nextEvent(t, second, 5*time.Second)
	de, ok := ev.(DisconnectEvent)
	require.True(t, ok, "got %v", ev)
	assert.Equal(t, CauseRemote, de.Cause)
	assert.Equal(t, uint32(3), de.Data)
	assert.Equal(t, 1, server.PeerCount())
}

func TestConnectTimeout(t *testing.T) {
	acquireBackend(t)

	// a bound socket that never answers
	silent, err := net.ListenUDP("udp", &net.UDPAddr{IP: loopback})
	require.NoError(t, err)
	defer silent.Close()

	cfg := DefaultConfig()
	cfg.ConnectTimeout = 300 * time.Millisecond
	client, err := Create(cfg)
	require.NoError(t, err)
	defer client.Destroy()

	_, err = client.Connect(silent.LocalAddr().(*net.UDPAddr), 0)
	require.NoError(t, err)

	ev := nextEvent(t, client, 5*time.Second)
	de, ok := ev.(DisconnectEvent)
	require.True(t, ok, "got %v", ev)
	assert.Equal(t, CauseTimeout, de.Cause)
}

func TestCancelConnectIsSilent(t *testing.T) {
	acquireBackend(t)
	silent, err := net.ListenUDP("udp", &net.UDPAddr{IP: loopback})
	require.NoError(t, err)
	defer silent.Close()

	client := newClient(t)
	p, err := client.Connect(silent.LocalAddr().(*net.UDPAddr), 0)
	require.NoError(t, err)
	client.DisconnectNow(p, 0)
	assert.Equal(t, PeerDisconnected, p.State())

	ev, err := client.Service(500 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestSocketFailureReportsHostFailed(t *testing.T) {
	acquireBackend(t)
	server := newServer(t, 4)
	client := newClient(t)
	connectPair(t, server, client, 0)

	require.NoError(t, server.udp.Close())

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, err := server.Service(50 * time.Millisecond)
		if err != nil {
			assert.True(t, errors.Is(err, ErrHostFailed), "got %v", err)
			// peers of a failed host no longer count against capacity
			assert.Eventually(t, func() bool { return server.PeerCount() == 0 }, 5*time.Second, 10*time.Millisecond)
			return
		}
	}
	t.Fatal("host failure not reported")
}

func TestPeerCloseLeavesHostRunning(t *testing.T) {
	acquireBackend(t)
	server := newServer(t, 4)
	first := newClient(t)
	second := newClient(t)
	leaving, firstPeer := connectPair(t, server, first, 1)
	staying, secondPeer := connectPair(t, server, second, 2)
	require.Equal(t, 2, server.PeerCount())

	first.DisconnectNow(firstPeer, 5)

	ev := nextEvent(t, server, 5*time.Second)
	de, ok := ev.(DisconnectEvent)
	require.True(t, ok, "server got %v", ev)
	assert.Same(t, leaving, de.Peer)
	assert.Equal(t, CauseRemote, de.Cause)
	assert.Equal(t, uint32(5), de.Data)
	assert.Equal(t, 1, server.PeerCount())

	ev, err := server.Service(200 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, ev)
	ev, err = second.Service(200 * time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, ev)
	assert.Equal(t, PeerConnected, staying.State())
	assert.Equal(t, PeerConnected, secondPeer.State())

	require.NoError(t, second.Send(secondPeer, 0, Packet{Data: []byte{7}, Flags: FlagReliable}))
	ev = nextEvent(t, server, 5*time.Second)
	re, ok := ev.(ReceiveEvent)
	require.True(t, ok, "server got %v", ev)
	assert.Same(t, staying, re.Peer)
	assert.Equal(t, []byte{7}, re.Data)
}

func TestIdleTimeoutReportsTimeout(t *testing.T) {
	acquireBackend(t)
	server := newServer(t, 4)

	cfg := DefaultConfig()
	cfg.ConnectTimeout = 3 * time.Second
	cfg.IdleTimeout = 500 * time.Millisecond
	cfg.KeepAlive = 100 * time.Millisecond
	client, err := Create(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Destroy)

	_, clientPeer := connectPair(t, server, client, 0)

	// keep-alives hold the connection past the idle timeout
	ev, err := client.Service(time.Second)
	require.NoError(t, err)
	assert.Nil(t, ev)

	// a dead socket sends no close, so the client only sees silence
	require.NoError(t, server.udp.Close())

	ev = nextEvent(t, client, 5*time.Second)
	de, ok := ev.(DisconnectEvent)
	require.True(t, ok, "client got %v", ev)
	assert.Same(t, clientPeer, de.Peer)
	assert.Equal(t, CauseTimeout, de.Cause)
	assert.Equal(t, 0, client.PeerCount())
}

func TestDestroyIsIdempotent(t *testing.T) {
	acquireBackend(t)
	server := newServer(t, 4)
	client := newClient(t)
	connectPair(t, server, client, 0)

	server.Destroy()
	server.Destroy()

	_, err := server.Service(0)
	assert.ErrorIs(t, err, ErrHostDestroyed)
	_, err = server.Connect(client.LocalAddr(), 0)
	assert.ErrorIs(t, err, ErrHostDestroyed)

	// the client observes the shutdown as a remote close
	ev := nextEvent(t, client, 5*time.Second)
	_, ok := ev.(DisconnectEvent)
	assert.True(t, ok, "got %v", ev)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		cause DisconnectCause
		data  uint32
	}{
		{"remote close", &quic.ApplicationError{Remote: true, ErrorCode: 11}, CauseRemote, 11},
		{"local close", &quic.ApplicationError{ErrorCode: 4}, CauseLocal, 4},
		{"idle timeout", &quic.IdleTimeoutError{}, CauseTimeout, 0},
		{"wrapped remote", fmt.Errorf("read: %w", &quic.ApplicationError{Remote: true, ErrorCode: 2}), CauseRemote, 2},
		{"other", errors.New("boom"), CauseLost, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cause, data := classify(tt.err)
			assert.Equal(t, tt.cause, cause)
			assert.Equal(t, tt.data, data)
		})
	}
}
