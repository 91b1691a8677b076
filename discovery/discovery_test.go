package discovery

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopbackConn(t *testing.T) net.PacketConn {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	return conn
}

func testOptions(mock *clock.Mock) Options {
	opts := Options{
		Clock:            mock,
		ResponseInterval: 20 * time.Millisecond,
		ResponseWait:     20 * time.Millisecond,
		RequestInterval:  time.Hour,
		LocalVersion:     PackVersion(1, 4, 0, 0),
	}
	return opts.withDefaults()
}

func testInfo() ServerInfo {
	return ServerInfo{
		Port:           7440,
		ServerID:       uuid.New(),
		Name:           "Friday night",
		HasWhitelist:   true,
		GameMode:       2,
		CurrentPlayers: 3,
		MaxPlayers:     8,
		LevelName:      "harbor",
		Version:        PackVersion(1, 4, 7, 12),
	}
}

// readResponse waits up to wait for a response on conn.
func readResponse(t *testing.T, conn net.PacketConn, wait time.Duration) (Response, bool) {
	t.Helper()
	buf := make([]byte, 2048)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		require.True(t, isTimeout(err), "unexpected error %v", err)
		return Response{}, false
	}
	resp, err := ParseResponse(buf[:n])
	require.NoError(t, err)
	return resp, true
}

func TestAdvertiserRateLimitsResponses(t *testing.T) {
	mock := clock.NewMock()
	info := testInfo()
	adv := newAdvertiser(loopbackConn(t), ServerInfoFunc(func() ServerInfo { return info }), testOptions(mock))
	defer adv.Close()

	client := loopbackConn(t)
	defer client.Close()

	for i := 0; i < 3; i++ {
		_, err := client.WriteTo(MarshalRequest(), adv.LocalAddr())
		require.NoError(t, err)
	}

	resp, ok := readResponse(t, client, time.Second)
	require.True(t, ok)
	assert.Equal(t, info.response(), resp)

	assert.Eventually(t, func() bool { return adv.Stats().Requests == 3 }, time.Second, 5*time.Millisecond)
	_, ok = readResponse(t, client, 100*time.Millisecond)
	assert.False(t, ok, "burst must produce a single response")
	assert.Equal(t, Stats{Requests: 3, Responses: 1, Limited: 2}, adv.Stats())

	mock.Add(15 * time.Second)
	_, err := client.WriteTo(MarshalRequest(), adv.LocalAddr())
	require.NoError(t, err)
	_, ok = readResponse(t, client, time.Second)
	assert.True(t, ok, "limit window elapsed")
}

// failingConn refuses the first failures writes
type failingConn struct {
	net.PacketConn
	failures atomic.Int32
}

func (c *failingConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	if c.failures.Add(-1) >= 0 {
		return 0, errors.New("write refused")
	}
	return c.PacketConn.WriteTo(b, addr)
}

func TestAdvertiserFailedWriteKeepsToken(t *testing.T) {
	mock := clock.NewMock()
	info := testInfo()
	conn := &failingConn{PacketConn: loopbackConn(t)}
	conn.failures.Store(1)
	adv := newAdvertiser(conn, ServerInfoFunc(func() ServerInfo { return info }), testOptions(mock))
	defer adv.Close()

	client := loopbackConn(t)
	defer client.Close()

	_, err := client.WriteTo(MarshalRequest(), adv.LocalAddr())
	require.NoError(t, err)
	_, ok := readResponse(t, client, 150*time.Millisecond)
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return adv.Stats().Requests == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, Stats{Requests: 1}, adv.Stats())

	// the clock has not moved; the failed write must not have used the window
	_, err = client.WriteTo(MarshalRequest(), adv.LocalAddr())
	require.NoError(t, err)
	resp, ok := readResponse(t, client, time.Second)
	require.True(t, ok, "response withheld after a failed write")
	assert.Equal(t, info.response(), resp)
	assert.Eventually(t, func() bool { return adv.Stats() == Stats{Requests: 2, Responses: 1} }, time.Second, 5*time.Millisecond)
}

func TestAdvertiserPrivateServerStaysSilent(t *testing.T) {
	mock := clock.NewMock()
	info := testInfo()
	info.Name = ""
	adv := newAdvertiser(loopbackConn(t), ServerInfoFunc(func() ServerInfo { return info }), testOptions(mock))
	defer adv.Close()

	client := loopbackConn(t)
	defer client.Close()

	_, err := client.WriteTo(MarshalRequest(), adv.LocalAddr())
	require.NoError(t, err)
	_, ok := readResponse(t, client, 150*time.Millisecond)
	assert.False(t, ok)
	assert.Equal(t, uint64(1), adv.Stats().Requests)
	assert.Zero(t, adv.Stats().Limited)
}

func TestAdvertiserDropsGarbage(t *testing.T) {
	mock := clock.NewMock()
	info := testInfo()
	adv := newAdvertiser(loopbackConn(t), ServerInfoFunc(func() ServerInfo { return info }), testOptions(mock))
	defer adv.Close()

	client := loopbackConn(t)
	defer client.Close()

	_, err := client.WriteTo([]byte("hello?"), adv.LocalAddr())
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return adv.Stats().Dropped == 1 }, time.Second, 5*time.Millisecond)

	// a response sent to an advertiser is ignored
	data, err := MarshalResponse(info.response())
	require.NoError(t, err)
	_, err = client.WriteTo(data, adv.LocalAddr())
	require.NoError(t, err)
	_, ok := readResponse(t, client, 100*time.Millisecond)
	assert.False(t, ok)
	assert.Zero(t, adv.Stats().Requests)
}

type foundRecorder struct {
	mu    sync.Mutex
	found []ServerDescription
}

func (r *foundRecorder) OnServerFound(desc ServerDescription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.found = append(r.found, desc)
}

func (r *foundRecorder) all() []ServerDescription {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ServerDescription(nil), r.found...)
}

func TestListenerFindsAdvertiser(t *testing.T) {
	advClock := clock.NewMock()
	info := testInfo()
	adv := newAdvertiser(loopbackConn(t), ServerInfoFunc(func() ServerInfo { return info }), testOptions(advClock))
	defer adv.Close()

	lisClock := clock.NewMock()
	rec := &foundRecorder{}
	l := newListener(loopbackConn(t), adv.LocalAddr(), rec, testOptions(lisClock))
	defer l.Close()

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	desc := rec.all()[0]

	assert.Equal(t, info.ServerID, desc.ID)
	assert.Equal(t, info.Name, desc.Name)
	assert.Equal(t, info.LevelName, desc.LevelName)
	assert.True(t, desc.HasWhitelist)
	assert.False(t, desc.HasPassword)
	assert.True(t, desc.IsLocal)
	assert.True(t, desc.IsCompatible)
	assert.False(t, desc.IsFull())
	assert.Equal(t, lisClock.Now(), desc.LastSeen)
	require.Len(t, desc.EndPoints, 1)
	assert.Equal(t, "127.0.0.1:7440", desc.EndPoints[0].String())
	assert.Equal(t, 7440, desc.EndPoint().Port)

	// the next request is an hour away, Refresh sends one now
	advClock.Add(15 * time.Second)
	l.Refresh()
	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), l.Stats().Requests)
	assert.Equal(t, uint64(2), l.Stats().Responses)
}

func TestListenerReportsIncompatibleVersion(t *testing.T) {
	info := testInfo()
	info.Version = PackVersion(2, 0, 0, 0)
	adv := newAdvertiser(loopbackConn(t), ServerInfoFunc(func() ServerInfo { return info }), testOptions(clock.NewMock()))
	defer adv.Close()

	rec := &foundRecorder{}
	l := newListener(loopbackConn(t), adv.LocalAddr(), rec, testOptions(clock.NewMock()))
	defer l.Close()

	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, rec.all()[0].IsCompatible)
	assert.Equal(t, info.Version, rec.all()[0].Version)
}

func TestListenerSendsOnInterval(t *testing.T) {
	target := loopbackConn(t)
	defer target.Close()

	mock := clock.NewMock()
	opts := testOptions(mock)
	opts.RequestInterval = 10 * time.Second
	l := newListener(loopbackConn(t), target.LocalAddr(), &foundRecorder{}, opts)
	defer l.Close()

	require.Eventually(t, func() bool { return l.Stats().Requests == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, uint64(1), l.Stats().Requests)

	mock.Add(10 * time.Second)
	require.Eventually(t, func() bool { return l.Stats().Requests == 2 }, time.Second, 5*time.Millisecond)

	buf := make([]byte, 64)
	require.NoError(t, target.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err := target.ReadFrom(buf)
	require.NoError(t, err)
	typ, _, err := ParseHeader(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, MessageRequest, typ)
}

func TestListenerDropsGarbage(t *testing.T) {
	target := loopbackConn(t)
	defer target.Close()

	rec := &foundRecorder{}
	lconn := loopbackConn(t)
	l := newListener(lconn, target.LocalAddr(), rec, testOptions(clock.NewMock()))
	defer l.Close()

	_, err := target.WriteTo([]byte{1, 2, 3}, lconn.LocalAddr())
	require.NoError(t, err)
	_, err = target.WriteTo(MarshalRequest(), lconn.LocalAddr())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return l.Stats().Dropped == 2 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, rec.all())
}

func TestCloseIsIdempotent(t *testing.T) {
	adv := newAdvertiser(loopbackConn(t), ServerInfoFunc(testInfo), testOptions(clock.NewMock()))
	adv.Close()
	adv.Close()

	l := newListener(loopbackConn(t), adv.LocalAddr(), &foundRecorder{}, testOptions(clock.NewMock()))
	l.Close()
	l.Close()
	l.Refresh()
}

func TestInertInstances(t *testing.T) {
	opts := DefaultOptions()
	opts.Group = net.ParseIP("10.0.0.1")

	adv := NewAdvertiser(ServerInfoFunc(testInfo), opts)
	assert.False(t, adv.Active())
	assert.Nil(t, adv.LocalAddr())
	adv.Close()

	l := NewListener(&foundRecorder{}, opts)
	assert.False(t, l.Active())
	l.Refresh()
	l.Close()
}

// TestMulticastDiscovery exercises the real IPv6 group. Hosts without IPv6
// multicast support skip it.
func TestMulticastDiscovery(t *testing.T) {
	if testing.Short() {
		t.Skip("multicast test skipped in short mode")
	}
	opts := DefaultOptions()
	opts.Port = 0
	opts.ResponseInterval = 20 * time.Millisecond
	opts.ResponseWait = 20 * time.Millisecond

	spare, err := openSocket(opts, 0, true)
	if err != nil {
		t.Skipf("no IPv6 multicast: %v", err)
	}
	port := spare.LocalAddr().(*net.UDPAddr).Port
	spare.Close()
	opts.Port = port

	info := testInfo()
	adv := NewAdvertiser(ServerInfoFunc(func() ServerInfo { return info }), opts)
	defer adv.Close()
	if !adv.Active() {
		t.Skip("advertiser could not start")
	}

	rec := &foundRecorder{}
	l := NewListener(rec, opts)
	defer l.Close()
	require.True(t, l.Active())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(rec.all()) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if len(rec.all()) == 0 {
		t.Skip("multicast loopback not delivered on this host")
	}
	assert.Equal(t, info.ServerID, rec.all()[0].ID)
}
