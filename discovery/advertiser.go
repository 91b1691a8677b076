package discovery

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/netplay/limits"
)

// Advertiser answers discovery requests on behalf of a server. Responses are
// sent unicast to the requester and rate limited to one per ResponseLimit.
type Advertiser struct {
	provider ServerInfoProvider
	opts     Options
	conn     net.PacketConn
	limiter  *rate.Limiter
	stats    counters

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewAdvertiser opens the discovery socket and starts answering requests.
// If the socket cannot be set up the advertiser is inert: Active reports
// false and Close does nothing.
func NewAdvertiser(provider ServerInfoProvider, opts Options) *Advertiser {
	opts = opts.withDefaults()
	conn, err := openSocket(opts, opts.Port, true)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewAdvertiser",
			"port":     opts.Port,
			"error":    err.Error(),
		}).Debug("Discovery advertiser disabled")
		return &Advertiser{provider: provider, opts: opts}
	}
	return newAdvertiser(conn, provider, opts)
}

// newAdvertiser starts an advertiser on an already open socket.
func newAdvertiser(conn net.PacketConn, provider ServerInfoProvider, opts Options) *Advertiser {
	a := &Advertiser{
		provider: provider,
		opts:     opts,
		conn:     conn,
		limiter:  rate.NewLimiter(rate.Every(opts.ResponseLimit), 1),
		stop:     make(chan struct{}),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Active reports whether the advertiser is running.
func (a *Advertiser) Active() bool {
	return a.conn != nil
}

// LocalAddr returns the bound address, or nil for an inert advertiser.
func (a *Advertiser) LocalAddr() net.Addr {
	if a.conn == nil {
		return nil
	}
	return a.conn.LocalAddr()
}

// Stats returns the traffic counters.
func (a *Advertiser) Stats() Stats {
	return a.stats.snapshot()
}

// Close stops the advertiser and waits for its goroutine, which closes the
// socket. It is safe to call more than once.
func (a *Advertiser) Close() {
	if a.conn == nil {
		return
	}
	a.closeOnce.Do(func() {
		close(a.stop)
	})
	a.wg.Wait()
}

func (a *Advertiser) stopped() bool {
	select {
	case <-a.stop:
		return true
	default:
		return false
	}
}

func (a *Advertiser) run() {
	defer a.wg.Done()
	defer a.conn.Close()

	buf := make([]byte, limits.MaxDiscoveryPacket+1)
	for !a.stopped() {
		a.conn.SetReadDeadline(time.Now().Add(a.opts.ResponseInterval))
		n, src, err := a.conn.ReadFrom(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "Advertiser.run",
				"error":    err.Error(),
			}).Debug("Discovery read failed")
			continue
		}
		a.handle(buf[:n], src)
	}
}

func (a *Advertiser) handle(data []byte, src net.Addr) {
	typ, _, err := ParseHeader(data)
	if err != nil {
		a.stats.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Advertiser.handle",
			"source":   src.String(),
			"error":    err.Error(),
		}).Trace("Dropping discovery packet")
		return
	}
	if typ != MessageRequest {
		return
	}
	a.stats.requests.Add(1)

	info := a.provider.ServerInfo()
	if info.Private() {
		return
	}

	// the token is only spent by a response that was actually sent
	now := a.opts.Clock.Now()
	r := a.limiter.ReserveN(now, 1)
	if !r.OK() || r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		a.stats.limited.Add(1)
		return
	}

	resp, err := MarshalResponse(info.response())
	if err != nil {
		r.CancelAt(now)
		logrus.WithFields(logrus.Fields{
			"function": "Advertiser.handle",
			"error":    err.Error(),
		}).Debug("Cannot encode discovery response")
		return
	}
	if _, err := a.conn.WriteTo(resp, src); err != nil {
		r.CancelAt(now)
		logrus.WithFields(logrus.Fields{
			"function": "Advertiser.handle",
			"dest":     src.String(),
			"error":    err.Error(),
		}).Debug("Discovery response not sent")
		return
	}
	a.stats.responses.Add(1)

	logrus.WithFields(logrus.Fields{
		"function": "Advertiser.handle",
		"dest":     src.String(),
		"name":     info.Name,
	}).Trace("Discovery response sent")
}
