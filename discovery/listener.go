package discovery

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/netplay/limits"
)

// Listener periodically multicasts discovery requests and reports every
// valid response to its Observer.
type Listener struct {
	observer Observer
	opts     Options
	conn     net.PacketConn
	target   net.Addr
	stats    counters

	refresh   chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewListener opens a socket and starts discovering servers. If the socket
// cannot be set up the listener is inert: Active reports false and Close
// does nothing.
func NewListener(observer Observer, opts Options) *Listener {
	opts = opts.withDefaults()
	conn, err := openSocket(opts, 0, false)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewListener",
			"error":    err.Error(),
		}).Debug("Discovery listener disabled")
		return &Listener{observer: observer, opts: opts}
	}
	return newListener(conn, opts.groupAddr(), observer, opts)
}

// newListener starts a listener sending its requests to target.
func newListener(conn net.PacketConn, target net.Addr, observer Observer, opts Options) *Listener {
	l := &Listener{
		observer: observer,
		opts:     opts,
		conn:     conn,
		target:   target,
		refresh:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

// Active reports whether the listener is running.
func (l *Listener) Active() bool {
	return l.conn != nil
}

// Stats returns the traffic counters.
func (l *Listener) Stats() Stats {
	return l.stats.snapshot()
}

// Refresh sends a request within one response window instead of waiting
// for the next request interval.
func (l *Listener) Refresh() {
	if l.conn == nil {
		return
	}
	select {
	case l.refresh <- struct{}{}:
	default:
	}
}

// Close stops the listener and waits for its goroutine, which closes the
// socket. It is safe to call more than once.
func (l *Listener) Close() {
	if l.conn == nil {
		return
	}
	l.closeOnce.Do(func() {
		close(l.stop)
	})
	l.wg.Wait()
}

func (l *Listener) stopped() bool {
	select {
	case <-l.stop:
		return true
	default:
		return false
	}
}

func (l *Listener) run() {
	defer l.wg.Done()
	defer l.conn.Close()

	request := MarshalRequest()
	buf := make([]byte, limits.MaxDiscoveryPacket+1)
	var next time.Time

	for !l.stopped() {
		due := !l.opts.Clock.Now().Before(next)
		select {
		case <-l.refresh:
			due = true
		default:
		}
		if due {
			l.send(request)
			next = l.opts.Clock.Now().Add(l.opts.RequestInterval)
		}

		l.conn.SetReadDeadline(time.Now().Add(l.opts.ResponseWait))
		for {
			n, src, err := l.conn.ReadFrom(buf)
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				if !isTimeout(err) {
					logrus.WithFields(logrus.Fields{
						"function": "Listener.run",
						"error":    err.Error(),
					}).Debug("Discovery read failed")
				}
				break
			}
			l.handle(buf[:n], src)
			if l.stopped() {
				return
			}
		}
	}
}

func (l *Listener) send(request []byte) {
	if _, err := l.conn.WriteTo(request, l.target); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Listener.send",
			"target":   l.target.String(),
			"error":    err.Error(),
		}).Debug("Discovery request not sent")
		return
	}
	l.stats.requests.Add(1)
}

func (l *Listener) handle(data []byte, src net.Addr) {
	resp, err := ParseResponse(data)
	if err != nil {
		l.stats.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Listener.handle",
			"source":   src.String(),
			"error":    err.Error(),
		}).Trace("Dropping discovery packet")
		return
	}
	l.stats.responses.Add(1)
	l.observer.OnServerFound(describe(resp, src, l.opts.LocalVersion, l.opts.Clock.Now()))
}
