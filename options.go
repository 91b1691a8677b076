package netplay

import "time"

// MinServerPeers is the smallest peer capacity a server is created with
// unless Options.AllowSmallCapacity is set.
const MinServerPeers = 128

// Options configures a ConnectionManager.
type Options struct {
	// MaxPeers is the server's peer capacity. Values below MinServerPeers are
	// raised to it.
	MaxPeers int
	// AllowSmallCapacity keeps MaxPeers below MinServerPeers. Meant for tests.
	AllowSmallCapacity bool
	// BindAddress is the IP a server binds. Empty binds every interface.
	BindAddress string

	// ConnectAttempts is the number of polls a client waits for its
	// connection before giving up with ReasonConnectionTimedOut.
	ConnectAttempts int
	// ConnectPollInterval is the length of each connect poll.
	ConnectPollInterval time.Duration
	// IdlePollInterval is how long the service loop sleeps when no event is pending.
	IdlePollInterval time.Duration

	// IdleTimeout ends connections that stay silent this long.
	IdleTimeout time.Duration
	// KeepAlive is the interval of keep-alive packets on idle connections.
	KeepAlive time.Duration
	// OutboundQueueSize bounds queued reliable packets per peer.
	OutboundQueueSize int
}

// NewOptions returns Options with the default values.
func NewOptions() *Options {
	return &Options{
		MaxPeers:            MinServerPeers,
		ConnectAttempts:     10,
		ConnectPollInterval: time.Second,
		IdlePollInterval:    4 * time.Millisecond,
		IdleTimeout:         30 * time.Second,
		KeepAlive:           5 * time.Second,
		OutboundQueueSize:   256,
	}
}

// normalize fills zero fields with defaults.
func (o Options) normalize() Options {
	d := NewOptions()
	if o.MaxPeers <= 0 {
		o.MaxPeers = d.MaxPeers
	}
	if o.MaxPeers < MinServerPeers && !o.AllowSmallCapacity {
		o.MaxPeers = MinServerPeers
	}
	if o.ConnectAttempts <= 0 {
		o.ConnectAttempts = d.ConnectAttempts
	}
	if o.ConnectPollInterval <= 0 {
		o.ConnectPollInterval = d.ConnectPollInterval
	}
	if o.IdlePollInterval <= 0 {
		o.IdlePollInterval = d.IdlePollInterval
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = d.IdleTimeout
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = d.KeepAlive
	}
	if o.OutboundQueueSize <= 0 {
		o.OutboundQueueSize = d.OutboundQueueSize
	}
	return o
}
