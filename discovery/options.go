package discovery

import (
	"net"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultGroup is the link-local multicast group discovery requests are sent to.
var DefaultGroup = net.ParseIP("ff02::4a32")

// DefaultPort is the UDP port advertisers listen on.
const DefaultPort = 7439

// Options configures an Advertiser or a Listener.
type Options struct {
	// Group is the IPv6 multicast group. Defaults to DefaultGroup.
	Group net.IP
	// Port is the advertiser's UDP port. Defaults to DefaultPort.
	Port int
	// Interface names the network interface used for multicast. Empty
	// lets the system choose.
	Interface string

	// ResponseInterval bounds how long the advertiser blocks between checks
	// for requests and shutdown.
	ResponseInterval time.Duration
	// ResponseLimit is the minimum time between two advertiser responses.
	ResponseLimit time.Duration

	// RequestInterval is the time between two listener requests.
	RequestInterval time.Duration
	// ResponseWait is how long the listener waits for responses before
	// checking whether a new request is due.
	ResponseWait time.Duration

	// LocalVersion is compared with advertised versions, see IsCompatible.
	LocalVersion uint64

	// Clock drives rate limiting and request scheduling.
	Clock clock.Clock
}

// DefaultOptions returns the default discovery options.
func DefaultOptions() Options {
	return Options{
		Group:            DefaultGroup,
		Port:             DefaultPort,
		ResponseInterval: 500 * time.Millisecond,
		ResponseLimit:    15 * time.Second,
		RequestInterval:  10 * time.Second,
		ResponseWait:     500 * time.Millisecond,
		Clock:            clock.New(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Group == nil {
		o.Group = d.Group
	}
	if o.Port <= 0 {
		o.Port = d.Port
	}
	if o.ResponseInterval <= 0 {
		o.ResponseInterval = d.ResponseInterval
	}
	if o.ResponseLimit <= 0 {
		o.ResponseLimit = d.ResponseLimit
	}
	if o.RequestInterval <= 0 {
		o.RequestInterval = d.RequestInterval
	}
	if o.ResponseWait <= 0 {
		o.ResponseWait = d.ResponseWait
	}
	if o.Clock == nil {
		o.Clock = d.Clock
	}
	return o
}

// groupAddr returns the multicast destination for requests.
func (o Options) groupAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: o.Group, Port: o.Port, Zone: o.Interface}
}
