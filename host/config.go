package host

import (
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

// Flags select the delivery guarantees of a packet.
type Flags uint8

const (
	// FlagReliable delivers the packet reliably and in order on the peer's stream
	FlagReliable Flags = 1 << iota
	// FlagUnsequenced delivers the packet as a datagram without ordering or retransmission
	FlagUnsequenced
)

// Packet is a unit of data handed to Send.
type Packet struct {
	Data  []byte
	Flags Flags
}

// Reliable reports whether the packet travels on the reliable stream.
func (p Packet) Reliable() bool {
	return p.Flags&FlagReliable != 0
}

// Config configures a Host.
type Config struct {
	// Addr is the local address to bind. Nil binds an ephemeral port on all interfaces.
	Addr *net.UDPAddr
	// Listen accepts incoming connections when true.
	Listen bool
	// MaxPeers bounds the number of simultaneous peers. Connections beyond it
	// are closed with FullData.
	MaxPeers int
	// ChannelCount is the number of channels available to Send.
	ChannelCount int

	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	KeepAlive      time.Duration

	// EventQueueSize is the soft bound of undelivered events. Stream readers
	// pause and datagrams are dropped while it is exceeded.
	EventQueueSize int
	// OutboundQueueSize bounds reliable packets waiting to be written per peer.
	OutboundQueueSize int
	// DatagramQueueSize bounds unreliable packets waiting for Flush per peer.
	DatagramQueueSize int

	// FullData is the close code sent to connections refused for capacity.
	FullData uint32
	// ShutdownData is the close code sent to every peer by Destroy.
	ShutdownData uint32
}

// DefaultConfig returns a Config with sensible defaults for a client host.
func DefaultConfig() Config {
	return Config{
		MaxPeers:          128,
		ChannelCount:      2,
		ConnectTimeout:    10 * time.Second,
		IdleTimeout:       30 * time.Second,
		KeepAlive:         5 * time.Second,
		EventQueueSize:    1024,
		OutboundQueueSize: 256,
		DatagramQueueSize: 256,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPeers <= 0 {
		c.MaxPeers = d.MaxPeers
	}
	if c.ChannelCount <= 0 {
		c.ChannelCount = d.ChannelCount
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = d.KeepAlive
	}
	if c.EventQueueSize <= 0 {
		c.EventQueueSize = d.EventQueueSize
	}
	if c.OutboundQueueSize <= 0 {
		c.OutboundQueueSize = d.OutboundQueueSize
	}
	if c.DatagramQueueSize <= 0 {
		c.DatagramQueueSize = d.DatagramQueueSize
	}
	return c
}

func (c Config) quicConfig() *quic.Config {
	return &quic.Config{
		EnableDatagrams:       true,
		HandshakeIdleTimeout:  c.ConnectTimeout,
		MaxIdleTimeout:        c.IdleTimeout,
		KeepAlivePeriod:       c.KeepAlive,
		MaxIncomingStreams:    1,
		MaxIncomingUniStreams: -1,
	}
}
