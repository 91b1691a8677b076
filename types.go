package netplay

import (
	"fmt"
	"net"

	"github.com/opd-ai/netplay/host"
)

// NetworkState is the lifecycle state of a ConnectionManager.
//
// A client moves None -> Connecting -> Connected -> None. A server moves
// None -> Listening -> None.
type NetworkState int32

const (
	StateNone NetworkState = iota
	StateListening
	StateConnecting
	StateConnected
)

func (s NetworkState) String() string {
	switch s {
	case StateNone:
		return "None"
	case StateListening:
		return "Listening"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return fmt.Sprintf("NetworkState(%d)", int32(s))
	}
}

// NetworkChannel selects the delivery guarantees of a packet.
type NetworkChannel uint8

const (
	// ChannelMain is reliable and ordered per peer.
	ChannelMain NetworkChannel = iota
	// ChannelUnreliableUpdates is unreliable and unsequenced.
	ChannelUnreliableUpdates
)

// ChannelCount is the number of channels every host is created with.
const ChannelCount = 2

// Valid reports whether c names a known channel.
func (c NetworkChannel) Valid() bool {
	return c < ChannelCount
}

func (c NetworkChannel) flags() host.Flags {
	if c == ChannelMain {
		return host.FlagReliable
	}
	return host.FlagUnsequenced
}

func (c NetworkChannel) String() string {
	switch c {
	case ChannelMain:
		return "Main"
	case ChannelUnreliableUpdates:
		return "UnreliableUpdates"
	default:
		return fmt.Sprintf("NetworkChannel(%d)", uint8(c))
	}
}

// Reason explains why a connection was refused or ended. It travels as the
// close code of the connection so both sides observe the same value.
type Reason uint32

const (
	ReasonUnknown Reason = iota
	ReasonDisconnected
	ReasonIncompatibleVersion
	ReasonServerIsFull
	ReasonServerNotReady
	ReasonServerStopped
	ReasonServerStoppedForMaintenance
	ReasonServerStoppedForReconfiguration
	ReasonServerStoppedForUpdate
	ReasonConnectionLost
	ReasonConnectionTimedOut
	ReasonKicked
	ReasonBanned

	reasonCount
)

var reasonNames = [...]string{
	ReasonUnknown:                         "Unknown",
	ReasonDisconnected:                    "Disconnected",
	ReasonIncompatibleVersion:             "IncompatibleVersion",
	ReasonServerIsFull:                    "ServerIsFull",
	ReasonServerNotReady:                  "ServerNotReady",
	ReasonServerStopped:                   "ServerStopped",
	ReasonServerStoppedForMaintenance:     "ServerStoppedForMaintenance",
	ReasonServerStoppedForReconfiguration: "ServerStoppedForReconfiguration",
	ReasonServerStoppedForUpdate:          "ServerStoppedForUpdate",
	ReasonConnectionLost:                  "ConnectionLost",
	ReasonConnectionTimedOut:              "ConnectionTimedOut",
	ReasonKicked:                          "Kicked",
	ReasonBanned:                          "Banned",
}

// ReasonFromCode converts a close code received from the network. Unknown
// codes map to ReasonUnknown.
func ReasonFromCode(code uint32) Reason {
	if code >= uint32(reasonCount) {
		return ReasonUnknown
	}
	return Reason(code)
}

func (r Reason) String() string {
	if r < reasonCount {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", uint32(r))
}

// ConnectionResult is the verdict returned by OnPeerConnected.
type ConnectionResult struct {
	rejected bool
	reason   Reason
}

// Accept admits the peer.
func Accept() ConnectionResult {
	return ConnectionResult{}
}

// Reject refuses the peer. It is disconnected immediately with reason and
// never registered.
func Reject(reason Reason) ConnectionResult {
	return ConnectionResult{rejected: true, reason: reason}
}

// IsAccepted reports whether the result admits the peer.
func (r ConnectionResult) IsAccepted() bool {
	return !r.rejected
}

// Reason returns the rejection reason.
func (r ConnectionResult) Reason() Reason {
	return r.reason
}

func (r ConnectionResult) String() string {
	if r.IsAccepted() {
		return "Accept"
	}
	return "Reject(" + r.reason.String() + ")"
}

// Peer identifies one remote endpoint. Peers are small comparable values;
// the zero Peer is invalid. A Peer must not be used after its
// OnPeerDisconnected callback.
type Peer struct {
	p *host.Peer
}

// IsValid reports whether the peer refers to a connection.
func (p Peer) IsValid() bool {
	return p.p != nil
}

// ID returns a number identifying the peer within its manager, or 0 for the
// invalid peer.
func (p Peer) ID() uint64 {
	if p.p == nil {
		return 0
	}
	return p.p.ID()
}

// Addr returns the remote address, or nil for the invalid peer.
func (p Peer) Addr() net.Addr {
	if p.p == nil {
		return nil
	}
	return p.p.RemoteAddr()
}

func (p Peer) String() string {
	if p.p == nil {
		return "peer(invalid)"
	}
	return p.p.String()
}
