package host

import "fmt"

// Event is a host event returned by Service. It is one of ConnectEvent,
// DisconnectEvent or ReceiveEvent.
type Event interface {
	EventPeer() *Peer
	fmt.Stringer
}

// ConnectEvent reports a completed handshake. Data is the handshake value
// sent by the client.
type ConnectEvent struct {
	Peer *Peer
	Data uint32
}

// DisconnectEvent reports the end of a peer's connection. It is the last
// event returned for that peer.
type DisconnectEvent struct {
	Peer  *Peer
	Cause DisconnectCause
	// Data is the close code. It is only meaningful for CauseRemote and CauseLocal.
	Data uint32
}

// ReceiveEvent carries one packet received from a connected peer.
type ReceiveEvent struct {
	Peer      *Peer
	ChannelID uint8
	Data      []byte
}

func (e ConnectEvent) EventPeer() *Peer    { return e.Peer }
func (e DisconnectEvent) EventPeer() *Peer { return e.Peer }
func (e ReceiveEvent) EventPeer() *Peer    { return e.Peer }

func (e ConnectEvent) String() string {
	return fmt.Sprintf("connect(%s, data=%d)", e.Peer, e.Data)
}

func (e DisconnectEvent) String() string {
	return fmt.Sprintf("disconnect(%s, %s, data=%d)", e.Peer, e.Cause, e.Data)
}

func (e ReceiveEvent) String() string {
	return fmt.Sprintf("receive(%s, channel=%d, %d bytes)", e.Peer, e.ChannelID, len(e.Data))
}

// DisconnectCause describes how a connection ended.
type DisconnectCause uint8

const (
	// CauseRemote means the remote side closed the connection with a code
	CauseRemote DisconnectCause = iota
	// CauseLocal means DisconnectNow was called for the peer
	CauseLocal
	// CauseTimeout means the handshake or the idle timer expired
	CauseTimeout
	// CauseLost means the connection failed for any other reason
	CauseLost
)

func (c DisconnectCause) String() string {
	switch c {
	case CauseRemote:
		return "remote"
	case CauseLocal:
		return "local"
	case CauseTimeout:
		return "timeout"
	case CauseLost:
		return "lost"
	default:
		return fmt.Sprintf("cause(%d)", uint8(c))
	}
}
