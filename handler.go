package netplay

// ConnectionHandler receives the events of a ConnectionManager. Methods are
// called from the manager's background goroutine, one at a time, never
// concurrently with each other. They may call the manager's send methods and
// Kick, but must not call Dispose.
type ConnectionHandler interface {
	// OnPeerConnected is called when a peer completed the handshake.
	// handshakeData is the value the client passed to CreateClient.
	OnPeerConnected(peer Peer, handshakeData uint32) ConnectionResult
	// OnPeerDisconnected is called exactly once for every accepted peer.
	OnPeerDisconnected(peer Peer, reason Reason)
	// OnPacketReceived delivers one packet. payload is owned by the callee.
	OnPacketReceived(peer Peer, channel NetworkChannel, packetType uint8, payload []byte)
}

// HandlerFuncs adapts plain functions to ConnectionHandler. A nil
// Connected accepts every peer; other nil fields ignore their event.
type HandlerFuncs struct {
	Connected    func(peer Peer, handshakeData uint32) ConnectionResult
	Disconnected func(peer Peer, reason Reason)
	Received     func(peer Peer, channel NetworkChannel, packetType uint8, payload []byte)
}

func (f HandlerFuncs) OnPeerConnected(peer Peer, handshakeData uint32) ConnectionResult {
	if f.Connected == nil {
		return Accept()
	}
	return f.Connected(peer, handshakeData)
}

func (f HandlerFuncs) OnPeerDisconnected(peer Peer, reason Reason) {
	if f.Disconnected != nil {
		f.Disconnected(peer, reason)
	}
}

func (f HandlerFuncs) OnPacketReceived(peer Peer, channel NetworkChannel, packetType uint8, payload []byte) {
	if f.Received != nil {
		f.Received(peer, channel, packetType, payload)
	}
}
