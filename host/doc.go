// Package host implements the reliable/unreliable UDP endpoint used by netplay.
//
// A Host owns one UDP socket and speaks QUIC on it through quic-go. Each peer
// connection carries one bidirectional stream for reliable, ordered packets
// and QUIC datagrams for unreliable, unsequenced ones. Congestion control,
// retransmission and encryption are provided by QUIC.
//
// # Backend
//
// The process-wide backend holds the TLS identity shared by all hosts. It is
// reference counted:
//
//	if err := host.Acquire(); err != nil {
//	    return err
//	}
//	defer host.Release()
//
// The first Acquire generates a self-signed certificate and the last Release
// discards it. Create fails with ErrBackendNotInitialized without a reference.
//
// # Handshake
//
// A client connects with a 32-bit handshake value. After the QUIC handshake
// it opens the peer stream and sends a hello frame carrying the value; the
// server answers with a welcome frame echoing it. Both sides then report a
// ConnectEvent. Stream frames are:
//
//	[kind u8][channel u8][length u32 big-endian][body]
//
// Datagrams are [channel u8][body].
//
// # Events
//
// Internal goroutines push ConnectEvent, ReceiveEvent and DisconnectEvent
// values onto a queue drained by Service:
//
//	for {
//	    ev, err := h.Service(0)
//	    if err != nil {
//	        // ErrHostFailed: the socket died, destroy and recreate the host
//	    }
//	    switch e := ev.(type) {
//	    case host.ConnectEvent:
//	    case host.ReceiveEvent:
//	    case host.DisconnectEvent:
//	    }
//	}
//
// For each peer a ConnectEvent precedes every ReceiveEvent and the
// DisconnectEvent is the last event returned.
//
// # Close Codes
//
// DisconnectNow closes a connection immediately with a 32-bit code carried
// as the QUIC application error code. The remote side observes it as a
// DisconnectEvent with CauseRemote and the same Data.
//
// # Testing
//
// MockHost offers the same method set with Simulate helpers for injecting
// events deterministically.
package host
