// Package netplay implements the peer-oriented transport of a multiplayer
// game: a ConnectionManager that runs either a client or a server endpoint,
// exchanges reliable and unreliable packets with its peers and reports
// connection events to a ConnectionHandler.
//
// LAN server discovery lives in the discovery sub-package, the reliable-UDP
// host in host.
//
// # Getting Started
//
// A server listens on a port and decides in OnPeerConnected whether to admit
// each peer:
//
//	handler := netplay.HandlerFuncs{
//	    Connected: func(peer netplay.Peer, data uint32) netplay.ConnectionResult {
//	        if data != protocolVersion {
//	            return netplay.Reject(netplay.ReasonIncompatibleVersion)
//	        }
//	        return netplay.Accept()
//	    },
//	    Received: func(peer netplay.Peer, ch netplay.NetworkChannel, typ uint8, payload []byte) {
//	        // handle packet
//	    },
//	}
//
//	server := netplay.NewConnectionManager(nil)
//	if err := server.CreateServer(handler, 7440); err != nil {
//	    log.Fatal(err)
//	}
//	defer server.Dispose()
//
// A client connects with a 32-bit handshake value:
//
//	client := netplay.NewConnectionManager(nil)
//	err := client.CreateClient(handler, "192.168.1.20", 7440, protocolVersion)
//
// # Channels
//
// Every packet travels on one of two channels:
//
//   - ChannelMain: reliable and ordered per peer
//   - ChannelUnreliableUpdates: unreliable and unsequenced, flushed on send
//
// There is no ordering between the two channels. A packet is a one byte
// packet type followed by an opaque payload:
//
//	err := server.SendTo(peer, netplay.ChannelMain, msgChat, []byte("hello"))
//	err = server.SendToAll(netplay.ChannelUnreliableUpdates, msgSnapshot, snapshot)
//
// In the client role the invalid Peer{} addresses the server.
//
// # Threading Model
//
// Each manager runs one background goroutine. It polls the host, sleeps a
// few milliseconds when idle and invokes the handler without holding any
// lock, so handlers may send and kick. Every send method and the polling
// share one mutex. Handler methods are never called concurrently.
//
// For every accepted peer OnPeerConnected precedes its packets and
// OnPeerDisconnected fires exactly once, after which nothing else is
// delivered for that peer.
//
// # Reasons
//
// A Reason travels as the connection's close code, so Kick(peer,
// ReasonBanned) is observed as ReasonBanned on both sides. Timeouts map to
// ReasonConnectionTimedOut and transport failures to ReasonConnectionLost.
//
// # Host Failure
//
// When the server's socket fails every accepted peer is reported with
// ReasonConnectionLost and the host is recreated on the same address. Peers
// are not re-registered; they must reconnect. If recreation fails the
// manager stays stopped until Dispose and CreateServer. A client whose host
// fails reports its server lost and stops.
//
// # Lifecycle
//
// Dispose stops the goroutine, destroys the host and releases the process
// wide transport backend. It is idempotent and must not be called from a
// handler callback.
package netplay
