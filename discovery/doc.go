// Package discovery finds game servers on the local network without a
// central directory.
//
// A server runs an Advertiser; clients run a Listener. The listener
// multicasts a request to an IPv6 link-local group every ten seconds and
// every advertiser on the segment answers it unicast. Both roles are
// independent of the game transport and run one goroutine each.
//
// # Advertising
//
//	adv := discovery.NewAdvertiser(discovery.ServerInfoFunc(func() discovery.ServerInfo {
//	    return discovery.ServerInfo{
//	        Port:           7440,
//	        ServerID:       serverID,
//	        Name:           "Friday night",
//	        CurrentPlayers: uint32(manager.PeerCount()),
//	        MaxPlayers:     16,
//	        Version:        discovery.PackVersion(1, 4, 0, 0),
//	    }
//	}), discovery.DefaultOptions())
//	defer adv.Close()
//
// A server whose name is empty is private and never answers. Responses are
// rate limited to one per 15 seconds so that many clients starting together
// do not flood the segment.
//
// # Listening
//
//	opts := discovery.DefaultOptions()
//	opts.LocalVersion = discovery.PackVersion(1, 4, 2, 0)
//	l := discovery.NewListener(discovery.ObserverFunc(func(d discovery.ServerDescription) {
//	    fmt.Println(d.Name, d.EndPoint(), d.IsCompatible)
//	}), opts)
//	defer l.Close()
//
// A fresh ServerDescription is produced for every response. Merging the
// results of several interfaces or cycles is up to the consumer; the browser
// package provides one.
//
// # Wire Format
//
// Every packet starts with an 8-byte signature and a 1-byte message type.
// Integers are big-endian, counts are unsigned varints:
//
//	request:  [signature u64][1]
//	response: [signature u64][2][port u16][server id 16 bytes]
//	          [name len u8][name][flags uvarint][game mode u8]
//	          [current players uvarint][max players uvarint]
//	          [level len u8][level][version u64]
//
// Flags bit 0 marks a password, bit 1 a whitelist. The version packs
// major.minor.patch.build in 16 bits each; builds are compatible when major
// and minor match.
//
// # Failure Handling
//
// Socket setup failures leave an inert instance whose Active method reports
// false. Malformed packets are dropped one by one. Errors are only logged at
// debug level.
package discovery
