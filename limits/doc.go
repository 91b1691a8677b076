// Package limits provides centralized packet size constants and validation functions
// for netplay. This package ensures consistent size enforcement across the connection
// manager, the transport host and the LAN discovery codec.
//
// # Packet Size Hierarchy
//
//   - MaxUnreliablePacket (1100 bytes): The largest packet on the unreliable update
//     channel. Unreliable packets travel as QUIC datagrams which can never be
//     fragmented, so the limit keeps them inside the initial 1280 byte path MTU.
//
//   - MaxDiscoveryPacket (1024 bytes): The largest discovery request or response.
//     Receivers read into a buffer of this size and drop anything larger.
//
//   - MaxReliablePacket (256KiB): The largest packet on the main reliable channel.
//     Reliable packets are framed on a QUIC stream, so the limit only protects the
//     receiver from allocating unbounded frame buffers.
//
// # Validation Functions
//
// Each validation function checks for empty packets and size limit violations:
//
//	err := limits.ValidateUnreliable(packet)
//	if err != nil {
//	    // Handle validation error (ErrPacketEmpty or ErrPacketTooLarge)
//	}
//
// For custom size limits, use the generic ValidatePacket function:
//
//	err := limits.ValidatePacket(data, 4096)
//
// # Error Types
//
//   - ErrPacketEmpty: Returned when an empty or nil packet is provided
//   - ErrPacketTooLarge: Returned when a packet exceeds the specified limit
//   - ErrNameTooLong: Returned when a discovery name exceeds MaxNameLength
package limits
