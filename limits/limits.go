// Package limits provides centralized packet size limits for the netplay transport.
// This ensures consistent validation across the connection manager, host and discovery.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxReliablePacket is the largest packet accepted on the reliable channel,
	// including the one byte packet-type tag.
	MaxReliablePacket = 256 * 1024

	// MaxUnreliablePacket is the largest packet accepted on the unreliable channel.
	// It keeps a packet plus the channel byte inside one QUIC datagram at the
	// initial 1280 byte path MTU.
	MaxUnreliablePacket = 1100

	// MaxDiscoveryPacket bounds discovery requests and responses
	MaxDiscoveryPacket = 1024

	// MaxNameLength is the longest server or level name carried by discovery
	MaxNameLength = 255

	// MaxFrameBody bounds a single stream frame body read from the network.
	// Anything larger is treated as a protocol violation.
	MaxFrameBody = MaxReliablePacket
)

var (
	// ErrPacketEmpty indicates an empty packet was provided
	ErrPacketEmpty = errors.New("empty packet")

	// ErrPacketTooLarge indicates a packet exceeds its maximum size
	ErrPacketTooLarge = errors.New("packet too large")

	// ErrNameTooLong indicates a name does not fit its length prefix
	ErrNameTooLong = errors.New("name too long")
)

// ValidatePacket validates a packet against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidatePacket(packet []byte, maxSize int) error {
	if len(packet) == 0 {
		return ErrPacketEmpty
	}
	if len(packet) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPacketTooLarge, len(packet), maxSize)
	}
	return nil
}

// ValidateReliable validates a packet bound for the reliable channel.
func ValidateReliable(packet []byte) error {
	if len(packet) == 0 {
		return ErrPacketEmpty
	}
	if len(packet) > MaxReliablePacket {
		return fmt.Errorf("%w: reliable size %d exceeds limit %d", ErrPacketTooLarge, len(packet), MaxReliablePacket)
	}
	return nil
}

// ValidateUnreliable validates a packet bound for the unreliable channel.
func ValidateUnreliable(packet []byte) error {
	if len(packet) == 0 {
		return ErrPacketEmpty
	}
	if len(packet) > MaxUnreliablePacket {
		return fmt.Errorf("%w: unreliable size %d exceeds limit %d", ErrPacketTooLarge, len(packet), MaxUnreliablePacket)
	}
	return nil
}

// ValidateDiscovery validates a discovery datagram read from or written to the wire.
func ValidateDiscovery(packet []byte) error {
	if len(packet) == 0 {
		return ErrPacketEmpty
	}
	if len(packet) > MaxDiscoveryPacket {
		return fmt.Errorf("%w: discovery size %d exceeds limit %d", ErrPacketTooLarge, len(packet), MaxDiscoveryPacket)
	}
	return nil
}

// ValidateName checks that a name fits a one byte length prefix.
// Empty names are valid.
func ValidateName(name string) error {
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrNameTooLong, len(name), MaxNameLength)
	}
	return nil
}
