package host

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendNotInitialized indicates Create was called without a backend reference
	ErrBackendNotInitialized = errors.New("transport backend not initialized")

	// ErrHostDestroyed indicates the host has been destroyed
	ErrHostDestroyed = errors.New("host destroyed")

	// ErrHostFailed indicates the host's socket failed and the host must be recreated
	ErrHostFailed = errors.New("host failed")

	// ErrPeerNotConnected indicates the peer is not in the connected state
	ErrPeerNotConnected = errors.New("peer not connected")

	// ErrQueueFull indicates the peer's outgoing queue is full
	ErrQueueFull = errors.New("outgoing queue full")

	// ErrInvalidChannel indicates a channel id outside the host's channel count
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrPacketTooLarge indicates a packet cannot be carried on its channel
	ErrPacketTooLarge = errors.New("packet too large")

	// ErrUnexpectedFrame indicates a stream frame arrived out of protocol order
	ErrUnexpectedFrame = errors.New("unexpected frame")
)

// OpError represents a host error with operation context
type OpError struct {
	Op   string // operation that caused the error
	Addr string // address if relevant
	Err  error  // underlying error
}

func (e *OpError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("host %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("host %s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func newOpError(op, addr string, err error) *OpError {
	return &OpError{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}
