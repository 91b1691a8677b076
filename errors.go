package netplay

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRunning indicates CreateClient or CreateServer was called on a running manager
	ErrAlreadyRunning = errors.New("connection manager already running")

	// ErrNotRunning indicates the manager has no host
	ErrNotRunning = errors.New("connection manager not running")

	// ErrNilHandler indicates a nil ConnectionHandler was supplied
	ErrNilHandler = errors.New("nil connection handler")

	// ErrInvalidPeer indicates an operation needs a valid peer
	ErrInvalidPeer = errors.New("invalid peer")

	// ErrInvalidChannel indicates an unknown NetworkChannel
	ErrInvalidChannel = errors.New("invalid channel")

	// ErrSendFailed indicates the host refused to queue a packet; the packet was discarded
	ErrSendFailed = errors.New("send failed")
)

// ManagerError represents a ConnectionManager error with operation context
type ManagerError struct {
	Op   string // operation that caused the error
	Addr string // address if relevant
	Err  error  // underlying error
}

func (e *ManagerError) Error() string {
	if e.Addr != "" {
		return fmt.Sprintf("netplay %s %s: %v", e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("netplay %s: %v", e.Op, e.Err)
}

func (e *ManagerError) Unwrap() error {
	return e.Err
}

func newManagerError(op, addr string, err error) *ManagerError {
	return &ManagerError{
		Op:   op,
		Addr: addr,
		Err:  err,
	}
}
