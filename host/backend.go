package host

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// backend is the process-wide transport state shared by all hosts.
var backend struct {
	mu       sync.Mutex
	refs     int
	identity *identity
}

// Acquire takes a reference on the process-wide transport backend,
// initializing it on the first reference. Every successful Acquire must be
// paired with exactly one Release.
func Acquire() error {
	backend.mu.Lock()
	defer backend.mu.Unlock()

	if backend.refs == 0 {
		id, err := newIdentity()
		if err != nil {
			return fmt.Errorf("initialize transport backend: %w", err)
		}
		backend.identity = id
		logrus.WithFields(logrus.Fields{
			"function": "Acquire",
			"alpn":     ALPN,
		}).Debug("Transport backend initialized")
	}
	backend.refs++
	return nil
}

// Release drops a reference taken by Acquire. The backend is torn down when
// the last reference is released. Extra releases are ignored.
func Release() {
	backend.mu.Lock()
	defer backend.mu.Unlock()

	if backend.refs == 0 {
		logrus.WithField("function", "Release").Warn("Transport backend released more times than acquired")
		return
	}
	backend.refs--
	if backend.refs == 0 {
		backend.identity = nil
		logrus.WithField("function", "Release").Debug("Transport backend deinitialized")
	}
}

// References reports the number of outstanding backend references.
func References() int {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	return backend.refs
}

func currentIdentity() (*identity, error) {
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.identity == nil {
		return nil, ErrBackendNotInitialized
	}
	return backend.identity, nil
}
