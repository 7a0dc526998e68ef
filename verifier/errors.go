package verifier

import (
	"errors"
	"fmt"
)

// ErrPoolClosed is returned by Acquire after Close.
var ErrPoolClosed = errors.New("verifier: pool closed")

// ErrLeaseReleased is returned by Lease.Verify after Release.
var ErrLeaseReleased = errors.New("verifier: lease released")

// SessionInitError reports that no browser session could be set up.
// Callers should answer with a temporary-unavailability message.
type SessionInitError struct {
	Err error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("verifier: initialize session: %v", e.Err)
}

func (e *SessionInitError) Unwrap() error { return e.Err }
