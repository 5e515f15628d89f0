package bridge

import (
	"errors"
	"fmt"
)

// Errors
var (
	// ErrNotConnected rejects operations that require a live session.
	ErrNotConnected = errors.New("bridge not connected")

	// ErrConnClosing fails requests in flight when Disconnect is called.
	ErrConnClosing = errors.New("connection closing")

	// ErrConnectionLost fails requests in flight when the session dies.
	// Recoverable: the caller may retry once the bridge reconnects.
	ErrConnectionLost = errors.New("connection lost")

	// ErrRequestTimeout resolves a request whose deadline expired.
	ErrRequestTimeout = errors.New("request timed out")

	// ErrCircuitOpen rejects a connection attempt without touching the
	// venue while the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrKeepaliveTimeout marks a session lost after two missed probes.
	ErrKeepaliveTimeout = errors.New("keepalive hard timeout")

	// ErrBridgeClosed rejects use of a bridge after Close.
	ErrBridgeClosed = errors.New("bridge closed")

	// ErrDuplicateSubscription rejects a second subscription to a topic.
	ErrDuplicateSubscription = errors.New("already subscribed")
)

// VenueError is a venue-reported error passed through to the caller.
// Never retried internally; retry policy is caller-specific.
type VenueError struct {
	Code    string
	Message string
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue error %s: %s", e.Code, e.Message)
}
