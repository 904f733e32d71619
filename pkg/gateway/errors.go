package gateway

import (
	"errors"
	"fmt"
)

// Sentinel errors for connection and correlation failures.
var (
	// ErrConnectionClosed is returned when a send hits a closed client.
	ErrConnectionClosed = errors.New("gateway: connection closed")

	// ErrConnectionLimit is returned when admission fails because the
	// registry is full and eviction is disabled.
	ErrConnectionLimit = errors.New("gateway: connection limit reached")

	// ErrNoClient is returned by command helpers when no client is
	// connected.
	ErrNoClient = errors.New("gateway: no connected client")

	// ErrRequestTimeout is returned when a correlated request sees no
	// reply within its deadline.
	ErrRequestTimeout = errors.New("gateway: request timed out")

	// ErrDuplicateRequest is returned when a request reuses an id that
	// already has an outstanding waiter.
	ErrDuplicateRequest = errors.New("gateway: duplicate request id")

	// ErrHandshakeFailed is returned when the opening exchange is
	// rejected.
	ErrHandshakeFailed = errors.New("gateway: handshake failed")
)

// HandshakeError carries the protocol error code sent to the client
// before the connection was closed.
type HandshakeError struct {
	Code    int
	Message string
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("gateway: handshake rejected (%d): %s", e.Code, e.Message)
}

func (e *HandshakeError) Unwrap() error { return ErrHandshakeFailed }
