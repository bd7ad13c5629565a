package relay

import "errors"

var (
	// ErrConnClosed is returned by Send once a connection has started closing.
	ErrConnClosed = errors.New("relay: connection closed")

	// ErrSendQueueFull is returned by Send when the outbound queue is full.
	// The payload is dropped; the caller never blocks on a slow peer.
	ErrSendQueueFull = errors.New("relay: send queue full")

	// ErrPersist wraps identity-resolution and store failures. No payload is
	// pushed when it is returned.
	ErrPersist = errors.New("relay: persistence failed")

	// ErrShutdownTimeout is returned by Handler.Close when sessions did not
	// finish before the context expired.
	ErrShutdownTimeout = errors.New("relay: shutdown timed out")
)
