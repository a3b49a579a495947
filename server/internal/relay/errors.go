package relay

import "errors"

var (
	// ErrQueueFull is returned by Session.Enqueue when the outbound queue is
	// at capacity.
	ErrQueueFull = errors.New("relay: outbound queue full")

	// ErrSlowConsumer is the eviction reason for a session that could not
	// keep up with its room.
	ErrSlowConsumer = errors.New("relay: slow consumer evicted")

	// ErrSessionClosed is returned by Session.Enqueue after the session
	// has been closed.
	ErrSessionClosed = errors.New("relay: session closed")

	// ErrShuttingDown is returned by Hub.Serve once Shutdown has started and
	// is the eviction reason for sessions closed by it.
	ErrShuttingDown = errors.New("relay: shutting down")

	// ErrConnClosed is the error transports return from Receive when the
	// peer closed the connection normally.
	ErrConnClosed = errors.New("relay: connection closed")
)
