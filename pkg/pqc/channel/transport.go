package channel

import "context"

// DuplexTransport is the abstract bidirectional message channel the
// handshake and data phase ride over: length-delimited messages,
// at-most-once, in-order, with a clean close signal. The concrete
// binding (WebSocket, in-memory pipe, anything else) lives outside this
// package; channel depends only on this interface.
type DuplexTransport interface {
	// Send transmits one complete message. It must not split msg across
	// multiple underlying frames or coalesce it with another Send.
	Send(ctx context.Context, msg []byte) error

	// Recv returns the next complete message in the order it was sent.
	// It returns TransportClosed (via pqcerr) once the peer has closed
	// cleanly and no further messages remain.
	Recv(ctx context.Context) ([]byte, error)

	// Close releases the transport's resources. Safe to call more than
	// once.
	Close() error
}
