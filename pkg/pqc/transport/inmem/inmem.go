// Package inmem provides an in-process DuplexTransport implementation
// backed by buffered channels, for tests and for same-process peers that
// don't need a real network.
package inmem

import (
	"context"

	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// Pipe is one endpoint of an in-memory duplex transport pair.
type Pipe struct {
	send   chan<- []byte
	recv   <-chan []byte
	closed chan struct{}
}

// New returns two connected Pipe endpoints: messages sent on one are
// received on the other, and vice versa.
func New(bufferSize int) (a, b *Pipe) {
	ab := make(chan []byte, bufferSize)
	ba := make(chan []byte, bufferSize)
	closedA := make(chan struct{})
	closedB := make(chan struct{})
	a = &Pipe{send: ab, recv: ba, closed: closedA}
	b = &Pipe{send: ba, recv: ab, closed: closedB}
	return a, b
}

// Send implements channel.DuplexTransport.
func (p *Pipe) Send(ctx context.Context, msg []byte) error {
	cp := append([]byte(nil), msg...)
	select {
	case p.send <- cp:
		return nil
	case <-ctx.Done():
		return pqcerr.Wrap(pqcerr.Timeout, "inmem: send deadline exceeded", ctx.Err())
	case <-p.closed:
		return pqcerr.New(pqcerr.TransportClosed, "inmem: pipe closed")
	}
}

// Recv implements channel.DuplexTransport.
func (p *Pipe) Recv(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-p.recv:
		if !ok {
			return nil, pqcerr.New(pqcerr.TransportClosed, "inmem: peer closed")
		}
		return msg, nil
	case <-ctx.Done():
		return nil, pqcerr.Wrap(pqcerr.Timeout, "inmem: recv deadline exceeded", ctx.Err())
	case <-p.closed:
		return nil, pqcerr.New(pqcerr.TransportClosed, "inmem: pipe closed")
	}
}

// Close marks this endpoint closed. Safe to call more than once.
func (p *Pipe) Close() error {
	select {
	case <-p.closed:
	default:
		close(p.closed)
	}
	return nil
}
