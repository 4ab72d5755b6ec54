package channel

import (
	"context"
	"io"

	"github.com/pqfed/transfer/pkg/pqc/container"
	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// Callbacks are the pure events the core emits as the handshake and the
// data phase progress. A host wires in whatever it needs (metrics, logging,
// progress bars) without the core holding any global, mutable state of
// its own.
type Callbacks struct {
	HandshakeOK     func(Suite)
	ChunkSealed     func(index int, plaintextLen int)
	TrailerVerified func()
	SessionFailed   func(kind pqcerr.Kind)
}

func (c Callbacks) fail(err error) error {
	if c.SessionFailed != nil {
		if pe, ok := err.(*pqcerr.Error); ok {
			c.SessionFailed(pe.Kind)
		} else {
			c.SessionFailed(pqcerr.BadInput)
		}
	}
	return err
}

// SendStream drains r over an already-handshaken transport: a header
// message, then one message per sealed chunk, then a trailer message,
// then CLOSE_STREAM. It never buffers more than chunkSize bytes of
// plaintext at a time.
func SendStream(ctx context.Context, t DuplexTransport, sessionKey []byte, chunkSize uint32, plaintextLength uint64, r io.Reader, cb Callbacks) error {
	sealer, err := container.NewFrameSealer(sessionKey)
	if err != nil {
		return cb.fail(err)
	}

	header := container.EncodeHeader(container.Header{
		Version:           1,
		ChunkSize:         chunkSize,
		PlaintextLength:   plaintextLength,
		MasterNoncePrefix: sealer.NoncePrefix(),
	})
	if err := t.Send(ctx, append([]byte{byte(MsgHeader)}, header...)); err != nil {
		return cb.fail(pqcerr.Wrap(pqcerr.TransportClosed, "channel: send container header", err))
	}

	buf := make([]byte, chunkSize)
	index := 0
	for {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			frame := sealer.SealChunk(buf[:n])
			if err := t.Send(ctx, append([]byte{byte(MsgFrame)}, frame...)); err != nil {
				return cb.fail(pqcerr.Wrap(pqcerr.TransportClosed, "channel: send chunk frame", err))
			}
			if cb.ChunkSealed != nil {
				cb.ChunkSealed(index, n)
			}
			index++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return cb.fail(pqcerr.Wrap(pqcerr.BadInput, "channel: read plaintext", readErr))
		}
	}

	trailer := sealer.SealTrailer()
	if err := t.Send(ctx, append([]byte{byte(MsgFrame)}, trailer...)); err != nil {
		return cb.fail(pqcerr.Wrap(pqcerr.TransportClosed, "channel: send trailer frame", err))
	}
	if err := t.Send(ctx, EncodeCloseStream()); err != nil {
		return cb.fail(pqcerr.Wrap(pqcerr.TransportClosed, "channel: send close_stream", err))
	}
	return nil
}

// RecvStream accepts exactly header, chunk*, trailer, close_stream in
// order and writes the verified plaintext to w. Any other message type
// or ordering violation terminates the session with BadInput.
func RecvStream(ctx context.Context, t DuplexTransport, sessionKey []byte, w io.Writer, cb Callbacks) error {
	m, err := t.Recv(ctx)
	if err != nil {
		return cb.fail(pqcerr.Wrap(pqcerr.TransportClosed, "channel: recv container header", err))
	}
	tag, err := Tag(m)
	if err != nil {
		return cb.fail(err)
	}
	if tag != MsgHeader {
		return cb.fail(pqcerr.New(pqcerr.BadInput, "channel: expected container header message"))
	}
	header, err := container.DecodeHeader(Payload(m))
	if err != nil {
		return cb.fail(err)
	}

	opener, err := container.NewFrameOpener(sessionKey, header.MasterNoncePrefix, header.ChunkSize)
	if err != nil {
		return cb.fail(err)
	}

	index := 0
	for {
		m, err := t.Recv(ctx)
		if err != nil {
			return cb.fail(pqcerr.Wrap(pqcerr.TransportClosed, "channel: recv chunk frame", err))
		}
		tag, err := Tag(m)
		if err != nil {
			return cb.fail(err)
		}
		if tag != MsgFrame {
			return cb.fail(pqcerr.New(pqcerr.BadInput, "channel: expected frame message"))
		}
		plaintext, isTrailer, err := opener.OpenFrame(Payload(m))
		if err != nil {
			return cb.fail(err)
		}
		if isTrailer {
			if cb.TrailerVerified != nil {
				cb.TrailerVerified()
			}
			break
		}
		if _, err := w.Write(plaintext); err != nil {
			return cb.fail(pqcerr.Wrap(pqcerr.BadInput, "channel: write plaintext", err))
		}
		index++
	}

	closeMsg, err := t.Recv(ctx)
	if err != nil {
		return cb.fail(pqcerr.Wrap(pqcerr.TransportClosed, "channel: recv close_stream", err))
	}
	closeTag, err := Tag(closeMsg)
	if err != nil {
		return cb.fail(err)
	}
	if closeTag != MsgCloseStream {
		return cb.fail(pqcerr.New(pqcerr.BadInput, "channel: expected close_stream"))
	}
	return nil
}
