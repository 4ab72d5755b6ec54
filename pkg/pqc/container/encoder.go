package container

import (
	"io"

	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// EncoderState tracks the encoder's position in Init → HeaderWritten →
// Streaming → Trailed → Closed.
type EncoderState int

const (
	EncoderInit EncoderState = iota
	EncoderHeaderWritten
	EncoderStreaming
	EncoderTrailed
	EncoderClosed
)

// Encoder seals an arbitrarily long plaintext stream into the chunked
// container format and writes it to w. Write may be called any number of
// times with arbitrarily sized buffers; Finish must be called exactly
// once to flush the final partial chunk and append the trailer. It is a
// thin io.Writer adapter over FrameSealer, for callers that want a plain
// byte stream rather than one transport message per frame.
type Encoder struct {
	w         io.Writer
	sealer    *FrameSealer
	chunkSize uint32
	pending   []byte
	state     EncoderState
}

// NewEncoder creates an Encoder bound to sessionKey and writes the
// container header to w immediately. plaintextLength may be
// UnknownPlaintextLength if the total size is not known up front.
func NewEncoder(w io.Writer, sessionKey []byte, chunkSize uint32, plaintextLength uint64) (*Encoder, error) {
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if err := validateChunkSize(chunkSize); err != nil {
		return nil, err
	}
	sealer, err := NewFrameSealer(sessionKey)
	if err != nil {
		return nil, err
	}

	e := &Encoder{w: w, sealer: sealer, chunkSize: chunkSize, state: EncoderInit}

	header := EncodeHeader(Header{
		Version:           version,
		ChunkSize:         chunkSize,
		PlaintextLength:   plaintextLength,
		MasterNoncePrefix: sealer.NoncePrefix(),
	})
	if _, err := w.Write(header); err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "container: write header", err)
	}
	e.state = EncoderHeaderWritten
	return e, nil
}

// Write buffers plaintext and seals one chunk per full chunkSize
// accumulated. It never holds more than chunkSize bytes of unsealed
// plaintext in memory.
func (e *Encoder) Write(p []byte) (int, error) {
	if e.state != EncoderHeaderWritten && e.state != EncoderStreaming {
		return 0, pqcerr.New(pqcerr.BadInput, "container: write after finish or on closed encoder")
	}
	e.state = EncoderStreaming

	total := len(p)
	for len(p) > 0 {
		n := int(e.chunkSize) - len(e.pending)
		if n > len(p) {
			n = len(p)
		}
		e.pending = append(e.pending, p[:n]...)
		p = p[n:]
		if uint32(len(e.pending)) == e.chunkSize {
			if _, err := e.w.Write(e.sealer.SealChunk(e.pending)); err != nil {
				return 0, pqcerr.Wrap(pqcerr.TransportClosed, "container: write chunk frame", err)
			}
			e.pending = e.pending[:0]
		}
	}
	return total, nil
}

// Finish flushes the remaining partial data chunk, if any (no empty data
// chunk is ever emitted), and
// appends the end-of-stream trailer carrying the SHA-256 digest of every
// data chunk's plaintext.
func (e *Encoder) Finish() error {
	if e.state != EncoderHeaderWritten && e.state != EncoderStreaming {
		return pqcerr.New(pqcerr.BadInput, "container: finish called more than once")
	}
	if len(e.pending) > 0 {
		if _, err := e.w.Write(e.sealer.SealChunk(e.pending)); err != nil {
			return pqcerr.Wrap(pqcerr.TransportClosed, "container: write final chunk frame", err)
		}
		e.pending = nil
	}

	if _, err := e.w.Write(e.sealer.SealTrailer()); err != nil {
		return pqcerr.Wrap(pqcerr.TransportClosed, "container: write trailer frame", err)
	}
	e.state = EncoderTrailed
	return nil
}

// Close marks the encoder closed. It is safe to call after Finish; it is
// an error to call before.
func (e *Encoder) Close() error {
	if e.state != EncoderTrailed {
		return pqcerr.New(pqcerr.BadInput, "container: close before finish")
	}
	e.state = EncoderClosed
	return nil
}

// State reports the encoder's current state.
func (e *Encoder) State() EncoderState { return e.state }
