package container

import (
	"encoding/binary"
	"io"

	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// DecoderState tracks the decoder's position in Init → HeaderRead →
// Streaming → TrailerVerified → Closed.
type DecoderState int

const (
	DecoderInit DecoderState = iota
	DecoderHeaderRead
	DecoderStreaming
	DecoderTrailerVerified
	DecoderClosed
)

// Decoder opens a chunked container stream from r, verifying each
// chunk's AEAD tag and the final trailer digest against the running
// plaintext hash. It is a thin io.Reader adapter over FrameOpener.
type Decoder struct {
	r      io.Reader
	opener *FrameOpener
	header Header
	state  DecoderState

	// leftover holds plaintext already decrypted but not yet returned by
	// Read.
	leftover []byte
}

// NewDecoder reads and validates the container header from r and
// returns a Decoder bound to sessionKey.
func NewDecoder(r io.Reader, sessionKey []byte) (*Decoder, error) {
	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, pqcerr.Wrap(pqcerr.Truncated, "container: stream ended before header", err)
		}
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "container: read header", err)
	}
	header, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	opener, err := NewFrameOpener(sessionKey, header.MasterNoncePrefix, header.ChunkSize)
	if err != nil {
		return nil, err
	}

	return &Decoder{r: r, opener: opener, header: header, state: DecoderHeaderRead}, nil
}

// Header returns the decoded container header.
func (d *Decoder) Header() Header { return d.header }

// State reports the decoder's current state.
func (d *Decoder) State() DecoderState { return d.state }

// Read implements io.Reader. It returns io.EOF once the trailer has been
// read and its digest verified. A stream that ends before a trailer
// frame surfaces as a Truncated error, never as a plain io.EOF.
func (d *Decoder) Read(p []byte) (int, error) {
	if d.state == DecoderClosed || d.state == DecoderTrailerVerified {
		return 0, io.EOF
	}
	for len(d.leftover) == 0 {
		frame, err := d.readFrame()
		if err != nil {
			return 0, err
		}
		plaintext, isTrailer, err := d.opener.OpenFrame(frame)
		if err != nil {
			return 0, err
		}
		if isTrailer {
			d.state = DecoderTrailerVerified
			return 0, io.EOF
		}
		d.leftover = plaintext
		d.state = DecoderStreaming
	}
	n := copy(p, d.leftover)
	d.leftover = d.leftover[n:]
	return n, nil
}

// readFrame reads exactly one wire frame (length-prefixed) off the
// stream.
func (d *Decoder) readFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, pqcerr.Wrap(pqcerr.Truncated, "container: stream ended before trailer", err)
		}
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "container: read frame length", err)
	}
	ciphertextLen := binary.LittleEndian.Uint32(lenBuf[:])
	if ciphertextLen > d.header.ChunkSize {
		return nil, pqcerr.New(pqcerr.BadInput, "container: chunk ciphertext length exceeds configured chunk size")
	}

	rest := make([]byte, NonceSize+TagSize+int(ciphertextLen))
	if _, err := io.ReadFull(d.r, rest); err != nil {
		return nil, pqcerr.Wrap(pqcerr.Truncated, "container: read frame body", err)
	}

	frame := make([]byte, 0, 4+len(rest))
	frame = append(frame, lenBuf[:]...)
	frame = append(frame, rest...)
	return frame, nil
}

// Close marks the decoder closed. Safe to call once the trailer has been
// verified.
func (d *Decoder) Close() error {
	if d.state != DecoderTrailerVerified {
		return pqcerr.New(pqcerr.BadInput, "container: close before trailer verified")
	}
	d.state = DecoderClosed
	return nil
}
