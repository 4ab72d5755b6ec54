package container

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"hash"

	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// FrameSealer produces one self-contained wire frame per call, with no
// dependency on an io.Writer. The secure channel (C4) uses this directly
// so it can hand each frame to the transport as one discrete message;
// Encoder (encoder.go) wraps it for callers who just want an io.Writer.
type FrameSealer struct {
	gcm           cipherAEAD
	noncePrefix   [NoncePrefixSize]byte
	chunkIndex    uint32
	plaintextHash hash.Hash
}

// NewFrameSealer creates a sealer bound to sessionKey with a fresh random
// nonce prefix.
func NewFrameSealer(sessionKey []byte) (*FrameSealer, error) {
	gcm, err := newGCM(sessionKey)
	if err != nil {
		return nil, err
	}
	s := &FrameSealer{gcm: gcm, plaintextHash: sha256.New()}
	if _, err := rand.Read(s.noncePrefix[:]); err != nil {
		return nil, pqcerr.Wrap(pqcerr.KeyGen, "container: generate master nonce prefix", err)
	}
	return s, nil
}

// NoncePrefix returns the sealer's per-session nonce prefix, needed by
// the peer's FrameOpener and recorded in the container header.
func (s *FrameSealer) NoncePrefix() [NoncePrefixSize]byte { return s.noncePrefix }

// SealChunk seals one data chunk and returns the wire frame
// (ciphertext_length || nonce || tag || ciphertext). It updates the
// running plaintext digest.
func (s *FrameSealer) SealChunk(plaintext []byte) []byte {
	frame := s.seal(plaintext, false)
	s.plaintextHash.Write(plaintext)
	return frame
}

// SealTrailer seals the end-of-stream trailer carrying the SHA-256
// digest of every plaintext chunk sealed so far, and returns its wire
// frame. Call exactly once, after the last SealChunk.
func (s *FrameSealer) SealTrailer() []byte {
	digest := s.plaintextHash.Sum(nil)
	return s.seal(digest, true)
}

func (s *FrameSealer) seal(plaintext []byte, isTrailer bool) []byte {
	nonce := chunkNonce(s.noncePrefix, s.chunkIndex)
	aad := chunkAAD(s.chunkIndex, isTrailer)
	sealed := s.gcm.Seal(nil, nonce, plaintext, aad)
	ciphertext := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	frame := make([]byte, 0, 4+NonceSize+TagSize+len(ciphertext))
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(ciphertext)))
	frame = append(frame, lenBuf[:]...)
	frame = append(frame, nonce...)
	frame = append(frame, tag...)
	frame = append(frame, ciphertext...)

	s.chunkIndex++
	return frame
}

// FrameOpener verifies and decrypts frames produced by a peer's
// FrameSealer, in order, tracking the running plaintext digest.
type FrameOpener struct {
	gcm           cipherAEAD
	noncePrefix   [NoncePrefixSize]byte
	chunkSize     uint32
	chunkIndex    uint32
	plaintextHash hash.Hash
}

// NewFrameOpener creates an opener bound to sessionKey, the peer's
// noncePrefix (carried in the container header), and the negotiated
// chunkSize (used only to bound ciphertext length against memory DoS).
func NewFrameOpener(sessionKey []byte, noncePrefix [NoncePrefixSize]byte, chunkSize uint32) (*FrameOpener, error) {
	gcm, err := newGCM(sessionKey)
	if err != nil {
		return nil, err
	}
	return &FrameOpener{
		gcm:           gcm,
		noncePrefix:   noncePrefix,
		chunkSize:     chunkSize,
		plaintextHash: sha256.New(),
	}, nil
}

// OpenFrame decrypts one wire frame and reports whether it was the
// trailer. On a trailer frame it also verifies the digest against the
// running plaintext hash, returning DigestMismatch on mismatch.
func (o *FrameOpener) OpenFrame(frame []byte) (plaintext []byte, isTrailer bool, err error) {
	if len(frame) < 4+NonceSize+TagSize {
		return nil, false, pqcerr.New(pqcerr.Truncated, "container: frame shorter than fixed fields")
	}
	ciphertextLen := binary.LittleEndian.Uint32(frame[:4])
	rest := frame[4:]
	if uint32(len(rest)) != NonceSize+TagSize+ciphertextLen {
		return nil, false, pqcerr.New(pqcerr.BadInput, "container: frame length does not match declared ciphertext length")
	}
	if ciphertextLen > o.chunkSize {
		return nil, false, pqcerr.New(pqcerr.BadInput, "container: chunk ciphertext length exceeds configured chunk size")
	}

	nonce := rest[:NonceSize]
	tag := rest[NonceSize : NonceSize+TagSize]
	ciphertext := rest[NonceSize+TagSize:]

	expectedNonce := chunkNonce(o.noncePrefix, o.chunkIndex)
	if !bytes.Equal(nonce, expectedNonce) {
		return nil, false, pqcerr.New(pqcerr.NonceMismatch, "container: chunk nonce does not match expected sequence")
	}

	sealed := append(append([]byte(nil), ciphertext...), tag...)

	dataAAD := chunkAAD(o.chunkIndex, false)
	if pt, err := o.gcm.Open(nil, nonce, sealed, dataAAD); err == nil {
		o.chunkIndex++
		o.plaintextHash.Write(pt)
		return pt, false, nil
	}

	trailerAAD := chunkAAD(o.chunkIndex, true)
	pt, err := o.gcm.Open(nil, nonce, sealed, trailerAAD)
	if err != nil {
		return nil, false, pqcerr.New(pqcerr.AuthFailed, "container: chunk failed authentication")
	}
	if len(pt) != sha256.Size {
		return nil, false, pqcerr.New(pqcerr.BadInput, "container: trailer payload is not a 32-byte digest")
	}
	expected := o.plaintextHash.Sum(nil)
	if !bytes.Equal(pt, expected) {
		return nil, false, pqcerr.New(pqcerr.DigestMismatch, "container: trailer digest does not match delivered plaintext")
	}
	o.chunkIndex++
	return pt, true, nil
}
