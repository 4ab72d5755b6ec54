// Package container implements the chunked streaming AEAD container
// format (C2): a self-describing sequence of AES-256-GCM-sealed chunks
// with an explicit end-of-stream trailer carrying a plaintext digest.
//
// Encoder and Decoder both hold bounded memory regardless of total
// payload size — never more than one chunk's worth of plaintext or
// ciphertext at a time.
package container

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"

	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

const (
	magic   = "PQCS"
	version = 1

	// NonceSize is the AES-256-GCM nonce length: 8-byte master prefix || 4-byte LE chunk index.
	NonceSize = 12
	// TagSize is the AES-256-GCM authentication tag length.
	TagSize = 16
	// NoncePrefixSize is the random per-session portion of the nonce.
	NoncePrefixSize = 8

	// DefaultChunkSize is the default plaintext chunk size (4 MiB).
	DefaultChunkSize = 4 << 20
	// MinChunkSize is the smallest permitted chunk size (64 KiB).
	MinChunkSize = 64 << 10
	// MaxChunkSize is the largest permitted chunk size (16 MiB).
	MaxChunkSize = 16 << 20

	// UnknownPlaintextLength is the header sentinel for a stream whose
	// total length is not known up front.
	UnknownPlaintextLength = 0xFFFFFFFFFFFFFFFF

	headerSize = 4 + 1 + 4 + 8 + NoncePrefixSize // magic, version, chunk_size, plaintext_length, nonce_prefix

	trailerMarker = 0x01
	dataMarker    = 0x00
)

// Header is the decoded ContainerHeader.
type Header struct {
	Version           uint8
	ChunkSize         uint32
	PlaintextLength   uint64
	MasterNoncePrefix [NoncePrefixSize]byte
}

func validateChunkSize(chunkSize uint32) error {
	if chunkSize < MinChunkSize || chunkSize > MaxChunkSize {
		return pqcerr.New(pqcerr.BadInput, "container: chunk size out of range")
	}
	return nil
}

// cipherAEAD narrows cipher.AEAD to what this package uses, so internal
// types don't carry a stdlib interface name directly.
type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

func newGCM(sessionKey []byte) (cipher.AEAD, error) {
	if len(sessionKey) != 32 {
		return nil, pqcerr.New(pqcerr.BadInput, "container: session key must be 32 bytes")
	}
	block, err := aes.NewCipher(sessionKey)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "container: aes cipher init", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "container: gcm init", err)
	}
	return gcm, nil
}

func chunkNonce(prefix [NoncePrefixSize]byte, chunkIndex uint32) []byte {
	nonce := make([]byte, NonceSize)
	copy(nonce, prefix[:])
	binary.LittleEndian.PutUint32(nonce[NoncePrefixSize:], chunkIndex)
	return nonce
}

func chunkAAD(chunkIndex uint32, isTrailer bool) []byte {
	aad := make([]byte, 5)
	binary.LittleEndian.PutUint32(aad, chunkIndex)
	if isTrailer {
		aad[4] = trailerMarker
	} else {
		aad[4] = dataMarker
	}
	return aad
}

// EncodeHeader encodes a ContainerHeader to its 25-byte wire form.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:4], magic)
	buf[4] = h.Version
	binary.LittleEndian.PutUint32(buf[5:9], h.ChunkSize)
	binary.LittleEndian.PutUint64(buf[9:17], h.PlaintextLength)
	copy(buf[17:25], h.MasterNoncePrefix[:])
	return buf
}

// DecodeHeader decodes a ContainerHeader from its 25-byte wire form.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) != headerSize {
		return h, pqcerr.New(pqcerr.Truncated, "container: short header")
	}
	if subtle.ConstantTimeCompare(buf[0:4], []byte(magic)) != 1 {
		return h, pqcerr.New(pqcerr.BadInput, "container: bad magic")
	}
	h.Version = buf[4]
	if h.Version != version {
		return h, pqcerr.New(pqcerr.BadInput, "container: unsupported version")
	}
	h.ChunkSize = binary.LittleEndian.Uint32(buf[5:9])
	if err := validateChunkSize(h.ChunkSize); err != nil {
		return h, err
	}
	h.PlaintextLength = binary.LittleEndian.Uint64(buf[9:17])
	copy(h.MasterNoncePrefix[:], buf[17:25])
	return h, nil
}
