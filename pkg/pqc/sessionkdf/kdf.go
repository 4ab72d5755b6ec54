// Package sessionkdf derives the symmetric SessionKey (C3) that both
// peers use for the chunked AEAD codec, from the 64-byte shared secret
// produced by the hybrid KEM.
package sessionkdf

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// Info is the fixed HKDF info string. Role-neutral: neither peer
// contributes identity-specific data, so both derive bit-identical keys
// from the same 64-byte input.
const Info = "hybrid-pqc-session/v1"

// KeySize is the derived SessionKey length in bytes.
const KeySize = 32

// Derive runs HKDF-SHA256 with an empty salt over sharedSecret (expected
// to be classical_ss || pqc_ss, 64 bytes) and returns the 32-byte
// SessionKey.
func Derive(sharedSecret []byte) ([]byte, error) {
	if len(sharedSecret) != 64 {
		return nil, pqcerr.New(pqcerr.BadInput, "session kdf: shared secret must be 64 bytes")
	}

	reader := hkdf.New(sha256.New, sharedSecret, nil, []byte(Info))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, pqcerr.Wrap(pqcerr.KeyGen, "session kdf: hkdf expand", err)
	}
	return key, nil
}
