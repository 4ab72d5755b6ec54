package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

const nonceSize = 12

// seal AEAD-seals plaintext under key and returns nonce || ciphertext
// (ciphertext carries the GCM tag).
func seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, pqcerr.Wrap(pqcerr.KeyGen, "keystore: generate nonce", err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	return append(nonce, sealed...), nil
}

// open reverses seal. Any failure (wrong key, tampering, truncation) is
// reported uniformly by the caller, which decides the right Kind
// (BadPassword for the master blob, StoreCorrupt for an entry blob).
func open(key, blob []byte) ([]byte, error) {
	if len(blob) < nonceSize {
		return nil, pqcerr.New(pqcerr.Truncated, "keystore: blob shorter than nonce")
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.AuthFailed, "keystore: aead open failed", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != MasterKeySize {
		return nil, pqcerr.New(pqcerr.BadInput, "keystore: key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "keystore: aes cipher init", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "keystore: gcm init", err)
	}
	return gcm, nil
}
