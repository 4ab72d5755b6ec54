package keystore

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"

	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// deriveWrapKey derives the 32-byte key that wraps the store's master
// key, via PBKDF2-HMAC-SHA256 over the passphrase and salt.
func deriveWrapKey(password string, salt []byte, iterations int) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, pqcerr.New(pqcerr.BadInput, "keystore: salt must be 16 bytes")
	}
	if iterations <= 0 {
		return nil, pqcerr.New(pqcerr.BadInput, "keystore: iterations must be positive")
	}
	return pbkdf2.Key([]byte(password), salt, iterations, MasterKeySize, sha256.New), nil
}
