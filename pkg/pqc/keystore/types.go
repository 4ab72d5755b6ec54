// Package keystore persists long-lived hybrid keypairs at rest under a
// user passphrase (C5). It is not on the data path: used only at
// startup to load a keypair for a handshake, and at shutdown/rotation
// to store one.
package keystore

import (
	"time"

	"github.com/pqfed/transfer/pkg/pqc/hybrid"
	"github.com/pqfed/transfer/pkg/pqc/kem"
	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

const (
	// SaltSize is the PBKDF2 salt length for the master blob.
	SaltSize = 16
	// MasterKeySize is the random master key's length.
	MasterKeySize = 32
	// DefaultIterations is the PBKDF2 iteration count for the wrap key.
	DefaultIterations = 100000
	// MaxKeyIDLength is the longest key id this store accepts.
	MaxKeyIDLength = 128

	masterBlobName = "master"
	lockFileName   = ".lock"
	blobExt        = ".key"
)

// validateID rejects any id outside the [A-Za-z0-9_-]{1,128} charset a
// key id's blob filename is built from. Without this check a caller
// could pass an id like "../../etc/passwd" and have blobPath join it
// straight into a path that escapes the store directory.
func validateID(id string) error {
	if len(id) == 0 || len(id) > MaxKeyIDLength {
		return pqcerr.New(pqcerr.BadInput, "keystore: key id must be 1..128 characters")
	}
	for _, r := range id {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return pqcerr.New(pqcerr.BadInput, "keystore: key id must match [A-Za-z0-9_-]")
		}
	}
	return nil
}

// StoredKey is one keystore entry: a hybrid keypair plus metadata. For
// an imported public-only entry, ClassicalSK and PQCSK are empty.
type StoredKey struct {
	KeyID       string            `json:"key_id"`
	Algorithm   uint8             `json:"algorithm"`
	ClassicalPK []byte            `json:"classical_pk"`
	PQCPK       []byte            `json:"pqc_pk"`
	ClassicalSK []byte            `json:"classical_sk,omitempty"`
	PQCSK       []byte            `json:"pqc_sk,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PublicKey reconstructs the hybrid public key half of this entry.
func (sk StoredKey) PublicKey() (*hybrid.PublicKey, error) {
	alg, err := kem.ParseAlg(sk.Algorithm)
	if err != nil {
		return nil, err
	}
	return &hybrid.PublicKey{ClassicalPK: sk.ClassicalPK, PQCPK: sk.PQCPK, Alg: alg}, nil
}

// SecretKey reconstructs the hybrid secret key half of this entry. It
// fails with BadInput on a public-only (imported) entry.
func (sk StoredKey) SecretKey() (*hybrid.SecretKey, error) {
	if len(sk.ClassicalSK) == 0 || len(sk.PQCSK) == 0 {
		return nil, pqcerr.New(pqcerr.BadInput, "keystore: entry has no private key material")
	}
	alg, err := kem.ParseAlg(sk.Algorithm)
	if err != nil {
		return nil, err
	}
	return &hybrid.SecretKey{ClassicalSK: sk.ClassicalSK, PQCSK: sk.PQCSK, Alg: alg}, nil
}

// Metadata is the list() summary for one entry: everything but the key
// material itself.
type Metadata struct {
	KeyID     string            `json:"key_id"`
	Algorithm uint8             `json:"algorithm"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}
