// Package classical provides the classical half of the hybrid key
// establishment: X25519 ECDH over crypto/ecdh.
package classical

import (
	"crypto/ecdh"
	"crypto/rand"

	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// PublicKeySize and PrivateKeySize are the X25519 key sizes in bytes.
const (
	PublicKeySize  = 32
	PrivateKeySize = 32
)

// Keypair is an X25519 ECDH keypair.
type Keypair struct {
	PublicKey  []byte // 32 bytes
	PrivateKey []byte // 32 bytes
}

// GenerateKeypair generates a new X25519 keypair using system entropy.
func GenerateKeypair() (*Keypair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.KeyGen, "x25519 keypair generation", err)
	}
	return &Keypair{
		PublicKey:  priv.PublicKey().Bytes(),
		PrivateKey: priv.Bytes(),
	}, nil
}

// Exchange performs constant-time X25519 ECDH and returns the 32-byte
// shared secret.
func Exchange(privateKey, publicKey []byte) ([]byte, error) {
	if len(privateKey) != PrivateKeySize {
		return nil, pqcerr.New(pqcerr.BadInput, "x25519 private key must be 32 bytes")
	}
	if len(publicKey) != PublicKeySize {
		return nil, pqcerr.New(pqcerr.BadInput, "x25519 public key must be 32 bytes")
	}

	priv, err := ecdh.X25519().NewPrivateKey(privateKey)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "parse x25519 private key", err)
	}
	pub, err := ecdh.X25519().NewPublicKey(publicKey)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "parse x25519 public key", err)
	}

	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "x25519 ecdh", err)
	}
	return secret, nil
}
