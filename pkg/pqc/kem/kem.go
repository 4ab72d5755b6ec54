// Package kem wraps the ML-KEM (FIPS 203) parameter sets behind a single
// selectable Alg tag, so the hybrid layer above never imports circl
// directly.
package kem

import (
	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/kem/mlkem/mlkem512"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"

	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// Alg identifies an ML-KEM parameter set.
type Alg uint8

const (
	K512 Alg = iota + 1
	K768
	K1024
)

// String returns the wire/log name of the parameter set.
func (a Alg) String() string {
	switch a {
	case K512:
		return "ML-KEM-512"
	case K768:
		return "ML-KEM-768"
	case K1024:
		return "ML-KEM-1024"
	default:
		return "unknown"
	}
}

func (a Alg) scheme() (kem.Scheme, error) {
	switch a {
	case K512:
		return mlkem512.Scheme(), nil
	case K768:
		return mlkem768.Scheme(), nil
	case K1024:
		return mlkem1024.Scheme(), nil
	default:
		return nil, pqcerr.New(pqcerr.BadInput, "unknown ML-KEM algorithm tag")
	}
}

// ParseAlg maps a wire tag byte to an Alg.
func ParseAlg(tag uint8) (Alg, error) {
	a := Alg(tag)
	if _, err := a.scheme(); err != nil {
		return 0, err
	}
	return a, nil
}

// Keypair is an ML-KEM keypair for a single Alg.
type Keypair struct {
	Alg        Alg
	PublicKey  []byte
	PrivateKey []byte
}

// GenerateKeypair generates a new ML-KEM keypair for the given parameter set.
func GenerateKeypair(alg Alg) (*Keypair, error) {
	scheme, err := alg.scheme()
	if err != nil {
		return nil, err
	}

	pk, sk, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.KeyGen, "mlkem keypair generation", err)
	}
	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.KeyGen, "marshal mlkem public key", err)
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.KeyGen, "marshal mlkem private key", err)
	}
	return &Keypair{Alg: alg, PublicKey: pkBytes, PrivateKey: skBytes}, nil
}

// Encapsulate performs ML-KEM encapsulation against a peer public key and
// returns the ciphertext and the 32-byte shared secret.
func Encapsulate(alg Alg, publicKey []byte) (ciphertext, sharedSecret []byte, err error) {
	scheme, err := alg.scheme()
	if err != nil {
		return nil, nil, err
	}
	if len(publicKey) != scheme.PublicKeySize() {
		return nil, nil, pqcerr.New(pqcerr.BadInput, "mlkem public key size mismatch")
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, nil, pqcerr.Wrap(pqcerr.BadInput, "unmarshal mlkem public key", err)
	}
	ct, ss, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, pqcerr.Wrap(pqcerr.KeyGen, "mlkem encapsulate", err)
	}
	return ct, ss, nil
}

// Decapsulate performs ML-KEM decapsulation and returns the 32-byte shared
// secret.
func Decapsulate(alg Alg, privateKey, ciphertext []byte) (sharedSecret []byte, err error) {
	scheme, err := alg.scheme()
	if err != nil {
		return nil, err
	}
	if len(privateKey) != scheme.PrivateKeySize() {
		return nil, pqcerr.New(pqcerr.BadInput, "mlkem private key size mismatch")
	}
	if len(ciphertext) != scheme.CiphertextSize() {
		return nil, pqcerr.New(pqcerr.BadInput, "mlkem ciphertext size mismatch")
	}
	sk, err := scheme.UnmarshalBinaryPrivateKey(privateKey)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "unmarshal mlkem private key", err)
	}
	ss, err := scheme.Decapsulate(sk, ciphertext)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.AuthFailed, "mlkem decapsulate", err)
	}
	return ss, nil
}

// PublicKeySize returns the encoded public key length for alg.
func PublicKeySize(alg Alg) int {
	s, err := alg.scheme()
	if err != nil {
		return 0
	}
	return s.PublicKeySize()
}

// CiphertextSize returns the encapsulated ciphertext length for alg.
func CiphertextSize(alg Alg) int {
	s, err := alg.scheme()
	if err != nil {
		return 0
	}
	return s.CiphertextSize()
}
