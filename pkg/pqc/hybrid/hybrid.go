// Package hybrid implements the hybrid key establishment (C1): an X25519
// ECDH combined with an ML-KEM encapsulation, producing a single 64-byte
// shared secret that feeds the session KDF.
//
// The source this was modeled on let the decapsulator recompute the
// classical shared secret from state it never actually had, and silently
// substituted a zero placeholder. EncapsulatedKey carries the
// encapsulator's ephemeral classical public key so decapsulation is a
// pure function of (own secret key, encapsulated key) with no hidden
// state on either side.
package hybrid

import (
	"github.com/pqfed/transfer/pkg/pqc/classical"
	"github.com/pqfed/transfer/pkg/pqc/kem"
	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
	"github.com/pqfed/transfer/pkg/pqc/pqczero"
)

// PublicKey is the classical+PQC public key bundle a peer hands out.
type PublicKey struct {
	ClassicalPK []byte // 32-byte X25519 public key
	PQCPK       []byte
	Alg         kem.Alg
}

// SecretKey is the classical+PQC secret key bundle. Owned exclusively by
// its generator; zeroize after use via Zeroize.
type SecretKey struct {
	ClassicalSK []byte // 32-byte X25519 private key
	PQCSK       []byte
	Alg         kem.Alg
}

// Zeroize wipes both halves of the secret key in place.
func (sk *SecretKey) Zeroize() {
	if sk == nil {
		return
	}
	pqczero.Bytes(sk.ClassicalSK)
	pqczero.Bytes(sk.PQCSK)
}

// EncapsulatedKey is produced by the encapsulator and consumed once by the
// decapsulator. It carries the encapsulator's ephemeral classical public
// key so decapsulation never depends on state the decapsulator doesn't
// have.
type EncapsulatedKey struct {
	PQCCiphertext       []byte
	ClassicalPKOfSender []byte // 32-byte ephemeral X25519 public key
	Alg                 kem.Alg
}

// GenerateKeypair generates a fresh X25519 keypair and an ML-KEM keypair
// for alg, returning the public and secret halves.
func GenerateKeypair(alg kem.Alg) (*PublicKey, *SecretKey, error) {
	classicalKP, err := classical.GenerateKeypair()
	if err != nil {
		return nil, nil, pqcerr.Wrap(pqcerr.KeyGen, "hybrid keypair: classical half", err)
	}
	pqcKP, err := kem.GenerateKeypair(alg)
	if err != nil {
		return nil, nil, pqcerr.Wrap(pqcerr.KeyGen, "hybrid keypair: pqc half", err)
	}

	pub := &PublicKey{ClassicalPK: classicalKP.PublicKey, PQCPK: pqcKP.PublicKey, Alg: alg}
	sec := &SecretKey{ClassicalSK: classicalKP.PrivateKey, PQCSK: pqcKP.PrivateKey, Alg: alg}
	return pub, sec, nil
}

// Encapsulate performs the hybrid encapsulation against a peer's public
// key bundle. It returns the EncapsulatedKey to send to the peer and the
// 64-byte shared secret (classical_ss || pqc_ss) for the session KDF.
func Encapsulate(peerPK *PublicKey) (*EncapsulatedKey, []byte, error) {
	if peerPK == nil {
		return nil, nil, pqcerr.New(pqcerr.BadInput, "hybrid encapsulate: nil peer public key")
	}

	ephemeral, err := classical.GenerateKeypair()
	if err != nil {
		return nil, nil, pqcerr.Wrap(pqcerr.KeyGen, "hybrid encapsulate: ephemeral classical keypair", err)
	}
	classicalSS, err := classical.Exchange(ephemeral.PrivateKey, peerPK.ClassicalPK)
	if err != nil {
		return nil, nil, pqcerr.Wrap(pqcerr.BadInput, "hybrid encapsulate: classical exchange", err)
	}

	pqcCT, pqcSS, err := kem.Encapsulate(peerPK.Alg, peerPK.PQCPK)
	if err != nil {
		return nil, nil, pqcerr.Wrap(pqcerr.KeyGen, "hybrid encapsulate: pqc encapsulation", err)
	}

	shared := make([]byte, 0, len(classicalSS)+len(pqcSS))
	shared = append(shared, classicalSS...)
	shared = append(shared, pqcSS...)

	encap := &EncapsulatedKey{
		PQCCiphertext:       pqcCT,
		ClassicalPKOfSender: ephemeral.PublicKey,
		Alg:                 peerPK.Alg,
	}
	return encap, shared, nil
}

// Decapsulate completes the hybrid key establishment using the holder's
// own secret key and a peer's EncapsulatedKey. It returns the same
// 64-byte shared secret the encapsulator derived.
func Decapsulate(ownSK *SecretKey, encap *EncapsulatedKey) ([]byte, error) {
	if ownSK == nil || encap == nil {
		return nil, pqcerr.New(pqcerr.BadInput, "hybrid decapsulate: nil secret key or encapsulated key")
	}
	if encap.Alg != ownSK.Alg {
		return nil, pqcerr.New(pqcerr.AlgMismatch, "hybrid decapsulate: encapsulated key alg does not match secret key alg")
	}

	classicalSS, err := classical.Exchange(ownSK.ClassicalSK, encap.ClassicalPKOfSender)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.BadInput, "hybrid decapsulate: classical exchange", err)
	}

	pqcSS, err := kem.Decapsulate(ownSK.Alg, ownSK.PQCSK, encap.PQCCiphertext)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.AuthFailed, "hybrid decapsulate: pqc decapsulation", err)
	}

	shared := make([]byte, 0, len(classicalSS)+len(pqcSS))
	shared = append(shared, classicalSS...)
	shared = append(shared, pqcSS...)
	return shared, nil
}
