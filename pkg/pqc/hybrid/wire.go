package hybrid

import (
	"encoding/binary"

	"github.com/pqfed/transfer/pkg/pqc/kem"
	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// Wire layout for PublicKey: u8(alg) || u8(len(classical_pk)) ||
// classical_pk || u32_le(len(pqc_pk)) || pqc_pk.
//
// Wire layout for EncapsulatedKey: u8(alg) || u8(len(classical_pk_of_sender))
// || classical_pk_of_sender || u32_le(len(pqc_ct)) || pqc_ct.
//
// Both are self-describing so a reader never needs out-of-band knowledge
// of the negotiated algorithm to parse the bytes that announce it.

// MarshalBinary encodes the public key for transmission over the channel.
func (p *PublicKey) MarshalBinary() ([]byte, error) {
	if len(p.ClassicalPK) > 255 {
		return nil, pqcerr.New(pqcerr.BadInput, "hybrid public key: classical component too large to encode")
	}
	buf := make([]byte, 0, 2+len(p.ClassicalPK)+4+len(p.PQCPK))
	buf = append(buf, byte(p.Alg))
	buf = append(buf, byte(len(p.ClassicalPK)))
	buf = append(buf, p.ClassicalPK...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(p.PQCPK)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, p.PQCPK...)
	return buf, nil
}

// UnmarshalPublicKey decodes a public key previously produced by
// MarshalBinary.
func UnmarshalPublicKey(data []byte) (*PublicKey, error) {
	if len(data) < 2 {
		return nil, pqcerr.New(pqcerr.BadInput, "hybrid public key: truncated header")
	}
	alg, err := kem.ParseAlg(data[0])
	if err != nil {
		return nil, err
	}
	classicalLen := int(data[1])
	data = data[2:]
	if len(data) < classicalLen+4 {
		return nil, pqcerr.New(pqcerr.BadInput, "hybrid public key: truncated classical component")
	}
	classicalPK := append([]byte(nil), data[:classicalLen]...)
	data = data[classicalLen:]
	pqcLen := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < pqcLen {
		return nil, pqcerr.New(pqcerr.BadInput, "hybrid public key: truncated pqc component")
	}
	pqcPK := append([]byte(nil), data[:pqcLen]...)
	return &PublicKey{ClassicalPK: classicalPK, PQCPK: pqcPK, Alg: alg}, nil
}

// MarshalBinary encodes the encapsulated key for transmission over the
// channel.
func (e *EncapsulatedKey) MarshalBinary() ([]byte, error) {
	if len(e.ClassicalPKOfSender) > 255 {
		return nil, pqcerr.New(pqcerr.BadInput, "encapsulated key: classical component too large to encode")
	}
	buf := make([]byte, 0, 2+len(e.ClassicalPKOfSender)+4+len(e.PQCCiphertext))
	buf = append(buf, byte(e.Alg))
	buf = append(buf, byte(len(e.ClassicalPKOfSender)))
	buf = append(buf, e.ClassicalPKOfSender...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.PQCCiphertext)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, e.PQCCiphertext...)
	return buf, nil
}

// UnmarshalEncapsulatedKey decodes an EncapsulatedKey previously produced
// by MarshalBinary.
func UnmarshalEncapsulatedKey(data []byte) (*EncapsulatedKey, error) {
	if len(data) < 2 {
		return nil, pqcerr.New(pqcerr.BadInput, "encapsulated key: truncated header")
	}
	alg, err := kem.ParseAlg(data[0])
	if err != nil {
		return nil, err
	}
	classicalLen := int(data[1])
	data = data[2:]
	if len(data) < classicalLen+4 {
		return nil, pqcerr.New(pqcerr.BadInput, "encapsulated key: truncated classical component")
	}
	classicalPK := append([]byte(nil), data[:classicalLen]...)
	data = data[classicalLen:]
	ctLen := binary.LittleEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < ctLen {
		return nil, pqcerr.New(pqcerr.BadInput, "encapsulated key: truncated pqc ciphertext")
	}
	ct := append([]byte(nil), data[:ctLen]...)
	return &EncapsulatedKey{PQCCiphertext: ct, ClassicalPKOfSender: classicalPK, Alg: alg}, nil
}
