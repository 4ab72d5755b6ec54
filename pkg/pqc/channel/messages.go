// Package channel implements the secure channel (C4): a handshake state
// machine and a framed data phase driven over an abstract DuplexTransport.
//
// Every handshake and data-phase unit rides as exactly one transport
// message. This package never reaches for a stream abstraction; it hands
// the transport one []byte per Send call and expects one []byte back per
// Recv call.
package channel

import (
	"encoding/binary"

	"github.com/pqfed/transfer/pkg/pqc/kem"
	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
)

// MsgType tags the first byte of every message this package sends.
type MsgType uint8

const (
	MsgHello MsgType = iota + 1
	MsgHelloAck
	MsgSuiteRejected
	MsgEncap
	MsgFinish
	MsgCloseStream
	MsgHeader
	MsgFrame
)

// AEADID identifies the negotiated AEAD. AES-256-GCM is the only suite
// the container package implements.
type AEADID uint8

const AEADAES256GCM AEADID = 0x01

// Suite is the (pqc_alg, aead_id) pair offered and accepted during the
// handshake.
type Suite struct {
	PQCAlg kem.Alg
	AEAD   AEADID
}

// Hello is M1/M2: the sender's suite offer (or accepted suite, for the
// responder) plus its hybrid public key.
type Hello struct {
	Suite    Suite
	HybridPK []byte
}

// SuiteRejected is sent instead of HelloAck when the responder will not
// accept any suite the initiator offered.
type SuiteRejected struct {
	Reasons []byte
}

// Encap is M3/M4: the sender's hybrid encapsulation against the peer's
// hybrid public key.
type Encap struct {
	EphemeralClassicalPK []byte // 32 bytes
	PQCCiphertext        []byte
}

// Finish is M5/M6: the HMAC-SHA256 confirmation tag over the derived
// session key.
type Finish struct {
	MAC [32]byte
}

func encodeU32Prefixed(tag MsgType, parts ...[]byte) []byte {
	size := 1
	for _, p := range parts {
		size += 4 + len(p)
	}
	buf := make([]byte, 1, size)
	buf[0] = byte(tag)
	var lenBuf [4]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(p)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, p...)
	}
	return buf
}

func readU32Prefixed(data []byte, n int) ([][]byte, error) {
	parts := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		if len(data) < 4 {
			return nil, pqcerr.New(pqcerr.BadInput, "channel: truncated length-prefixed field")
		}
		l := binary.LittleEndian.Uint32(data[:4])
		data = data[4:]
		if uint32(len(data)) < l {
			return nil, pqcerr.New(pqcerr.BadInput, "channel: truncated length-prefixed field body")
		}
		parts = append(parts, data[:l])
		data = data[l:]
	}
	return parts, nil
}

// EncodeHello encodes a HELLO or HELLO_ACK message. tag must be MsgHello
// or MsgHelloAck.
func EncodeHello(tag MsgType, h Hello) []byte {
	suite := []byte{byte(h.Suite.PQCAlg), byte(h.Suite.AEAD)}
	return encodeU32Prefixed(tag, suite, h.HybridPK)
}

// DecodeHello decodes a HELLO or HELLO_ACK payload (without the leading
// tag byte).
func DecodeHello(data []byte) (Hello, error) {
	parts, err := readU32Prefixed(data, 2)
	if err != nil {
		return Hello{}, err
	}
	suite, pk := parts[0], parts[1]
	if len(suite) != 2 {
		return Hello{}, pqcerr.New(pqcerr.BadInput, "channel: malformed suite field")
	}
	alg, err := kem.ParseAlg(suite[0])
	if err != nil {
		return Hello{}, err
	}
	return Hello{
		Suite:    Suite{PQCAlg: alg, AEAD: AEADID(suite[1])},
		HybridPK: append([]byte(nil), pk...),
	}, nil
}

// EncodeSuiteRejected encodes a SUITE_REJECTED message.
func EncodeSuiteRejected(r SuiteRejected) []byte {
	return encodeU32Prefixed(MsgSuiteRejected, r.Reasons)
}

// DecodeSuiteRejected decodes a SUITE_REJECTED payload.
func DecodeSuiteRejected(data []byte) (SuiteRejected, error) {
	parts, err := readU32Prefixed(data, 1)
	if err != nil {
		return SuiteRejected{}, err
	}
	return SuiteRejected{Reasons: append([]byte(nil), parts[0]...)}, nil
}

// EncodeEncap encodes an ENCAP message.
func EncodeEncap(e Encap) []byte {
	return encodeU32Prefixed(MsgEncap, e.EphemeralClassicalPK, e.PQCCiphertext)
}

// DecodeEncap decodes an ENCAP payload.
func DecodeEncap(data []byte) (Encap, error) {
	parts, err := readU32Prefixed(data, 2)
	if err != nil {
		return Encap{}, err
	}
	pk, ct := parts[0], parts[1]
	if len(pk) != 32 {
		return Encap{}, pqcerr.New(pqcerr.BadInput, "channel: ephemeral classical pk must be 32 bytes")
	}
	return Encap{
		EphemeralClassicalPK: append([]byte(nil), pk...),
		PQCCiphertext:        append([]byte(nil), ct...),
	}, nil
}

// EncodeFinish encodes a FINISH message.
func EncodeFinish(f Finish) []byte {
	buf := make([]byte, 1+32)
	buf[0] = byte(MsgFinish)
	copy(buf[1:], f.MAC[:])
	return buf
}

// DecodeFinish decodes a FINISH payload.
func DecodeFinish(data []byte) (Finish, error) {
	if len(data) != 32 {
		return Finish{}, pqcerr.New(pqcerr.BadInput, "channel: finish mac must be 32 bytes")
	}
	var f Finish
	copy(f.MAC[:], data)
	return f, nil
}

// EncodeCloseStream encodes a CLOSE_STREAM message.
func EncodeCloseStream() []byte {
	return []byte{byte(MsgCloseStream)}
}

// Tag reports the message type tag of a raw wire message.
func Tag(msg []byte) (MsgType, error) {
	if len(msg) < 1 {
		return 0, pqcerr.New(pqcerr.BadInput, "channel: empty message")
	}
	return MsgType(msg[0]), nil
}

// Payload strips the leading tag byte.
func Payload(msg []byte) []byte {
	if len(msg) < 1 {
		return nil
	}
	return msg[1:]
}
