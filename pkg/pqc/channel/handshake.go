package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"time"

	"github.com/pqfed/transfer/pkg/pqc/hybrid"
	"github.com/pqfed/transfer/pkg/pqc/pqcerr"
	"github.com/pqfed/transfer/pkg/pqc/sessionkdf"
)

const (
	roleInitiator = 'I'
	roleResponder = 'R'
)

// HandshakeDeadline is the default wall-clock budget for the full M1–M6
// exchange.
const HandshakeDeadline = 30 * time.Second

// HandshakeResult carries what the data phase needs once the handshake
// completes.
type HandshakeResult struct {
	SessionKey []byte
	Suite      Suite
}

// combineSecrets XORs the two 64-byte hybrid shared secrets each side
// holds after the encap/decap exchange. Order-independent: either side
// computes the same combined secret regardless of which it XORs first.
func combineSecrets(own, peer []byte) ([]byte, error) {
	if len(own) != 64 || len(peer) != 64 {
		return nil, pqcerr.New(pqcerr.BadInput, "channel: hybrid shared secrets must be 64 bytes")
	}
	combined := make([]byte, 64)
	for i := range combined {
		combined[i] = own[i] ^ peer[i]
	}
	return combined, nil
}

func finishMAC(sessionKey []byte, role byte) [32]byte {
	mac := hmac.New(sha256.New, sessionKey)
	mac.Write([]byte{role})
	mac.Write([]byte("finish"))
	var out [32]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// RunInitiator drives M1/M3/M5 and receives M2/M4/M6. It sends the one
// offered suite (the handshake is a single-shot offer, not a retry
// loop) — a rejected offer fails with Negotiation and the caller may
// retry with a different suite.
func RunInitiator(ctx context.Context, t DuplexTransport, offer Suite) (result *HandshakeResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, HandshakeDeadline)
	defer cancel()
	defer func() {
		if err != nil {
			_ = t.Close()
		}
	}()

	pub, sec, err := hybrid.GenerateKeypair(offer.PQCAlg)
	if err != nil {
		return nil, err
	}
	defer sec.Zeroize()

	pkWire, err := pub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := t.Send(ctx, EncodeHello(MsgHello, Hello{Suite: offer, HybridPK: pkWire})); err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "channel: send hello", err)
	}

	m2, err := t.Recv(ctx)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "channel: recv hello_ack", err)
	}
	tag, err := Tag(m2)
	if err != nil {
		return nil, err
	}
	if tag == MsgSuiteRejected {
		return nil, pqcerr.New(pqcerr.Negotiation, "channel: responder rejected offered suite")
	}
	if tag != MsgHelloAck {
		return nil, pqcerr.New(pqcerr.BadInput, "channel: expected hello_ack or suite_rejected")
	}
	ack, err := DecodeHello(Payload(m2))
	if err != nil {
		return nil, err
	}
	if ack.Suite != offer {
		return nil, pqcerr.New(pqcerr.Negotiation, "channel: responder accepted suite other than offered")
	}
	peerPub, err := hybrid.UnmarshalPublicKey(ack.HybridPK)
	if err != nil {
		return nil, err
	}

	encap, ownShared, err := hybrid.Encapsulate(peerPub)
	if err != nil {
		return nil, err
	}
	if err := t.Send(ctx, EncodeEncap(Encap{
		EphemeralClassicalPK: encap.ClassicalPKOfSender,
		PQCCiphertext:        encap.PQCCiphertext,
	})); err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "channel: send encap", err)
	}

	m4, err := t.Recv(ctx)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "channel: recv encap", err)
	}
	if tag, err := Tag(m4); err != nil || tag != MsgEncap {
		if err == nil {
			err = pqcerr.New(pqcerr.BadInput, "channel: expected encap")
		}
		return nil, err
	}
	peerEncap, err := DecodeEncap(Payload(m4))
	if err != nil {
		return nil, err
	}
	peerShared, err := hybrid.Decapsulate(sec, &hybrid.EncapsulatedKey{
		PQCCiphertext:       peerEncap.PQCCiphertext,
		ClassicalPKOfSender: peerEncap.EphemeralClassicalPK,
		Alg:                 offer.PQCAlg,
	})
	if err != nil {
		return nil, err
	}

	combined, err := combineSecrets(ownShared, peerShared)
	if err != nil {
		return nil, err
	}
	sessionKey, err := sessionkdf.Derive(combined)
	if err != nil {
		return nil, err
	}

	myFinish := finishMAC(sessionKey, roleInitiator)
	if err := t.Send(ctx, EncodeFinish(Finish{MAC: myFinish})); err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "channel: send finish", err)
	}

	m6, err := t.Recv(ctx)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "channel: recv finish", err)
	}
	if tag, err := Tag(m6); err != nil || tag != MsgFinish {
		if err == nil {
			err = pqcerr.New(pqcerr.BadInput, "channel: expected finish")
		}
		return nil, err
	}
	theirFinish, err := DecodeFinish(Payload(m6))
	if err != nil {
		return nil, err
	}
	expected := finishMAC(sessionKey, roleResponder)
	if !hmac.Equal(expected[:], theirFinish.MAC[:]) {
		return nil, pqcerr.New(pqcerr.HandshakeAuthFailed, "channel: responder finish mac does not verify")
	}

	return &HandshakeResult{SessionKey: sessionKey, Suite: offer}, nil
}

// RunResponder receives M1, decides whether to accept the offered suite
// against acceptable, and drives M2/M4/M6.
func RunResponder(ctx context.Context, t DuplexTransport, acceptable []Suite) (result *HandshakeResult, err error) {
	ctx, cancel := context.WithTimeout(ctx, HandshakeDeadline)
	defer cancel()
	defer func() {
		if err != nil {
			_ = t.Close()
		}
	}()

	m1, err := t.Recv(ctx)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "channel: recv hello", err)
	}
	if tag, err := Tag(m1); err != nil || tag != MsgHello {
		if err == nil {
			err = pqcerr.New(pqcerr.BadInput, "channel: expected hello")
		}
		return nil, err
	}
	hello, err := DecodeHello(Payload(m1))
	if err != nil {
		return nil, err
	}

	accepted := false
	for _, s := range acceptable {
		if s == hello.Suite {
			accepted = true
			break
		}
	}
	if !accepted {
		_ = t.Send(ctx, EncodeSuiteRejected(SuiteRejected{Reasons: []byte("suite not supported")}))
		return nil, pqcerr.New(pqcerr.Negotiation, "channel: no acceptable suite matched initiator offer")
	}
	suite := hello.Suite

	peerPub, err := hybrid.UnmarshalPublicKey(hello.HybridPK)
	if err != nil {
		return nil, err
	}

	pub, sec, err := hybrid.GenerateKeypair(suite.PQCAlg)
	if err != nil {
		return nil, err
	}
	defer sec.Zeroize()

	pkWire, err := pub.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if err := t.Send(ctx, EncodeHello(MsgHelloAck, Hello{Suite: suite, HybridPK: pkWire})); err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "channel: send hello_ack", err)
	}

	m3, err := t.Recv(ctx)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "channel: recv encap", err)
	}
	if tag, err := Tag(m3); err != nil || tag != MsgEncap {
		if err == nil {
			err = pqcerr.New(pqcerr.BadInput, "channel: expected encap")
		}
		return nil, err
	}
	peerEncap, err := DecodeEncap(Payload(m3))
	if err != nil {
		return nil, err
	}
	peerShared, err := hybrid.Decapsulate(sec, &hybrid.EncapsulatedKey{
		PQCCiphertext:       peerEncap.PQCCiphertext,
		ClassicalPKOfSender: peerEncap.EphemeralClassicalPK,
		Alg:                 suite.PQCAlg,
	})
	if err != nil {
		return nil, err
	}

	encap, ownShared, err := hybrid.Encapsulate(peerPub)
	if err != nil {
		return nil, err
	}
	if err := t.Send(ctx, EncodeEncap(Encap{
		EphemeralClassicalPK: encap.ClassicalPKOfSender,
		PQCCiphertext:        encap.PQCCiphertext,
	})); err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "channel: send encap", err)
	}

	combined, err := combineSecrets(ownShared, peerShared)
	if err != nil {
		return nil, err
	}
	sessionKey, err := sessionkdf.Derive(combined)
	if err != nil {
		return nil, err
	}

	m5, err := t.Recv(ctx)
	if err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "channel: recv finish", err)
	}
	if tag, err := Tag(m5); err != nil || tag != MsgFinish {
		if err == nil {
			err = pqcerr.New(pqcerr.BadInput, "channel: expected finish")
		}
		return nil, err
	}
	theirFinish, err := DecodeFinish(Payload(m5))
	if err != nil {
		return nil, err
	}
	expected := finishMAC(sessionKey, roleInitiator)
	if !hmac.Equal(expected[:], theirFinish.MAC[:]) {
		return nil, pqcerr.New(pqcerr.HandshakeAuthFailed, "channel: initiator finish mac does not verify")
	}

	myFinish := finishMAC(sessionKey, roleResponder)
	if err := t.Send(ctx, EncodeFinish(Finish{MAC: myFinish})); err != nil {
		return nil, pqcerr.Wrap(pqcerr.TransportClosed, "channel: send finish", err)
	}

	return &HandshakeResult{SessionKey: sessionKey, Suite: suite}, nil
}

// InitiatorHandshake wraps RunInitiator with the Callbacks events:
// HandshakeOK on success, SessionFailed on any error.
func InitiatorHandshake(ctx context.Context, t DuplexTransport, offer Suite, cb Callbacks) (*HandshakeResult, error) {
	res, err := RunInitiator(ctx, t, offer)
	if err != nil {
		return nil, cb.fail(err)
	}
	if cb.HandshakeOK != nil {
		cb.HandshakeOK(res.Suite)
	}
	return res, nil
}

// ResponderHandshake wraps RunResponder with the Callbacks events:
// HandshakeOK on success, SessionFailed on any error.
func ResponderHandshake(ctx context.Context, t DuplexTransport, acceptable []Suite, cb Callbacks) (*HandshakeResult, error) {
	res, err := RunResponder(ctx, t, acceptable)
	if err != nil {
		return nil, cb.fail(err)
	}
	if cb.HandshakeOK != nil {
		cb.HandshakeOK(res.Suite)
	}
	return res, nil
}
