package kem

import (
	"bytes"
	"testing"
)

func TestKeypairGenerationAllAlgs(t *testing.T) {
	for _, alg := range []Alg{K512, K768, K1024} {
		t.Run(alg.String(), func(t *testing.T) {
			kp, err := GenerateKeypair(alg)
			if err != nil {
				t.Fatalf("GenerateKeypair(%s) failed: %v", alg, err)
			}
			if len(kp.PublicKey) != PublicKeySize(alg) {
				t.Errorf("public key size mismatch: got %d, want %d", len(kp.PublicKey), PublicKeySize(alg))
			}
			if len(kp.PrivateKey) == 0 {
				t.Error("private key is empty")
			}
		})
	}
}

func TestEncapsulateDecapsulateRoundTrip(t *testing.T) {
	for _, alg := range []Alg{K512, K768, K1024} {
		t.Run(alg.String(), func(t *testing.T) {
			kp, err := GenerateKeypair(alg)
			if err != nil {
				t.Fatalf("GenerateKeypair failed: %v", err)
			}

			ct, ssEnc, err := Encapsulate(alg, kp.PublicKey)
			if err != nil {
				t.Fatalf("Encapsulate failed: %v", err)
			}
			if len(ct) != CiphertextSize(alg) {
				t.Errorf("ciphertext size mismatch: got %d, want %d", len(ct), CiphertextSize(alg))
			}

			ssDec, err := Decapsulate(alg, kp.PrivateKey, ct)
			if err != nil {
				t.Fatalf("Decapsulate failed: %v", err)
			}

			if !bytes.Equal(ssEnc, ssDec) {
				t.Error("shared secrets do not match")
			}
		})
	}
}

func TestDecapsulateWrongCiphertextSize(t *testing.T) {
	kp, err := GenerateKeypair(K768)
	if err != nil {
		t.Fatalf("GenerateKeypair failed: %v", err)
	}
	_, err = Decapsulate(K768, kp.PrivateKey, make([]byte, 4))
	if err == nil {
		t.Fatal("expected error for truncated ciphertext")
	}
}

func TestEncapsulateWrongPublicKeySize(t *testing.T) {
	_, _, err := Encapsulate(K512, make([]byte, 4))
	if err == nil {
		t.Fatal("expected error for truncated public key")
	}
}

func TestParseAlgRejectsUnknown(t *testing.T) {
	if _, err := ParseAlg(0xFF); err == nil {
		t.Fatal("expected error for unknown alg tag")
	}
	for _, tag := range []uint8{1, 2, 3} {
		if _, err := ParseAlg(tag); err != nil {
			t.Errorf("ParseAlg(%d) unexpectedly failed: %v", tag, err)
		}
	}
}

func TestCrossAlgDecapsulateFails(t *testing.T) {
	kp512, err := GenerateKeypair(K512)
	if err != nil {
		t.Fatalf("GenerateKeypair(K512) failed: %v", err)
	}
	ct, _, err := Encapsulate(K512, kp512.PublicKey)
	if err != nil {
		t.Fatalf("Encapsulate failed: %v", err)
	}

	kp768, err := GenerateKeypair(K768)
	if err != nil {
		t.Fatalf("GenerateKeypair(K768) failed: %v", err)
	}
	if _, err := Decapsulate(K768, kp768.PrivateKey, ct); err == nil {
		t.Fatal("expected error decapsulating ML-KEM-512 ciphertext under a K768 key")
	}
}
