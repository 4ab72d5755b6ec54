package container

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"testing"
)

func testSessionKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}
	return key
}

func encodeAll(t *testing.T, key, plaintext []byte, chunkSize uint32) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, key, chunkSize, uint64(len(plaintext)))
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	if _, err := enc.Write(plaintext); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return buf.Bytes()
}

func decodeAll(t *testing.T, key, wire []byte) ([]byte, error) {
	t.Helper()
	dec, err := NewDecoder(bytes.NewReader(wire), key)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(dec)
}

func TestRoundTripVariousSizes(t *testing.T) {
	key := testSessionKey(t)
	sizes := []int{0, 1, 63, MinChunkSize - 1, MinChunkSize, MinChunkSize + 1, 2*MinChunkSize + 17}
	for _, size := range sizes {
		plaintext := make([]byte, size)
		if _, err := rand.Read(plaintext); err != nil {
			t.Fatalf("rand.Read failed: %v", err)
		}
		wire := encodeAll(t, key, plaintext, MinChunkSize)
		got, err := decodeAll(t, key, wire)
		if err != nil {
			t.Fatalf("size %d: decode failed: %v", size, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("size %d: round trip mismatch", size)
		}
	}
}

func TestEmptyPayloadIsHeaderPlusTrailerOnly(t *testing.T) {
	key := testSessionKey(t)
	wire := encodeAll(t, key, nil, MinChunkSize)

	// header + one trailer frame: header is fixed size, trailer frame is
	// len(4) + nonce(12) + tag(16) + ciphertext(32).
	expected := headerSize + 4 + NonceSize + TagSize + 32
	if len(wire) != expected {
		t.Errorf("wire size mismatch: got %d, want %d", len(wire), expected)
	}

	got, err := decodeAll(t, key, wire)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty plaintext, got %d bytes", len(got))
	}
}

func TestBitFlipInCiphertextFailsAuth(t *testing.T) {
	key := testSessionKey(t)
	wire := encodeAll(t, key, []byte("hello hybrid world"), MinChunkSize)
	wire[len(wire)-1] ^= 0xFF

	_, err := decodeAll(t, key, wire)
	if !errIsKind(err, "AuthFailed") {
		t.Fatalf("expected AuthFailed, got %v", err)
	}
}

func TestTamperedTrailerFailsDigestMismatch(t *testing.T) {
	key := testSessionKey(t)
	plaintext := []byte("hello hybrid world, this is one data chunk")
	wire := encodeAll(t, key, plaintext, MinChunkSize)

	header, err := DecodeHeader(wire[:headerSize])
	if err != nil {
		t.Fatalf("decode header: %v", err)
	}

	frame0Start := headerSize
	frame0Len := frameLen(wire, frame0Start)
	trailerStart := frame0Start + frame0Len
	trailerLen := frameLen(wire, trailerStart)

	gcm, err := newGCM(key)
	if err != nil {
		t.Fatalf("newGCM: %v", err)
	}
	// chunk index 0 is the lone data chunk sealed above; the trailer is
	// sealed at index 1.
	nonce := chunkNonce(header.MasterNoncePrefix, 1)
	aad := chunkAAD(1, true)
	wrongDigest := make([]byte, sha256.Size)
	for i := range wrongDigest {
		wrongDigest[i] = 0xAA
	}
	sealed := gcm.Seal(nil, nonce, wrongDigest, aad)
	ciphertext := sealed[:len(sealed)-TagSize]
	tag := sealed[len(sealed)-TagSize:]

	forged := make([]byte, 0, trailerLen)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(ciphertext)))
	forged = append(forged, lenBuf[:]...)
	forged = append(forged, nonce...)
	forged = append(forged, tag...)
	forged = append(forged, ciphertext...)
	if len(forged) != trailerLen {
		t.Fatalf("forged trailer length %d does not match original %d", len(forged), trailerLen)
	}

	tampered := append([]byte(nil), wire...)
	copy(tampered[trailerStart:trailerStart+trailerLen], forged)

	_, err = decodeAll(t, key, tampered)
	if !errIsKind(err, "DigestMismatch") {
		t.Fatalf("expected DigestMismatch, got %v", err)
	}
}

func TestTruncatedStreamFailsAsTruncated(t *testing.T) {
	key := testSessionKey(t)
	wire := encodeAll(t, key, make([]byte, MinChunkSize+100), MinChunkSize)
	truncated := wire[:len(wire)-10]

	_, err := decodeAll(t, key, truncated)
	if !errIsKind(err, "Truncated") {
		t.Fatalf("expected Truncated, got %v", err)
	}
}

func TestSwappedChunksFailNonceOrAuth(t *testing.T) {
	key := testSessionKey(t)
	plaintext := make([]byte, 3*MinChunkSize)
	if _, err := rand.Read(plaintext); err != nil {
		t.Fatalf("rand.Read failed: %v", err)
	}
	wire := encodeAll(t, key, plaintext, MinChunkSize)

	frame0Start := headerSize
	frame0Len := frameLen(wire, frame0Start)
	frame1Start := frame0Start + frame0Len
	frame1Len := frameLen(wire, frame1Start)
	if frame0Len != frame1Len {
		t.Fatalf("expected equal-sized frames for a same-size-chunk stream, got %d and %d", frame0Len, frame1Len)
	}

	swapped := append([]byte(nil), wire...)
	copy(swapped[frame0Start:frame0Start+frame0Len], wire[frame1Start:frame1Start+frame1Len])
	copy(swapped[frame1Start:frame1Start+frame1Len], wire[frame0Start:frame0Start+frame0Len])

	_, err := decodeAll(t, key, swapped)
	if err == nil {
		t.Fatal("expected an error decoding a stream with swapped chunks")
	}
	if !errIsKind(err, "NonceMismatch") && !errIsKind(err, "AuthFailed") {
		t.Fatalf("expected NonceMismatch or AuthFailed, got %v", err)
	}
}

func frameLen(wire []byte, offset int) int {
	ctLen := int(wire[offset]) | int(wire[offset+1])<<8 | int(wire[offset+2])<<16 | int(wire[offset+3])<<24
	return 4 + NonceSize + TagSize + ctLen
}

func TestWrongSessionKeyFailsAuth(t *testing.T) {
	key := testSessionKey(t)
	other := testSessionKey(t)
	wire := encodeAll(t, key, []byte("secret payload"), MinChunkSize)

	_, err := decodeAll(t, other, wire)
	if !errIsKind(err, "AuthFailed") {
		t.Fatalf("expected AuthFailed, got %v", err)
	}
}

func TestCiphertextLengthMatchesPlaintextLength(t *testing.T) {
	key := testSessionKey(t)
	plaintext := make([]byte, MinChunkSize)
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, key, MinChunkSize, uint64(len(plaintext)))
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}
	if _, err := enc.Write(plaintext); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	ctLen := frameLen(buf.Bytes(), headerSize) - 4 - NonceSize - TagSize
	if ctLen != len(plaintext) {
		t.Errorf("ciphertext length mismatch: got %d, want %d", ctLen, len(plaintext))
	}
}

func TestInvalidChunkSizeRejected(t *testing.T) {
	key := testSessionKey(t)
	var buf bytes.Buffer
	if _, err := NewEncoder(&buf, key, 1, 0); err == nil {
		t.Fatal("expected error for chunk size below minimum")
	}
	if _, err := NewEncoder(&buf, key, MaxChunkSize+1, 0); err == nil {
		t.Fatal("expected error for chunk size above maximum")
	}
}

func TestMultipleWritesAccumulate(t *testing.T) {
	key := testSessionKey(t)
	var buf bytes.Buffer
	enc, err := NewEncoder(&buf, key, MinChunkSize, UnknownPlaintextLength)
	if err != nil {
		t.Fatalf("NewEncoder failed: %v", err)
	}

	var want bytes.Buffer
	for i := 0; i < 5; i++ {
		chunk := make([]byte, 1000+i)
		rand.Read(chunk)
		want.Write(chunk)
		if _, err := enc.Write(chunk); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}
	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	got, err := decodeAll(t, key, buf.Bytes())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(got, want.Bytes()) {
		t.Error("accumulated writes did not round trip correctly")
	}
}

func errIsKind(err error, kind string) bool {
	if err == nil {
		return false
	}
	return bytes.Contains([]byte(err.Error()), []byte(kind))
}
