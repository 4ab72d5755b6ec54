package container

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"
)

// FuzzDecodeContainer fuzzes the decoder's untrusted-input parsing path:
// header and chunk framing both come off the wire before any AEAD tag
// is checked, so malformed lengths must never panic or over-read.
func FuzzDecodeContainer(f *testing.F) {
	key := make([]byte, 32)
	rand.Read(key)

	var valid bytes.Buffer
	enc, _ := NewEncoder(&valid, key, MinChunkSize, 13)
	enc.Write([]byte("hello, world!"))
	enc.Finish()
	f.Add(valid.Bytes())

	f.Add([]byte{})
	f.Add([]byte("PQCS"))
	f.Add(make([]byte, headerSize))
	f.Add(append([]byte("PQCS"), 1, 0xFF, 0xFF, 0xFF, 0xFF))

	f.Fuzz(func(t *testing.T, data []byte) {
		dec, err := NewDecoder(bytes.NewReader(data), key)
		if err != nil {
			return
		}
		// Should never panic regardless of what follows a valid header.
		_, _ = io.ReadAll(dec)
	})
}
