// Package pqczero wipes key material from memory on drop.
//
// The hybrid secret key (hybrid.SecretKey.Zeroize), the keystore master
// key (keystore.Store.Close) and the keystore's PBKDF2 wrap key are
// zeroized through these helpers rather than left for the garbage
// collector. The session key the channel handshake returns is handed to
// the caller as is; nothing in this module wipes it.
package pqczero

import "runtime"

// Bytes wipes a variable-length byte slice in place.
func Bytes(b []byte) {
	if len(b) == 0 {
		return
	}
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// Array32 wipes a fixed 32-byte key.
func Array32(b *[32]byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}

// IsZeroed reports whether every byte of b is zero. Exposed for tests only;
// production code must not branch on this (it leaks timing information
// about key state).
func IsZeroed(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
