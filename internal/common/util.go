package common

import "crypto/rand"

// GenerateRandByteArray returns size cryptographically random bytes.
// It panics if the system entropy source fails, which is not recoverable.
func GenerateRandByteArray(size int) []byte {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return buf
}

// Wipe overwrites the slice with zeros. Use it on key material and decrypted
// secrets before dropping the last reference.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
