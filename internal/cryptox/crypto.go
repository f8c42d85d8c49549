// Package cryptox implements the two cryptographic primitives of the vault:
// password-based key derivation and the authenticated-encryption envelope.
//
// Key derivation uses PBKDF2-HMAC-SHA256 with a per-vault random salt and a
// configurable iteration count (PhraseIterations for keys derived from the
// recovery phrase, PinIterations for the PIN unlock key). Same inputs always
// yield the same key bytes, which is what makes the master key re-derivable
// after a process restart.
//
// Envelopes are AES-256-GCM: a fresh random 12-byte nonce per encryption,
// ciphertext carries the authentication tag. Any bit flipped in ciphertext
// or nonce makes decryption fail with ErrAuthentication.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/pinvault/pinvault/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// NonceSize is the GCM nonce length.
	NonceSize = 12
	// SaltSize is the length of generated salts (vault salt and pin salt).
	SaltSize = 16

	// PhraseIterations is the PBKDF2 cost for keys derived from the
	// recovery phrase.
	PhraseIterations = 100_000
	// PinIterations is the PBKDF2 cost for the PIN unlock key. A 6-digit
	// PIN has only 10^6 possibilities, so derivation cost is one of the
	// two remaining defenses once an attacker holds the stored token (the
	// other is the lockout guard).
	PinIterations = 100_000
)

var (
	// ErrKeyDerivation rejects empty derivation inputs.
	ErrKeyDerivation = errors.New("key derivation: empty secret or salt")

	// ErrAuthentication signals an AEAD tag mismatch: wrong key, or any
	// tampering of ciphertext or nonce.
	ErrAuthentication = errors.New("authentication failed")
)

// Envelope is an authenticated ciphertext bundle. Ciphertext includes the
// GCM tag. Both fields are opaque bytes suitable for storage; JSON encodes
// them as base64 text.
type Envelope struct {
	Ciphertext []byte `json:"ciphertext"`
	Nonce      []byte `json:"nonce"`
}

// DeriveKey derives a KeySize-byte symmetric key from secret and salt using
// PBKDF2-HMAC-SHA256 with the given iteration count.
func DeriveKey(secret, salt []byte, iterations int) ([]byte, error) {
	if len(secret) == 0 || len(salt) == 0 {
		return nil, ErrKeyDerivation
	}
	if iterations <= 0 {
		return nil, fmt.Errorf("key derivation: invalid iteration count %d", iterations)
	}
	return pbkdf2.Key(secret, salt, iterations, KeySize, sha256.New), nil
}

// Encrypt seals plaintext under key with AES-256-GCM using a freshly
// generated random nonce. The nonce is never reused under the same key.
func Encrypt(plaintext, key []byte) (*Envelope, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := common.GenerateRandByteArray(NonceSize)
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	return &Envelope{Ciphertext: ciphertext, Nonce: nonce}, nil
}

// Decrypt opens the envelope under key. It returns ErrAuthentication if the
// tag fails to verify, which covers both a wrong key and any mutation of the
// stored ciphertext or nonce.
func Decrypt(env *Envelope, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

// Digest returns the SHA-256 digest of b. The audit ledger receives only
// this digest of the serialized outer vault envelope, never the envelope
// itself.
func Digest(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init: %w", err)
	}
	return aead, nil
}
