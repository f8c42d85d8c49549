package cryptox

import (
	"bytes"
	"testing"

	"github.com/pinvault/pinvault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	secret := []byte("correct horse battery staple")
	salt := []byte("fixed-salt")

	key1, err := DeriveKey(secret, salt, PhraseIterations)
	require.NoError(t, err)
	key2, err := DeriveKey(secret, salt, PhraseIterations)
	require.NoError(t, err)

	assert.Equal(t, key1, key2)
	assert.Len(t, key1, KeySize)
}

func TestDeriveKey_DifferentInputs(t *testing.T) {
	secret := []byte("correct horse battery staple")

	key1, err := DeriveKey(secret, []byte("salt-1"), PhraseIterations)
	require.NoError(t, err)
	key2, err := DeriveKey(secret, []byte("salt-2"), PhraseIterations)
	require.NoError(t, err)
	key3, err := DeriveKey([]byte("other phrase"), []byte("salt-1"), PhraseIterations)
	require.NoError(t, err)

	assert.NotEqual(t, key1, key2)
	assert.NotEqual(t, key1, key3)
}

func TestDeriveKey_EmptyInputs(t *testing.T) {
	_, err := DeriveKey(nil, []byte("salt"), PhraseIterations)
	assert.ErrorIs(t, err, ErrKeyDerivation)

	_, err = DeriveKey([]byte("secret"), nil, PhraseIterations)
	assert.ErrorIs(t, err, ErrKeyDerivation)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)

	for _, plaintext := range [][]byte{
		[]byte("hunter2"),
		[]byte(""),
		common.GenerateRandByteArray(4096),
	} {
		env, err := Encrypt(plaintext, key)
		require.NoError(t, err)
		require.Len(t, env.Nonce, NonceSize)

		got, err := Decrypt(env, key)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(plaintext, got))
	}
}

func TestEncrypt_FreshNonce(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)

	env1, err := Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)
	env2, err := Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)

	assert.NotEqual(t, env1.Nonce, env2.Nonce)
	assert.NotEqual(t, env1.Ciphertext, env2.Ciphertext)
}

func TestDecrypt_TamperDetection(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)
	env, err := Encrypt([]byte("vault payload"), key)
	require.NoError(t, err)

	// Flip a single bit in every byte position of ciphertext and nonce.
	for i := range env.Ciphertext {
		mutated := &Envelope{
			Ciphertext: bytes.Clone(env.Ciphertext),
			Nonce:      bytes.Clone(env.Nonce),
		}
		mutated.Ciphertext[i] ^= 0x01
		_, err := Decrypt(mutated, key)
		assert.ErrorIs(t, err, ErrAuthentication, "ciphertext byte %d", i)
	}
	for i := range env.Nonce {
		mutated := &Envelope{
			Ciphertext: bytes.Clone(env.Ciphertext),
			Nonce:      bytes.Clone(env.Nonce),
		}
		mutated.Nonce[i] ^= 0x80
		_, err := Decrypt(mutated, key)
		assert.ErrorIs(t, err, ErrAuthentication, "nonce byte %d", i)
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	key := common.GenerateRandByteArray(KeySize)
	env, err := Encrypt([]byte("vault payload"), key)
	require.NoError(t, err)

	wrong, err := DeriveKey([]byte("wrong phrase"), []byte("salt"), PhraseIterations)
	require.NoError(t, err)

	_, err = Decrypt(env, wrong)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestDigest_Stable(t *testing.T) {
	d1 := Digest([]byte("envelope bytes"))
	d2 := Digest([]byte("envelope bytes"))
	d3 := Digest([]byte("other bytes"))

	assert.Equal(t, d1, d2)
	assert.NotEqual(t, d1, d3)
	assert.Len(t, d1, 32)
}
