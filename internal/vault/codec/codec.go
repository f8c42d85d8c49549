// Package codec serializes the vault aggregate into and out of encrypted
// envelopes.
//
// The outer envelope wraps the whole VaultRecord; each credential secret is
// additionally enveloped on its own under the same master key. The double
// wrap is not a cryptographic strength improvement: it exists so metadata
// edits and listings never need to decrypt secrets, and a single secret can
// be decrypted lazily and re-hidden.
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/pinvault/pinvault/internal/common"
	"github.com/pinvault/pinvault/internal/cryptox"
	"github.com/pinvault/pinvault/internal/vault/models"
)

// EncodeVault serializes record, seals it under masterKey with a fresh
// nonce, and pairs the envelope with the clear vault salt.
func EncodeVault(record *models.VaultRecord, masterKey, vaultSalt []byte) (*models.StoredVault, error) {
	plaintext, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("vault encoding: %w", err)
	}

	env, err := cryptox.Encrypt(plaintext, masterKey)
	if err != nil {
		return nil, fmt.Errorf("vault encryption: %w", err)
	}

	return &models.StoredVault{Envelope: *env, VaultSalt: vaultSalt}, nil
}

// DecodeVault opens the outer envelope with candidateKey and parses the
// record. A tag mismatch surfaces as cryptox.ErrAuthentication; bytes that
// decrypt but do not parse as a supported vault record surface as
// common.ErrDecoding.
func DecodeVault(stored *models.StoredVault, candidateKey []byte) (*models.VaultRecord, error) {
	plaintext, err := cryptox.Decrypt(&stored.Envelope, candidateKey)
	if err != nil {
		return nil, err
	}
	defer common.Wipe(plaintext)

	var record models.VaultRecord
	if err := json.Unmarshal(plaintext, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecoding, err)
	}
	if record.Version != models.VaultRecordVersion {
		return nil, fmt.Errorf("%w: unsupported vault version %d", common.ErrDecoding, record.Version)
	}
	return &record, nil
}

// MarshalStored renders the persisted form: envelope bytes as base64 text
// plus the clear vault salt. The audit digest is computed over these bytes.
func MarshalStored(stored *models.StoredVault) ([]byte, error) {
	b, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("stored vault encoding: %w", err)
	}
	return b, nil
}

// UnmarshalStored parses a persisted vault record.
func UnmarshalStored(b []byte) (*models.StoredVault, error) {
	var stored models.StoredVault
	if err := json.Unmarshal(b, &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecoding, err)
	}
	if len(stored.Envelope.Ciphertext) == 0 || len(stored.Envelope.Nonce) == 0 || len(stored.VaultSalt) == 0 {
		return nil, fmt.Errorf("%w: incomplete stored vault", common.ErrDecoding)
	}
	return &stored, nil
}

// EncryptSecret seals one credential secret under the master key.
func EncryptSecret(secret string, masterKey []byte) (cryptox.Envelope, error) {
	env, err := cryptox.Encrypt([]byte(secret), masterKey)
	if err != nil {
		return cryptox.Envelope{}, fmt.Errorf("secret encryption: %w", err)
	}
	return *env, nil
}

// DecryptSecret opens one credential secret envelope.
func DecryptSecret(env cryptox.Envelope, masterKey []byte) (string, error) {
	plaintext, err := cryptox.Decrypt(&env, masterKey)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
