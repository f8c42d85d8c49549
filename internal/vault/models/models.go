// Package models defines the records the vault core persists and exchanges:
// the envelope-wrapped vault aggregate, individual credential entries, the
// PIN unlock token, and the lockout state.
package models

import (
	"time"

	"github.com/pinvault/pinvault/internal/cryptox"
)

// VaultRecordVersion is bumped whenever the serialized vault layout changes.
const VaultRecordVersion = 1

// CredentialEntry is one stored credential. The secret is enveloped
// independently under the master key, so non-secret fields can be edited and
// listed without touching the secret, and a single secret can be decrypted
// on demand.
type CredentialEntry struct {
	ID        string           `json:"id"`
	Site      string           `json:"site"`
	Login     string           `json:"login"`
	Secret    cryptox.Envelope `json:"secret"`
	Notes     string           `json:"notes"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Settings are the account settings stored inside the encrypted vault.
type Settings struct {
	// TimeoutMinutes is the idle auto-lock interval. 0 disables it.
	TimeoutMinutes int `json:"timeout_minutes"`
}

// VaultRecord is the plaintext aggregate serialized into the outer envelope.
type VaultRecord struct {
	Version  int               `json:"version"`
	Settings Settings          `json:"settings"`
	Entries  []CredentialEntry `json:"entries"`
}

// StoredVault is the persisted form of the vault: the outer envelope plus
// the clear vault salt needed to re-derive the master key after a restart.
// Salts are not secret.
type StoredVault struct {
	Envelope  cryptox.Envelope `json:"envelope"`
	VaultSalt []byte           `json:"vault_salt"`
}

// UnlockToken re-wraps the root secret and vault salt under a PIN-derived
// key. One token exists per device; it is replaced wholesale on PIN change,
// never partially mutated. The pin salt is independent of the vault salt.
type UnlockToken struct {
	Encrypted cryptox.Envelope `json:"encrypted_token"`
	PinSalt   []byte           `json:"pin_salt"`
	Created   time.Time        `json:"created"`
}

// LockoutState is the persisted PIN failure counter. FailedAttempts is
// cumulative and resets to zero on any successful verification.
type LockoutState struct {
	FailedAttempts int       `json:"failed_attempts"`
	LockoutUntil   time.Time `json:"lockout_until"`
}

// EntryEdit is an edit request for a credential entry. SecretChanged is an
// explicit flag: when false the stored secret envelope is kept as is and is
// not decrypted, so no display-placeholder string comparison is involved.
type EntryEdit struct {
	Site          string
	Login         string
	Notes         string
	Secret        string
	SecretChanged bool
}
