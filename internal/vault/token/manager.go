// Package token manages the PIN unlock token: a second envelope that wraps
// the root secret and vault salt under a key derived from a short PIN, so a
// returning user can unlock quickly without re-entering the full recovery
// phrase.
package token

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pinvault/pinvault/internal/common"
	"github.com/pinvault/pinvault/internal/cryptox"
	"github.com/pinvault/pinvault/internal/dbx"
	"github.com/pinvault/pinvault/internal/storage"
	"github.com/pinvault/pinvault/internal/timex"
	"github.com/pinvault/pinvault/internal/vault/models"
)

// payload is the plaintext sealed inside the token envelope.
type payload struct {
	RootSecret string    `json:"root_secret"`
	VaultSalt  []byte    `json:"vault_salt"`
	CreatedAt  time.Time `json:"created_at"`
}

// Manager creates, opens, and replaces the single per-device unlock token.
type Manager struct {
	db         *sql.DB
	clock      timex.Clock
	iterations int
}

func NewManager(db *sql.DB, clock timex.Clock) *Manager {
	return &Manager{db: db, clock: clock, iterations: cryptox.PinIterations}
}

func (m *Manager) repo(db dbx.DBTX) storage.Repository {
	return storage.NewSQLiteRepository(db)
}

// ValidatePin rejects anything that is not exactly six ASCII digits.
func ValidatePin(pin string) error {
	if len(pin) != 6 {
		return common.ErrInvalidPinFormat
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return common.ErrInvalidPinFormat
		}
	}
	return nil
}

// Create generates a fresh pin salt, derives the PIN key, seals the root
// secret and vault salt, and stores the token. Any prior token is replaced
// in a single write.
func (m *Manager) Create(ctx context.Context, rootSecret string, vaultSalt []byte, pin string) error {
	if err := ValidatePin(pin); err != nil {
		return err
	}
	return m.createWith(ctx, m.repo(m.db), rootSecret, vaultSalt, pin)
}

// Open derives the PIN key from the stored pin salt and the supplied PIN and
// decrypts the token. An authentication failure means a wrong PIN and is
// reported as common.ErrInvalidPin; the caller's lockout guard decides what
// happens next.
func (m *Manager) Open(ctx context.Context, pin string) (rootSecret string, vaultSalt []byte, err error) {
	if err := ValidatePin(pin); err != nil {
		return "", nil, err
	}

	record, err := m.load(ctx)
	if err != nil {
		return "", nil, err
	}

	pinKey, err := cryptox.DeriveKey([]byte(pin), record.PinSalt, m.iterations)
	if err != nil {
		return "", nil, fmt.Errorf("pin key derivation: %w", err)
	}
	defer common.Wipe(pinKey)

	plaintext, err := cryptox.Decrypt(&record.Encrypted, pinKey)
	if err != nil {
		if errors.Is(err, cryptox.ErrAuthentication) {
			return "", nil, common.ErrInvalidPin
		}
		return "", nil, err
	}
	defer common.Wipe(plaintext)

	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return "", nil, fmt.Errorf("%w: %v", common.ErrDecoding, err)
	}
	return p.RootSecret, p.VaultSalt, nil
}

// ChangePin verifies oldPin by opening the token, and only then writes a
// replacement sealed under newPin. A failed verification leaves the stored
// token untouched; the replacement itself is a single atomic write inside a
// transaction.
func (m *Manager) ChangePin(ctx context.Context, oldPin, newPin string) error {
	if err := ValidatePin(newPin); err != nil {
		return err
	}

	rootSecret, vaultSalt, err := m.Open(ctx, oldPin)
	if err != nil {
		return err
	}
	defer common.Wipe(vaultSalt)

	return dbx.WithTx(ctx, m.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return m.createWith(ctx, m.repo(tx), rootSecret, vaultSalt, newPin)
	})
}

// Exists reports whether an unlock token is stored on this device.
func (m *Manager) Exists(ctx context.Context) (bool, error) {
	b, err := m.repo(m.db).Get(ctx, storage.KeyUnlockToken)
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

// Destroy removes the stored token. Used on logout and on terminal lockout.
func (m *Manager) Destroy(ctx context.Context) error {
	return m.repo(m.db).Delete(ctx, storage.KeyUnlockToken)
}

func (m *Manager) load(ctx context.Context) (*models.UnlockToken, error) {
	b, err := m.repo(m.db).Get(ctx, storage.KeyUnlockToken)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, common.ErrNoUnlockToken
	}

	var record models.UnlockToken
	if err := json.Unmarshal(b, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDecoding, err)
	}
	return &record, nil
}

// createWith is Create against an arbitrary repository handle (plain DB or
// transaction).
func (m *Manager) createWith(ctx context.Context, repo storage.Repository, rootSecret string, vaultSalt []byte, pin string) error {
	// The pin salt must be independent of the vault salt.
	pinSalt := common.GenerateRandByteArray(cryptox.SaltSize)

	pinKey, err := cryptox.DeriveKey([]byte(pin), pinSalt, m.iterations)
	if err != nil {
		return fmt.Errorf("pin key derivation: %w", err)
	}
	defer common.Wipe(pinKey)

	now := m.clock.Now().UTC()
	plaintext, err := json.Marshal(payload{RootSecret: rootSecret, VaultSalt: vaultSalt, CreatedAt: now})
	if err != nil {
		return fmt.Errorf("token encoding: %w", err)
	}
	defer common.Wipe(plaintext)

	env, err := cryptox.Encrypt(plaintext, pinKey)
	if err != nil {
		return fmt.Errorf("token encryption: %w", err)
	}

	record := models.UnlockToken{Encrypted: *env, PinSalt: pinSalt, Created: now}
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("token record encoding: %w", err)
	}
	return repo.Set(ctx, storage.KeyUnlockToken, b)
}
