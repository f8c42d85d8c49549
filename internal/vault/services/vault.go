// Package services wires the vault subsystems together: key derivation and
// codec under the session guard, the unlock token behind the lockout guard,
// off-device backup, and the audit ledger.
package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pinvault/pinvault/internal/backup"
	"github.com/pinvault/pinvault/internal/common"
	"github.com/pinvault/pinvault/internal/cryptox"
	"github.com/pinvault/pinvault/internal/ledger"
	"github.com/pinvault/pinvault/internal/logging"
	"github.com/pinvault/pinvault/internal/phrase"
	"github.com/pinvault/pinvault/internal/storage"
	"github.com/pinvault/pinvault/internal/timex"
	"github.com/pinvault/pinvault/internal/vault/codec"
	"github.com/pinvault/pinvault/internal/vault/lockout"
	"github.com/pinvault/pinvault/internal/vault/models"
	"github.com/pinvault/pinvault/internal/vault/session"
	"github.com/pinvault/pinvault/internal/vault/token"
	"golang.org/x/sync/singleflight"
)

var (
	ErrVaultExists         = errors.New("vault already initialized")
	ErrVaultNotInitialized = errors.New("vault not initialized")
	ErrEntryNotFound       = errors.New("entry not found")
)

// VaultService is the application-facing surface of the vault core. It is an
// explicit value: hosts that need several independent vaults construct
// several services with their own session guards.
type VaultService struct {
	db      *sql.DB
	session *session.Guard
	lockout *lockout.Guard
	tokens  *token.Manager
	audit   ledger.Ledger
	blobs   backup.BlobStore
	clock   timex.Clock
	logger  logging.Logger

	// iterations is the PBKDF2 cost for phrase-derived keys. Tests lower it.
	iterations int

	// derivations collapses concurrent master-key derivations for the same
	// inputs into a single in-flight computation.
	derivations singleflight.Group
}

func NewVaultService(
	db *sql.DB,
	sess *session.Guard,
	guard *lockout.Guard,
	tokens *token.Manager,
	audit ledger.Ledger,
	clock timex.Clock,
	logger logging.Logger,
) *VaultService {
	if logger == nil {
		logger = logging.Nop{}
	}
	if audit == nil {
		audit = ledger.Nop{}
	}
	return &VaultService{
		db:         db,
		session:    sess,
		lockout:    guard,
		tokens:     tokens,
		audit:      audit,
		clock:      clock,
		logger:     logger,
		iterations: cryptox.PhraseIterations,
	}
}

// SetBlobStore wires the off-device backup target. Backup and Restore fail
// until one is set.
func (s *VaultService) SetBlobStore(b backup.BlobStore) { s.blobs = b }

// Session exposes the session guard (for activity signals and state display).
func (s *VaultService) Session() *session.Guard { return s.session }

// Lockout exposes the lockout guard for status queries.
func (s *VaultService) Lockout() *lockout.Guard { return s.lockout }

func (s *VaultService) repo() storage.Repository {
	return storage.NewSQLiteRepository(s.db)
}

// Exists reports whether a vault record is stored on this device.
func (s *VaultService) Exists(ctx context.Context) (bool, error) {
	b, err := s.repo().Get(ctx, storage.KeyVault)
	if err != nil {
		return false, err
	}
	return b != nil, nil
}

// HasUnlockToken reports whether quick PIN unlock is available.
func (s *VaultService) HasUnlockToken(ctx context.Context) (bool, error) {
	return s.tokens.Exists(ctx)
}

// CreateVault generates a fresh recovery phrase and vault salt, derives the
// master key, persists an empty vault record, and activates the session.
// The returned phrase is the sole irreplaceable credential; it is shown to
// the user exactly once and otherwise lives only in memory.
func (s *VaultService) CreateVault(ctx context.Context, timeoutMinutes int) (string, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return "", err
	}
	if exists {
		return "", ErrVaultExists
	}

	rootSecret, err := phrase.Generate()
	if err != nil {
		return "", err
	}

	vaultSalt := common.GenerateRandByteArray(cryptox.SaltSize)

	masterKey, err := s.deriveMasterKey(ctx, []byte(rootSecret), vaultSalt)
	if err != nil {
		return "", err
	}

	record := &models.VaultRecord{
		Version:  models.VaultRecordVersion,
		Settings: models.Settings{TimeoutMinutes: timeoutMinutes},
		Entries:  []models.CredentialEntry{},
	}

	if err := s.saveRecord(ctx, record, masterKey, vaultSalt, ledger.OpCreate); err != nil {
		return "", err
	}

	s.session.Activate(masterKey, []byte(rootSecret), time.Duration(timeoutMinutes)*time.Minute)
	s.logger.Info(ctx, "vault created")
	return rootSecret, nil
}

// UnlockWithPhrase performs full recovery: derive the master key from the
// supplied phrase and the stored vault salt, and prove it by decrypting the
// vault. A wrong phrase is reported with the same message as a wrong PIN.
// Success also resets the lockout counter, which is the only exit from the
// terminal lockout state.
func (s *VaultService) UnlockWithPhrase(ctx context.Context, rootSecret string) error {
	stored, err := s.loadStored(ctx)
	if err != nil {
		return err
	}

	masterKey, err := s.deriveMasterKey(ctx, []byte(rootSecret), stored.VaultSalt)
	if err != nil {
		return err
	}

	record, err := codec.DecodeVault(stored, masterKey)
	if err != nil {
		common.Wipe(masterKey)
		if errors.Is(err, cryptox.ErrAuthentication) {
			return common.ErrInvalidCredentials
		}
		return err
	}

	if err := s.lockout.Reset(ctx); err != nil {
		common.Wipe(masterKey)
		return err
	}

	s.session.Activate(masterKey, []byte(rootSecret),
		time.Duration(record.Settings.TimeoutMinutes)*time.Minute)
	s.logger.Info(ctx, "vault unlocked", "method", "phrase")
	return nil
}

// UnlockWithPin is the quick-unlock path, gated by the lockout guard. A
// wrong PIN registers a failure (and its lockout side effects) whether or
// not the caller inspects the returned error.
func (s *VaultService) UnlockWithPin(ctx context.Context, pin string) error {
	if err := s.lockout.Allow(ctx); err != nil {
		return err
	}

	rootSecret, vaultSalt, err := s.tokens.Open(ctx, pin)
	if err != nil {
		if errors.Is(err, common.ErrInvalidPin) {
			if _, regErr := s.lockout.RegisterFailure(ctx); regErr != nil {
				s.logger.Error(ctx, "failed to register pin failure", "error", regErr)
			}
		}
		return err
	}

	masterKey, err := s.deriveMasterKey(ctx, []byte(rootSecret), vaultSalt)
	if err != nil {
		return err
	}

	stored, err := s.loadStored(ctx)
	if err != nil {
		common.Wipe(masterKey)
		return err
	}

	record, err := codec.DecodeVault(stored, masterKey)
	if err != nil {
		common.Wipe(masterKey)
		return err
	}

	if err := s.lockout.Reset(ctx); err != nil {
		common.Wipe(masterKey)
		return err
	}

	s.session.Activate(masterKey, []byte(rootSecret),
		time.Duration(record.Settings.TimeoutMinutes)*time.Minute)
	s.logger.Info(ctx, "vault unlocked", "method", "pin")
	return nil
}

// SetupPin mints an unlock token for the active session, replacing any
// existing one, and starts the PIN failure counter from a clean slate.
func (s *VaultService) SetupPin(ctx context.Context, pin string) error {
	rootSecret, err := s.session.RootSecret()
	if err != nil {
		return err
	}
	defer common.Wipe(rootSecret)

	stored, err := s.loadStored(ctx)
	if err != nil {
		return err
	}

	if err := s.tokens.Create(ctx, string(rootSecret), stored.VaultSalt, pin); err != nil {
		return err
	}
	return s.lockout.Reset(ctx)
}

// ChangePin replaces the unlock token under a new PIN after verifying the
// old one. A wrong old PIN counts as a failed attempt.
func (s *VaultService) ChangePin(ctx context.Context, oldPin, newPin string) error {
	if err := s.lockout.Allow(ctx); err != nil {
		return err
	}

	if err := s.tokens.ChangePin(ctx, oldPin, newPin); err != nil {
		if errors.Is(err, common.ErrInvalidPin) {
			if _, regErr := s.lockout.RegisterFailure(ctx); regErr != nil {
				s.logger.Error(ctx, "failed to register pin failure", "error", regErr)
			}
		}
		return err
	}
	return s.lockout.Reset(ctx)
}

// Lock wipes session key material but keeps the unlock token, so the next
// entry can use the PIN.
func (s *VaultService) Lock(ctx context.Context) {
	s.session.Lock(ctx)
}

// Logout wipes session key material and destroys the unlock token: the next
// entry requires the full recovery phrase.
func (s *VaultService) Logout(ctx context.Context) error {
	s.session.Logout(ctx)
	if err := s.tokens.Destroy(ctx); err != nil {
		return err
	}
	return s.lockout.Reset(ctx)
}

// AddEntry appends a credential. The secret is enveloped on its own under
// the master key.
func (s *VaultService) AddEntry(ctx context.Context, site, login, secret, notes string) (*models.CredentialEntry, error) {
	s.session.Touch()

	record, stored, masterKey, err := s.loadRecord(ctx)
	if err != nil {
		return nil, err
	}
	defer common.Wipe(masterKey)

	secretEnv, err := codec.EncryptSecret(secret, masterKey)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	entry := models.CredentialEntry{
		ID:        uuid.NewString(),
		Site:      site,
		Login:     login,
		Secret:    secretEnv,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	record.Entries = append(record.Entries, entry)

	if err := s.saveRecord(ctx, record, masterKey, stored.VaultSalt, ledger.OpUpdate); err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListEntries returns all entries with their secrets still enveloped.
func (s *VaultService) ListEntries(ctx context.Context) ([]models.CredentialEntry, error) {
	s.session.Touch()

	record, _, masterKey, err := s.loadRecord(ctx)
	if err != nil {
		return nil, err
	}
	common.Wipe(masterKey)
	return record.Entries, nil
}

// RevealSecret decrypts a single entry's secret on demand. The caller is
// expected to re-hide it promptly; nothing is cached.
func (s *VaultService) RevealSecret(ctx context.Context, id string) (string, error) {
	s.session.Touch()

	record, _, masterKey, err := s.loadRecord(ctx)
	if err != nil {
		return "", err
	}
	defer common.Wipe(masterKey)

	for _, entry := range record.Entries {
		if entry.ID == id {
			return codec.DecryptSecret(entry.Secret, masterKey)
		}
	}
	return "", ErrEntryNotFound
}

// UpdateEntry edits an entry. The stored secret envelope is only replaced
// when edit.SecretChanged is set; otherwise it is carried over untouched and
// never decrypted.
func (s *VaultService) UpdateEntry(ctx context.Context, id string, edit models.EntryEdit) error {
	s.session.Touch()

	record, stored, masterKey, err := s.loadRecord(ctx)
	if err != nil {
		return err
	}
	defer common.Wipe(masterKey)

	idx := -1
	for i := range record.Entries {
		if record.Entries[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrEntryNotFound
	}

	entry := &record.Entries[idx]
	entry.Site = edit.Site
	entry.Login = edit.Login
	entry.Notes = edit.Notes
	if edit.SecretChanged {
		secretEnv, err := codec.EncryptSecret(edit.Secret, masterKey)
		if err != nil {
			return err
		}
		entry.Secret = secretEnv
	}
	entry.UpdatedAt = s.clock.Now().UTC()

	return s.saveRecord(ctx, record, masterKey, stored.VaultSalt, ledger.OpUpdate)
}

// DeleteEntry removes an entry.
func (s *VaultService) DeleteEntry(ctx context.Context, id string) error {
	s.session.Touch()

	record, stored, masterKey, err := s.loadRecord(ctx)
	if err != nil {
		return err
	}
	defer common.Wipe(masterKey)

	kept := record.Entries[:0]
	found := false
	for _, entry := range record.Entries {
		if entry.ID == id {
			found = true
			continue
		}
		kept = append(kept, entry)
	}
	if !found {
		return ErrEntryNotFound
	}
	record.Entries = kept

	return s.saveRecord(ctx, record, masterKey, stored.VaultSalt, ledger.OpUpdate)
}

// SetTimeout stores a new idle-timeout setting inside the encrypted vault.
// It takes effect on the next unlock.
func (s *VaultService) SetTimeout(ctx context.Context, minutes int) error {
	s.session.Touch()

	record, stored, masterKey, err := s.loadRecord(ctx)
	if err != nil {
		return err
	}
	defer common.Wipe(masterKey)

	record.Settings.TimeoutMinutes = minutes
	return s.saveRecord(ctx, record, masterKey, stored.VaultSalt, ledger.OpUpdate)
}

// Backup ships the serialized outer envelope to the blob store and returns
// the object key. Only ciphertext leaves the device.
func (s *VaultService) Backup(ctx context.Context) (string, error) {
	if s.blobs == nil {
		return "", errors.New("no blob store configured")
	}

	b, err := s.repo().Get(ctx, storage.KeyVault)
	if err != nil {
		return "", err
	}
	if b == nil {
		return "", ErrVaultNotInitialized
	}

	key := backup.RandomBackupKey(s.clock.Now().UTC())
	if err := s.blobs.Put(ctx, key, b); err != nil {
		return "", err
	}

	if err := s.audit.Record(ctx, cryptox.Digest(b), ledger.OpBackup); err != nil {
		s.logger.Warn(ctx, "ledger record failed", "op", ledger.OpBackup, "error", err)
	}
	return key, nil
}

// Restore fetches a backed-up envelope and installs it as the local vault
// record after checking that it parses. It does not unlock anything: the
// restored vault still needs its recovery phrase.
func (s *VaultService) Restore(ctx context.Context, key string) error {
	if s.blobs == nil {
		return errors.New("no blob store configured")
	}

	b, err := s.blobs.Get(ctx, key)
	if err != nil {
		return err
	}

	if _, err := codec.UnmarshalStored(b); err != nil {
		return err
	}

	if err := s.repo().Set(ctx, storage.KeyVault, b); err != nil {
		return err
	}

	if err := s.audit.Record(ctx, cryptox.Digest(b), ledger.OpRestore); err != nil {
		s.logger.Warn(ctx, "ledger record failed", "op", ledger.OpRestore, "error", err)
	}
	return nil
}

// deriveMasterKey serializes concurrent derivations: a second caller with
// the same inputs awaits the first result instead of re-deriving.
func (s *VaultService) deriveMasterKey(ctx context.Context, secret, salt []byte) ([]byte, error) {
	flightKey := hex.EncodeToString(cryptox.Digest(append(append([]byte{}, secret...), salt...)))

	v, err, _ := s.derivations.Do(flightKey, func() (any, error) {
		return cryptox.DeriveKey(secret, salt, s.iterations)
	})
	if err != nil {
		return nil, err
	}
	// Each caller gets its own copy: the session guard wipes what it owns.
	key := append([]byte{}, v.([]byte)...)
	return key, nil
}

func (s *VaultService) loadStored(ctx context.Context) (*models.StoredVault, error) {
	b, err := s.repo().Get(ctx, storage.KeyVault)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrVaultNotInitialized
	}
	return codec.UnmarshalStored(b)
}

// loadRecord decodes the vault with the active session's master key.
func (s *VaultService) loadRecord(ctx context.Context) (*models.VaultRecord, *models.StoredVault, []byte, error) {
	masterKey, err := s.session.MasterKey()
	if err != nil {
		return nil, nil, nil, err
	}

	stored, err := s.loadStored(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	record, err := codec.DecodeVault(stored, masterKey)
	if err != nil {
		return nil, nil, nil, err
	}
	return record, stored, masterKey, nil
}

// saveRecord re-encrypts the record with a fresh nonce, persists it, and
// notifies the ledger with the digest of the new serialized envelope.
func (s *VaultService) saveRecord(ctx context.Context, record *models.VaultRecord, masterKey, vaultSalt []byte, op string) error {
	stored, err := codec.EncodeVault(record, masterKey, vaultSalt)
	if err != nil {
		return err
	}

	b, err := codec.MarshalStored(stored)
	if err != nil {
		return err
	}

	if err := s.repo().Set(ctx, storage.KeyVault, b); err != nil {
		return fmt.Errorf("saving vault: %w", err)
	}

	if err := s.audit.Record(ctx, cryptox.Digest(b), op); err != nil {
		s.logger.Warn(ctx, "ledger record failed", "op", op, "error", err)
	}
	return nil
}
