// Package common defines shared constants and sentinel errors used across
// the vault core. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Storage-level errors.
	ErrNotFound = errors.New("not found")

	// Generic internal flow control.
	ErrInternal = errors.New("internal error")

	// ErrInvalidCredentials is the user-facing failure for both a wrong PIN
	// and a wrong recovery phrase. The two cases are tracked separately by
	// the lockout guard but must not be distinguishable in message.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidPin signals that an unlock token failed to open with the
	// supplied PIN.
	ErrInvalidPin = errors.New("invalid credentials")

	// ErrRootSecretRequired is the terminal lockout state: the unlock token
	// has been destroyed and only full recovery-phrase entry is accepted.
	ErrRootSecretRequired = errors.New("recovery phrase required")

	// ErrSessionLocked is returned when key material is requested from a
	// session that is not active.
	ErrSessionLocked = errors.New("session locked")

	// ErrDecoding signals that decrypted bytes do not parse as a valid
	// vault or entry record (version mismatch or corruption).
	ErrDecoding = errors.New("record decoding failed")

	// ErrNoUnlockToken signals that quick unlock is unavailable because no
	// token is stored on this device.
	ErrNoUnlockToken = errors.New("no unlock token")

	// ErrInvalidPinFormat rejects PINs that are not exactly six digits.
	ErrInvalidPinFormat = errors.New("pin must be 6 digits")
)
