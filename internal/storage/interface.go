// Package storage is the persistent key-value store behind the vault core.
//
// The core depends on nothing beyond "last write wins, read returns the last
// written value or absence". The shipped implementation is a single sqlite
// table managed by goose migrations; tests and alternative hosts can supply
// anything that satisfies Repository.
package storage

import "context"

// Well-known record keys.
const (
	// KeyVault holds the outer vault envelope plus its clear vault salt.
	KeyVault = "vault"
	// KeyUnlockToken holds the PIN unlock token record.
	KeyUnlockToken = "unlock_token"
	// KeyLockoutState holds the PIN failure counter and lockout deadline.
	KeyLockoutState = "lockout_state"
)

// Repository is a byte-oriented key-value store. Get returns (nil, nil) when
// the key is absent.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
