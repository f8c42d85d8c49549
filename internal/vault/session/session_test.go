package session

import (
	"context"
	"testing"
	"time"

	"github.com/pinvault/pinvault/internal/common"
	"github.com/pinvault/pinvault/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuard(t *testing.T) (*Guard, *timex.Fake) {
	t.Helper()
	clock := timex.NewFake(time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC))
	return NewGuard(clock, nil), clock
}

func activate(g *Guard, timeout time.Duration) {
	g.Activate([]byte("master-key-bytes"), []byte("root secret"), timeout)
}

func TestGuard_InitialState(t *testing.T) {
	g, _ := newGuard(t)

	assert.Equal(t, StateLoggedOut, g.State())
	_, err := g.MasterKey()
	assert.ErrorIs(t, err, common.ErrSessionLocked)
}

func TestGuard_ActivateExposesKeys(t *testing.T) {
	g, _ := newGuard(t)
	activate(g, 15*time.Minute)

	assert.Equal(t, StateActive, g.State())

	key, err := g.MasterKey()
	require.NoError(t, err)
	assert.Equal(t, []byte("master-key-bytes"), key)

	secret, err := g.RootSecret()
	require.NoError(t, err)
	assert.Equal(t, []byte("root secret"), secret)
}

func TestGuard_IdleTimeoutLocks(t *testing.T) {
	g, clock := newGuard(t)
	activate(g, 15*time.Minute)

	clock.Advance(15 * time.Minute)

	assert.Equal(t, StateLockedBySystem, g.State())
	_, err := g.MasterKey()
	assert.ErrorIs(t, err, common.ErrSessionLocked)
}

func TestGuard_ActivityDefersLock(t *testing.T) {
	g, clock := newGuard(t)
	activate(g, 15*time.Minute)

	// Activity at minute 14 defers the lock to minute 29.
	clock.Advance(14 * time.Minute)
	g.Touch()

	clock.Advance(14 * time.Minute) // minute 28
	assert.Equal(t, StateActive, g.State())

	clock.Advance(time.Minute) // minute 29
	assert.Equal(t, StateLockedBySystem, g.State())
}

func TestGuard_ZeroTimeoutDisablesAutoLock(t *testing.T) {
	g, clock := newGuard(t)
	activate(g, 0)

	clock.Advance(24 * time.Hour)
	assert.Equal(t, StateActive, g.State())
}

func TestGuard_UserLockWipesKeys(t *testing.T) {
	g, _ := newGuard(t)
	masterKey := []byte("master-key-bytes")
	rootSecret := []byte("root secret")
	g.Activate(masterKey, rootSecret, 15*time.Minute)

	g.Lock(context.Background())

	assert.Equal(t, StateLockedByUser, g.State())
	_, err := g.MasterKey()
	assert.ErrorIs(t, err, common.ErrSessionLocked)

	// The guard owns the slices and zeroes them on lock.
	assert.Equal(t, make([]byte, len(masterKey)), masterKey)
	assert.Equal(t, make([]byte, len(rootSecret)), rootSecret)
}

func TestGuard_ReturnedKeySurvivesWipe(t *testing.T) {
	g, clock := newGuard(t)
	activate(g, 15*time.Minute)

	key, err := g.MasterKey()
	require.NoError(t, err)
	secret, err := g.RootSecret()
	require.NoError(t, err)

	// An idle expiry wipes the guard's own slices; copies already handed
	// out must stay intact so an in-flight encryption cannot be corrupted.
	clock.Advance(15 * time.Minute)
	require.Equal(t, StateLockedBySystem, g.State())

	assert.Equal(t, []byte("master-key-bytes"), key)
	assert.Equal(t, []byte("root secret"), secret)

	// And wiping a returned copy must not reach back into the guard.
	activate(g, 15*time.Minute)
	key2, err := g.MasterKey()
	require.NoError(t, err)
	common.Wipe(key2)

	key3, err := g.MasterKey()
	require.NoError(t, err)
	assert.Equal(t, []byte("master-key-bytes"), key3)
}

func TestGuard_Logout(t *testing.T) {
	g, _ := newGuard(t)
	activate(g, 15*time.Minute)

	g.Logout(context.Background())

	assert.Equal(t, StateLoggedOut, g.State())
	_, err := g.MasterKey()
	assert.ErrorIs(t, err, common.ErrSessionLocked)
}

func TestGuard_AutoLockHandler(t *testing.T) {
	g, clock := newGuard(t)

	fired := 0
	g.SetAutoLockHandler(func() { fired++ })

	activate(g, 15*time.Minute)
	clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, fired)
}

func TestGuard_ReactivateAfterLock(t *testing.T) {
	g, clock := newGuard(t)
	activate(g, 15*time.Minute)

	clock.Advance(15 * time.Minute)
	require.Equal(t, StateLockedBySystem, g.State())

	activate(g, 15*time.Minute)
	assert.Equal(t, StateActive, g.State())

	key, err := g.MasterKey()
	require.NoError(t, err)
	assert.Equal(t, []byte("master-key-bytes"), key)
}
