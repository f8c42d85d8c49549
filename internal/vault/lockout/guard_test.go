package lockout

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pinvault/pinvault/internal/common"
	"github.com/pinvault/pinvault/internal/storage"
	"github.com/pinvault/pinvault/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:lockouttest?mode=memory&cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS kv (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);
DELETE FROM kv;
`)
	require.NoError(t, err)
	return db
}

func newGuard(t *testing.T) (*Guard, *timex.Fake, *sql.DB) {
	t.Helper()
	db := setupDB(t)
	clock := timex.NewFake(time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC))
	return NewGuard(db, clock, nil), clock, db
}

func TestGuard_CleanSlate(t *testing.T) {
	g, _, _ := newGuard(t)
	ctx := context.Background()

	st, err := g.Check(ctx)
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Equal(t, 0, st.FailedAttempts)
	assert.NoError(t, g.Allow(ctx))
}

func TestGuard_ShortLockoutAfterThreeFailures(t *testing.T) {
	g, clock, _ := newGuard(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		st, err := g.RegisterFailure(ctx)
		require.NoError(t, err)
		assert.False(t, st.Locked)
	}

	st, err := g.RegisterFailure(ctx)
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, ShortLockoutDuration, st.Remaining)

	var lockErr *LockoutError
	err = g.Allow(ctx)
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, ShortLockoutDuration, lockErr.Remaining)

	// The window expires.
	clock.Advance(ShortLockoutDuration + time.Second)
	assert.NoError(t, g.Allow(ctx))
}

func TestGuard_LongLockoutAfterFiveFailures(t *testing.T) {
	g, clock, _ := newGuard(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := g.RegisterFailure(ctx)
		require.NoError(t, err)
		clock.Advance(ShortLockoutDuration + time.Second)
	}

	st, err := g.RegisterFailure(ctx)
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, LongLockoutDuration, st.Remaining)
	assert.Equal(t, 5, st.FailedAttempts)
}

func TestGuard_TerminalDestroysToken(t *testing.T) {
	g, clock, db := newGuard(t)
	ctx := context.Background()
	repo := storage.NewSQLiteRepository(db)

	require.NoError(t, repo.Set(ctx, storage.KeyUnlockToken, []byte("token-bytes")))

	for i := 0; i < TerminalThreshold; i++ {
		_, err := g.RegisterFailure(ctx)
		require.NoError(t, err)
		clock.Advance(LongLockoutDuration + time.Second)
	}

	st, err := g.Check(ctx)
	require.NoError(t, err)
	assert.True(t, st.Terminal)
	assert.True(t, st.Locked)
	assert.Zero(t, st.Remaining)

	assert.ErrorIs(t, g.Allow(ctx), common.ErrRootSecretRequired)

	// The stored token is gone.
	b, err := repo.Get(ctx, storage.KeyUnlockToken)
	require.NoError(t, err)
	assert.Nil(t, b)

	// Terminal never expires.
	clock.Advance(24 * time.Hour)
	assert.ErrorIs(t, g.Allow(ctx), common.ErrRootSecretRequired)
}

func TestGuard_ResetClearsCounter(t *testing.T) {
	g, _, _ := newGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.RegisterFailure(ctx)
		require.NoError(t, err)
	}

	require.NoError(t, g.Reset(ctx))

	st, err := g.Check(ctx)
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Equal(t, 0, st.FailedAttempts)
}

func TestGuard_StateSurvivesRestart(t *testing.T) {
	g, clock, db := newGuard(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.RegisterFailure(ctx)
		require.NoError(t, err)
	}

	// A new guard over the same database sees the same lockout.
	g2 := NewGuard(db, clock, nil)
	st, err := g2.Check(ctx)
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, 3, st.FailedAttempts)
}
