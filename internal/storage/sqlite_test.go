package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:storagetest?mode=memory&cache=shared")
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

func TestSQLiteRepository_SetGet(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, KeyVault, []byte("v1")))

	got, err := repo.Get(ctx, KeyVault)
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	// Last write wins.
	require.NoError(t, repo.Set(ctx, KeyVault, []byte("v2")))
	got, err = repo.Get(ctx, KeyVault)
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)
}

func TestSQLiteRepository_GetAbsent(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))

	got, err := repo.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestSQLiteRepository_Delete(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, KeyUnlockToken, []byte("token")))
	require.NoError(t, repo.Delete(ctx, KeyUnlockToken))

	got, err := repo.Get(ctx, KeyUnlockToken)
	require.NoError(t, err)
	require.Nil(t, got)

	// Deleting an absent key is not an error.
	require.NoError(t, repo.Delete(ctx, KeyUnlockToken))
}

func TestSQLiteRepository_Clear(t *testing.T) {
	repo := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, KeyVault, []byte("a")))
	require.NoError(t, repo.Set(ctx, KeyLockoutState, []byte("b")))
	require.NoError(t, repo.Clear(ctx))

	for _, key := range []string{KeyVault, KeyLockoutState} {
		got, err := repo.Get(ctx, key)
		require.NoError(t, err)
		require.Nil(t, got)
	}
}
