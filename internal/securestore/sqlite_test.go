package securestore

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpkeeper/internal/common"
)

func setupSQLite(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func setupSQLiteStore(t *testing.T, elevation Elevation) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db := setupSQLite(t)

	key, err := InitSQLiteVault(context.Background(), db, []byte("passphrase"))
	require.NoError(t, err)
	return NewSQLiteStore(db, key, elevation), db
}

func TestOpenSQLite_AppliesMigrations(t *testing.T) {
	db := setupSQLite(t)

	for _, table := range []string{"vault_meta", "records", "goose_db_version"} {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s", table)
	}
}

func TestSQLiteVault_InitAndOpen(t *testing.T) {
	db := setupSQLite(t)
	ctx := context.Background()

	key, err := InitSQLiteVault(ctx, db, []byte("correct horse"))
	require.NoError(t, err)
	require.Len(t, key, 32)

	reopened, err := OpenSQLiteVault(ctx, db, []byte("correct horse"))
	require.NoError(t, err)
	assert.Equal(t, key, reopened)
}

func TestSQLiteVault_WrongPassphrase(t *testing.T) {
	db := setupSQLite(t)
	ctx := context.Background()

	_, err := InitSQLiteVault(ctx, db, []byte("correct horse"))
	require.NoError(t, err)

	_, err = OpenSQLiteVault(ctx, db, []byte("battery staple"))
	assert.ErrorIs(t, err, common.ErrWrongPassphrase)
}

func TestSQLiteVault_Uninitialized(t *testing.T) {
	db := setupSQLite(t)

	_, err := OpenSQLiteVault(context.Background(), db, []byte("any"))
	assert.ErrorIs(t, err, common.ErrVaultUninitialized)
}

func TestSQLiteVault_DoubleInitFails(t *testing.T) {
	db := setupSQLite(t)
	ctx := context.Background()

	_, err := InitSQLiteVault(ctx, db, []byte("one"))
	require.NoError(t, err)

	_, err = InitSQLiteVault(ctx, db, []byte("two"))
	assert.Error(t, err)
}

func TestSQLiteStore_PutGetRoundTrip(t *testing.T) {
	s, db := setupSQLiteStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, RecordToken, "acc-1", []byte(`{"issuer":"Example"}`), false))

	data, err := s.Get(ctx, RecordToken, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"issuer":"Example"}`), data)

	// the stored value is ciphertext, not the plaintext record
	var raw []byte
	err = db.QueryRow(`SELECT data FROM records WHERE record_type='token' AND key='acc-1'`).Scan(&raw)
	require.NoError(t, err)
	assert.NotEqual(t, []byte(`{"issuer":"Example"}`), raw)
}

func TestSQLiteStore_GetAbsent(t *testing.T) {
	s, _ := setupSQLiteStore(t, nil)

	_, err := s.Get(context.Background(), RecordToken, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSQLiteStore_PutOverwrites(t *testing.T) {
	s, _ := setupSQLiteStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, RecordOTP, "acc-1", []byte("old"), false))
	require.NoError(t, s.Put(ctx, RecordOTP, "acc-1", []byte("new"), false))

	data, err := s.Get(ctx, RecordOTP, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}

func TestSQLiteStore_Delete(t *testing.T) {
	s, _ := setupSQLiteStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, RecordOTP, "acc-1", []byte("x"), false))
	require.NoError(t, s.Delete(ctx, RecordOTP, "acc-1"))

	_, err := s.Get(ctx, RecordOTP, "acc-1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, s.Delete(ctx, RecordOTP, "acc-1"))
}

func TestSQLiteStore_List(t *testing.T) {
	s, _ := setupSQLiteStore(t, nil)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, RecordOTP, "a", []byte("1"), false))
	require.NoError(t, s.Put(ctx, RecordOTP, "b", []byte("2"), false))
	require.NoError(t, s.Put(ctx, RecordToken, "c", []byte("3"), false))

	keys, err := s.List(ctx, RecordOTP)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestSQLiteStore_LockedRequiresElevation(t *testing.T) {
	elevation := &stubElevation{}
	s, _ := setupSQLiteStore(t, elevation)
	ctx := context.Background()

	require.True(t, s.LockingSupported())
	require.NoError(t, s.Put(ctx, RecordOTP, "acc-1", []byte("secret"), true))

	_, err := s.Get(ctx, RecordOTP, "acc-1")
	assert.ErrorIs(t, err, common.ErrLocked)

	elevation.valid = true
	data, err := s.Get(ctx, RecordOTP, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), data)
}

func TestSQLiteStore_LockIgnoredWithoutSupport(t *testing.T) {
	s, _ := setupSQLiteStore(t, nil)
	ctx := context.Background()

	require.False(t, s.LockingSupported())
	require.NoError(t, s.Put(ctx, RecordOTP, "acc-1", []byte("secret"), true))

	data, err := s.Get(ctx, RecordOTP, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), data)
}
