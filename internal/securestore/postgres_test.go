package securestore

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpkeeper/internal/common"
	"otpkeeper/internal/cryptox"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock := newMockDB(t)
	key := common.GenerateRandByteArray(32)
	s := NewPostgresStore(db, key, nil)

	ciphertext, nonce, err := cryptox.Encrypt([]byte("payload"), key)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT nonce, data, locked FROM records WHERE record_type = $1 AND key = $2`)).
		WithArgs("token", "acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"nonce", "data", "locked"}).AddRow(nonce, ciphertext, false))

	data, err := s.Get(context.Background(), RecordToken, "acc-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAbsent(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresStore(db, common.GenerateRandByteArray(32), nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT nonce, data, locked FROM records`)).
		WithArgs("token", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), RecordToken, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestPostgresStore_GetLockedWithoutElevation(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresStore(db, common.GenerateRandByteArray(32), &stubElevation{valid: false})

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT nonce, data, locked FROM records`)).
		WithArgs("otp", "acc-1").
		WillReturnRows(sqlmock.NewRows([]string{"nonce", "data", "locked"}).AddRow([]byte("n"), []byte("c"), true))

	_, err := s.Get(context.Background(), RecordOTP, "acc-1")
	assert.ErrorIs(t, err, common.ErrLocked)
}

func TestPostgresStore_Put(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresStore(db, common.GenerateRandByteArray(32), &stubElevation{})

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO records (record_type, key, nonce, data, locked) VALUES ($1, $2, $3, $4, $5)`)).
		WithArgs("otp", "acc-1", sqlmock.AnyArg(), sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Put(context.Background(), RecordOTP, "acc-1", []byte("secret"), true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Delete(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresStore(db, common.GenerateRandByteArray(32), nil)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM records WHERE record_type = $1 AND key = $2`)).
		WithArgs("token", "acc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Delete(context.Background(), RecordToken, "acc-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_List(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewPostgresStore(db, common.GenerateRandByteArray(32), nil)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT key FROM records WHERE record_type = $1`)).
		WithArgs("order").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("store-1").AddRow("store-2"))

	keys, err := s.List(context.Background(), RecordOrder)
	require.NoError(t, err)
	assert.Equal(t, []string{"store-1", "store-2"}, keys)
}

func TestPostgresVault_Open(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()

	salt := []byte("0123456789abcdef")
	masterKey := cryptox.DeriveMasterKey([]byte("passphrase"), salt)
	verifier := cryptox.MakeVerifier(masterKey)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT salt, verifier FROM vault_meta WHERE id = 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"salt", "verifier"}).AddRow(salt, verifier))

	key, err := OpenPostgresVault(ctx, db, []byte("passphrase"))
	require.NoError(t, err)
	assert.Equal(t, masterKey, key)
}

func TestPostgresVault_Init(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM vault_meta`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO vault_meta (id, salt, verifier) VALUES (1, $1, $2)`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	key, err := InitPostgresVault(context.Background(), db, []byte("passphrase"))
	require.NoError(t, err)
	assert.Len(t, key, 32)
	assert.NoError(t, mock.ExpectationsWereMet())
}
