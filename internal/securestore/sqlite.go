package securestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"otpkeeper/internal/common"
	"otpkeeper/internal/cryptox"
	"otpkeeper/internal/dbx"
	"otpkeeper/internal/securestore/migrations"
)

// SQLiteStore keeps records in a local SQLite vault, every value sealed
// with the master key.
type SQLiteStore struct {
	db        dbx.DBTX
	key       []byte
	elevation Elevation
}

// OpenSQLite opens (or creates) the vault database at dsn and applies
// pending migrations.
func OpenSQLite(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := runMigrations(ctx, db, "sqlite3", "sqlite"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return db, nil
}

func runMigrations(ctx context.Context, db *sql.DB, dialect, dir string) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, dir)
}

// InitSQLiteVault sets up vault metadata for a fresh database and returns
// the master key. Fails if the vault was already initialized. The check and
// insert run in one transaction.
func InitSQLiteVault(ctx context.Context, db *sql.DB, passphrase []byte) ([]byte, error) {
	var key []byte
	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		key, err = initVault(ctx, tx, `INSERT INTO vault_meta (id, salt, verifier) VALUES (1, ?, ?)`, passphrase)
		return err
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// OpenSQLiteVault checks the passphrase and returns the master key.
func OpenSQLiteVault(ctx context.Context, db dbx.DBTX, passphrase []byte) ([]byte, error) {
	return openVault(ctx, db, passphrase)
}

// NewSQLiteStore wraps an opened vault database. A nil elevation disables
// locked-record support.
func NewSQLiteStore(db dbx.DBTX, masterKey []byte, elevation Elevation) *SQLiteStore {
	return &SQLiteStore{db: db, key: masterKey, elevation: elevation}
}

func (s *SQLiteStore) Get(ctx context.Context, recordType RecordType, key string) ([]byte, error) {
	var nonce, data []byte
	var locked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT nonce, data, locked FROM records WHERE record_type = ? AND key = ?`,
		string(recordType), key).Scan(&nonce, &data, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s[%s]: %w", recordType, key, err)
	}

	if locked && (s.elevation == nil || !s.elevation.Valid()) {
		return nil, common.ErrLocked
	}

	plaintext, err := cryptox.Decrypt(data, nonce, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %s[%s]: %w", recordType, key, err)
	}
	return plaintext, nil
}

func (s *SQLiteStore) Put(ctx context.Context, recordType RecordType, key string, data []byte, locked bool) error {
	ciphertext, nonce, err := cryptox.Encrypt(data, s.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s[%s]: %w", recordType, key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (record_type, key, nonce, data, locked) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(record_type, key) DO UPDATE SET nonce = excluded.nonce, data = excluded.data, locked = excluded.locked
	`, string(recordType), key, nonce, ciphertext, locked && s.LockingSupported())
	if err != nil {
		return fmt.Errorf("failed to put %s[%s]: %w", recordType, key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, recordType RecordType, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE record_type = ? AND key = ?`, string(recordType), key)
	if err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", recordType, key, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, recordType RecordType) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM records WHERE record_type = ?`, string(recordType))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", recordType, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan %s record key: %w", recordType, err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s record keys: %w", recordType, err)
	}
	return keys, nil
}

func (s *SQLiteStore) LockingSupported() bool {
	return s.elevation != nil
}
