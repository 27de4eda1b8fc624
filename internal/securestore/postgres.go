package securestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"otpkeeper/internal/common"
	"otpkeeper/internal/cryptox"
	"otpkeeper/internal/dbx"
)

// PostgresStore keeps records in a shared Postgres vault, for setups where
// several machines work against one database. Values are sealed with the
// master key exactly like the SQLite backend.
type PostgresStore struct {
	db        dbx.DBTX
	key       []byte
	elevation Elevation
}

// OpenPostgres connects to the vault database at dsn and applies pending
// migrations.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := runMigrations(ctx, db, "postgres", "postgres"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return db, nil
}

// InitPostgresVault sets up vault metadata for a fresh database and returns
// the master key. Fails if the vault was already initialized. The check and
// insert run in one transaction.
func InitPostgresVault(ctx context.Context, db *sql.DB, passphrase []byte) ([]byte, error) {
	var key []byte
	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		key, err = initVault(ctx, tx, `INSERT INTO vault_meta (id, salt, verifier) VALUES (1, $1, $2)`, passphrase)
		return err
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// OpenPostgresVault checks the passphrase and returns the master key.
func OpenPostgresVault(ctx context.Context, db dbx.DBTX, passphrase []byte) ([]byte, error) {
	return openVault(ctx, db, passphrase)
}

// NewPostgresStore wraps an opened vault database. A nil elevation disables
// locked-record support.
func NewPostgresStore(db dbx.DBTX, masterKey []byte, elevation Elevation) *PostgresStore {
	return &PostgresStore{db: db, key: masterKey, elevation: elevation}
}

func (s *PostgresStore) Get(ctx context.Context, recordType RecordType, key string) ([]byte, error) {
	var nonce, data []byte
	var locked bool
	err := s.db.QueryRowContext(ctx,
		`SELECT nonce, data, locked FROM records WHERE record_type = $1 AND key = $2`,
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

func (s *PostgresStore) Put(ctx context.Context, recordType RecordType, key string, data []byte, locked bool) error {
	ciphertext, nonce, err := cryptox.Encrypt(data, s.key)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s[%s]: %w", recordType, key, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (record_type, key, nonce, data, locked) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (record_type, key) DO UPDATE SET nonce = excluded.nonce, data = excluded.data, locked = excluded.locked
	`, string(recordType), key, nonce, ciphertext, locked && s.LockingSupported())
	if err != nil {
		return fmt.Errorf("failed to put %s[%s]: %w", recordType, key, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, recordType RecordType, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE record_type = $1 AND key = $2`, string(recordType), key)
	if err != nil {
		return fmt.Errorf("failed to delete %s[%s]: %w", recordType, key, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, recordType RecordType) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM records WHERE record_type = $1`, string(recordType))
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

func (s *PostgresStore) LockingSupported() bool {
	return s.elevation != nil
}
