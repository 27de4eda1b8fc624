package securestore

import (
	"context"
	"crypto/hmac"
	"database/sql"
	"errors"
	"fmt"

	"otpkeeper/internal/common"
	"otpkeeper/internal/cryptox"
	"otpkeeper/internal/dbx"
)

const saltSize = 16

// initVault creates the vault metadata row for a fresh database and returns
// the derived master key. The insert query is dialect-specific and must take
// (salt, verifier) as its two parameters.
func initVault(ctx context.Context, db dbx.DBTX, insertQuery string, passphrase []byte) ([]byte, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vault_meta`).Scan(&n); err != nil {
		return nil, fmt.Errorf("failed to inspect vault metadata: %w", err)
	}
	if n > 0 {
		return nil, errors.New("vault is already initialized")
	}

	salt := common.GenerateRandByteArray(saltSize)
	key := cryptox.DeriveMasterKey(passphrase, salt)
	verifier := cryptox.MakeVerifier(key)

	if _, err := db.ExecContext(ctx, insertQuery, salt, verifier); err != nil {
		common.WipeByteArray(key)
		return nil, fmt.Errorf("failed to save vault metadata: %w", err)
	}
	return key, nil
}

// openVault verifies the passphrase against the stored salt and verifier
// and returns the master key. The key itself is never persisted; only its
// SHA-256 verifier is compared.
func openVault(ctx context.Context, db dbx.DBTX, passphrase []byte) ([]byte, error) {
	var salt, verifier []byte
	err := db.QueryRowContext(ctx, `SELECT salt, verifier FROM vault_meta WHERE id = 1`).Scan(&salt, &verifier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrVaultUninitialized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vault metadata: %w", err)
	}

	key := cryptox.DeriveMasterKey(passphrase, salt)
	if !hmac.Equal(cryptox.MakeVerifier(key), verifier) {
		common.WipeByteArray(key)
		return nil, common.ErrWrongPassphrase
	}
	return key, nil
}
