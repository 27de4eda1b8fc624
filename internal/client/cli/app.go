package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"otpkeeper/internal/backup"
	"otpkeeper/internal/client/config"
	"otpkeeper/internal/common"
	"otpkeeper/internal/logging"
	"otpkeeper/internal/securestore"
	"otpkeeper/internal/session"
	"otpkeeper/internal/tokenstore"
)

// defaultStoreID keys the order record and the backup object prefix. A vault
// holds a single token store, so the identifier is fixed.
const defaultStoreID = "default"

// App wires the vault backend, token store, elevation session, and backup
// service behind the REPL commands. It starts locked; Unlock opens the vault
// and Lock wipes the master key again.
type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	elevation *session.Manager

	store     *tokenstore.TokenStore
	backup    *backup.Service
	masterKey []byte

	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the configured vault database and prepares a locked App.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	var db *sql.DB
	var err error

	switch c.Backend {
	case config.BackendSQLite:
		db, err = securestore.OpenSQLite(ctx, c.VaultPath)
	case config.BackendPostgres:
		db, err = securestore.OpenPostgres(ctx, c.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
	if err != nil {
		logger.Error(ctx, "failed to open vault database", "backend", c.Backend, "error", err)
		return nil, err
	}

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		elevation: session.NewManager(c.ElevationTTL),
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
	}, nil
}

func (a *App) isUnlocked() bool {
	return a.masterKey != nil
}

func (a *App) getStatus() string {
	if a.isUnlocked() {
		return "(unlocked)"
	}
	return "(locked)"
}

// Run drives the REPL until the user exits, then closes the vault.
func (a *App) Run(ctx context.Context) {
	defer a.Close(ctx)

	fmt.Fprintln(a.out, "Welcome to otpkeeper (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}

// Close locks the vault and releases the database.
func (a *App) Close(ctx context.Context) {
	_ = a.Lock(ctx)
	if err := a.db.Close(); err != nil {
		a.logger.Warn(ctx, "failed to close vault database", "error", err)
	}
}

// Unlock asks for the vault passphrase, verifies it, and brings up the token
// store, elevation session, and backup service. On a fresh database it offers
// to initialize the vault first.
func (a *App) Unlock(ctx context.Context) error {
	if a.isUnlocked() {
		fmt.Fprintln(a.out, "Vault is already unlocked")
		return nil
	}

	passphrase, err := GetPassword(a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(passphrase)

	key, err := a.openVault(ctx, passphrase)
	if errors.Is(err, common.ErrVaultUninitialized) {
		answer, promptErr := GetSimpleText(a.reader, "Vault is not initialized. Create it now? (yes/no)", a.out)
		if promptErr != nil {
			return promptErr
		}
		if answer != "yes" {
			fmt.Fprintln(a.out, "Vault left uninitialized")
			return nil
		}
		key, err = a.initVault(ctx, passphrase)
	}
	if errors.Is(err, common.ErrWrongPassphrase) {
		fmt.Fprintln(a.out, "Wrong passphrase")
		return err
	}
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	var backing securestore.Store
	switch a.config.Backend {
	case config.BackendPostgres:
		backing = securestore.NewPostgresStore(a.db, key, a.elevation)
	default:
		backing = securestore.NewSQLiteStore(a.db, key, a.elevation)
	}

	store, err := tokenstore.New(ctx, defaultStoreID, backing, a.logger)
	if err != nil {
		common.WipeByteArray(key)
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	if err := a.elevation.Elevate(defaultStoreID); err != nil {
		a.logger.Warn(ctx, "failed to start elevation session", "error", err)
	}

	a.masterKey = key
	a.store = store
	a.backup = backup.NewService(backup.Config{
		Region:       a.config.S3Region,
		AccessKey:    a.config.S3AccessKey,
		SecretKey:    a.config.S3SecretKey,
		BaseEndpoint: a.config.S3BaseEndpoint,
		Bucket:       a.config.S3Bucket,
	}, key, a.logger)

	fmt.Fprintln(a.out, "Vault unlocked")
	return nil
}

func (a *App) openVault(ctx context.Context, passphrase []byte) ([]byte, error) {
	if a.config.Backend == config.BackendPostgres {
		return securestore.OpenPostgresVault(ctx, a.db, passphrase)
	}
	return securestore.OpenSQLiteVault(ctx, a.db, passphrase)
}

func (a *App) initVault(ctx context.Context, passphrase []byte) ([]byte, error) {
	if a.config.Backend == config.BackendPostgres {
		return securestore.InitPostgresVault(ctx, a.db, passphrase)
	}
	return securestore.InitSQLiteVault(ctx, a.db, passphrase)
}

// Lock wipes the master key and drops the elevation session.
func (a *App) Lock(ctx context.Context) error {
	if !a.isUnlocked() {
		return nil
	}

	common.WipeByteArray(a.masterKey)
	a.masterKey = nil
	a.store = nil
	a.backup = nil
	a.elevation.Drop()

	fmt.Fprintln(a.out, "Vault locked")
	return nil
}

// requireUnlocked guards commands that need an open vault.
func (a *App) requireUnlocked() error {
	if !a.isUnlocked() {
		fmt.Fprintln(a.out, "Vault is locked. Use 'unlock' first.")
		return common.ErrLocked
	}
	return nil
}
