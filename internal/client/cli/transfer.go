package cli

import (
	"context"
	"fmt"
	"os"

	"otpkeeper/internal/token"
)

// allAccounts collects the account identifiers of every resolvable token.
func (a *App) allAccounts(ctx context.Context) (map[string]struct{}, error) {
	accounts := make(map[string]struct{})
	err := a.store.EnumerateTokens(ctx, func(index int, t *token.Token) {
		accounts[t.Account] = struct{}{}
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

// Export writes every token to a file as otpauth:// URLs, one per line.
func (a *App) Export(ctx context.Context) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	path, err := GetSimpleText(a.reader, "Export file path", a.out)
	if err != nil {
		return err
	}

	accounts, err := a.allAccounts(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	data, err := a.store.ExportData(ctx, accounts)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	fmt.Fprintf(a.out, "Exported %d tokens to %s\n", len(accounts), path)
	return nil
}

// Import adds tokens from a file of otpauth:// URLs, one per line.
func (a *App) Import(ctx context.Context) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	path, err := GetSimpleText(a.reader, "Import file path", a.out)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	if err := a.store.ImportData(ctx, data); err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	fmt.Fprintln(a.out, "Imported")
	return nil
}

// Backup uploads an encrypted export of the whole vault to object storage
// and prints the object key needed for restore.
func (a *App) Backup(ctx context.Context) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	accounts, err := a.allAccounts(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	data, err := a.store.ExportData(ctx, accounts)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	key, err := a.backup.Upload(ctx, defaultStoreID, data)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	fmt.Fprintln(a.out, "Backup uploaded as", key)
	return nil
}

// Restore downloads a backup object and imports its tokens into the vault.
func (a *App) Restore(ctx context.Context) error {
	if err := a.requireUnlocked(); err != nil {
		return err
	}

	key, err := GetSimpleText(a.reader, "Backup object key", a.out)
	if err != nil {
		return err
	}

	data, err := a.backup.Download(ctx, key)
	if err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	if err := a.store.ImportData(ctx, data); err != nil {
		fmt.Fprintln(a.out, "Error:", err)
		return err
	}

	fmt.Fprintln(a.out, "Restored")
	return nil
}
