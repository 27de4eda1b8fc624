package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"otpkeeper/internal/common"
	"otpkeeper/internal/token"
)

// ErrUnknownFileFormat marks import data that is not UTF-8 text.
var ErrUnknownFileFormat = errors.New("unknown file format")

// MalformedTokenError reports the line of an import file that could not be
// parsed as a valid otpauth:// URL.
type MalformedTokenError struct {
	Line int
}

func (e *MalformedTokenError) Error() string {
	return fmt.Sprintf("malformed token at line %d", e.Line)
}

// VaultWriteError reports the line of an import file whose token parsed but
// could not be written to the backing store.
type VaultWriteError struct {
	Line int
	Err  error
}

func (e *VaultWriteError) Error() string {
	return fmt.Sprintf("failed to store token at line %d: %v", e.Line, e.Err)
}

func (e *VaultWriteError) Unwrap() error { return e.Err }

// ExportData serializes the selected tokens as UTF-8 text, one otpauth://
// URL per line in current order. The account set must be non-empty and no
// larger than the store. Tokens that fail to produce a URL are skipped.
func (s *TokenStore) ExportData(ctx context.Context, accounts map[string]struct{}) ([]byte, error) {
	if len(accounts) == 0 || len(accounts) > s.Count(ctx) {
		return nil, fmt.Errorf("%w: export selection of %d entries", common.ErrNotFound, len(accounts))
	}

	order, err := s.loadOrder(ctx)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, account := range order {
		if _, ok := accounts[account]; !ok {
			continue
		}

		t, err := s.LoadToken(ctx, account)
		if err != nil {
			s.logger.Warn(ctx, "skipping unexportable entry", "account", account, "error", err)
			continue
		}
		u, err := t.AsURL(ctx, s)
		if err != nil {
			s.logger.Warn(ctx, "skipping unexportable entry", "account", account, "error", err)
			continue
		}
		lines = append(lines, u.String())
	}

	return []byte(strings.Join(lines, "\n")), nil
}

// ImportData adds one token per non-empty line of the given UTF-8 text.
// Import is not transactional: tokens added before a failing line stay
// added. A line that does not parse fails with MalformedTokenError; a line
// that parses but cannot be stored fails with VaultWriteError.
func (s *TokenStore) ImportData(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !utf8.Valid(data) {
		return ErrUnknownFileFormat
	}

	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		u, err := url.Parse(line)
		if err != nil {
			return &MalformedTokenError{Line: i + 1}
		}

		if _, err := s.add(ctx, u, token.ParseOptions{LockingSupported: s.store.LockingSupported()}); err != nil {
			if isValidationError(err) {
				return &MalformedTokenError{Line: i + 1}
			}
			return &VaultWriteError{Line: i + 1, Err: err}
		}
	}
	return nil
}

// isValidationError separates URL and parameter problems, which point at
// the file, from storage failures, which point at the vault.
func isValidationError(err error) bool {
	return errors.Is(err, common.ErrInvalidURL) ||
		errors.Is(err, common.ErrInvalidEncoding) ||
		errors.Is(err, common.ErrMissingSecret) ||
		errors.Is(err, common.ErrInvalidAlgorithm) ||
		errors.Is(err, common.ErrInvalidDigits)
}
