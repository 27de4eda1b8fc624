// Package tokenstore manages the ordered collection of tokens behind the
// authenticator: the triad of secret record, token record, and order-list
// entry that is created and destroyed together for every logical token.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"otpkeeper/internal/common"
	"otpkeeper/internal/logging"
	"otpkeeper/internal/otp"
	"otpkeeper/internal/securestore"
	"otpkeeper/internal/token"
)

// eraseAll gives up after this many consecutive failures at the same index.
const eraseAllMaxRetries = 3

// TokenStore is an ordered collection of tokens identified by a store-level
// UUID. All records live in the backing secure store; the TokenStore itself
// holds no token state between calls.
//
// Mutating operations are serialized by an internal lock. Reads may run
// concurrently with each other but see whatever the backing store holds at
// the moment of the call.
type TokenStore struct {
	storeID string
	store   securestore.Store
	logger  logging.Logger

	mu sync.Mutex

	// toggleSortOnRepeat flips a sort to descending when the ascending
	// result would leave the order unchanged, so repeated sort actions
	// alternate direction instead of doing nothing.
	toggleSortOnRepeat bool
}

// New wraps the given backing store. Any entries left behind by the legacy
// flat-file scheme are migrated into the triad model; a legacy entry that
// fails to migrate stays in place for the next attempt.
func New(ctx context.Context, storeID string, store securestore.Store, logger logging.Logger) (*TokenStore, error) {
	s := &TokenStore{
		storeID:            storeID,
		store:              store,
		logger:             logger.With("store_id", storeID),
		toggleSortOnRepeat: true,
	}

	s.migrateLegacy(ctx)
	s.checkConsistency(ctx)

	return s, nil
}

// migrateLegacy moves entries stored as raw otpauth URLs under the legacy
// record type into the triad model.
func (s *TokenStore) migrateLegacy(ctx context.Context) {
	keys, err := s.store.List(ctx, securestore.RecordLegacy)
	if err != nil {
		s.logger.Warn(ctx, "failed to list legacy entries", "error", err)
		return
	}

	for _, key := range keys {
		data, err := s.store.Get(ctx, securestore.RecordLegacy, key)
		if err != nil {
			s.logger.Warn(ctx, "failed to read legacy entry", "key", key, "error", err)
			continue
		}

		u, err := url.Parse(string(data))
		if err != nil {
			s.logger.Warn(ctx, "legacy entry is not a valid URL", "key", key, "error", err)
			continue
		}

		if _, err := s.add(ctx, u, token.ParseOptions{Load: true, LockingSupported: s.store.LockingSupported()}); err != nil {
			s.logger.Warn(ctx, "failed to migrate legacy entry", "key", key, "error", err)
			continue
		}

		if err := s.store.Delete(ctx, securestore.RecordLegacy, key); err != nil {
			s.logger.Warn(ctx, "failed to remove migrated legacy entry", "key", key, "error", err)
		}
		s.logger.Info(ctx, "migrated legacy entry", "key", key)
	}
}

// checkConsistency logs order entries whose token or secret record is
// missing. Dangling identifiers are tolerated everywhere else, so this is
// reporting, not repair.
func (s *TokenStore) checkConsistency(ctx context.Context) {
	order, err := s.loadOrder(ctx)
	if err != nil {
		s.logger.Warn(ctx, "failed to load token order", "error", err)
		return
	}

	for _, account := range order {
		if _, err := s.store.Get(ctx, securestore.RecordToken, account); errors.Is(err, common.ErrNotFound) {
			s.logger.Warn(ctx, "order entry has no token record", "account", account)
		}
		if _, err := s.store.Get(ctx, securestore.RecordOTP, account); errors.Is(err, common.ErrNotFound) {
			s.logger.Warn(ctx, "order entry has no secret record", "account", account)
		}
	}
}

func (s *TokenStore) loadOrder(ctx context.Context) ([]string, error) {
	data, err := s.store.Get(ctx, securestore.RecordOrder, s.storeID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var order []string
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("%w: bad order record: %s", common.ErrCorruptedStore, err)
	}
	return order, nil
}

func (s *TokenStore) saveOrder(ctx context.Context, order []string) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, securestore.RecordOrder, s.storeID, data, false)
}

// Count returns the number of entries in the order list, 0 when no order
// record exists yet or it cannot be read.
func (s *TokenStore) Count(ctx context.Context) int {
	order, err := s.loadOrder(ctx)
	if err != nil {
		return 0
	}
	return len(order)
}

// Add parses an otpauth:// URL into a secret and token pair, prepends the
// new account to the order list, and persists all three records. On any
// failure the records written so far are erased in reverse order, so a
// partial triad is never left behind.
func (s *TokenStore) Add(ctx context.Context, u *url.URL) (*token.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.add(ctx, u, token.ParseOptions{LockingSupported: s.store.LockingSupported()})
}

func (s *TokenStore) add(ctx context.Context, u *url.URL, opts token.ParseOptions) (*token.Token, error) {
	o, err := otp.FromQuery(u.Query())
	if err != nil {
		return nil, err
	}

	t, err := token.ParseURL(o, u, opts)
	if err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx)
	if err != nil {
		return nil, err
	}

	otpData, err := json.Marshal(o)
	if err != nil {
		return nil, err
	}
	tokenData, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}

	if err := s.store.Put(ctx, securestore.RecordOTP, o.Account, otpData, t.Locked); err != nil {
		return nil, fmt.Errorf("failed to save secret record: %w", err)
	}

	if err := s.store.Put(ctx, securestore.RecordToken, t.Account, tokenData, false); err != nil {
		s.rollback(ctx, t.Account, securestore.RecordOTP)
		return nil, fmt.Errorf("failed to save token record: %w", err)
	}

	// most recently added first
	order = append([]string{o.Account}, order...)
	if err := s.saveOrder(ctx, order); err != nil {
		s.rollback(ctx, t.Account, securestore.RecordToken, securestore.RecordOTP)
		return nil, fmt.Errorf("failed to save token order: %w", err)
	}

	return t, nil
}

// rollback erases records written earlier in a failed multi-record update,
// most recent first. Rollback failures are logged and otherwise ignored;
// there is nothing better to do with them.
func (s *TokenStore) rollback(ctx context.Context, account string, recordTypes ...securestore.RecordType) {
	for _, recordType := range recordTypes {
		if err := s.store.Delete(ctx, recordType, account); err != nil {
			s.logger.Error(ctx, "rollback failed", "record_type", recordType, "account", account, "error", err)
		}
	}
}

// Erase removes the entry at the given order position together with its
// token and secret records. An out-of-range index fails without mutating
// anything.
func (s *TokenStore) Erase(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.erase(ctx, index)
}

func (s *TokenStore) erase(ctx context.Context, index int) error {
	order, err := s.loadOrder(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(order) {
		return fmt.Errorf("%w: no entry at index %d", common.ErrNotFound, index)
	}

	account := order[index]
	order = append(order[:index], order[index+1:]...)

	if err := s.saveOrder(ctx, order); err != nil {
		return fmt.Errorf("failed to save token order: %w", err)
	}

	// the entry is gone from the order; record cleanup failures only leave
	// unreferenced data behind
	if err := s.store.Delete(ctx, securestore.RecordToken, account); err != nil {
		s.logger.Warn(ctx, "failed to erase token record", "account", account, "error", err)
	}
	if err := s.store.Delete(ctx, securestore.RecordOTP, account); err != nil {
		s.logger.Warn(ctx, "failed to erase secret record", "account", account, "error", err)
	}
	return nil
}

// EraseToken removes the given token wherever it sits in the order.
func (s *TokenStore) EraseToken(ctx context.Context, t *token.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.loadOrder(ctx)
	if err != nil {
		return err
	}
	for i, account := range order {
		if account == t.Account {
			return s.erase(ctx, i)
		}
	}
	return fmt.Errorf("%w: token %s not in order", common.ErrNotFound, t.Account)
}

// EraseAll erases the first entry until none remain. Repeated failures at
// the same index are treated as store corruption rather than retried
// forever.
func (s *TokenStore) EraseAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	failures := 0
	for s.Count(ctx) > 0 {
		if err := s.erase(ctx, 0); err != nil {
			failures++
			if failures >= eraseAllMaxRetries {
				return fmt.Errorf("%w: erase keeps failing at index 0: %s", common.ErrCorruptedStore, err)
			}
			continue
		}
		failures = 0
	}
	return nil
}

// Load returns the token at the given order position.
func (s *TokenStore) Load(ctx context.Context, index int) (*token.Token, error) {
	account, err := s.LoadAccount(ctx, index)
	if err != nil {
		return nil, err
	}
	return s.LoadToken(ctx, account)
}

// LoadAccount returns the account identifier at the given order position.
func (s *TokenStore) LoadAccount(ctx context.Context, index int) (string, error) {
	order, err := s.loadOrder(ctx)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(order) {
		return "", fmt.Errorf("%w: no entry at index %d", common.ErrNotFound, index)
	}
	return order[index], nil
}

// LoadToken returns the token record for an account identifier.
func (s *TokenStore) LoadToken(ctx context.Context, account string) (*token.Token, error) {
	data, err := s.store.Get(ctx, securestore.RecordToken, account)
	if err != nil {
		return nil, err
	}

	var t token.Token
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: bad token record %s: %s", common.ErrCorruptedStore, account, err)
	}
	return &t, nil
}

// Index returns the order position of an account identifier.
func (s *TokenStore) Index(ctx context.Context, account string) (int, error) {
	order, err := s.loadOrder(ctx)
	if err != nil {
		return 0, err
	}
	for i, a := range order {
		if a == account {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: account %s not in order", common.ErrNotFound, account)
}

// IndexToken returns the order position of a token, matched by its account.
func (s *TokenStore) IndexToken(ctx context.Context, t *token.Token) (int, error) {
	return s.Index(ctx, t.Account)
}

// Move removes the entry at from and reinserts it at to, persisting the
// new order. An out-of-range from fails without mutating anything.
func (s *TokenStore) Move(ctx context.Context, from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.loadOrder(ctx)
	if err != nil {
		return err
	}
	if from < 0 || from >= len(order) || to < 0 || to >= len(order) {
		return fmt.Errorf("%w: cannot move %d to %d in %d entries", common.ErrNotFound, from, to, len(order))
	}

	account := order[from]
	order = append(order[:from], order[from+1:]...)
	order = append(order[:to], append([]string{account}, order[to:]...)...)

	return s.saveOrder(ctx, order)
}

// EnumerateTokens visits every resolvable token in current order. Entries
// whose token record is missing or unreadable are skipped.
func (s *TokenStore) EnumerateTokens(ctx context.Context, visit func(index int, t *token.Token)) error {
	order, err := s.loadOrder(ctx)
	if err != nil {
		return err
	}

	for i, account := range order {
		t, err := s.LoadToken(ctx, account)
		if err != nil {
			s.logger.Warn(ctx, "skipping unresolvable entry", "index", i, "account", account, "error", err)
			continue
		}
		visit(i, t)
	}
	return nil
}

// SetLocked re-persists the secret record under the new protection level.
// The backing store has no way to change protection in place, so this is a
// delete and re-add; if the re-add under the new level fails, the record is
// restored with its previous one.
func (s *TokenStore) SetLocked(ctx context.Context, t *token.Token, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if locked && !s.store.LockingSupported() {
		return fmt.Errorf("%w: store does not support locking", common.ErrLocked)
	}
	if t.Locked == locked {
		return nil
	}

	data, err := s.store.Get(ctx, securestore.RecordOTP, t.Account)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, securestore.RecordOTP, t.Account); err != nil {
		return fmt.Errorf("failed to remove secret record: %w", err)
	}
	if err := s.store.Put(ctx, securestore.RecordOTP, t.Account, data, locked); err != nil {
		if restoreErr := s.store.Put(ctx, securestore.RecordOTP, t.Account, data, t.Locked); restoreErr != nil {
			s.logger.Error(ctx, "failed to restore secret record", "account", t.Account, "error", restoreErr)
		}
		return fmt.Errorf("failed to re-protect secret record: %w", err)
	}

	previous := t.Locked
	t.Locked = locked
	if err := s.saveToken(ctx, t); err != nil {
		t.Locked = previous
		return err
	}
	return nil
}

// Secret resolves the secret record paired with an account identifier.
// Together with SaveToken this lets a Token compute codes against this
// store.
func (s *TokenStore) Secret(ctx context.Context, account string) (*otp.OTP, error) {
	data, err := s.store.Get(ctx, securestore.RecordOTP, account)
	if err != nil {
		return nil, err
	}

	var o otp.OTP
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("%w: bad secret record %s: %s", common.ErrCorruptedStore, account, err)
	}
	return &o, nil
}

// SaveToken persists an updated token record, typically after an HOTP
// counter increment or a metadata edit.
func (s *TokenStore) SaveToken(ctx context.Context, t *token.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveToken(ctx, t)
}

func (s *TokenStore) saveToken(ctx context.Context, t *token.Token) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, securestore.RecordToken, t.Account, data, false)
}
