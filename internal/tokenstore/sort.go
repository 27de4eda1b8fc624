package tokenstore

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"otpkeeper/internal/common"
	"otpkeeper/internal/token"
)

// Move records one entry's position change produced by a sort, for callers
// that animate reordering.
type Move struct {
	From int
	To   int
}

// sortEntry pairs an account with its comparison tuple. Comparing by key
// first and tieBreak second makes the ascending order fully deterministic.
type sortEntry struct {
	account  string
	key      string
	tieBreak string
}

func compareEntries(a, b sortEntry) int {
	if c := strings.Compare(a.key, b.key); c != 0 {
		return c
	}
	return strings.Compare(a.tieBreak, b.tieBreak)
}

// SortTokens stably sorts the order list by the given projection over token
// fields. Ties on the projected key break on the issuer, or on the account
// identifier when the projection is the issuer itself. Entries that fail to
// resolve keep their relative order at the end of the list.
//
// When the ascending result matches the current order and the store's
// toggle behavior is on, the sort runs descending instead, so a repeated
// sort action flips direction rather than doing nothing. The returned moves
// list the entries whose position changed.
func (s *TokenStore) SortTokens(ctx context.Context, projection func(t *token.Token) string) ([]Move, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := s.loadOrder(ctx)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("%w: no token order", common.ErrNotFound)
	}

	var entries []sortEntry
	var dangling []string
	for _, account := range order {
		t, err := s.LoadToken(ctx, account)
		if err != nil {
			s.logger.Warn(ctx, "sorting past unresolvable entry", "account", account, "error", err)
			dangling = append(dangling, account)
			continue
		}

		key := projection(t)
		tieBreak := t.Issuer
		if key == t.Issuer {
			tieBreak = t.Account
		}
		entries = append(entries, sortEntry{account: account, key: key, tieBreak: tieBreak})
	}

	slices.SortStableFunc(entries, compareEntries)

	sorted := make([]string, 0, len(order))
	for _, e := range entries {
		sorted = append(sorted, e.account)
	}
	sorted = append(sorted, dangling...)

	if s.toggleSortOnRepeat && slices.Equal(sorted, order) {
		slices.SortStableFunc(entries, func(a, b sortEntry) int { return compareEntries(b, a) })
		sorted = sorted[:0]
		for _, e := range entries {
			sorted = append(sorted, e.account)
		}
		sorted = append(sorted, dangling...)
	}

	if slices.Equal(sorted, order) {
		return nil, nil
	}

	if err := s.saveOrder(ctx, sorted); err != nil {
		return nil, fmt.Errorf("failed to save token order: %w", err)
	}

	oldIndex := make(map[string]int, len(order))
	for i, account := range order {
		oldIndex[account] = i
	}

	var moves []Move
	for i, account := range sorted {
		if from := oldIndex[account]; from != i {
			moves = append(moves, Move{From: from, To: i})
		}
	}
	return moves, nil
}
