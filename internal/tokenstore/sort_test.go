package tokenstore

import (
	"context"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpkeeper/internal/common"
	"otpkeeper/internal/securestore"
	"otpkeeper/internal/token"
)

func byIssuer(t *token.Token) string { return t.Issuer }

func issuersInOrder(t *testing.T, s *TokenStore) []string {
	t.Helper()
	var issuers []string
	require.NoError(t, s.EnumerateTokens(context.Background(), func(_ int, tok *token.Token) {
		issuers = append(issuers, tok.Issuer)
	}))
	return issuers
}

func TestSortTokens_ByIssuer(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	addToken(t, s, "Alpha", "a")
	addToken(t, s, "Charlie", "c")
	addToken(t, s, "Beta", "b")
	// order is now [Beta, Charlie, Alpha]

	moves, err := s.SortTokens(ctx, byIssuer)
	require.NoError(t, err)
	assert.NotEmpty(t, moves)
	assert.Equal(t, []string{"Alpha", "Beta", "Charlie"}, issuersInOrder(t, s))
}

func TestSortTokens_RepeatTogglesDirection(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	// added in reverse so the list starts in ascending issuer order
	addToken(t, s, "Charlie", "c")
	addToken(t, s, "Beta", "b")
	addToken(t, s, "Alpha", "a")
	require.Equal(t, []string{"Alpha", "Beta", "Charlie"}, issuersInOrder(t, s))

	moves, err := s.SortTokens(ctx, byIssuer)
	require.NoError(t, err)
	assert.NotEmpty(t, moves)
	assert.Equal(t, []string{"Charlie", "Beta", "Alpha"}, issuersInOrder(t, s))

	// and a third invocation flips back
	_, err = s.SortTokens(ctx, byIssuer)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta", "Charlie"}, issuersInOrder(t, s))
}

func TestSortTokens_IssuerTiesBreakOnAccount(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	x := addToken(t, s, "Same", "x")
	y := addToken(t, s, "Same", "y")

	_, err := s.SortTokens(ctx, byIssuer)
	require.NoError(t, err)

	first, err := s.LoadAccount(ctx, 0)
	require.NoError(t, err)
	second, err := s.LoadAccount(ctx, 1)
	require.NoError(t, err)

	want := []string{x.Account, y.Account}
	if y.Account < x.Account {
		want = []string{y.Account, x.Account}
	}
	assert.Equal(t, want, []string{first, second})
}

func TestSortTokens_OtherProjectionTiesBreakOnIssuer(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	u, err := url.Parse("otpauth://totp/Zeta:same?secret=" + rfcSecret)
	require.NoError(t, err)
	_, err = s.Add(ctx, u)
	require.NoError(t, err)

	u, err = url.Parse("otpauth://totp/Alpha:same?secret=" + rfcSecret)
	require.NoError(t, err)
	_, err = s.Add(ctx, u)
	require.NoError(t, err)

	_, err = s.SortTokens(ctx, func(tok *token.Token) string { return tok.Label })
	require.NoError(t, err)

	assert.Equal(t, []string{"Alpha", "Zeta"}, issuersInOrder(t, s))
}

func TestSortTokens_ReportsMovedIndices(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	addToken(t, s, "Beta", "b")
	addToken(t, s, "Alpha", "a")
	// order [Alpha, Beta] is already ascending, so this sort flips it
	moves, err := s.SortTokens(ctx, byIssuer)
	require.NoError(t, err)

	assert.ElementsMatch(t, []Move{{From: 0, To: 1}, {From: 1, To: 0}}, moves)
}

func TestSortTokens_NoOrderRecord(t *testing.T) {
	s := newStore(t, nil)

	_, err := s.SortTokens(context.Background(), byIssuer)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSortTokens_DanglingEntriesKeptAtEnd(t *testing.T) {
	mem := securestore.NewMemoryStore()
	s := newStore(t, mem)
	ctx := context.Background()

	dangling := addToken(t, s, "Alpha", "a")
	addToken(t, s, "Beta", "b")
	addToken(t, s, "Charlie", "c")
	// order is [Charlie, Beta, Alpha] with Alpha about to go dangling

	require.NoError(t, mem.Delete(ctx, securestore.RecordToken, dangling.Account))

	_, err := s.SortTokens(ctx, byIssuer)
	require.NoError(t, err)

	last, err := s.LoadAccount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, dangling.Account, last)
	assert.Equal(t, []string{"Beta", "Charlie"}, issuersInOrder(t, s))
}
