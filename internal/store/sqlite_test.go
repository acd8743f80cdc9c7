package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "parleyd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSQLiteSeedsSampleData(t *testing.T) {
	s := newTestStore(t)

	faqs, users, err := s.Counts(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 5, faqs)
	require.EqualValues(t, 3, users)
}

func TestSeedIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "parleyd.db")

	first, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewSQLite(dbPath)
	require.NoError(t, err)
	defer second.Close()

	faqs, users, err := second.Counts(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 5, faqs)
	require.EqualValues(t, 3, users)
}

func TestListFAQs(t *testing.T) {
	s := newTestStore(t)

	faqs, err := s.ListFAQs(context.Background())
	require.NoError(t, err)
	require.Len(t, faqs, 5)

	require.Equal(t, "What are your business hours?", faqs[0].Question)
	require.Contains(t, faqs[0].Keywords, "hours")
	for _, faq := range faqs {
		require.NotZero(t, faq.ID)
		require.NotEmpty(t, faq.Answer)
	}
}

func TestAccountByUsername(t *testing.T) {
	s := newTestStore(t)

	account, err := s.AccountByUsername(context.Background(), "demo_user")
	require.NoError(t, err)
	require.NotNil(t, account)
	require.Equal(t, "ACC003", account.AccountNumber)
	require.InDelta(t, 500.00, account.Balance, 0.001)

	missing, err := s.AccountByUsername(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}
