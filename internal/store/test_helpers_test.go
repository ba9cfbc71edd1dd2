package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sh1vu7/secreteshare/internal/share"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// createTestStore creates a new SQLite store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := OpenSQLite(context.Background(), path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// postgresDSNEnv names a Postgres DSN for tests that need a real
// connection pool. Those tests are skipped when it is unset.
const postgresDSNEnv = "SECRETSHARE_TEST_POSTGRES_DSN"

// createPostgresTestStore opens the Postgres database named by
// postgresDSNEnv or skips the test.
func createPostgresTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	s, err := Open(context.Background(), Postgres, dsn)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestShare builds an active link share with minimal required fields.
func createTestShare(id, token string, maxViews share.MaxViews) *share.Share {
	return &share.Share{
		ID:            id,
		AccessToken:   token,
		SenderID:      100,
		RecipientKind: share.RecipientLink,
		Content:       share.ContentRef{ChatID: 100, MessageID: 1, Kind: share.ContentText},
		MaxViews:      maxViews,
		Status:        share.StatusActive,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
}

// insertTestShare inserts sh and fails the test on error.
func insertTestShare(t *testing.T, s *Store, sh *share.Share) {
	t.Helper()
	if err := s.InsertShare(context.Background(), sh); err != nil {
		t.Fatalf("InsertShare() failed: %v", err)
	}
}

func int64Ptr(v int64) *int64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }
