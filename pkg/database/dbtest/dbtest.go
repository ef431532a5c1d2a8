// Package dbtest opens migrated in-memory databases for tests.
package dbtest

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/Knifucrab/mauro-zen-notes/pkg/database"
)

// New returns a private, migrated in-memory sqlite pool closed at test cleanup.
func New(t testing.TB) *database.ConnectionPool {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pool, err := database.NewConnectionPool(ctx, &database.Config{Driver: "sqlite", Path: ":memory:"}, logger)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	if err := pool.Migrate(ctx); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return pool
}
