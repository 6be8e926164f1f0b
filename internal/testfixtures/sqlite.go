package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/meeting-coordinator/internal/persistence/sqlite"
)

// SQLiteHarness provides a local store backed by a temporary SQLite file for
// integration-style tests.
type SQLiteHarness struct {
	Store *sqlite.Store
	KV    *sqlite.KV

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. Callers may optionally invoke Close, but the helper
// will also register a cleanup callback with the provided testing.TB.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "coordinator.db")
	ctx := context.Background()

	pool, err := sqlite.Open(ctx, sqlite.DefaultConfig(path))
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		tb.Fatalf("migrate sqlite: %v", err)
	}

	kv := sqlite.NewKV(pool)
	harness := &SQLiteHarness{
		Store: sqlite.NewStore(kv, sqlite.WithClock(NewClock(ReferenceTime()).NowFunc())),
		KV:    kv,
		cleanup: func() {
			_ = pool.Close()
		},
	}
	tb.Cleanup(harness.Close)
	return harness
}
