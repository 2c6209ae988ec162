package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestDB opens a migrated SQLite database in a temp dir
func newTestDB(t *testing.T) *DB {
	t.Helper()

	cfg := DefaultDBConfig()
	cfg.URL = "file:" + filepath.Join(t.TempDir(), "trailblazer_test.db") + "?_pragma=busy_timeout(5000)"
	db, err := NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, db.Migrate(ctx))
	return db
}
