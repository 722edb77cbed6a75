// Package storetest opens migrated SQLite databases for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"geoattend/internal/store"
)

// New returns a fresh, fully migrated database in t's temp dir.
func New(t testing.TB) *store.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000&_foreign_keys=on"
	db, err := store.NewDB(context.Background(), store.DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}
