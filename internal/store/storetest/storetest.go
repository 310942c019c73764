// Package storetest opens throwaway SQLite databases with the production
// migrations applied.
package storetest

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"academics/internal/store"
)

// New returns a migrated database living in the test's temp directory.
func New(t testing.TB) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.db")
	db, err := store.NewDB(store.DriverSQLite, DSN(path))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(db))
	return db
}

// DSN builds a SQLite connection string with foreign keys enforced.
func DSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(2000)"
}
