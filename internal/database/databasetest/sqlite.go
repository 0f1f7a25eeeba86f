// Package databasetest opens migrated in-memory databases for repository tests.
package databasetest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/redmonkez12/todo-api/internal/database"
)

// NewSQLite returns a Bun DB over a private in-memory SQLite database with
// every migration applied. The database is closed when the test ends.
func NewSQLite(t testing.TB) *bun.DB {
	t.Helper()

	sqlDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	// Every pooled connection would otherwise see its own empty database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(context.Background(), sqlDB, database.DialectSQLite))

	db := bun.NewDB(sqlDB, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	return db
}
