package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/lasergate/internal/db"
	"github.com/BrandonDHaskell/lasergate/internal/lasergate/store/sqlite"
)

// openTestDB returns an in-memory SQLite connection with the production
// PRAGMAs and schema. It is closed when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn := openMemory(t, "test")

	if err := db.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("openTestDB: migrate: %v", err)
	}
	return conn
}

// openMemory opens a fresh, unmigrated shared-cache database. The name is
// derived from the test so parallel tests never share state.
func openMemory(t *testing.T, prefix string) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf(
		"file:%s_%s?mode=memory&cache=shared&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		prefix, name,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openMemory: sql.Open: %v", err)
	}

	// Match production: single connection for SQLite safety.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openMemory: ping: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed on cleanup.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

func newTestDirectory(t *testing.T) (*sqlite.Directory, *sql.DB) {
	t.Helper()
	conn := openTestDB(t)
	return sqlite.NewDirectory(conn, newTestWriter(t, conn)), conn
}

func countRows(t *testing.T, conn *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
