// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary
// builds without CGo. database/sql gives us a connection pool: sql.DB is
// NOT a single connection, which matters for the pragmas below.
//
// CONCURRENCY:
// The database runs in WAL mode, so readers never block the writer and see
// a consistent snapshot for the life of their transaction. Writers are
// serialised by SQLite itself; busy_timeout makes a second writer wait for
// the lock instead of failing immediately with SQLITE_BUSY. Every mutation
// either is a single statement or starts its transaction with a write, so a
// transaction never has to upgrade a stale read snapshot into a write lock.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"

	"github.com/sakif/teamrally/internal/clock"
	"github.com/sakif/teamrally/migrations"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// connPragmas are applied by the driver to every new pooled connection.
// Running PRAGMA once through db.Exec would only configure whichever
// connection happened to execute it.
var connPragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

// DB wraps a sql.DB connection pool and implements every repository
// interface in this module.
type DB struct {
	conn  *sql.DB
	clock clock.Clock
}

// New opens (creating if needed) the database at dbPath and migrates it to
// the latest schema version.
//
// dbPath examples:
//   - "data/teamrally.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database, pinned to one connection
//
// clk stamps created_at/joined_at/checked_in_at; it is the single time
// source for everything the store records.
func New(ctx context.Context, dbPath string, clk clock.Clock) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn, clock: clk}

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

func dsn(dbPath string) string {
	params := make([]string, 0, len(connPragmas))
	for _, p := range connPragmas {
		params = append(params, "_pragma="+p)
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + strings.Join(params, "&")
}

// migrate applies the embedded goose migrations. The provider is local to
// this call, so no goose package state is shared between stores.
func (db *DB) migrate(ctx context.Context) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db.conn, migrations.FS)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
//
//	db, err := sqlite.New(ctx, "data/teamrally.db", clock.NewMonotonic())
//	if err != nil { ... }
//	defer db.Close()
func (db *DB) Close() error {
	return db.conn.Close()
}
