// Package store provides SQLite-backed durable storage for the sync
// protocol: tenant/user identity, the sixteen per-kind projection tables,
// and the hash-chained overlay change log.
//
// # Concurrency
//
// SQLite allows only one writer at a time. The pool is capped to a single
// connection (SetMaxOpenConns(1)) so the driver never hands two goroutines
// separate connections that could deadlock against each other's locks, and
// an in-process mutex additionally serializes the read-verify-write
// sequences that span more than one statement (overlay ingest in
// particular reads the chain head, verifies N entries, then appends them
// and must not race another ingest for the same tenant).
//
// # Configuration
//
//   - WAL mode: concurrent readers during a write
//   - synchronous=NORMAL: durability/performance balance under WAL
//   - busy_timeout=5000: wait rather than fail immediately on lock contention
//   - foreign_keys=ON: enforce tenant/user referential integrity
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const currentSchemaVersion = 1

// Store provides durable storage for tenants, users, the sixteen kind
// tables, and the hash-chained change log.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open creates or opens a SQLite database at path, applying pragmas and
// schema migrations. Idempotent: safe to call against an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: connect to database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying *sql.DB for call sites that need raw access
// (migrations, seed scripts). Prefer the Store's typed methods elsewhere.
func (s *Store) DB() *sql.DB {
	return s.db
}

// withLock serializes a read-verify-write sequence against every other
// caller. Single-statement queries that SQLite itself serializes via the
// single-connection pool don't need this; multi-statement sequences
// (ingest's read-head/verify/append) do.
func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("exec %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("exec schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies incremental schema migrations based on user_version.
// The embedded schema.sql is itself idempotent (CREATE TABLE/INDEX IF NOT
// EXISTS), so version 1 has no migration body of its own yet; the hook
// exists for the next schema change rather than for this one.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// HealthCheck runs PRAGMA quick_check and reports whether the database
// file is structurally sound.
func (s *Store) HealthCheck(ctx context.Context) error {
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("store: quick_check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("store: quick_check reported %q", result)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value. Used in
// tests to confirm Open configured the connection as documented.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
