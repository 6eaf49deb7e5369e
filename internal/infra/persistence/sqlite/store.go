// Package sqlite provides the embedded, file-backed patient store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"localemr/internal/infra/persistence/memory"
	"localemr/internal/infra/persistence/sqlstate"
	"localemr/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "localemr.db"

// Dialect is the sqlite flavour of the shared patients schema.
var Dialect = sqlstate.Dialect{
	Name: "sqlite",
	Schema: []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA busy_timeout = 5000`,
		`CREATE TABLE IF NOT EXISTS patients (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			room TEXT NOT NULL DEFAULT '',
			age INTEGER,
			status TEXT NOT NULL DEFAULT 'pending',
			diagnoses TEXT NOT NULL DEFAULT '',
			medications TEXT NOT NULL DEFAULT '',
			notes TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS patients_status_idx ON patients (status)`,
		`CREATE INDEX IF NOT EXISTS patients_room_idx ON patients (room)`,
		`CREATE TABLE IF NOT EXISTS id_sequence (
			name TEXT PRIMARY KEY,
			next_id INTEGER NOT NULL
		)`,
	},
}

// Store keeps the roster hydrated in memory and writes every committed
// transaction's changes to SQLite before they become visible.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the database at path and hydrates the
// in-memory state from it.
func NewStore(ctx context.Context, path string, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serializes writers and keeps PRAGMAs in effect
	db.SetMaxOpenConns(1)
	if err := sqlstate.EnsureSchema(ctx, db, Dialect); err != nil {
		_ = db.Close()
		return nil, err
	}
	snapshot, err := sqlstate.Load(ctx, db, Dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	mem := memory.NewStore(opts...)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db, path: path}, nil
}

// RunInTransaction applies fn to the in-memory state and commits its changes
// to SQLite; a failed SQL commit discards the in-memory changes too.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) error {
	return s.Store.RunInTransactionWithPersist(ctx, fn, s.persist)
}

func (s *Store) persist(ctx context.Context, commit memory.Commit) error {
	return sqlstate.Apply(ctx, s.db, Dialect, commit)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
