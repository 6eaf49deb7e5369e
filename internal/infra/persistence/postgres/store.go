// Package postgres provides a Postgres-backed patient store that mirrors the
// in-memory semantics while writing every commit to a patients table.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"localemr/internal/infra/persistence/memory"
	"localemr/internal/infra/persistence/sqlstate"
	"localemr/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/localemr?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Dialect is the postgres flavour of the shared patients schema.
var Dialect = sqlstate.Dialect{
	Name:     "postgres",
	Numbered: true,
	Schema: []string{
		`CREATE TABLE IF NOT EXISTS patients (
			id BIGINT PRIMARY KEY,
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
			next_id BIGINT NOT NULL
		)`,
	},
}

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
func NewStore(ctx context.Context, dsn string, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	store, err := Open(ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Open wraps an existing handle: it pings, ensures the schema and hydrates
// the in-memory state from the patients table.
func Open(ctx context.Context, db *sql.DB, opts ...memory.Option) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sqlstate.EnsureSchema(ctx, db, Dialect); err != nil {
		return nil, err
	}
	snapshot, err := sqlstate.Load(ctx, db, Dialect)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(opts...)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// RunInTransaction applies fn in memory, then writes its changes to Postgres
// before making them visible.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) error {
	return s.Store.RunInTransactionWithPersist(ctx, fn, func(ctx context.Context, commit memory.Commit) error {
		return sqlstate.Apply(ctx, s.db, Dialect, commit)
	})
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }
