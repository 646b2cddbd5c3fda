// Package store is the transactional persistence layer named as
// Component A in spec.md §2 ("Store"): partitioned LogEntry storage,
// secondary indexes, and upsert/CRUD over every entity of spec.md §3.
// Grounded on internal/events's SQLiteStore (schema-init-then-Exec/Query
// pattern), generalized from a single flat table to the partitioned
// monthly scheme spec.md §4.A requires and switched onto the pure-Go
// modernc.org/sqlite driver so the daemon stays cgo-free.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a *sql.DB with the schema and query set spec.md §4.A
// names. All methods take a context so callers can enforce the
// deadlines spec.md §5 requires (30s default, 5s for ingest/heartbeat,
// 300s for maintenance).
type Store struct {
	db *sql.DB
}

// Open creates (if needed) the SQLite file at path, applies the schema,
// and returns a ready Store. WAL mode and a busy timeout are set so
// concurrent flush workers and readers don't collide on SQLITE_BUSY.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := s.ensureLogPartition(time.Now().UTC()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure initial partition: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on success and
// rolling back on any returned error — the atomic-multi-row-mutation
// primitive spec.md §4.A requires for StartExecution, CompleteExecution,
// and alert-firing.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
