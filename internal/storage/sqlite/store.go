// Package sqlite implements storage.Store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/recall/internal/storage"
)

// querier abstracts *sql.DB and *sql.Tx so every statement in this package
// runs either directly or inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements storage.Store using SQLite.
type Store struct {
	db *sql.DB
	q  querier // db, or the active tx for transaction-bound copies
}

// Ensure *Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// Open opens a SQLite database at the given DSN, configures WAL mode, and
// creates the schema.
//
// SQLite only supports one concurrent writer. Using a single open connection
// serialises writes and avoids SQLITE_BUSY errors; WAL mode lets readers
// proceed without blocking the writer. This matches the engine's
// single-writer discipline.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s failed: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	return &Store{db: db, q: db}, nil
}

// Transaction executes fn against a copy of the store bound to a single
// SQLite transaction. Nested transactions are rejected.
func (s *Store) Transaction(ctx context.Context, fn func(storage.Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return errors.New("sqlite: nested transaction")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}

	bound := &Store{db: s.db, q: tx}
	if err := fn(bound); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("sqlite: rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit transaction: %w", err)
	}
	return nil
}

// Close releases the database connection. Transaction-bound copies share the
// parent's connection and must not close it; only the root store does.
func (s *Store) Close() error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return nil
	}
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
