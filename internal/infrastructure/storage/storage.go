// Package storage provides the SQLite ledger store.
//
// It enforces the double-entry invariants at write time and exposes an
// explicit atomic scope (WithTx) so that candidate selection and
// candidate claiming execute as one isolated unit.
package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// dbtx is the subset of database/sql shared by *sql.DB and *sql.Tx.
type dbtx interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Store is the SQLite-backed ledger store. It implements Repository.
type Store struct {
	db *sql.DB
	queries
}

var _ Repository = (*Store)(nil)

// Tx is a repository view bound to one open write transaction. All
// reads and writes made through it commit or roll back together.
type Tx struct {
	tx *sql.Tx
	queries
}

var _ Repository = (*Tx)(nil)

// Open opens (creating if necessary) the ledger database at path and
// runs any pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	// SQLite does not enforce foreign keys unless asked.
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	s.queries.q = db

	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a single write transaction. fn receives a
// repository view whose operations all share the transaction; any
// error rolls the whole unit back. This is the isolation boundary the
// match engine relies on so that two importers can never both claim
// the same candidate.
func (s *Store) WithTx(fn func(tx *Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	view := &Tx{tx: tx}
	view.queries.q = tx

	if err := fn(view); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// queries holds every repository operation; it runs against either the
// bare connection or an open transaction.
type queries struct {
	q dbtx
}
