package storage

import (
	"database/sql"
	"fmt"
)

// Migration represents a database schema migration
type Migration struct {
	Version int
	Name    string
	Up      func(*sql.Tx) error
}

// allMigrations defines all migrations in order
var allMigrations = []Migration{
	{
		Version: 1,
		Name:    "ledger_schema",
		Up:      migration001LedgerSchema,
	},
	{
		Version: 2,
		Name:    "import_batches",
		Up:      migration002ImportBatches,
	},
	{
		Version: 3,
		Name:    "statement_periods",
		Up:      migration003StatementPeriods,
	},
}

// runMigrations executes all pending migrations
func (s *Store) runMigrations() error {
	if err := s.ensureMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.getAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	for _, migration := range allMigrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %d: %w", migration.Version, err)
		}

		if err := migration.Up(tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version, migration.Name,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

func (s *Store) ensureMigrationsTable() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (s *Store) getAppliedMigrations() (map[int]bool, error) {
	rows, err := s.db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

func migration001LedgerSchema(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE book (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE account (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		book_id INTEGER NOT NULL REFERENCES book(id),
		parent_account_id INTEGER REFERENCES account(id),
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		full_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		acct_type TEXT NOT NULL CHECK (acct_type IN ('ASSET','LIABILITY','INCOME','EXPENSE','EQUITY','ROOT')),
		hidden INTEGER NOT NULL DEFAULT 0,
		placeholder INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (book_id, code),
		UNIQUE (book_id, full_name)
	);

	CREATE TABLE transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		book_id INTEGER NOT NULL REFERENCES book(id),
		txn_date TEXT NOT NULL,
		entry_date TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		description TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		match_status TEXT NOT NULL DEFAULT 'n' CHECK (match_status IN ('n','m'))
	);

	CREATE INDEX idx_transactions_book_date ON transactions(book_id, txn_date);

	CREATE TABLE split (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id INTEGER NOT NULL REFERENCES transactions(id) ON DELETE CASCADE,
		account_id INTEGER NOT NULL REFERENCES account(id),
		amount TEXT NOT NULL,
		memo TEXT NOT NULL DEFAULT '',
		reconcile_state TEXT NOT NULL DEFAULT 'n' CHECK (reconcile_state IN ('n','c','r')),
		reconcile_date TIMESTAMP
	);

	CREATE INDEX idx_split_transaction ON split(transaction_id);
	CREATE INDEX idx_split_account ON split(account_id);
	`)
	return err
}

func migration002ImportBatches(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE import_batch (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		uid TEXT NOT NULL UNIQUE,
		book_id INTEGER NOT NULL REFERENCES book(id),
		account_id INTEGER NOT NULL REFERENCES account(id),
		filename TEXT NOT NULL,
		source_type TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		coverage_start TEXT,
		coverage_end TEXT,
		row_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (book_id, account_id, filename),
		UNIQUE (book_id, fingerprint)
	);

	ALTER TABLE transactions ADD COLUMN import_batch_id INTEGER REFERENCES import_batch(id) ON DELETE SET NULL;
	`)
	return err
}

func migration003StatementPeriods(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE statement_period (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		book_id INTEGER NOT NULL REFERENCES book(id),
		account_id INTEGER NOT NULL REFERENCES account(id),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		start_balance TEXT NOT NULL,
		end_balance TEXT NOT NULL,
		reconcile_status TEXT NOT NULL DEFAULT 'n' CHECK (reconcile_status IN ('n','r','d')),
		computed_end_balance TEXT,
		discrepancy TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (book_id, account_id, start_date, end_date)
	);
	`)
	return err
}
