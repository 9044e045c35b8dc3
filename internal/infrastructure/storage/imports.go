package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/splitbook/splitbook/internal/domain/ledger"
)

// CreateImportBatch records an accepted batch. Callers run it inside
// the same WithTx scope as the batch's ledger writes so a failed run
// never leaves a batch marked done.
func (q *queries) CreateImportBatch(b *ledger.ImportBatch) error {
	if b.UID == "" {
		b.UID = uuid.NewString()
	}

	var coverageStart, coverageEnd any
	if b.CoverageStart != nil {
		coverageStart = formatDate(*b.CoverageStart)
	}
	if b.CoverageEnd != nil {
		coverageEnd = formatDate(*b.CoverageEnd)
	}

	res, err := q.q.Exec(`
	INSERT INTO import_batch (uid, book_id, account_id, filename, source_type, fingerprint, coverage_start, coverage_end, row_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UID, b.BookID, b.AccountID, b.Filename, b.SourceType, b.Fingerprint, coverageStart, coverageEnd, b.RowCount)
	if err != nil {
		// A fingerprint collision means a concurrent import of the
		// same content won the race. That is the duplicate no-op
		// outcome, not a storage failure.
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("record import batch %q: %w", b.Filename, ledger.ErrDuplicateImport)
		}
		return fmt.Errorf("record import batch %q: %w", b.Filename, err)
	}
	b.ID, err = res.LastInsertId()
	return err
}

const importBatchColumns = `id, uid, book_id, account_id, filename, source_type, fingerprint, coverage_start, coverage_end, row_count, created_at`

// ImportBatchByScope returns the batch with the same logical scope.
func (q *queries) ImportBatchByScope(bookID, accountID int64, filename string) (*ledger.ImportBatch, error) {
	return q.scanImportBatch(q.q.QueryRow(
		"SELECT "+importBatchColumns+" FROM import_batch WHERE book_id = ? AND account_id = ? AND filename = ?",
		bookID, accountID, filename))
}

// ImportBatchByFingerprint returns the batch with the given content
// fingerprint within a book.
func (q *queries) ImportBatchByFingerprint(bookID int64, fingerprint string) (*ledger.ImportBatch, error) {
	return q.scanImportBatch(q.q.QueryRow(
		"SELECT "+importBatchColumns+" FROM import_batch WHERE book_id = ? AND fingerprint = ?",
		bookID, fingerprint))
}

// ImportBatchByID returns a batch by id.
func (q *queries) ImportBatchByID(id int64) (*ledger.ImportBatch, error) {
	return q.scanImportBatch(q.q.QueryRow(
		"SELECT "+importBatchColumns+" FROM import_batch WHERE id = ?", id))
}

// ListImportBatches returns a book's batches, newest first.
func (q *queries) ListImportBatches(bookID int64) ([]*ledger.ImportBatch, error) {
	rows, err := q.q.Query(
		"SELECT "+importBatchColumns+" FROM import_batch WHERE book_id = ? ORDER BY created_at DESC, id DESC", bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.ImportBatch
	for rows.Next() {
		b, err := scanImportBatchRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *queries) scanImportBatch(row *sql.Row) (*ledger.ImportBatch, error) {
	b, err := scanImportBatchRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return b, err
}

func scanImportBatchRow(row rowScanner) (*ledger.ImportBatch, error) {
	var b ledger.ImportBatch
	var coverageStart, coverageEnd sql.NullString
	err := row.Scan(&b.ID, &b.UID, &b.BookID, &b.AccountID, &b.Filename, &b.SourceType,
		&b.Fingerprint, &coverageStart, &coverageEnd, &b.RowCount, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if coverageStart.Valid {
		d, err := parseDate(coverageStart.String)
		if err != nil {
			return nil, err
		}
		b.CoverageStart = &d
	}
	if coverageEnd.Valid {
		d, err := parseDate(coverageEnd.String)
		if err != nil {
			return nil, err
		}
		b.CoverageEnd = &d
	}
	return &b, nil
}
