package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/domain/ledger"
)

// CreateTransaction inserts a transaction and its splits after
// enforcing the write-time invariants. Assigns IDs on success.
func (q *queries) CreateTransaction(t *ledger.Transaction) error {
	if err := ledger.ValidateTransaction(t, q); err != nil {
		return err
	}

	if t.MatchStatus == "" {
		t.MatchStatus = ledger.MatchNot
	}

	res, err := q.q.Exec(`
	INSERT INTO transactions (book_id, import_batch_id, txn_date, description, memo, match_status)
	VALUES (?, ?, ?, ?, ?, ?)`,
		t.BookID, t.ImportBatchID, formatDate(t.Date), t.Description, t.Memo, string(t.MatchStatus))
	if err != nil {
		return fmt.Errorf("insert transaction %q: %w", t.Description, err)
	}
	t.ID, err = res.LastInsertId()
	if err != nil {
		return err
	}

	for i := range t.Splits {
		s := &t.Splits[i]
		s.TransactionID = t.ID
		if s.ReconcileState == "" {
			s.ReconcileState = ledger.ReconcileNot
		}
		res, err := q.q.Exec(`
		INSERT INTO split (transaction_id, account_id, amount, memo, reconcile_state, reconcile_date)
		VALUES (?, ?, ?, ?, ?, ?)`,
			s.TransactionID, s.AccountID, s.Amount.String(), s.Memo, string(s.ReconcileState), s.ReconcileDate)
		if err != nil {
			return fmt.Errorf("insert split for transaction %d: %w", t.ID, err)
		}
		if s.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}

	return nil
}

// EnterTransaction creates the ordinary debit/credit pair: amount
// posts to the "to" account, its negation to the "from" account.
func (q *queries) EnterTransaction(bookID int64, date time.Time, description, memo string, fromAccountID, toAccountID int64, amount decimal.Decimal) (*ledger.Transaction, error) {
	t := &ledger.Transaction{
		BookID:      bookID,
		Date:        ledger.DateOnly(date),
		Description: description,
		Memo:        memo,
		Splits: []ledger.Split{
			{AccountID: toAccountID, Amount: amount},
			{AccountID: fromAccountID, Amount: amount.Neg()},
		},
	}
	if err := q.CreateTransaction(t); err != nil {
		return nil, err
	}
	return t, nil
}

// TransactionByID loads a transaction with its splits.
func (q *queries) TransactionByID(id int64) (*ledger.Transaction, error) {
	t, err := q.scanTransaction(q.q.QueryRow(`
	SELECT id, book_id, import_batch_id, txn_date, entry_date, description, memo, match_status
	FROM transactions WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	if err := q.loadSplits(t); err != nil {
		return nil, err
	}
	return t, nil
}

// ListTransactions returns all transactions of a book with splits,
// ordered by date then id.
func (q *queries) ListTransactions(bookID int64) ([]*ledger.Transaction, error) {
	rows, err := q.q.Query(`
	SELECT id, book_id, import_batch_id, txn_date, entry_date, description, memo, match_status
	FROM transactions WHERE book_id = ? ORDER BY txn_date, id`, bookID)
	if err != nil {
		return nil, err
	}
	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, err
	}
	for _, t := range txns {
		if err := q.loadSplits(t); err != nil {
			return nil, err
		}
	}
	return txns, nil
}

// FindCandidates returns unmatched transactions posting to the target
// account within the inclusive date window, ordered by ascending
// absolute date distance from center, then ascending transaction id.
// The ordering is the deterministic tie-break the match engine relies
// on for reproducibility.
func (q *queries) FindCandidates(bookID, targetAccountID int64, center time.Time, offsetDays int) ([]*ledger.Transaction, error) {
	start := ledger.DateOnly(center).AddDate(0, 0, -offsetDays)
	end := ledger.DateOnly(center).AddDate(0, 0, offsetDays)

	rows, err := q.q.Query(`
	SELECT DISTINCT t.id, t.book_id, t.import_batch_id, t.txn_date, t.entry_date, t.description, t.memo, t.match_status
	FROM transactions t
	JOIN split s ON s.transaction_id = t.id
	WHERE t.book_id = ?
	  AND s.account_id = ?
	  AND t.match_status = 'n'
	  AND s.reconcile_state = 'n'
	  AND t.txn_date >= ? AND t.txn_date <= ?
	ORDER BY ABS(julianday(t.txn_date) - julianday(?)) ASC, t.id ASC`,
		bookID, targetAccountID, formatDate(start), formatDate(end), formatDate(center))
	if err != nil {
		return nil, err
	}
	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, err
	}
	for _, t := range txns {
		if err := q.loadSplits(t); err != nil {
			return nil, err
		}
	}
	return txns, nil
}

// ClaimMatched marks a candidate transaction matched and clears its
// target-account split. The guarded UPDATE means a transaction already
// claimed by a concurrent importer yields ErrNotFound instead of a
// double claim.
func (q *queries) ClaimMatched(txnID, targetSplitID int64) error {
	res, err := q.q.Exec(
		"UPDATE transactions SET match_status = 'm' WHERE id = ? AND match_status = 'n'", txnID)
	if err != nil {
		return fmt.Errorf("claim transaction %d: %w", txnID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %d: %w", txnID, ledger.ErrNotFound)
	}

	if _, err := q.q.Exec(
		"UPDATE split SET reconcile_state = 'c' WHERE id = ? AND reconcile_state = 'n'", targetSplitID); err != nil {
		return fmt.Errorf("clear split %d: %w", targetSplitID, err)
	}
	return nil
}

// SplitsInPeriod returns splits posted to an account in the inclusive
// date range, with their transaction's date and description.
func (q *queries) SplitsInPeriod(bookID, accountID int64, start, end time.Time) ([]PeriodSplit, error) {
	rows, err := q.q.Query(`
	SELECT s.id, s.transaction_id, s.account_id, s.amount, s.memo, s.reconcile_state, s.reconcile_date,
	       t.txn_date, t.description
	FROM split s
	JOIN transactions t ON t.id = s.transaction_id
	WHERE t.book_id = ? AND s.account_id = ?
	  AND t.txn_date >= ? AND t.txn_date <= ?
	ORDER BY t.txn_date, s.id`,
		bookID, accountID, formatDate(start), formatDate(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PeriodSplit
	for rows.Next() {
		var ps PeriodSplit
		var amount, txnDate, state string
		var reconcileDate sql.NullTime
		if err := rows.Scan(
			&ps.Split.ID, &ps.Split.TransactionID, &ps.Split.AccountID, &amount, &ps.Split.Memo,
			&state, &reconcileDate, &txnDate, &ps.Description); err != nil {
			return nil, err
		}
		if ps.Split.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("split %d has bad amount %q: %w", ps.Split.ID, amount, err)
		}
		ps.Split.ReconcileState = ledger.ReconcileState(state)
		if reconcileDate.Valid {
			ps.Split.ReconcileDate = &reconcileDate.Time
		}
		if ps.Date, err = parseDate(txnDate); err != nil {
			return nil, err
		}
		out = append(out, ps)
	}
	return out, rows.Err()
}

// AdvanceReconciled moves splits forward to 'r'. Splits already at 'r'
// keep their original reconcile date; the state never regresses.
func (q *queries) AdvanceReconciled(splitIDs []int64, when time.Time) error {
	if len(splitIDs) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(splitIDs)), ",")
	args := make([]any, 0, len(splitIDs)+1)
	args = append(args, when)
	for _, id := range splitIDs {
		args = append(args, id)
	}
	_, err := q.q.Exec(
		`UPDATE split SET reconcile_state = 'r', reconcile_date = ?
		 WHERE id IN (`+placeholders+`) AND reconcile_state IN ('n','c')`, args...)
	if err != nil {
		return fmt.Errorf("advance splits to reconciled: %w", err)
	}
	return nil
}

func (q *queries) scanTransaction(row *sql.Row) (*ledger.Transaction, error) {
	t, err := scanTransactionRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return t, err
}

func scanTransactionRow(row rowScanner) (*ledger.Transaction, error) {
	var t ledger.Transaction
	var batchID sql.NullInt64
	var txnDate, status string
	err := row.Scan(&t.ID, &t.BookID, &batchID, &txnDate, &t.EntryDate, &t.Description, &t.Memo, &status)
	if err != nil {
		return nil, err
	}
	if batchID.Valid {
		t.ImportBatchID = &batchID.Int64
	}
	if t.Date, err = parseDate(txnDate); err != nil {
		return nil, err
	}
	t.MatchStatus = ledger.MatchStatus(status)
	return &t, nil
}

func collectTransactions(rows *sql.Rows) ([]*ledger.Transaction, error) {
	defer rows.Close()
	var out []*ledger.Transaction
	for rows.Next() {
		t, err := scanTransactionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *queries) loadSplits(t *ledger.Transaction) error {
	rows, err := q.q.Query(`
	SELECT id, transaction_id, account_id, amount, memo, reconcile_state, reconcile_date
	FROM split WHERE transaction_id = ? ORDER BY id`, t.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	t.Splits = t.Splits[:0]
	for rows.Next() {
		var s ledger.Split
		var amount, state string
		var reconcileDate sql.NullTime
		if err := rows.Scan(&s.ID, &s.TransactionID, &s.AccountID, &amount, &s.Memo, &state, &reconcileDate); err != nil {
			return err
		}
		if s.Amount, err = decimal.NewFromString(amount); err != nil {
			return fmt.Errorf("split %d has bad amount %q: %w", s.ID, amount, err)
		}
		s.ReconcileState = ledger.ReconcileState(state)
		if reconcileDate.Valid {
			s.ReconcileDate = &reconcileDate.Time
		}
		t.Splits = append(t.Splits, s)
	}
	return rows.Err()
}
