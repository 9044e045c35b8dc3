package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/domain/ledger"
)

// CreateStatementPeriod records a statement period.
func (q *queries) CreateStatementPeriod(p *ledger.StatementPeriod) error {
	if p.Status == "" {
		p.Status = ledger.StatementNot
	}
	res, err := q.q.Exec(`
	INSERT INTO statement_period (book_id, account_id, start_date, end_date, start_balance, end_balance, reconcile_status)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.BookID, p.AccountID, formatDate(p.StartDate), formatDate(p.EndDate),
		p.StartBalance.String(), p.EndBalance.String(), string(p.Status))
	if err != nil {
		return fmt.Errorf("record statement period: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

const statementColumns = `id, book_id, account_id, start_date, end_date, start_balance, end_balance, reconcile_status, computed_end_balance, discrepancy, created_at`

// StatementPeriodByID returns a period by id.
func (q *queries) StatementPeriodByID(id int64) (*ledger.StatementPeriod, error) {
	p, err := scanStatementRow(q.q.QueryRow(
		"SELECT "+statementColumns+" FROM statement_period WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return p, err
}

// ListStatementPeriods returns an account's periods ordered by start date.
func (q *queries) ListStatementPeriods(bookID, accountID int64) ([]*ledger.StatementPeriod, error) {
	rows, err := q.q.Query(
		"SELECT "+statementColumns+" FROM statement_period WHERE book_id = ? AND account_id = ? ORDER BY start_date, id",
		bookID, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.StatementPeriod
	for rows.Next() {
		p, err := scanStatementRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateStatementReconciliation stores a reconciliation outcome.
func (q *queries) UpdateStatementReconciliation(id int64, computedEnd, discrepancy decimal.Decimal, status ledger.StatementStatus) error {
	res, err := q.q.Exec(`
	UPDATE statement_period
	SET computed_end_balance = ?, discrepancy = ?, reconcile_status = ?
	WHERE id = ?`,
		computedEnd.String(), discrepancy.String(), string(status), id)
	if err != nil {
		return fmt.Errorf("update statement %d reconciliation: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("statement %d: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func scanStatementRow(row rowScanner) (*ledger.StatementPeriod, error) {
	var p ledger.StatementPeriod
	var startDate, endDate, startBalance, endBalance, status string
	var computedEnd, discrepancy sql.NullString
	err := row.Scan(&p.ID, &p.BookID, &p.AccountID, &startDate, &endDate,
		&startBalance, &endBalance, &status, &computedEnd, &discrepancy, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	if p.StartDate, err = parseDate(startDate); err != nil {
		return nil, err
	}
	if p.EndDate, err = parseDate(endDate); err != nil {
		return nil, err
	}
	if p.StartBalance, err = decimal.NewFromString(startBalance); err != nil {
		return nil, err
	}
	if p.EndBalance, err = decimal.NewFromString(endBalance); err != nil {
		return nil, err
	}
	p.Status = ledger.StatementStatus(status)
	if computedEnd.Valid {
		d, err := decimal.NewFromString(computedEnd.String)
		if err != nil {
			return nil, err
		}
		p.ComputedEnd = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	if discrepancy.Valid {
		d, err := decimal.NewFromString(discrepancy.String)
		if err != nil {
			return nil, err
		}
		p.Discrepancy = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return &p, nil
}
