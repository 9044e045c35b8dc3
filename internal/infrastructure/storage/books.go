package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/splitbook/splitbook/internal/domain/ledger"
)

const dateLayout = "2006-01-02"

// CreateBook creates a book with a unique name.
func (q *queries) CreateBook(name string) (*ledger.Book, error) {
	res, err := q.q.Exec("INSERT INTO book (name) VALUES (?)", name)
	if err != nil {
		return nil, fmt.Errorf("create book %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return q.bookByID(id)
}

// BookByName returns the book with the given name.
func (q *queries) BookByName(name string) (*ledger.Book, error) {
	return q.scanBook(q.q.QueryRow(
		"SELECT id, name, created_at FROM book WHERE name = ?", name))
}

func (q *queries) bookByID(id int64) (*ledger.Book, error) {
	return q.scanBook(q.q.QueryRow(
		"SELECT id, name, created_at FROM book WHERE id = ?", id))
}

func (q *queries) scanBook(row *sql.Row) (*ledger.Book, error) {
	var b ledger.Book
	err := row.Scan(&b.ID, &b.Name, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateAccount validates and creates an account.
func (q *queries) CreateAccount(a *ledger.Account) error {
	var parent *ledger.Account
	if a.ParentID != nil {
		p, err := q.AccountByID(*a.ParentID)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			return err
		}
		parent = p
	}
	if err := ledger.ValidateAccount(a, parent); err != nil {
		return err
	}

	res, err := q.q.Exec(`
	INSERT INTO account (book_id, parent_account_id, code, name, full_name, description, acct_type, hidden, placeholder)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.BookID, a.ParentID, a.Code, a.Name, a.FullName, a.Description, string(a.Type), a.Hidden, a.Placeholder)
	if err != nil {
		return fmt.Errorf("create account %q: %w", a.FullName, err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

const accountColumns = `id, book_id, parent_account_id, code, name, full_name, description, acct_type, hidden, placeholder, created_at`

// AccountByID returns an account by its globally unique id.
func (q *queries) AccountByID(id int64) (*ledger.Account, error) {
	return q.scanAccount(q.q.QueryRow(
		"SELECT "+accountColumns+" FROM account WHERE id = ?", id))
}

// AccountByFullName returns the account with the given full name in a book.
func (q *queries) AccountByFullName(bookID int64, fullName string) (*ledger.Account, error) {
	return q.scanAccount(q.q.QueryRow(
		"SELECT "+accountColumns+" FROM account WHERE book_id = ? AND full_name = ?", bookID, fullName))
}

// ListAccounts returns all accounts of a book ordered by code.
func (q *queries) ListAccounts(bookID int64) ([]*ledger.Account, error) {
	rows, err := q.q.Query(
		"SELECT "+accountColumns+" FROM account WHERE book_id = ? ORDER BY code", bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ledger.Account
	for rows.Next() {
		a, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// AccountHierarchy walks the account tree with a recursive CTE,
// returning parents before children with their depth.
func (q *queries) AccountHierarchy(bookID int64) ([]AccountNode, error) {
	rows, err := q.q.Query(`
	WITH RECURSIVE account_tree AS (
		SELECT `+accountColumns+`, 0 AS depth
		FROM account
		WHERE book_id = ? AND parent_account_id IS NULL

		UNION ALL

		SELECT `+prefixColumns("c", accountColumns)+`, t.depth + 1
		FROM account c
		JOIN account_tree t ON c.parent_account_id = t.id
	)
	SELECT `+accountColumns+`, depth FROM account_tree ORDER BY code`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountNode
	for rows.Next() {
		var n AccountNode
		var parentID sql.NullInt64
		var acctType string
		err := rows.Scan(
			&n.Account.ID, &n.Account.BookID, &parentID, &n.Account.Code, &n.Account.Name,
			&n.Account.FullName, &n.Account.Description, &acctType,
			&n.Account.Hidden, &n.Account.Placeholder, &n.Account.CreatedAt, &n.Depth)
		if err != nil {
			return nil, err
		}
		if parentID.Valid {
			n.Account.ParentID = &parentID.Int64
		}
		n.Account.Type = ledger.AccountType(acctType)
		out = append(out, n)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (q *queries) scanAccount(row *sql.Row) (*ledger.Account, error) {
	a, err := scanAccountRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrNotFound
	}
	return a, err
}

func scanAccountRow(row rowScanner) (*ledger.Account, error) {
	var a ledger.Account
	var parentID sql.NullInt64
	var acctType string
	err := row.Scan(&a.ID, &a.BookID, &parentID, &a.Code, &a.Name, &a.FullName,
		&a.Description, &acctType, &a.Hidden, &a.Placeholder, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		a.ParentID = &parentID.Int64
	}
	a.Type = ledger.AccountType(acctType)
	return &a, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func formatDate(t time.Time) string {
	return ledger.DateOnly(t).Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	// Dates come back either bare or with a zero time suffix depending
	// on how they were bound.
	if len(s) > len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return time.ParseInLocation(dateLayout, s, time.UTC)
}
