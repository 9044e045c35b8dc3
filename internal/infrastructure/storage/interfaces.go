package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/domain/ledger"
)

// Repository is the complete ledger store interface. Both the bare
// Store and a transaction-bound Tx satisfy it, so callers can be
// written once and run either standalone or inside an atomic scope.
type Repository interface {
	BookRepository
	AccountRepository
	TransactionRepository
	ImportBatchRepository
	StatementRepository
}

// BookRepository handles book operations.
type BookRepository interface {
	// CreateBook creates a book with a unique name.
	CreateBook(name string) (*ledger.Book, error)

	// BookByName returns the book with the given name, or ErrNotFound.
	BookByName(name string) (*ledger.Book, error)
}

// AccountRepository handles account tree operations within a book.
type AccountRepository interface {
	// CreateAccount validates and creates an account. The parent, when
	// set, must exist and belong to the same book.
	CreateAccount(a *ledger.Account) error

	// AccountByID returns an account by its globally unique id.
	AccountByID(id int64) (*ledger.Account, error)

	// AccountByFullName returns the account with the given full
	// hierarchical name within a book, or ErrNotFound.
	AccountByFullName(bookID int64, fullName string) (*ledger.Account, error)

	// ListAccounts returns all accounts of a book.
	ListAccounts(bookID int64) ([]*ledger.Account, error)

	// AccountHierarchy returns the account tree of a book as rows of
	// (account, depth), parents before children.
	AccountHierarchy(bookID int64) ([]AccountNode, error)
}

// AccountNode is one row of the recursive hierarchy listing.
type AccountNode struct {
	Account ledger.Account
	Depth   int
}

// TransactionRepository handles transactions, splits and the candidate
// query used by the match engine.
type TransactionRepository interface {
	// CreateTransaction inserts a transaction and its two splits after
	// enforcing the zero-sum and book-consistency invariants. IDs are
	// assigned on success.
	CreateTransaction(t *ledger.Transaction) error

	// EnterTransaction creates the ordinary debit/credit pair: amount
	// posts to the "to" account and its negation to the "from" account.
	EnterTransaction(bookID int64, date time.Time, description, memo string, fromAccountID, toAccountID int64, amount decimal.Decimal) (*ledger.Transaction, error)

	// TransactionByID loads a transaction with its splits.
	TransactionByID(id int64) (*ledger.Transaction, error)

	// ListTransactions returns all transactions of a book with splits.
	ListTransactions(bookID int64) ([]*ledger.Transaction, error)

	// FindCandidates returns unmatched transactions posting to the
	// target account with dates in [center-offset, center+offset],
	// ordered by ascending date distance from center then ascending id.
	FindCandidates(bookID, targetAccountID int64, center time.Time, offsetDays int) ([]*ledger.Transaction, error)

	// ClaimMatched marks a candidate transaction matched ('n' -> 'm')
	// and clears its split in the target account ('n' -> 'c'). Returns
	// ErrNotFound when the transaction was already claimed, which lets
	// concurrent importers detect a lost race instead of double-claiming.
	ClaimMatched(txnID, targetSplitID int64) error

	// SplitsInPeriod returns the splits posted to an account with
	// transaction dates in [start, end], together with their
	// transaction date and description, ordered by date then split id.
	SplitsInPeriod(bookID, accountID int64, start, end time.Time) ([]PeriodSplit, error)

	// AdvanceReconciled moves the given splits' reconcile state forward
	// to 'r' and stamps the reconcile date. Already-reconciled splits
	// are left alone; the transition never regresses.
	AdvanceReconciled(splitIDs []int64, when time.Time) error
}

// PeriodSplit is a split joined with its transaction's date and
// description, as needed by reconciliation.
type PeriodSplit struct {
	Split       ledger.Split
	Date        time.Time
	Description string
}

// ImportBatchRepository tracks accepted imports for idempotency.
type ImportBatchRepository interface {
	// CreateImportBatch records an accepted batch. Must be called in
	// the same transaction as the batch's ledger writes.
	CreateImportBatch(b *ledger.ImportBatch) error

	// ImportBatchByScope returns the batch with the same logical scope
	// (book, account, filename), or ErrNotFound.
	ImportBatchByScope(bookID, accountID int64, filename string) (*ledger.ImportBatch, error)

	// ImportBatchByFingerprint returns the batch with the given content
	// fingerprint within a book, or ErrNotFound.
	ImportBatchByFingerprint(bookID int64, fingerprint string) (*ledger.ImportBatch, error)

	// ImportBatchByID returns a batch by id, or ErrNotFound.
	ImportBatchByID(id int64) (*ledger.ImportBatch, error)

	// ListImportBatches returns a book's batches, newest first.
	ListImportBatches(bookID int64) ([]*ledger.ImportBatch, error)
}

// StatementRepository persists statement periods and their
// reconciliation outcomes.
type StatementRepository interface {
	// CreateStatementPeriod records a statement period. The scope
	// (book, account, start, end) is unique.
	CreateStatementPeriod(p *ledger.StatementPeriod) error

	// StatementPeriodByID returns a period by id, or ErrNotFound.
	StatementPeriodByID(id int64) (*ledger.StatementPeriod, error)

	// ListStatementPeriods returns an account's periods ordered by
	// start date.
	ListStatementPeriods(bookID, accountID int64) ([]*ledger.StatementPeriod, error)

	// UpdateStatementReconciliation stores the computed balance,
	// discrepancy and resulting status for a period.
	UpdateStatementReconciliation(id int64, computedEnd, discrepancy decimal.Decimal, status ledger.StatementStatus) error
}
