// Package ledger defines the double-entry entities shared by the
// storage, matching and reconciliation layers, together with the
// invariant checks enforced at write time.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountType is the fixed set of account classifications.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeIncome    AccountType = "INCOME"
	AccountTypeExpense   AccountType = "EXPENSE"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRoot      AccountType = "ROOT"
)

// ValidAccountType reports whether t is one of the known account types.
func ValidAccountType(t AccountType) bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeIncome,
		AccountTypeExpense, AccountTypeEquity, AccountTypeRoot:
		return true
	}
	return false
}

// ReconcileState tracks a split through the reconciliation lifecycle.
// Transitions are monotonic: n -> c -> r.
type ReconcileState string

const (
	ReconcileNot        ReconcileState = "n"
	ReconcileCleared    ReconcileState = "c"
	ReconcileReconciled ReconcileState = "r"
)

// MatchStatus marks whether a transaction has been claimed as the
// counterpart of an imported statement line.
type MatchStatus string

const (
	MatchNot     MatchStatus = "n"
	MatchMatched MatchStatus = "m"
)

// Book is an isolated ledger namespace. All accounts and transactions
// below it belong to it exclusively.
type Book struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Account is one node of a book's account tree. The parent, when set,
// must belong to the same book; FullName (e.g. "Assets:Checking:...1381")
// is the external matching key.
type Account struct {
	ID          int64
	BookID      int64
	ParentID    *int64
	Code        string
	Name        string
	FullName    string
	Description string
	Type        AccountType
	Hidden      bool
	Placeholder bool
	CreatedAt   time.Time
}

// Transaction is a dated, described ledger entry owning exactly two
// splits that sum to zero.
type Transaction struct {
	ID            int64
	BookID        int64
	ImportBatchID *int64
	Date          time.Time
	EntryDate     time.Time
	Description   string
	Memo          string
	MatchStatus   MatchStatus
	Splits        []Split
}

// Split is one signed leg of a transaction. Positive amounts are
// debits, negative are credits.
type Split struct {
	ID             int64
	TransactionID  int64
	AccountID      int64
	Amount         decimal.Decimal
	Memo           string
	ReconcileState ReconcileState
	ReconcileDate  *time.Time
}

// SplitFor returns the split posted to accountID, or nil.
func (t *Transaction) SplitFor(accountID int64) *Split {
	for i := range t.Splits {
		if t.Splits[i].AccountID == accountID {
			return &t.Splits[i]
		}
	}
	return nil
}

// CounterSplit returns the split on the other side of a two-split
// transaction relative to accountID, or nil when the transaction does
// not post to accountID at all.
func (t *Transaction) CounterSplit(accountID int64) *Split {
	if len(t.Splits) != 2 {
		return nil
	}
	for i := range t.Splits {
		if t.Splits[i].AccountID != accountID {
			other := t.SplitFor(accountID)
			if other == nil {
				return nil
			}
			return &t.Splits[i]
		}
	}
	return nil
}

// ImportBatch records one accepted import for idempotency and audit.
// Rows are write-once: a repeated fingerprint is rejected before any
// transaction is created.
type ImportBatch struct {
	ID            int64
	UID           string
	BookID        int64
	AccountID     int64
	Filename      string
	SourceType    string
	Fingerprint   string
	CoverageStart *time.Time
	CoverageEnd   *time.Time
	RowCount      int
	CreatedAt     time.Time
}

// StatementStatus is the lifecycle of a statement period record.
type StatementStatus string

const (
	StatementNot        StatementStatus = "n"
	StatementReconciled StatementStatus = "r"
	StatementDiscrepant StatementStatus = "d"
)

// StatementPeriod is one externally supplied statement: the account,
// the covered date range and the reported balances, plus the outcome
// of the last reconciliation run against it.
type StatementPeriod struct {
	ID           int64
	BookID       int64
	AccountID    int64
	StartDate    time.Time
	EndDate      time.Time
	StartBalance decimal.Decimal
	EndBalance   decimal.Decimal
	Status       StatementStatus
	ComputedEnd  decimal.NullDecimal
	Discrepancy  decimal.NullDecimal
	CreatedAt    time.Time
}

// StatementLine is one transaction line on an external statement.
type StatementLine struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
}

// DateOnly truncates t to a UTC calendar date. Transaction and
// statement dates carry no time-of-day component.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute whole-day distance between two
// calendar dates.
func DaysBetween(a, b time.Time) int {
	d := int(DateOnly(a).Sub(DateOnly(b)).Hours() / 24)
	if d < 0 {
		d = -d
	}
	return d
}
