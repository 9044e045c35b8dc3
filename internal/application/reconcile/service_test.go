package reconcile_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitbook/splitbook/internal/application/reconcile"
	"github.com/splitbook/splitbook/internal/domain/ledger"
	"github.com/splitbook/splitbook/internal/domain/reconciler"
	"github.com/splitbook/splitbook/internal/infrastructure/storage"
)

type fixture struct {
	store    *storage.Store
	book     *ledger.Book
	checking *ledger.Account
	svc      *reconcile.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "reconcile_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	book, err := store.CreateBook("household")
	require.NoError(t, err)

	f := &fixture{store: store, book: book}
	f.checking = f.account(t, "1100", "Checking", "Assets:Checking", ledger.AccountTypeAsset)
	f.account(t, "5100", "Groceries", "Expenses:Groceries", ledger.AccountTypeExpense)

	f.svc = reconcile.New(store, 0, nil)
	return f
}

func (f *fixture) account(t *testing.T, code, name, fullName string, acctType ledger.AccountType) *ledger.Account {
	t.Helper()
	a := &ledger.Account{BookID: f.book.ID, Code: code, Name: name, FullName: fullName, Type: acctType}
	require.NoError(t, f.store.CreateAccount(a))
	return a
}

func (f *fixture) spend(t *testing.T, d int, desc, amount string) *ledger.Transaction {
	t.Helper()
	groceries, err := f.store.AccountByFullName(f.book.ID, "Expenses:Groceries")
	require.NoError(t, err)
	txn := &ledger.Transaction{
		BookID:      f.book.ID,
		Date:        time.Date(2024, 8, d, 0, 0, 0, 0, time.UTC),
		Description: desc,
		Splits: []ledger.Split{
			{AccountID: f.checking.ID, Amount: decimal.RequireFromString(amount)},
			{AccountID: groceries.ID, Amount: decimal.RequireFromString(amount).Neg()},
		},
	}
	require.NoError(t, f.store.CreateTransaction(txn))
	return txn
}

func day(d int) time.Time {
	return time.Date(2024, 8, d, 0, 0, 0, 0, time.UTC)
}

func line(d int, desc, amount string) ledger.StatementLine {
	return ledger.StatementLine{Date: day(d), Description: desc, Amount: decimal.RequireFromString(amount)}
}

func TestRegisterStatement(t *testing.T) {
	f := newFixture(t)

	period, err := f.svc.RegisterStatement(f.book.ID, "Assets:Checking",
		day(1), day(31),
		decimal.RequireFromString("1000.00"), decimal.RequireFromString("900.00"))
	require.NoError(t, err)
	require.NotZero(t, period.ID)
	assert.Equal(t, ledger.StatementNot, period.Status)

	_, err = f.svc.RegisterStatement(f.book.ID, "Assets:Nope",
		day(1), day(31), decimal.Zero, decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestReconcilePeriod_CleanAdvancesSplits(t *testing.T) {
	f := newFixture(t)
	txn := f.spend(t, 10, "GROCERY STORE", "-86.15")

	period, err := f.svc.RegisterStatement(f.book.ID, "Assets:Checking",
		day(1), day(31),
		decimal.RequireFromString("1000.00"), decimal.RequireFromString("913.85"))
	require.NoError(t, err)

	res, err := f.svc.ReconcilePeriod(period.ID, []ledger.StatementLine{
		line(10, "GROCERY STORE", "-86.15"),
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.StatementReconciled, res.Status)
	assert.Equal(t, reconciler.ClassNone, res.Class)

	// The account's split moved to 'r' with a reconcile date.
	got, err := f.store.TransactionByID(txn.ID)
	require.NoError(t, err)
	split := got.SplitFor(f.checking.ID)
	assert.Equal(t, ledger.ReconcileReconciled, split.ReconcileState)
	assert.NotNil(t, split.ReconcileDate)

	// The period record carries the outcome.
	stored, err := f.store.StatementPeriodByID(period.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatementReconciled, stored.Status)
	require.True(t, stored.ComputedEnd.Valid)
	assert.True(t, stored.ComputedEnd.Decimal.Equal(decimal.RequireFromString("913.85")))
	require.True(t, stored.Discrepancy.Valid)
	assert.True(t, stored.Discrepancy.Decimal.IsZero())
}

func TestReconcilePeriod_DiscrepancyDoesNotAdvance(t *testing.T) {
	f := newFixture(t)
	txn := f.spend(t, 10, "GROCERY STORE", "-86.15")

	period, err := f.svc.RegisterStatement(f.book.ID, "Assets:Checking",
		day(1), day(31),
		decimal.RequireFromString("1000.00"), decimal.RequireFromString("900.00"))
	require.NoError(t, err)

	res, err := f.svc.ReconcilePeriod(period.ID, []ledger.StatementLine{
		line(10, "GROCERY STORE", "-86.15"),
		line(12, "SERVICE FEE", "-13.85"),
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.StatementDiscrepant, res.Status)
	assert.Equal(t, reconciler.ClassMissingData, res.Class)

	// No split state changed on a discrepant run.
	got, err := f.store.TransactionByID(txn.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.ReconcileNot, got.SplitFor(f.checking.ID).ReconcileState)

	stored, err := f.store.StatementPeriodByID(period.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatementDiscrepant, stored.Status)
	require.True(t, stored.Discrepancy.Valid)
	assert.True(t, stored.Discrepancy.Decimal.Equal(decimal.RequireFromString("13.85")))
}

func TestReconcilePeriod_UnknownPeriod(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReconcilePeriod(41, nil)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestReconcileAccount(t *testing.T) {
	f := newFixture(t)
	f.spend(t, 10, "GROCERY STORE", "-86.15")
	f.spend(t, 40, "GROCERY STORE", "-20.00")

	aug, err := f.svc.RegisterStatement(f.book.ID, "Assets:Checking",
		day(1), day(31),
		decimal.RequireFromString("1000.00"), decimal.RequireFromString("913.85"))
	require.NoError(t, err)

	sep, err := f.svc.RegisterStatement(f.book.ID, "Assets:Checking",
		time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 9, 30, 0, 0, 0, 0, time.UTC),
		decimal.RequireFromString("913.85"), decimal.RequireFromString("893.85"))
	require.NoError(t, err)

	results, err := f.svc.ReconcileAccount(f.book.ID, "Assets:Checking", map[int64][]ledger.StatementLine{
		aug.ID: {line(10, "GROCERY STORE", "-86.15")},
		sep.ID: {{Date: time.Date(2024, 9, 9, 0, 0, 0, 0, time.UTC), Description: "GROCERY STORE", Amount: decimal.RequireFromString("-20.00")}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ledger.StatementReconciled, results[0].Status)
	assert.Equal(t, ledger.StatementReconciled, results[1].Status)

	// A reconciled period is skipped on the next sweep.
	results, err = f.svc.ReconcileAccount(f.book.ID, "Assets:Checking", map[int64][]ledger.StatementLine{
		aug.ID: {line(10, "GROCERY STORE", "-86.15")},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}
