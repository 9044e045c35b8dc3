package importer_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitbook/splitbook/internal/application/importer"
	"github.com/splitbook/splitbook/internal/domain/ledger"
	"github.com/splitbook/splitbook/internal/domain/rules"
	"github.com/splitbook/splitbook/internal/infrastructure/storage"
)

const testRules = `{
  "matching_rules": {
    "Assets:Savings": {
      "Assets:Checking": {
        "date_offset": 1,
        "description_patterns": ["^Online Transfer to\\s+CHK\\s*\\.\\.\\.1605"]
      }
    }
  }
}`

type fixture struct {
	store    *storage.Store
	book     *ledger.Book
	checking *ledger.Account
	savings  *ledger.Account
	registry *rules.Registry
	imp      *importer.Importer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "import_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	book, err := store.CreateBook("household")
	require.NoError(t, err)

	f := &fixture{store: store, book: book}
	f.checking = f.account(t, "1100", "Checking", "Assets:Checking", ledger.AccountTypeAsset)
	f.savings = f.account(t, "1200", "Savings", "Assets:Savings", ledger.AccountTypeAsset)
	f.account(t, "3100", "Unassigned", "Equity:Unassigned", ledger.AccountTypeEquity)
	f.account(t, "5100", "Groceries", "Expenses:Groceries", ledger.AccountTypeExpense)

	registry, err := rules.Load(strings.NewReader(testRules))
	require.NoError(t, err)

	f.registry = registry
	f.imp = importer.New(store, registry, nil, "Equity:Unassigned", nil)
	return f
}

// withCategories rebuilds the importer with a payee category lookup.
func (f *fixture) withCategories(t *testing.T, doc string) {
	t.Helper()
	cats, err := rules.LoadCategories(strings.NewReader(doc))
	require.NoError(t, err)
	f.imp = importer.New(f.store, f.registry, cats, "Equity:Unassigned", nil)
}

func (f *fixture) account(t *testing.T, code, name, fullName string, acctType ledger.AccountType) *ledger.Account {
	t.Helper()
	a := &ledger.Account{BookID: f.book.ID, Code: code, Name: name, FullName: fullName, Type: acctType}
	require.NoError(t, f.store.CreateAccount(a))
	return a
}

// transfer records a transfer out of savings as already entered from
// the checking side.
func (f *fixture) transfer(t *testing.T, d int, amount string) *ledger.Transaction {
	t.Helper()
	txn := &ledger.Transaction{
		BookID:      f.book.ID,
		Date:        time.Date(2024, 8, d, 0, 0, 0, 0, time.UTC),
		Description: "Transfer from savings",
		Splits: []ledger.Split{
			{AccountID: f.checking.ID, Amount: decimal.RequireFromString(amount)},
			{AccountID: f.savings.ID, Amount: decimal.RequireFromString(amount).Neg()},
		},
	}
	require.NoError(t, f.store.CreateTransaction(txn))
	return txn
}

func line(d int, desc, amount string) importer.Line {
	return importer.Line{
		Date:        time.Date(2024, 8, d, 0, 0, 0, 0, time.UTC),
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
	}
}

func savingsBatch(filename string, lines ...importer.Line) importer.Batch {
	var content strings.Builder
	for _, l := range lines {
		content.WriteString(l.Date.Format("2006-01-02") + "," + l.Description + "," + l.Amount.String() + "\n")
	}
	return importer.Batch{
		AccountFullName: "Assets:Savings",
		Filename:        filename,
		SourceType:      "csv",
		Content:         []byte(content.String()),
		Lines:           lines,
	}
}

func TestImport_MatchesExistingTransfer(t *testing.T) {
	f := newFixture(t)
	existing := f.transfer(t, 14, "500.00")

	report, err := f.imp.Import(f.book, savingsBatch("savings-aug.csv",
		line(15, "Online Transfer to CHK ...1605 08/15", "-500.00"),
	))
	require.NoError(t, err)

	assert.Equal(t, importer.OutcomeImported, report.Outcome)
	assert.Equal(t, 0, report.Imported)
	assert.Equal(t, 1, report.Matched)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, importer.LineMatchedExisting, report.Lines[0].State)
	assert.Equal(t, existing.ID, report.Lines[0].MatchedTransactionID)

	// The claim stuck: the transaction is matched, its checking split
	// cleared, and no new transaction was created.
	got, err := f.store.TransactionByID(existing.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.MatchMatched, got.MatchStatus)
	assert.Equal(t, ledger.ReconcileCleared, got.SplitFor(f.checking.ID).ReconcileState)

	txns, err := f.store.ListTransactions(f.book.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestImport_InsertsUnmatchedLines(t *testing.T) {
	f := newFixture(t)

	report, err := f.imp.Import(f.book, savingsBatch("savings-aug.csv",
		line(3, "INTEREST PAYMENT", "1.23"),
		line(20, "ATM WITHDRAWAL", "-60.00"),
	))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Imported)
	assert.Equal(t, 0, report.Matched)

	txns, err := f.store.ListTransactions(f.book.ID)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	// Unmatched lines post against the unassigned account with the
	// balancing counter-leg.
	first := txns[0]
	assert.Equal(t, "INTEREST PAYMENT", first.Description)
	require.Len(t, first.Splits, 2)
	savingsSplit := first.SplitFor(f.savings.ID)
	require.NotNil(t, savingsSplit)
	assert.True(t, savingsSplit.Amount.Equal(decimal.RequireFromString("1.23")))
	counter := first.CounterSplit(f.savings.ID)
	require.NotNil(t, counter)
	assert.True(t, counter.Amount.Equal(decimal.RequireFromString("-1.23")))
}

func TestImport_ContraAccountOverride(t *testing.T) {
	f := newFixture(t)

	l := line(5, "FARMERS MARKET", "-32.50")
	l.ContraAccount = "Expenses:Groceries"

	report, err := f.imp.Import(f.book, savingsBatch("savings-aug.csv", l))
	require.NoError(t, err)
	require.Equal(t, 1, report.Imported)

	txns, err := f.store.ListTransactions(f.book.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)

	groceries, err := f.store.AccountByFullName(f.book.ID, "Expenses:Groceries")
	require.NoError(t, err)
	counter := txns[0].CounterSplit(f.savings.ID)
	require.NotNil(t, counter)
	assert.Equal(t, groceries.ID, counter.AccountID)
}

func TestImport_CategorizesByPayee(t *testing.T) {
	f := newFixture(t)
	f.withCategories(t, `{"Expenses:Groceries": [{"payee": "WHOLE FOODS"}]}`)

	report, err := f.imp.Import(f.book, savingsBatch("savings-aug.csv",
		line(12, "Whole Foods Market 08/12", "-82.19"),
		line(20, "HARDWARE STORE", "-10.00"),
	))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)

	txns, err := f.store.ListTransactions(f.book.ID)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	groceries, err := f.store.AccountByFullName(f.book.ID, "Expenses:Groceries")
	require.NoError(t, err)
	unassigned, err := f.store.AccountByFullName(f.book.ID, "Equity:Unassigned")
	require.NoError(t, err)

	// The categorized line posts against the rule's category account;
	// the uncategorized one still falls back to unassigned.
	counter := txns[0].CounterSplit(f.savings.ID)
	require.NotNil(t, counter)
	assert.Equal(t, groceries.ID, counter.AccountID)

	counter = txns[1].CounterSplit(f.savings.ID)
	require.NotNil(t, counter)
	assert.Equal(t, unassigned.ID, counter.AccountID)
}

func TestImport_ExplicitContraBeatsCategory(t *testing.T) {
	f := newFixture(t)
	dining := f.account(t, "5200", "Dining", "Expenses:Dining", ledger.AccountTypeExpense)
	f.withCategories(t, `{"Expenses:Groceries": [{"payee": "WHOLE FOODS"}]}`)

	l := line(12, "WHOLE FOODS MARKET", "-18.40")
	l.ContraAccount = "Expenses:Dining"

	_, err := f.imp.Import(f.book, savingsBatch("savings-aug.csv", l))
	require.NoError(t, err)

	txns, err := f.store.ListTransactions(f.book.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)

	counter := txns[0].CounterSplit(f.savings.ID)
	require.NotNil(t, counter)
	assert.Equal(t, dining.ID, counter.AccountID)
}

func TestImport_UnknownCategoryAccountFallsBack(t *testing.T) {
	f := newFixture(t)
	f.withCategories(t, `{"Expenses:Travel": [{"payee": "AIRLINE"}]}`)

	report, err := f.imp.Import(f.book, savingsBatch("savings-aug.csv",
		line(7, "AIRLINE TICKET", "-250.00"),
	))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Imported)
	assert.Equal(t, 0, report.Rejected)

	unassigned, err := f.store.AccountByFullName(f.book.ID, "Equity:Unassigned")
	require.NoError(t, err)

	txns, err := f.store.ListTransactions(f.book.ID)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	counter := txns[0].CounterSplit(f.savings.ID)
	require.NotNil(t, counter)
	assert.Equal(t, unassigned.ID, counter.AccountID)
}

func TestImport_RejectsLineWithUnknownContra(t *testing.T) {
	f := newFixture(t)

	bad := line(5, "MYSTERY", "-10.00")
	bad.ContraAccount = "Expenses:DoesNotExist"

	report, err := f.imp.Import(f.book, savingsBatch("savings-aug.csv",
		bad,
		line(6, "INTEREST PAYMENT", "1.23"),
	))
	require.NoError(t, err, "a rejected line must not fail the batch")

	assert.Equal(t, 1, report.Rejected)
	assert.Equal(t, 1, report.Imported)
	require.Len(t, report.Lines, 2)
	assert.Equal(t, importer.LineRejected, report.Lines[0].State)

	var iv *ledger.InvariantViolation
	require.ErrorAs(t, report.Lines[0].Err, &iv)
}

func TestImport_ReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.transfer(t, 14, "500.00")

	batch := savingsBatch("savings-aug.csv",
		line(15, "Online Transfer to CHK ...1605 08/15", "-500.00"),
		line(20, "ATM WITHDRAWAL", "-60.00"),
	)

	first, err := f.imp.Import(f.book, batch)
	require.NoError(t, err)
	require.Equal(t, importer.OutcomeImported, first.Outcome)

	second, err := f.imp.Import(f.book, batch)
	require.NoError(t, err)
	assert.Equal(t, importer.OutcomeDuplicate, second.Outcome)
	assert.Equal(t, first.BatchUID, second.BatchUID)
	assert.Zero(t, second.Imported)

	// Replaying must not have duplicated anything.
	txns, err := f.store.ListTransactions(f.book.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 2)

	batches, err := f.store.ListImportBatches(f.book.ID)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
}

func TestImport_RenamedFileIsStillDuplicate(t *testing.T) {
	f := newFixture(t)

	batch := savingsBatch("savings-aug.csv", line(3, "INTEREST PAYMENT", "1.23"))
	_, err := f.imp.Import(f.book, batch)
	require.NoError(t, err)

	renamed := batch
	renamed.Filename = "savings-aug-copy.csv"
	report, err := f.imp.Import(f.book, renamed)
	require.NoError(t, err)
	assert.Equal(t, importer.OutcomeDuplicate, report.Outcome)
}

func TestImport_HashMismatch(t *testing.T) {
	f := newFixture(t)

	_, err := f.imp.Import(f.book, savingsBatch("savings-aug.csv",
		line(3, "INTEREST PAYMENT", "1.23"),
	))
	require.NoError(t, err)

	// Same file name and account, different content.
	report, err := f.imp.Import(f.book, savingsBatch("savings-aug.csv",
		line(3, "INTEREST PAYMENT", "1.24"),
	))
	require.NoError(t, err)
	assert.Equal(t, importer.OutcomeHashMismatch, report.Outcome)

	// Nothing was written for the conflicting batch.
	txns, err := f.store.ListTransactions(f.book.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestImport_AmbiguityWarnsAndPicksLowestID(t *testing.T) {
	f := newFixture(t)

	// Two identical transfers on the same day both pass every check.
	first := f.transfer(t, 14, "500.00")
	second := f.transfer(t, 14, "500.00")

	report, err := f.imp.Import(f.book, savingsBatch("savings-aug.csv",
		line(14, "Online Transfer to CHK ...1605", "-500.00"),
	))
	require.NoError(t, err)

	require.Len(t, report.Lines, 1)
	assert.Equal(t, first.ID, report.Lines[0].MatchedTransactionID,
		"tie-break is the lowest transaction id")

	require.Len(t, report.Warnings, 1)
	warning := report.Warnings[0]
	assert.Equal(t, first.ID, warning.ChosenID)
	assert.ElementsMatch(t, []int64{first.ID, second.ID}, warning.CandidateIDs)

	// The runner-up stays unclaimed.
	got, err := f.store.TransactionByID(second.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.MatchNot, got.MatchStatus)
}

func TestImport_EachLineClaimsAtMostOneCandidate(t *testing.T) {
	f := newFixture(t)
	f.transfer(t, 14, "500.00")

	// Two statement lines, one eligible ledger entry: the first line
	// claims it, the second inserts a new transaction.
	report, err := f.imp.Import(f.book, savingsBatch("savings-aug.csv",
		line(14, "Online Transfer to CHK ...1605", "-500.00"),
		line(14, "Online Transfer to CHK ...1605", "-500.00"),
	))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Imported)
}

func TestImport_RecordsBatchCoverage(t *testing.T) {
	f := newFixture(t)

	report, err := f.imp.Import(f.book, savingsBatch("savings-aug.csv",
		line(20, "ATM WITHDRAWAL", "-60.00"),
		line(3, "INTEREST PAYMENT", "1.23"),
	))
	require.NoError(t, err)

	batch, err := f.store.ImportBatchByID(report.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.RowCount)
	require.NotNil(t, batch.CoverageStart)
	require.NotNil(t, batch.CoverageEnd)
	assert.Equal(t, "2024-08-03", batch.CoverageStart.Format("2006-01-02"))
	assert.Equal(t, "2024-08-20", batch.CoverageEnd.Format("2006-01-02"))
}

func TestImport_UnknownAccountFails(t *testing.T) {
	f := newFixture(t)

	batch := savingsBatch("x.csv", line(1, "A", "1"))
	batch.AccountFullName = "Assets:Nope"

	_, err := f.imp.Import(f.book, batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
