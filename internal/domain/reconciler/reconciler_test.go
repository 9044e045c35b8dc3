package reconciler

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splitbook/splitbook/internal/domain/ledger"
)

func day(d int) time.Time {
	return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
}

func split(id int64, d int, desc, amount string) LedgerSplit {
	return LedgerSplit{
		ID:          id,
		Date:        day(d),
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		State:       ledger.ReconcileNot,
	}
}

func line(d int, desc, amount string) ledger.StatementLine {
	return ledger.StatementLine{
		Date:        day(d),
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
	}
}

func stmt(start, end string, lines ...ledger.StatementLine) Statement {
	return Statement{
		StartBalance: decimal.RequireFromString(start),
		EndBalance:   decimal.RequireFromString(end),
		Lines:        lines,
	}
}

func TestReconcile_CleanPeriod(t *testing.T) {
	splits := []LedgerSplit{
		split(1, 3, "PAYROLL", "2500.00"),
		split(2, 10, "RENT", "-1400.00"),
		split(3, 21, "GROCERY", "-86.15"),
	}
	res := Reconcile(stmt("1000.00", "2013.85",
		line(3, "PAYROLL", "2500.00"),
		line(11, "RENT", "-1400.00"),
		line(21, "GROCERY", "-86.15"),
	), splits, DefaultDateWindow)

	assert.Equal(t, ledger.StatementReconciled, res.Status)
	assert.Equal(t, ClassNone, res.Class)
	assert.True(t, res.Discrepancy.IsZero())
	assert.Equal(t, "2013.85", res.ComputedEnd.String())
	assert.ElementsMatch(t, []int64{1, 2, 3}, res.MatchedSplitIDs)
	assert.Empty(t, res.UnmatchedSplits)
	assert.Empty(t, res.UnmatchedLines)
}

func TestReconcile_MissingData(t *testing.T) {
	// The statement has a line the ledger never recorded. Even though
	// the resulting difference is under a dollar it is structural, not
	// a rounding issue.
	splits := []LedgerSplit{
		split(1, 3, "PAYROLL", "2500.00"),
	}
	res := Reconcile(stmt("0.00", "2499.50",
		line(3, "PAYROLL", "2500.00"),
		line(9, "CARD FEE", "-0.50"),
	), splits, DefaultDateWindow)

	assert.Equal(t, ledger.StatementDiscrepant, res.Status)
	assert.Equal(t, ClassMissingData, res.Class)
	assert.Equal(t, "0.5", res.Discrepancy.String())
	require.Len(t, res.UnmatchedLines, 1)
	assert.Equal(t, "CARD FEE", res.UnmatchedLines[0].Description)
}

func TestReconcile_DuplicateTransactions(t *testing.T) {
	// The same charge was entered twice in the ledger; the statement
	// shows it once.
	splits := []LedgerSplit{
		split(1, 5, "COFFEE SHOP", "-4.50"),
		split(2, 5, "COFFEE SHOP", "-4.50"),
	}
	res := Reconcile(stmt("100.00", "95.50",
		line(5, "COFFEE SHOP", "-4.50"),
	), splits, DefaultDateWindow)

	assert.Equal(t, ledger.StatementDiscrepant, res.Status)
	assert.Equal(t, ClassDuplicateTransactions, res.Class)
	assert.Equal(t, "-4.5", res.Discrepancy.String())
}

func TestReconcile_SignConvention(t *testing.T) {
	// A refund was recorded as a charge: ledger says -25.00 where the
	// statement says +25.00. The balance is off by twice the amount.
	splits := []LedgerSplit{
		split(1, 5, "STORE REFUND", "-25.00"),
	}
	res := Reconcile(stmt("100.00", "125.00",
		line(5, "STORE REFUND", "25.00"),
	), splits, DefaultDateWindow)

	assert.Equal(t, ledger.StatementDiscrepant, res.Status)
	assert.Equal(t, ClassSignConvention, res.Class)
	assert.Equal(t, "-50", res.Discrepancy.String())
}

func TestReconcile_SmallDiscrepancy(t *testing.T) {
	// Same lines on both sides, but the reported end balance is off by
	// a few cents with no structural explanation.
	splits := []LedgerSplit{
		split(1, 3, "PAYROLL", "2500.00"),
	}
	res := Reconcile(stmt("0.00", "2500.03",
		line(3, "PAYROLL", "2500.00"),
	), splits, DefaultDateWindow)

	assert.Equal(t, ledger.StatementDiscrepant, res.Status)
	assert.Equal(t, ClassSmallDiscrepancy, res.Class)
	assert.Equal(t, "-0.03", res.Discrepancy.String())
}

func TestReconcile_CascadingError(t *testing.T) {
	splits := []LedgerSplit{
		split(1, 3, "PAYROLL", "2500.00"),
	}
	res := Reconcile(stmt("0.00", "2800.00",
		line(3, "PAYROLL", "2500.00"),
	), splits, DefaultDateWindow)

	assert.Equal(t, ledger.StatementDiscrepant, res.Status)
	assert.Equal(t, ClassCascadingError, res.Class)
}

func TestReconcile_PairsWithinDateWindow(t *testing.T) {
	// A posting date lagging the statement date by more than the window
	// does not pair even when the amount agrees.
	splits := []LedgerSplit{
		split(1, 10, "RENT", "-1400.00"),
	}
	res := Reconcile(stmt("2000.00", "600.00",
		line(2, "RENT", "-1400.00"),
	), splits, 3)

	assert.Equal(t, ledger.StatementDiscrepant, res.Status)
	assert.Len(t, res.UnmatchedSplits, 1)
	assert.Len(t, res.UnmatchedLines, 1)
}

func TestReconcile_PrefersNearestDate(t *testing.T) {
	splits := []LedgerSplit{
		split(1, 8, "RENT", "-1400.00"),
		split(2, 10, "RENT", "-1400.00"),
	}
	res := Reconcile(stmt("2000.00", "-800.00",
		line(10, "RENT", "-1400.00"),
		line(8, "RENT", "-1400.00"),
	), splits, 3)

	assert.Equal(t, ledger.StatementReconciled, res.Status)
	// Greedy in line order: the first line takes the split on day 10.
	assert.Equal(t, []int64{2, 1}, res.MatchedSplitIDs)
}

func TestReconcile_EmptyPeriod(t *testing.T) {
	res := Reconcile(stmt("100.00", "100.00"), nil, DefaultDateWindow)

	assert.Equal(t, ledger.StatementReconciled, res.Status)
	assert.Equal(t, 0, res.SplitCount)
	assert.Empty(t, res.MatchedSplitIDs)
}

func TestDiscrepancyClassString(t *testing.T) {
	assert.Equal(t, "MISSING_DATA", ClassMissingData.String())
	assert.Equal(t, "DUPLICATE_TRANSACTIONS", ClassDuplicateTransactions.String())
	assert.Equal(t, "SIGN_CONVENTION", ClassSignConvention.String())
	assert.Equal(t, "SMALL_DISCREPANCY", ClassSmallDiscrepancy.String())
	assert.Equal(t, "CASCADING_ERROR", ClassCascadingError.String())
}
