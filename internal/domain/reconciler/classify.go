package reconciler

import (
	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/domain/ledger"
)

// DiscrepancyClass is the closed taxonomy of reconciliation
// discrepancies. Adding a class is a code change, not a new string.
type DiscrepancyClass int

const (
	ClassNone DiscrepancyClass = iota
	ClassMissingData
	ClassDuplicateTransactions
	ClassSignConvention
	ClassSmallDiscrepancy
	ClassCascadingError
)

func (c DiscrepancyClass) String() string {
	switch c {
	case ClassNone:
		return "NONE"
	case ClassMissingData:
		return "MISSING_DATA"
	case ClassDuplicateTransactions:
		return "DUPLICATE_TRANSACTIONS"
	case ClassSignConvention:
		return "SIGN_CONVENTION"
	case ClassSmallDiscrepancy:
		return "SMALL_DISCREPANCY"
	case ClassCascadingError:
		return "CASCADING_ERROR"
	}
	return "UNKNOWN"
}

// smallDiscrepancyLimit is the exclusive bound below which an otherwise
// unexplained difference counts as SMALL_DISCREPANCY.
var smallDiscrepancyLimit = decimal.NewFromInt(1)

// classify maps a nonzero discrepancy onto the taxonomy. The checks
// run in a fixed order so that a structurally explained difference
// (missing line, duplicate, sign flip) is never demoted to
// SMALL_DISCREPANCY just because it happens to be small.
func classify(discrepancy decimal.Decimal, unmatchedSplits []LedgerSplit, unmatchedLines []ledger.StatementLine, all []LedgerSplit, dateWindow int) DiscrepancyClass {
	if isMissingData(discrepancy, unmatchedLines) {
		return ClassMissingData
	}
	if isDuplicate(discrepancy, unmatchedSplits, all) {
		return ClassDuplicateTransactions
	}
	if isSignFlip(discrepancy, unmatchedSplits, unmatchedLines, dateWindow) {
		return ClassSignConvention
	}
	if discrepancy.Abs().LessThan(smallDiscrepancyLimit) {
		return ClassSmallDiscrepancy
	}
	return ClassCascadingError
}

// isMissingData: the statement lines absent from the ledger account
// for the whole difference. computed - reported is short exactly the
// sum of unmatched lines.
func isMissingData(discrepancy decimal.Decimal, unmatchedLines []ledger.StatementLine) bool {
	if len(unmatchedLines) == 0 {
		return false
	}
	sum := decimal.Zero
	for _, l := range unmatchedLines {
		sum = sum.Add(l.Amount)
	}
	return discrepancy.Add(sum).IsZero()
}

// isDuplicate: unmatched ledger splits that repeat another period
// split (same date, amount, description) account for the whole excess.
func isDuplicate(discrepancy decimal.Decimal, unmatchedSplits []LedgerSplit, all []LedgerSplit) bool {
	if len(unmatchedSplits) == 0 {
		return false
	}
	sum := decimal.Zero
	found := false
	for _, u := range unmatchedSplits {
		for _, s := range all {
			if s.ID == u.ID {
				continue
			}
			if s.Amount.Equal(u.Amount) && s.Date.Equal(u.Date) && s.Description == u.Description {
				sum = sum.Add(u.Amount)
				found = true
				break
			}
		}
	}
	return found && sum.Equal(discrepancy)
}

// isSignFlip: statement lines recorded in the ledger with the opposite
// sign. Each flipped entry moves the computed balance by twice the
// line amount.
func isSignFlip(discrepancy decimal.Decimal, unmatchedSplits []LedgerSplit, unmatchedLines []ledger.StatementLine, dateWindow int) bool {
	if len(unmatchedLines) == 0 {
		return false
	}
	sum := decimal.Zero
	found := false
	for _, line := range unmatchedLines {
		for _, s := range unmatchedSplits {
			if s.Amount.Equal(line.Amount.Neg()) && ledger.DaysBetween(line.Date, s.Date) <= dateWindow {
				sum = sum.Add(line.Amount)
				found = true
				break
			}
		}
	}
	// Flipped sign: ledger holds -a where the statement says a, so the
	// computed balance is off by -2a per flipped line.
	return found && discrepancy.Add(sum.Mul(decimal.NewFromInt(2))).IsZero()
}
