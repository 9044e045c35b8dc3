// Package reconciler compares a statement period's ledger splits
// against the externally supplied statement lines and balance, and
// classifies any discrepancy into a fixed taxonomy.
//
// The engine only classifies. It never auto-corrects ledger data; every
// discrepancy class implies a different manual remediation.
package reconciler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/domain/ledger"
)

// DefaultDateWindow is the day tolerance used when pairing ledger
// splits with statement lines. Posting dates routinely lag statement
// dates by a business day or two.
const DefaultDateWindow = 3

// LedgerSplit is the reconciler's view of one split posted to the
// statement account during the period.
type LedgerSplit struct {
	ID          int64
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	State       ledger.ReconcileState
}

// Result is the outcome of reconciling one statement period.
type Result struct {
	Status          ledger.StatementStatus
	Class           DiscrepancyClass // ClassNone when reconciled
	ComputedEnd     decimal.Decimal
	Discrepancy     decimal.Decimal // computed end minus reported end
	MatchedSplitIDs []int64
	UnmatchedSplits []LedgerSplit
	UnmatchedLines  []ledger.StatementLine
	SplitCount      int
}

// Statement is the externally supplied input for one period.
type Statement struct {
	StartBalance decimal.Decimal
	EndBalance   decimal.Decimal
	Lines        []ledger.StatementLine
}

// Reconcile pairs ledger splits with statement lines, computes the
// period's balance delta and classifies the outcome. Pure computation;
// persisting the outcome and advancing split states is the caller's
// job, inside one store transaction.
func Reconcile(stmt Statement, splits []LedgerSplit, dateWindow int) Result {
	matchedSplits, unmatchedSplits, unmatchedLines := pairLines(stmt.Lines, splits, dateWindow)

	delta := decimal.Zero
	for _, s := range splits {
		delta = delta.Add(s.Amount)
	}
	computedEnd := stmt.StartBalance.Add(delta)
	discrepancy := computedEnd.Sub(stmt.EndBalance)

	res := Result{
		ComputedEnd:     computedEnd,
		Discrepancy:     discrepancy,
		UnmatchedSplits: unmatchedSplits,
		UnmatchedLines:  unmatchedLines,
		SplitCount:      len(splits),
	}
	for _, s := range matchedSplits {
		res.MatchedSplitIDs = append(res.MatchedSplitIDs, s.ID)
	}

	if discrepancy.IsZero() && len(unmatchedLines) == 0 {
		res.Status = ledger.StatementReconciled
		res.Class = ClassNone
		return res
	}

	res.Status = ledger.StatementDiscrepant
	res.Class = classify(discrepancy, unmatchedSplits, unmatchedLines, splits, dateWindow)
	return res
}

// pairLines greedily matches each statement line to the nearest-dated
// unmatched ledger split with the exact same amount. Greedy in line
// order is deterministic for a fixed statement.
func pairLines(lines []ledger.StatementLine, splits []LedgerSplit, dateWindow int) (matched []LedgerSplit, unmatchedSplits []LedgerSplit, unmatchedLines []ledger.StatementLine) {
	used := make(map[int64]bool, len(splits))

	for _, line := range lines {
		best := -1
		bestDiff := dateWindow + 1
		for i, s := range splits {
			if used[s.ID] || !s.Amount.Equal(line.Amount) {
				continue
			}
			diff := ledger.DaysBetween(line.Date, s.Date)
			if diff < bestDiff {
				best = i
				bestDiff = diff
			}
		}
		if best >= 0 {
			used[splits[best].ID] = true
			matched = append(matched, splits[best])
		} else {
			unmatchedLines = append(unmatchedLines, line)
		}
	}

	for _, s := range splits {
		if !used[s.ID] {
			unmatchedSplits = append(unmatchedSplits, s)
		}
	}
	return matched, unmatchedSplits, unmatchedLines
}
