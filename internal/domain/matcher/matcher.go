// Package matcher evaluates imported statement lines against candidate
// ledger transactions.
//
// A candidate transaction is a match for an incoming line only if all
// criteria hold:
//
//   - the candidate posts the exact opposite amount to the expected
//     target account, with its counter-leg in the source account
//   - the incoming description is found by at least one of the rule's
//     compiled patterns
//   - the transaction dates lie within the rule's day offset
//
// Amount comparison is exact decimal equality. There is no epsilon:
// amounts are exact currency values.
package matcher

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/domain/ledger"
	"github.com/splitbook/splitbook/internal/domain/rules"
)

// Reason explains a verdict. Reasons are diagnostics and are never
// silently swallowed by callers.
type Reason string

const (
	ReasonOK              Reason = "OK"
	ReasonAmountMismatch  Reason = "AMOUNT_MISMATCH"
	ReasonNoPatternMatch  Reason = "NO_PATTERN_MATCH"
	ReasonAccountMismatch Reason = "ACCOUNT_MISMATCH"
	// ReasonDateOutOfWindow can only surface when a caller bypasses the
	// candidate resolver's date filter; the matcher re-validates anyway.
	ReasonDateOutOfWindow Reason = "DATE_OUT_OF_WINDOW"
)

// Verdict is the outcome of evaluating one candidate.
type Verdict struct {
	OK       bool
	Reason   Reason
	DateDiff int // whole days between incoming and candidate dates
}

// Incoming is a normalized imported statement line as seen by the
// matcher: the amount is signed as posted to the source account.
type Incoming struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
}

// Evaluate checks one candidate transaction against an incoming line
// for the given rule. sourceID is the account being imported into,
// targetID the rule's target account.
func Evaluate(in Incoming, sourceID, targetID int64, rule *rules.Rule, candidate *ledger.Transaction) Verdict {
	targetSplit := candidate.SplitFor(targetID)
	if targetSplit == nil {
		return Verdict{Reason: ReasonAccountMismatch}
	}
	counter := candidate.CounterSplit(targetID)
	if counter == nil || counter.AccountID != sourceID {
		return Verdict{Reason: ReasonAccountMismatch}
	}

	if !targetSplit.Amount.Equal(in.Amount.Neg()) {
		return Verdict{Reason: ReasonAmountMismatch}
	}

	if !rule.MatchesDescription(in.Description) {
		return Verdict{Reason: ReasonNoPatternMatch}
	}

	diff := ledger.DaysBetween(in.Date, candidate.Date)
	if diff > rule.DateOffset {
		return Verdict{Reason: ReasonDateOutOfWindow, DateDiff: diff}
	}

	return Verdict{OK: true, Reason: ReasonOK, DateDiff: diff}
}
