package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AccountResolver looks up accounts during write-time validation.
// The storage layer satisfies it inside its own transactions.
type AccountResolver interface {
	AccountByID(id int64) (*Account, error)
}

// ValidateTransaction enforces the write-time invariants for the
// two-split ledger variant:
//
//   - exactly two splits (one debit, one credit)
//   - split amounts sum to exactly zero
//   - every split's account exists and belongs to the transaction's book
//
// Violations come back as *InvariantViolation.
func ValidateTransaction(t *Transaction, accounts AccountResolver) error {
	if len(t.Splits) != 2 {
		return &InvariantViolation{
			Detail: fmt.Sprintf("transaction %q must have exactly 2 splits, has %d", t.Description, len(t.Splits)),
		}
	}

	sum := decimal.Zero
	for _, s := range t.Splits {
		sum = sum.Add(s.Amount)
	}
	if !sum.IsZero() {
		return &InvariantViolation{
			Detail: fmt.Sprintf("transaction %q splits sum to %s, want 0", t.Description, sum),
		}
	}

	for _, s := range t.Splits {
		acct, err := accounts.AccountByID(s.AccountID)
		if err != nil {
			return &InvariantViolation{
				Detail: fmt.Sprintf("transaction %q references unknown account %d", t.Description, s.AccountID),
			}
		}
		if acct.BookID != t.BookID {
			return &InvariantViolation{
				Detail: fmt.Sprintf("split account %q belongs to book %d, transaction belongs to book %d",
					acct.FullName, acct.BookID, t.BookID),
			}
		}
	}

	return nil
}

// ValidateAccount enforces account creation invariants: a known type
// and, when a parent is given, a parent in the same book.
func ValidateAccount(a *Account, parent *Account) error {
	if !ValidAccountType(a.Type) {
		return &InvariantViolation{
			Detail: fmt.Sprintf("account %q has unknown type %q", a.FullName, a.Type),
		}
	}
	if a.ParentID != nil {
		if parent == nil {
			return &InvariantViolation{
				Detail: fmt.Sprintf("account %q references missing parent %d", a.FullName, *a.ParentID),
			}
		}
		if parent.BookID != a.BookID {
			return &InvariantViolation{
				Detail: fmt.Sprintf("account %q parent belongs to book %d, account to book %d",
					a.FullName, parent.BookID, a.BookID),
			}
		}
	}
	return nil
}
