package ledger

import (
	"errors"
	"fmt"
)

// ErrDuplicateImport signals that a batch fingerprint is already
// registered. It is a no-op outcome, not a failure.
var ErrDuplicateImport = errors.New("import batch already registered")

// ErrNotFound is returned by store lookups that matched nothing.
var ErrNotFound = errors.New("not found")

// ConfigError reports malformed or unresolvable rule configuration.
// It is fatal at load time, before any write happens.
type ConfigError struct {
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("config: %s", e.Detail)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// InvariantViolation reports a write that would break double-entry
// balance or book consistency. The offending line is rejected at the
// store boundary; the rest of the batch continues.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Detail)
}

// AmbiguousMatch is surfaced as a warning when more than one candidate
// passed the matcher for a single imported line. The documented
// tie-break already chose deterministically; the warning exists for
// operator review of the rule configuration.
type AmbiguousMatch struct {
	Description  string
	CandidateIDs []int64
	ChosenID     int64
}

func (e *AmbiguousMatch) Error() string {
	return fmt.Sprintf("ambiguous match for %q: %d candidates passed, chose transaction %d",
		e.Description, len(e.CandidateIDs), e.ChosenID)
}
