// Package importer orchestrates the import of normalized statement
// exports into the ledger: idempotency gating, duplicate matching
// against existing entries, and insertion of everything else.
package importer

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/domain/ledger"
	"github.com/splitbook/splitbook/internal/domain/matcher"
	"github.com/splitbook/splitbook/internal/domain/rules"
	"github.com/splitbook/splitbook/internal/infrastructure/storage"
)

// Line is one normalized imported transaction line. Amount is signed
// as posted to the source account. ContraAccount optionally names the
// other side; when empty the line posts against the importer's
// unassigned account.
type Line struct {
	Date          time.Time
	Description   string
	Amount        decimal.Decimal
	ContraAccount string
}

// Batch is one import source: the account it belongs to, the raw
// normalized content (fingerprinted for idempotency) and the parsed
// lines.
type Batch struct {
	AccountFullName string
	Filename        string
	SourceType      string
	Content         []byte
	Lines           []Line
}

// Outcome is the batch-level result.
type Outcome int

const (
	// OutcomeImported: new batch, processed.
	OutcomeImported Outcome = iota
	// OutcomeDuplicate: fingerprint already registered, nothing done.
	OutcomeDuplicate
	// OutcomeHashMismatch: same scope, different content. Requires
	// operator action; nothing done.
	OutcomeHashMismatch
)

func (o Outcome) String() string {
	switch o {
	case OutcomeImported:
		return "imported"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeHashMismatch:
		return "hash_mismatch"
	}
	return "unknown"
}

// LineState is the terminal state of one imported line.
type LineState string

const (
	LineInsertedNew     LineState = "INSERTED_NEW"
	LineMatchedExisting LineState = "MATCHED_EXISTING"
	LineRejected        LineState = "REJECTED"
)

// LineResult records what happened to one line.
type LineResult struct {
	Line                 Line
	State                LineState
	MatchedTransactionID int64
	Err                  error
}

// Report is the per-batch import report.
type Report struct {
	Outcome  Outcome
	BatchID  int64
	BatchUID string
	Imported int
	Matched  int
	Rejected int
	Lines    []LineResult
	Warnings []*ledger.AmbiguousMatch
}

// Importer is the match engine orchestrator. Rule registry, category
// lookup and store handle are fixed at construction; both rule sets
// are immutable for the whole run.
type Importer struct {
	store      *storage.Store
	rules      *rules.Registry
	categories *rules.Categories
	logger     *slog.Logger
	unassigned string
}

// New creates an importer. categories may be nil to disable payee
// categorization; unassignedAccount is the full name of the account
// uncategorized lines post against.
func New(store *storage.Store, registry *rules.Registry, categories *rules.Categories, unassignedAccount string, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:      store,
		rules:      registry,
		categories: categories,
		logger:     logger.With("system", "import"),
		unassigned: unassignedAccount,
	}
}

// Import runs one batch against the book. The idempotency guard, an
// accepted batch's lines and its ImportBatch record all share a single
// store transaction, so a failed run never marks the batch done, two
// concurrent imports can never claim the same candidate, and a
// concurrent import of the same content resolves to the duplicate
// no-op for the loser.
func (im *Importer) Import(book *ledger.Book, batch Batch) (*Report, error) {
	account, err := im.store.AccountByFullName(book.ID, batch.AccountFullName)
	if err != nil {
		return nil, fmt.Errorf("import account %q: %w", batch.AccountFullName, err)
	}

	start, end := coverage(batch.Lines)
	fingerprint := Fingerprint(batch.Content, Scope{
		AccountFullName: account.FullName,
		Start:           start,
		End:             end,
	})

	var report *Report
	err = im.store.WithTx(func(tx *storage.Tx) error {
		existing, done, err := im.checkRegistered(tx, book, account, batch, fingerprint)
		if err != nil {
			return err
		}
		if done {
			report = existing
			return nil
		}

		report = &Report{Outcome: OutcomeImported}
		for _, line := range batch.Lines {
			res, warning := im.processLine(tx, book, account, line)
			if warning != nil {
				report.Warnings = append(report.Warnings, warning)
			}
			report.Lines = append(report.Lines, res)
			switch res.State {
			case LineInsertedNew:
				report.Imported++
			case LineMatchedExisting:
				report.Matched++
			case LineRejected:
				report.Rejected++
			}
		}

		// The batch record commits with the lines, not before.
		rec := &ledger.ImportBatch{
			BookID:      book.ID,
			AccountID:   account.ID,
			Filename:    batch.Filename,
			SourceType:  batch.SourceType,
			Fingerprint: fingerprint,
			RowCount:    len(batch.Lines),
		}
		if start != nil {
			rec.CoverageStart = start
			rec.CoverageEnd = end
		}
		if err := tx.CreateImportBatch(rec); err != nil {
			return err
		}
		report.BatchID = rec.ID
		report.BatchUID = rec.UID
		return nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateImport) {
			// Lost the race to a concurrent import of the same
			// content. Report the winner's batch as the duplicate.
			winner, lookupErr := im.store.ImportBatchByFingerprint(book.ID, fingerprint)
			if lookupErr != nil {
				return nil, fmt.Errorf("import batch %q: %w", batch.Filename, err)
			}
			im.logger.Info("batch already imported", "file", batch.Filename, "batch_uid", winner.UID)
			return &Report{Outcome: OutcomeDuplicate, BatchID: winner.ID, BatchUID: winner.UID}, nil
		}
		return nil, fmt.Errorf("import batch %q: %w", batch.Filename, err)
	}
	if report.Outcome != OutcomeImported {
		return report, nil
	}

	for _, w := range report.Warnings {
		im.logger.Warn("ambiguous match", "detail", w.Error())
	}
	im.logger.Info("batch imported",
		"file", batch.Filename,
		"account", account.FullName,
		"imported", report.Imported,
		"matched", report.Matched,
		"rejected", report.Rejected)

	return report, nil
}

// checkRegistered is the idempotency guard: a known fingerprint is a
// no-op, a known scope with different content is a hash mismatch. Both
// stop the batch before any write. It runs inside the batch
// transaction so the check and the batch record land in one scope; a
// race that slips past it still hits the fingerprint uniqueness
// constraint, which surfaces as ErrDuplicateImport.
func (im *Importer) checkRegistered(tx *storage.Tx, book *ledger.Book, account *ledger.Account, batch Batch, fingerprint string) (*Report, bool, error) {
	if existing, err := tx.ImportBatchByFingerprint(book.ID, fingerprint); err == nil {
		im.logger.Info("batch already imported", "file", batch.Filename, "batch_uid", existing.UID)
		return &Report{Outcome: OutcomeDuplicate, BatchID: existing.ID, BatchUID: existing.UID}, true, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, false, err
	}

	if existing, err := tx.ImportBatchByScope(book.ID, account.ID, batch.Filename); err == nil {
		im.logger.Warn("batch scope exists with different content", "file", batch.Filename, "batch_uid", existing.UID)
		return &Report{Outcome: OutcomeHashMismatch, BatchID: existing.ID, BatchUID: existing.UID}, true, nil
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return nil, false, err
	}

	return nil, false, nil
}

// processLine runs the per-line state machine:
// PENDING -> INSERTED_NEW | MATCHED_EXISTING (| REJECTED on an
// invariant violation, which skips the line and continues the batch).
func (im *Importer) processLine(tx *storage.Tx, book *ledger.Book, account *ledger.Account, line Line) (LineResult, *ledger.AmbiguousMatch) {
	in := matcher.Incoming{Date: line.Date, Description: line.Description, Amount: line.Amount}

	claimed, warning, err := im.matchExisting(tx, book, account, in)
	if err != nil {
		return LineResult{Line: line, State: LineRejected, Err: err}, warning
	}
	if claimed != 0 {
		return LineResult{Line: line, State: LineMatchedExisting, MatchedTransactionID: claimed}, warning
	}

	if err := im.insertNew(tx, book, account, line); err != nil {
		var iv *ledger.InvariantViolation
		if errors.As(err, &iv) {
			im.logger.Warn("line rejected", "description", line.Description, "error", iv.Error())
			return LineResult{Line: line, State: LineRejected, Err: iv}, warning
		}
		return LineResult{Line: line, State: LineRejected, Err: err}, warning
	}
	return LineResult{Line: line, State: LineInsertedNew}, warning
}

// matchExisting walks the rule registry's targets in registration
// order and each target's candidates in resolver order. The first
// passing candidate wins; any further passes make the line an
// AmbiguousMatch warning.
func (im *Importer) matchExisting(tx *storage.Tx, book *ledger.Book, account *ledger.Account, in matcher.Incoming) (int64, *ledger.AmbiguousMatch, error) {
	ruleSet := im.rules.RulesFor(account.FullName)
	if len(ruleSet) == 0 {
		return 0, nil, nil
	}

	type pass struct {
		txn   *ledger.Transaction
		split *ledger.Split
	}
	var passes []pass

	for _, rule := range ruleSet {
		target, err := tx.AccountByFullName(book.ID, rule.TargetFullName)
		if err != nil {
			// Registry account resolution runs at load; a miss here is
			// config drift within the run.
			return 0, nil, &ledger.ConfigError{
				Detail: fmt.Sprintf("rule target %q not found", rule.TargetFullName), Err: err,
			}
		}

		candidates, err := tx.FindCandidates(book.ID, target.ID, in.Date, rule.DateOffset)
		if err != nil {
			return 0, nil, err
		}

		for _, cand := range candidates {
			verdict := matcher.Evaluate(in, account.ID, target.ID, rule, cand)
			if !verdict.OK {
				im.logger.Debug("candidate rejected",
					"candidate", cand.ID, "reason", string(verdict.Reason))
				continue
			}
			passes = append(passes, pass{txn: cand, split: cand.SplitFor(target.ID)})
		}
	}

	if len(passes) == 0 {
		return 0, nil, nil
	}

	chosen := passes[0]
	if err := tx.ClaimMatched(chosen.txn.ID, chosen.split.ID); err != nil {
		return 0, nil, err
	}

	var warning *ledger.AmbiguousMatch
	if len(passes) > 1 {
		ids := make([]int64, len(passes))
		for i, p := range passes {
			ids[i] = p.txn.ID
		}
		warning = &ledger.AmbiguousMatch{
			Description:  in.Description,
			CandidateIDs: ids,
			ChosenID:     chosen.txn.ID,
		}
	}
	return chosen.txn.ID, warning, nil
}

// insertNew creates a fresh transaction with the debit/credit pair.
// A line without an explicit contra account goes through the category
// lookup before falling back to the unassigned account.
func (im *Importer) insertNew(tx *storage.Tx, book *ledger.Book, account *ledger.Account, line Line) error {
	contraName := line.ContraAccount
	if contraName == "" {
		contraName = im.categorize(tx, book, line.Description)
	}
	if contraName == "" {
		contraName = im.unassigned
	}
	contra, err := tx.AccountByFullName(book.ID, contraName)
	if err != nil {
		return &ledger.InvariantViolation{
			Detail: fmt.Sprintf("contra account %q not found", contraName),
		}
	}

	_, err = tx.EnterTransaction(book.ID, line.Date, line.Description, "", contra.ID, account.ID, line.Amount)
	return err
}

// categorize resolves a line's normalized payee through the category
// rules. A rule naming an account the book does not have leaves the
// line uncategorized instead of rejecting it.
func (im *Importer) categorize(tx *storage.Tx, book *ledger.Book, description string) string {
	if im.categories == nil {
		return ""
	}
	payee := rules.NormalizePayee(description)
	name := im.categories.Match(payee)
	if name == "" {
		return ""
	}
	if _, err := tx.AccountByFullName(book.ID, name); err != nil {
		im.logger.Warn("category account not found, leaving line unassigned",
			"payee", payee, "category", name)
		return ""
	}
	im.logger.Debug("payee categorized", "payee", payee, "category", name)
	return name
}

// coverage returns the min and max line dates, or nils for an empty batch.
func coverage(lines []Line) (*time.Time, *time.Time) {
	if len(lines) == 0 {
		return nil, nil
	}
	min, max := ledger.DateOnly(lines[0].Date), ledger.DateOnly(lines[0].Date)
	for _, l := range lines[1:] {
		d := ledger.DateOnly(l.Date)
		if d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}
	return &min, &max
}
