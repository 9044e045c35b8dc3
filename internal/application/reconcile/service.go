// Package reconcile binds the reconciliation engine to the ledger
// store: it loads a period's splits, runs the pure engine, persists
// the outcome and advances split states inside one store transaction.
package reconcile

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/domain/ledger"
	"github.com/splitbook/splitbook/internal/domain/reconciler"
	"github.com/splitbook/splitbook/internal/infrastructure/storage"
)

// Service runs reconciliation for statement periods.
type Service struct {
	store      *storage.Store
	logger     *slog.Logger
	dateWindow int
	now        func() time.Time
}

// New creates a reconciliation service. dateWindow <= 0 selects the
// engine default.
func New(store *storage.Store, dateWindow int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if dateWindow <= 0 {
		dateWindow = reconciler.DefaultDateWindow
	}
	return &Service{
		store:      store,
		logger:     logger.With("system", "reconcile"),
		dateWindow: dateWindow,
		now:        time.Now,
	}
}

// RegisterStatement records a statement period for an account.
func (s *Service) RegisterStatement(bookID int64, accountFullName string, start, end time.Time, startBalance, endBalance decimal.Decimal) (*ledger.StatementPeriod, error) {
	account, err := s.store.AccountByFullName(bookID, accountFullName)
	if err != nil {
		return nil, fmt.Errorf("statement account %q: %w", accountFullName, err)
	}
	p := &ledger.StatementPeriod{
		BookID:       bookID,
		AccountID:    account.ID,
		StartDate:    ledger.DateOnly(start),
		EndDate:      ledger.DateOnly(end),
		StartBalance: startBalance,
		EndBalance:   endBalance,
	}
	if err := s.store.CreateStatementPeriod(p); err != nil {
		return nil, err
	}
	return p, nil
}

// ReconcilePeriod reconciles one statement period against its supplied
// transaction lines. On a clean result the matched splits advance to
// 'r'; that is the only state transition performed automatically.
func (s *Service) ReconcilePeriod(periodID int64, lines []ledger.StatementLine) (*reconciler.Result, error) {
	var result reconciler.Result

	err := s.store.WithTx(func(tx *storage.Tx) error {
		period, err := tx.StatementPeriodByID(periodID)
		if err != nil {
			return fmt.Errorf("statement period %d: %w", periodID, err)
		}

		periodSplits, err := tx.SplitsInPeriod(period.BookID, period.AccountID, period.StartDate, period.EndDate)
		if err != nil {
			return err
		}

		splits := make([]reconciler.LedgerSplit, len(periodSplits))
		for i, ps := range periodSplits {
			splits[i] = reconciler.LedgerSplit{
				ID:          ps.Split.ID,
				Date:        ps.Date,
				Description: ps.Description,
				Amount:      ps.Split.Amount,
				State:       ps.Split.ReconcileState,
			}
		}

		result = reconciler.Reconcile(reconciler.Statement{
			StartBalance: period.StartBalance,
			EndBalance:   period.EndBalance,
			Lines:        lines,
		}, splits, s.dateWindow)

		if result.Status == ledger.StatementReconciled {
			if err := tx.AdvanceReconciled(result.MatchedSplitIDs, s.now()); err != nil {
				return err
			}
		}

		return tx.UpdateStatementReconciliation(periodID, result.ComputedEnd, result.Discrepancy, result.Status)
	})
	if err != nil {
		return nil, err
	}

	if result.Status == ledger.StatementReconciled {
		s.logger.Info("period reconciled",
			"period", periodID,
			"splits", result.SplitCount,
			"computed_end", result.ComputedEnd.String())
	} else {
		s.logger.Warn("period discrepant",
			"period", periodID,
			"class", result.Class.String(),
			"discrepancy", result.Discrepancy.String())
	}

	return &result, nil
}

// ReconcileAccount reconciles every unreconciled period of an account
// that has lines supplied, in period order. linesFor maps period ids to
// their statement lines; periods without an entry are skipped.
func (s *Service) ReconcileAccount(bookID int64, accountFullName string, linesFor map[int64][]ledger.StatementLine) ([]*reconciler.Result, error) {
	account, err := s.store.AccountByFullName(bookID, accountFullName)
	if err != nil {
		return nil, fmt.Errorf("account %q: %w", accountFullName, err)
	}
	periods, err := s.store.ListStatementPeriods(bookID, account.ID)
	if err != nil {
		return nil, err
	}

	var out []*reconciler.Result
	for _, p := range periods {
		lines, ok := linesFor[p.ID]
		if !ok || p.Status == ledger.StatementReconciled {
			continue
		}
		res, err := s.ReconcilePeriod(p.ID, lines)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}
