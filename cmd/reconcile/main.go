package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/splitbook/splitbook/internal/application/reconcile"
	"github.com/splitbook/splitbook/internal/domain/ledger"
	"github.com/splitbook/splitbook/internal/infrastructure/config"
	"github.com/splitbook/splitbook/internal/infrastructure/logging"
	"github.com/splitbook/splitbook/internal/infrastructure/storage"
)

func main() {
	// Parse flags
	var (
		configFile = flag.String("config", "", "Configuration file path")
		bookName   = flag.String("book", "", "Book the statement belongs to")
		account    = flag.String("account", "", "Full name of the statement account")
		startDate  = flag.String("start", "", "Period start date (YYYY-MM-DD)")
		endDate    = flag.String("end", "", "Period end date (YYYY-MM-DD)")
		startBal   = flag.String("start-balance", "", "Statement opening balance")
		endBal     = flag.String("end-balance", "", "Statement closing balance")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: reconcile [flags] <statement.csv>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	filename := flag.Arg(0)

	// Load configuration
	cfg := config.LoadOrEnvWithPath(*configFile)

	// Setup logging
	if *verbose {
		cfg.Observability.Logging.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "reconcile")

	if *bookName == "" || *account == "" {
		logger.Error("both -book and -account are required")
		os.Exit(1)
	}

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		logger.Error("bad -start date", slog.String("value", *startDate))
		os.Exit(1)
	}
	end, err := time.Parse("2006-01-02", *endDate)
	if err != nil {
		logger.Error("bad -end date", slog.String("value", *endDate))
		os.Exit(1)
	}
	opening, err := decimal.NewFromString(*startBal)
	if err != nil {
		logger.Error("bad -start-balance", slog.String("value", *startBal))
		os.Exit(1)
	}
	closing, err := decimal.NewFromString(*endBal)
	if err != nil {
		logger.Error("bad -end-balance", slog.String("value", *endBal))
		os.Exit(1)
	}

	// Initialize storage
	store, err := storage.Open(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Error("failed to open storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	book, err := store.BookByName(*bookName)
	if err != nil {
		logger.Error("failed to resolve book", slog.String("book", *bookName), slog.String("error", err.Error()))
		os.Exit(1)
	}

	lines, err := parseStatement(filename)
	if err != nil {
		logger.Error("failed to parse statement", slog.String("file", filename), slog.String("error", err.Error()))
		os.Exit(1)
	}

	svc := reconcile.New(store, cfg.Reconcile.DateWindowDays, logger)

	period, err := svc.RegisterStatement(book.ID, *account, start, end, opening, closing)
	if err != nil {
		logger.Error("failed to register statement period", slog.String("error", err.Error()))
		os.Exit(1)
	}

	result, err := svc.ReconcilePeriod(period.ID, lines)
	if err != nil {
		logger.Error("reconciliation failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if result.Status == ledger.StatementReconciled {
		logger.Info("period reconciled",
			slog.Int64("period_id", period.ID),
			slog.Int("splits", result.SplitCount))
		return
	}

	logger.Warn("period has a discrepancy",
		slog.Int64("period_id", period.ID),
		slog.String("class", result.Class.String()),
		slog.String("discrepancy", result.Discrepancy.String()),
		slog.String("computed_end", result.ComputedEnd.String()),
		slog.Int("unmatched_splits", len(result.UnmatchedSplits)),
		slog.Int("unmatched_lines", len(result.UnmatchedLines)))
	for _, s := range result.UnmatchedSplits {
		logger.Warn("ledger split without statement line",
			slog.Int64("split_id", s.ID),
			slog.String("date", s.Date.Format("2006-01-02")),
			slog.String("amount", s.Amount.String()),
			slog.String("description", s.Description))
	}
	for _, l := range result.UnmatchedLines {
		logger.Warn("statement line without ledger split",
			slog.String("date", l.Date.Format("2006-01-02")),
			slog.String("amount", l.Amount.String()),
			slog.String("description", l.Description))
	}
	os.Exit(1)
}

// parseStatement reads lines of the form date,description,amount.
// A header row is skipped when the first field is not a date.
func parseStatement(filename string) ([]ledger.StatementLine, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var lines []ledger.StatementLine
	for i, rec := range records {
		if len(rec) < 3 {
			return nil, fmt.Errorf("line %d: expected 3 fields, got %d", i+1, len(rec))
		}
		date, err := time.Parse("2006-01-02", strings.TrimSpace(rec[0]))
		if err != nil {
			if i == 0 {
				continue // header row
			}
			return nil, fmt.Errorf("line %d: bad date %q: %w", i+1, rec[0], err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
		if err != nil {
			return nil, fmt.Errorf("line %d: bad amount %q: %w", i+1, rec[2], err)
		}
		lines = append(lines, ledger.StatementLine{
			Date:        date,
			Description: strings.TrimSpace(rec[1]),
			Amount:      amount,
		})
	}
	return lines, nil
}
