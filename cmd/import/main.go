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

	"github.com/splitbook/splitbook/internal/application/importer"
	"github.com/splitbook/splitbook/internal/domain/rules"
	"github.com/splitbook/splitbook/internal/infrastructure/config"
	"github.com/splitbook/splitbook/internal/infrastructure/logging"
	"github.com/splitbook/splitbook/internal/infrastructure/storage"
)

func main() {
	// Parse flags
	var (
		configFile = flag.String("config", "", "Configuration file path")
		bookName   = flag.String("book", "", "Book to import into")
		account    = flag.String("account", "", "Full name of the account the file belongs to")
		source     = flag.String("source", "csv", "Source type recorded on the batch")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: import [flags] <file.csv>")
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
	logger := logging.NewLoggerWithSystem(cfg.Observability.Logging, "import")

	if *bookName == "" || *account == "" {
		logger.Error("both -book and -account are required")
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

	// Load matching rules
	registry, err := rules.LoadFile(cfg.Matching.RulesPath)
	if err != nil {
		logger.Error("failed to load matching rules", slog.String("path", cfg.Matching.RulesPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := registry.ResolveAccounts(func(fullName string) bool {
		_, lookupErr := store.AccountByFullName(book.ID, fullName)
		return lookupErr == nil
	}); err != nil {
		logger.Error("matching rules reference unknown accounts", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Load category rules; a missing file just disables categorization
	categories, err := rules.LoadCategoriesFile(cfg.Matching.CategoryRulesPath)
	if err != nil {
		logger.Error("failed to load category rules", slog.String("path", cfg.Matching.CategoryRulesPath), slog.String("error", err.Error()))
		os.Exit(1)
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		logger.Error("failed to read input file", slog.String("file", filename), slog.String("error", err.Error()))
		os.Exit(1)
	}

	lines, err := parseCSV(content)
	if err != nil {
		logger.Error("failed to parse input file", slog.String("file", filename), slog.String("error", err.Error()))
		os.Exit(1)
	}

	imp := importer.New(store, registry, categories, cfg.Matching.UnassignedAccount, logger)

	report, err := imp.Import(book, importer.Batch{
		AccountFullName: *account,
		Filename:        filename,
		SourceType:      *source,
		Content:         content,
		Lines:           lines,
	})
	if err != nil {
		logger.Error("import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	for _, w := range report.Warnings {
		logger.Warn("ambiguous match", slog.String("description", w.Description),
			slog.Int64("chosen", w.ChosenID), slog.Any("candidates", w.CandidateIDs))
	}

	switch report.Outcome {
	case importer.OutcomeDuplicate:
		logger.Info("file already imported, nothing to do",
			slog.String("batch_uid", report.BatchUID))
	case importer.OutcomeHashMismatch:
		logger.Error("a different file was previously imported for this scope",
			slog.String("batch_uid", report.BatchUID))
		os.Exit(1)
	default:
		logger.Info("import complete",
			slog.String("batch_uid", report.BatchUID),
			slog.Int("imported", report.Imported),
			slog.Int("matched", report.Matched),
			slog.Int("rejected", report.Rejected))
	}
}

// parseCSV reads lines of the form date,description,amount[,contra account].
// A header row is skipped when the first field is not a date.
func parseCSV(content []byte) ([]importer.Line, error) {
	reader := csv.NewReader(strings.NewReader(string(content)))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	var lines []importer.Line
	for i, rec := range records {
		if len(rec) < 3 {
			return nil, fmt.Errorf("line %d: expected at least 3 fields, got %d", i+1, len(rec))
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
		line := importer.Line{
			Date:        date,
			Description: strings.TrimSpace(rec[1]),
			Amount:      amount,
		}
		if len(rec) > 3 {
			line.ContraAccount = strings.TrimSpace(rec[3])
		}
		lines = append(lines, line)
	}
	return lines, nil
}
