package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/spf13/cobra"

	"github.com/lahirugmg/business-cost-tracker/internal/async"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/entity"
	"github.com/lahirugmg/business-cost-tracker/internal/export"
	"github.com/lahirugmg/business-cost-tracker/internal/hints"
	"github.com/lahirugmg/business-cost-tracker/internal/ingest"
	"github.com/lahirugmg/business-cost-tracker/internal/llm"
	"github.com/lahirugmg/business-cost-tracker/internal/llm/gemini"
	"github.com/lahirugmg/business-cost-tracker/internal/llm/openai"
	"github.com/lahirugmg/business-cost-tracker/internal/ocr"
	"github.com/lahirugmg/business-cost-tracker/internal/receipts"
	"github.com/lahirugmg/business-cost-tracker/internal/repository"
)

var (
	flagUserEmail string
	flagVerbose   bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "costctl",
		Short: "Operator CLI for the business cost tracker",
		Long: `costctl runs receipt extraction, batch ingestion and ledger exports
directly against the configured database, without going through the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagUserEmail, "user", "cli@localhost",
		"email of the account to act as (created on first use)")
	root.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "enable debug logging")
	root.AddCommand(newProcessCmd(), newBatchCmd(), newExportCmd(), newHealthCmd())
	return root
}

// newLogger logs to stderr so command output on stdout stays clean.
func newLogger() *slog.Logger {
	lvl := slog.LevelWarn
	if flagVerbose {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// stack is the wired pipeline a command runs against. Close releases resources
// in reverse wiring order.
type stack struct {
	cfg      *common.Config
	logger   *slog.Logger
	drv      *entsql.Driver
	users    repository.UserRepository
	expenses repository.ExpenseRepository
	receipts *receipts.Service
	exports  *export.Service
	cleanup  []func()
}

func (s *stack) close() {
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		s.cleanup[i]()
	}
}

// openStack connects the database and, when pipeline is set, the full
// extraction stack (hints, OCR, completion client, worker queue). Export-only
// commands skip the pipeline so they run without provider credentials.
func openStack(ctx context.Context, pipeline bool, logger *slog.Logger) (*stack, error) {
	cfg := common.LoadConfig()
	if pipeline {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	st := &stack{cfg: cfg, logger: logger}

	drv, closeDB, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	st.drv = drv
	st.cleanup = append(st.cleanup, closeDB)

	if err := repository.Migrate(ctx, drv, logger); err != nil {
		st.close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	st.users = repository.NewUserRepository(drv, logger)
	st.expenses = repository.NewExpenseRepository(drv, logger)
	st.exports = export.NewService(st.expenses, logger)
	if !pipeline {
		return st, nil
	}

	recRepo := repository.NewReceiptRepository(drv, logger)
	txRepo := repository.NewTransactionRepository(drv, logger)

	hintStore, closeHints, err := openHintStore(cfg.Hints)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("open hint store: %w", err)
	}
	st.cleanup = append(st.cleanup, closeHints)
	table := hints.NewTable(ctx, hintStore, logger)

	extractor := ocr.NewExtractor(ocr.Config{
		Tesseract:     cfg.OCR.TesseractPath,
		TesseractLang: cfg.OCR.TesseractLang,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
	}, logger)

	client, closeLLM, err := newCompletionClient(ctx, cfg.LLM, logger)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("build completion client: %w", err)
	}
	st.cleanup = append(st.cleanup, closeLLM)
	parser := llm.NewParser(client, table, logger)

	processor := receipts.NewProcessor(recRepo, txRepo, extractor, parser, table, logger)
	queue := async.NewProcessorQueue(processor.Process, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)
	st.cleanup = append(st.cleanup, func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := queue.Shutdown(shutCtx); err != nil {
			logger.Warn("queue shutdown incomplete", "error", err)
		}
	})

	uploadStore, err := ingest.NewStore(cfg.Uploads.Dir, logger)
	if err != nil {
		st.close()
		return nil, fmt.Errorf("prepare upload directory: %w", err)
	}
	st.receipts = receipts.NewService(recRepo, txRepo, st.expenses, uploadStore, processor, queue, logger)
	return st, nil
}

// resolveUser returns the account for the --user email, creating it on first use.
func (s *stack) resolveUser(ctx context.Context, email string) (*entity.User, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	return s.users.Create(ctx, email, "CLI", nil)
}

func openHintStore(cfg common.HintsConfig) (hints.Store, func(), error) {
	if cfg.Backend == "bolt" {
		bs, err := hints.NewBoltStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return bs, func() { _ = bs.Close() }, nil
	}
	return hints.NewFileStore(cfg.Path), func() {}, nil
}

func newCompletionClient(ctx context.Context, cfg common.LLMConfig, logger *slog.Logger) (llm.CompletionClient, func(), error) {
	if cfg.Provider == "gemini" {
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKey: cfg.GeminiKey,
			Model:  cfg.GeminiModel,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { _ = c.Close() }, nil
	}
	c := openai.NewClient(openai.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: float32(cfg.Temperature),
		Timeout:     cfg.Timeout,
	}, logger)
	return c, func() {}, nil
}
