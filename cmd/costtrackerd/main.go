package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/lahirugmg/business-cost-tracker/internal/async"
	"github.com/lahirugmg/business-cost-tracker/internal/common"
	"github.com/lahirugmg/business-cost-tracker/internal/export"
	"github.com/lahirugmg/business-cost-tracker/internal/feedback"
	"github.com/lahirugmg/business-cost-tracker/internal/hints"
	"github.com/lahirugmg/business-cost-tracker/internal/ingest"
	"github.com/lahirugmg/business-cost-tracker/internal/llm"
	"github.com/lahirugmg/business-cost-tracker/internal/llm/gemini"
	"github.com/lahirugmg/business-cost-tracker/internal/llm/openai"
	"github.com/lahirugmg/business-cost-tracker/internal/ocr"
	"github.com/lahirugmg/business-cost-tracker/internal/receipts"
	"github.com/lahirugmg/business-cost-tracker/internal/repository"
	"github.com/lahirugmg/business-cost-tracker/internal/server"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(),
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer closeDB()

	if err := repository.Migrate(ctx, drv, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	if err := repository.HealthCheck(ctx, drv, 5*time.Second, logger); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	userRepo := repository.NewUserRepository(drv, logger)
	recRepo := repository.NewReceiptRepository(drv, logger)
	txRepo := repository.NewTransactionRepository(drv, logger)
	expRepo := repository.NewExpenseRepository(drv, logger)
	incRepo := repository.NewIncomeRepository(drv, logger)

	hintStore, closeHints, err := openHintStore(cfg.Hints)
	if err != nil {
		logger.Error("failed to open hint store", "path", cfg.Hints.Path, "error", err)
		os.Exit(1)
	}
	defer closeHints()
	table := hints.NewTable(ctx, hintStore, logger)

	extractor := ocr.NewExtractor(ocr.Config{
		Tesseract:     cfg.OCR.TesseractPath,
		TesseractLang: cfg.OCR.TesseractLang,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
	}, logger)

	client, closeLLM, err := newCompletionClient(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Error("failed to build completion client", "provider", cfg.LLM.Provider, "error", err)
		os.Exit(1)
	}
	defer closeLLM()
	parser := llm.NewParser(client, table, logger)

	processor := receipts.NewProcessor(recRepo, txRepo, extractor, parser, table, logger)
	queue := async.NewProcessorQueue(processor.Process, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)

	uploadStore, err := ingest.NewStore(cfg.Uploads.Dir, logger)
	if err != nil {
		logger.Error("failed to prepare upload directory", "dir", cfg.Uploads.Dir, "error", err)
		os.Exit(1)
	}

	recSvc := receipts.NewService(recRepo, txRepo, expRepo, uploadStore, processor, queue, logger)
	fbSvc := feedback.NewService(txRepo, recRepo, table, logger)
	exSvc := export.NewService(expRepo, logger)

	healthFn := func(ctx context.Context) error {
		return repository.HealthCheck(ctx, drv, 2*time.Second, logger)
	}
	handler := server.NewHandler(recSvc, fbSvc, exSvc, expRepo, incRepo, healthFn, cfg.Uploads.MaxBytes, logger)
	engine := server.NewEngine(handler, logger)

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if len(cfg.Uploads.WatchDirs) > 0 {
		owner, err := watchOwner(ctx, userRepo)
		if err != nil {
			logger.Error("failed to resolve watch-folder owner", "error", err)
			os.Exit(1)
		}
		go runWatcher(ctx, cfg.Uploads.WatchDirs, owner, recSvc, logger)
	}

	go func() {
		logger.Info("costtrackerd listening", "addr", cfg.Server.HTTPAddr, "db_driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := queue.Shutdown(shutCtx); err != nil {
		logger.Warn("queue shutdown incomplete", "error", err)
	}
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
}

func logLevel() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// openHintStore picks the hint persistence backend. The bolt store holds an
// open file handle, so its closer matters; the file store has none.
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

// watchOwner resolves the account that owns receipts dropped into watched
// folders, creating it on first run.
func watchOwner(ctx context.Context, users repository.UserRepository) (uuid.UUID, error) {
	email := os.Getenv("WATCH_OWNER_EMAIL")
	if email == "" {
		email = "watch@localhost"
	}
	u, err := users.GetByEmail(ctx, email)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return uuid.Nil, err
	}
	u, err = users.Create(ctx, email, "Watch Folder", nil)
	if err != nil {
		return uuid.Nil, err
	}
	return u.ID, nil
}

func runWatcher(ctx context.Context, dirs []string, owner uuid.UUID, svc *receipts.Service, logger *slog.Logger) {
	paths, errs, err := ingest.Watch(ctx, ingest.WatchConfig{
		Roots:       dirs,
		InitialScan: true,
		Debounce:    2 * time.Second,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to start folder watcher", "dirs", dirs, "error", err)
		return
	}
	logger.Info("watching folders for receipts", "dirs", dirs, "owner", owner)
	for {
		select {
		case <-ctx.Done():
			return
		case werr, ok := <-errs:
			if !ok {
				return
			}
			logger.Warn("watch error", "error", werr)
		case p, ok := <-paths:
			if !ok {
				return
			}
			data, err := os.ReadFile(p)
			if err != nil {
				logger.Warn("failed to read watched file", "path", p, "error", err)
				continue
			}
			res, err := svc.Submit(ctx, receipts.SubmitRequest{
				UserID:   owner,
				Filename: filepath.Base(p),
				Data:     data,
				Async:    true,
			})
			if err != nil {
				logger.Warn("failed to submit watched file", "path", p, "error", err)
				continue
			}
			logger.Info("watched file submitted",
				"path", p, "receipt_id", res.Receipt.ID, "deduplicated", res.Deduplicated)
		}
	}
}
