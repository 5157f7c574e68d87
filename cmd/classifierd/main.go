package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/avelichko/defect-classifier/internal/async"
	"github.com/avelichko/defect-classifier/internal/catindex"
	"github.com/avelichko/defect-classifier/internal/classify"
	"github.com/avelichko/defect-classifier/internal/common"
	"github.com/avelichko/defect-classifier/internal/job"
	"github.com/avelichko/defect-classifier/internal/llm"
	"github.com/avelichko/defect-classifier/internal/repository"
	"github.com/avelichko/defect-classifier/internal/server"
	"github.com/avelichko/defect-classifier/internal/split"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	for _, dir := range []string{cfg.Paths.UploadsDir, cfg.Paths.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := repository.OpenJobStore(cfg.Paths.JobsDB)
	if err != nil {
		logger.Error("failed to open job store", "path", cfg.Paths.JobsDB, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	index, err := catindex.New(&catindex.XLSXSource{Path: cfg.Paths.CategoriesFile}, logger)
	if err != nil {
		logger.Error("failed to load category reference", "path", cfg.Paths.CategoriesFile, "error", err)
		os.Exit(1)
	}

	client, err := llm.NewChatClient(llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)
	if err != nil {
		logger.Error("failed to build model client", "error", err)
		os.Exit(1)
	}

	splitter := split.NewService(client, split.Config{
		BatchSize:   cfg.Processing.SplitBatchSize,
		Concurrency: cfg.Processing.Concurrency,
		MaxRetries:  cfg.Processing.MaxRetries,
		BaseBackoff: cfg.Processing.RetryBaseBackoff,
	}, logger)

	classifier := classify.NewService(client, index, classify.Config{
		BatchSize:   cfg.Processing.ClassifyBatchSize,
		Concurrency: cfg.Processing.Concurrency,
		MaxRetries:  cfg.Processing.MaxRetries,
		BaseBackoff: cfg.Processing.RetryBaseBackoff,
		TopN:        cfg.Processing.CategoryTopN,
	}, logger)

	orchestrator := job.NewOrchestrator(store, index, splitter, classifier, job.Config{
		ResultsDir:    cfg.Paths.ResultsDir,
		CommentColumn: cfg.Processing.CommentColumn,
	}, logger)

	queue := async.NewJobQueue(orchestrator, logger,
		async.WithWorkers(cfg.Server.Workers),
		async.WithQueueSize(cfg.Server.QueueSize),
	)

	api := server.New(store, queue, server.Config{
		UploadsDir:    cfg.Paths.UploadsDir,
		MaxUploadSize: cfg.Server.MaxUploadSize,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("classifierd listening", "addr", cfg.Server.Addr)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown interrupted", "error", err)
	}
	queue.Shutdown(shutdownCtx)
}
