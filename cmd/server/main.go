package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iconidentify/tubefetch/internal/api"
	"github.com/iconidentify/tubefetch/internal/api/handler"
	"github.com/iconidentify/tubefetch/internal/bot"
	"github.com/iconidentify/tubefetch/internal/config"
	"github.com/iconidentify/tubefetch/internal/delivery"
	"github.com/iconidentify/tubefetch/internal/repository"
	"github.com/iconidentify/tubefetch/internal/resolver"
	"github.com/iconidentify/tubefetch/internal/service"
	"github.com/iconidentify/tubefetch/internal/upload"
	"github.com/iconidentify/tubefetch/internal/worker"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// staleWorkAge is how old a leftover work directory must be before startup
// removes it.
const staleWorkAge = time.Hour

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("tubefetch %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting tubefetch",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Ensure the work directory exists and drop leftovers from a crash
	if err := os.MkdirAll(cfg.Storage.WorkPath, 0755); err != nil {
		logger.Error("failed to create work directory", "error", err)
		os.Exit(1)
	}
	if n, err := delivery.PurgeStale(cfg.Storage.WorkPath, staleWorkAge); err != nil {
		logger.Warn("failed to purge stale work directories", "error", err)
	} else if n > 0 {
		logger.Info("purged stale work directories", "count", n)
	}

	// Initialize dependencies
	res, err := resolver.NewYTDLPResolver(cfg.Resolver, logger)
	if err != nil {
		logger.Error("failed to initialize resolver", "error", err)
		os.Exit(1)
	}

	chain, err := upload.NewChainFromConfig(cfg.Upload, logger)
	if err != nil {
		logger.Error("failed to initialize upload chain", "error", err)
		os.Exit(1)
	}

	history, err := openHistory(cfg.Storage)
	if err != nil {
		logger.Error("failed to open history", "error", err)
		os.Exit(1)
	}

	jobRepo := repository.NewInMemoryJobRepository()
	pipeline := delivery.NewPipeline(cfg.Limits.ChatAttachLimit.Bytes(), chain, logger)

	// Initialize services
	fetchSvc := service.NewFetchService(
		res,
		chain,
		pipeline,
		history,
		cfg.Storage.WorkPath,
		logger,
	)

	// Initialize worker pool
	pool := worker.NewPool(
		worker.Config{
			Workers:        cfg.Worker.Count,
			QueueSize:      cfg.Worker.QueueSize,
			PollInterval:   cfg.Worker.PollInterval,
			RequestTimeout: cfg.Worker.RequestTimeout,
		},
		jobRepo,
		fetchSvc,
		logger,
	)
	pool.Start()

	// Connect the chat bot
	discord, err := bot.New(cfg.Discord.Token, bot.BotContext{
		Logger:         logger.With("component", "bot"),
		Queue:          pool,
		Formats:        fetchSvc,
		GuildID:        cfg.Discord.GuildID,
		FormatsTimeout: cfg.Resolver.ResolveTimeout,
	})
	if err != nil {
		logger.Error("failed to create bot", "error", err)
		os.Exit(1)
	}
	if err := discord.Open(); err != nil {
		logger.Error("failed to connect bot", "error", err)
		os.Exit(1)
	}

	// Setup ops HTTP server
	healthHandler := handler.NewHealthHandler(jobRepo, cfg.Storage.WorkPath)
	historyHandler := handler.NewHistoryHandler(history, logger)
	router := api.NewRouter(healthHandler, historyHandler, cfg.Server.APIKey)

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("tubefetch ready",
		"chat_attach_limit", cfg.Limits.ChatAttachLimit,
		"max_upload_ceiling", config.ByteSize(chain.MaxCeiling()),
		"workers", cfg.Worker.Count,
	)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Stop taking commands first
	if err := discord.Close(); err != nil {
		logger.Error("bot shutdown error", "error", err)
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Running fetches are cancelled; their work directories are removed on the way out
	if err := pool.Stop(25 * time.Second); err != nil {
		logger.Error("worker pool shutdown error", "error", err)
	}

	if err := history.Close(); err != nil {
		logger.Error("history close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// openHistory uses SQLite when a database path is configured and an
// in-memory ring otherwise.
func openHistory(cfg config.StorageConfig) (repository.HistoryRepository, error) {
	if cfg.HistoryDBPath == "" {
		return repository.NewInMemoryHistoryRepository(0), nil
	}
	return repository.NewSQLiteHistoryRepository(cfg.HistoryDBPath)
}
