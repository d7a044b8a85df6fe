package main

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"currency-ledger/internal/config"
	"currency-ledger/internal/errors"
	"currency-ledger/internal/server"
)

func main() {
	// Initialize logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file loaded, using process environment")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(exitCode(err))
	}

	slog.Info("Configuration resolved",
		"environment", cfg.Environment,
		"database", cfg.DatabaseName,
		"store", cfg.RedactedURI(),
		"default_balance", cfg.DefaultBalance)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverInstance, port, err := server.StartServer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to start server", "error", err)
		os.Exit(exitCode(err))
	}

	slog.Info("Server started successfully", "port", port)

	<-ctx.Done()

	// Create context with timeout for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := serverInstance.Stop(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped")
}

// exitCode separates configuration mistakes from runtime failures such as an
// unreachable store.
func exitCode(err error) int {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && appErr.Fatal() {
		return 2
	}
	return 1
}
