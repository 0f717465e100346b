package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Lllllllleong/casedocflow/internal/app"
	"github.com/Lllllllleong/casedocflow/internal/config"
	"github.com/Lllllllleong/casedocflow/internal/logging"
)

func main() {
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found. Using environment variables.")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration.", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("Configuration loaded.", "config", cfg.String())

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize application.", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("Shutting down.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := application.Server.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown failed.", "error", err)
		}
		if err := application.Generator.Wait(shutdownCtx); err != nil {
			slog.Warn("Jobs did not finish before shutdown.", "error", err)
		}
		if err := application.Close(shutdownCtx); err != nil {
			slog.Error("Failed to release resources.", "error", err)
		}
	}()

	if err := application.Server.Start(cfg.Addr()); err != nil {
		slog.Error("HTTP server stopped.", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("Shutdown complete.")
}
