package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	service, err := core.NewServiceFromConfig(ctx, cfg)
	if err != nil {
		slog.Error("failed to open stores", "error", err)
		os.Exit(1)
	}
	slog.Info("stores ready",
		"backends", service.Configured(),
		"formats", service.SupportedExtensions(),
	)

	server := web.NewServer(service, cfg)

	// Cancelled on shutdown to stop the preview reaper and limiter cleanup.
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go service.StartReaper(jobCtx, core.ReaperConfig{
		TTL:      cfg.Preview.SessionTTL,
		Interval: cfg.Preview.ReapInterval,
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Requests are drained; wait for any import still holding a slot.
		limiter := service.Limiter()
		if n := limiter.ActiveCount(); n > 0 {
			slog.Info("waiting for imports to complete", "active", n)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				slog.Warn("imports did not complete in time", "error", err)
			}
		}

		if n := service.ReapExpired(shutdownCtx, time.Now()); n > 0 {
			slog.Info("discarded staged previews", "count", n)
		}
		if err := service.Close(shutdownCtx); err != nil {
			slog.Error("close stores", "error", err)
		}
	}()

	if err := server.Start(jobCtx); err != nil {
		slog.Error("server stopped", "error", err)
		cancelJobs()
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
