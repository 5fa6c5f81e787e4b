package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/gyaneshwarpardhi/posthogfwd"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/api"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/config"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/logging"
)

func main() {
	addr := pflag.String("addr", "", "HTTP listen address (overrides server.addr)")
	cfgPath := pflag.String("config", "", "Path to YAML config (optional)")
	envFile := pflag.String("env-file", ".env", "Path to .env file (optional)")
	distinctID := pflag.String("distinct-id", "", "Distinct id events are attributed to (overrides "+config.EnvDistinctID+")")
	pflag.Parse()

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath, *envFile)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *distinctID != "" {
		cfg.DistinctID = *distinctID
	}
	if cfg.DistinctID == "" {
		host, _ := os.Hostname()
		cfg.DistinctID = host
	}

	logger, err := logging.Setup(os.Stdout, cfg.Log.Level)
	if err != nil {
		slog.Error("invalid log level", "err", err)
		os.Exit(1)
	}

	// ── Forwarder ─────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fwd := posthogfwd.NewForwarder(cfg, posthogfwd.WithLogger(logger))
	fwd.Start(ctx, cfg.DistinctID)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := logging.SetLevel(newCfg.Log.Level); err != nil {
			slog.Warn("hot-reload skipped: log level invalid", "err", err)
			return
		}
		slog.Info("log level reloaded", "level", newCfg.Log.Level)
	})
	if *cfgPath != "" {
		stopWatch, err := loader.Watch()
		if err != nil {
			slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
		} else {
			defer stopWatch()
		}
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.New(fwd, loader),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop the dispatch loop; it flushes what is left
	fwd.Wait()
	slog.Info("goodbye")
}
