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

	configloader "github.com/foxseedlab/dictado/external/config"
	dispatchimpl "github.com/foxseedlab/dictado/external/dispatch"
	"github.com/foxseedlab/dictado/external/httpapi"
	polisherimpl "github.com/foxseedlab/dictado/external/polisher"
	repositoryimpl "github.com/foxseedlab/dictado/external/repository"
	storageimpl "github.com/foxseedlab/dictado/external/storage"
	transcriberimpl "github.com/foxseedlab/dictado/external/transcriber"
	webhookimpl "github.com/foxseedlab/dictado/external/webhook"
	"github.com/foxseedlab/dictado/internal/config"
	"github.com/foxseedlab/dictado/internal/dictation"
	"github.com/samber/do/v2"
)

const shutdownTimeout = 20 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "transcribe_backend", cfg.TranscribeBackend)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	runServer(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	repositoryimpl.RegisterDI(injector)
	storageimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	polisherimpl.RegisterDI(injector)
	dispatchimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	dictation.RegisterDI(injector)
	httpapi.RegisterDI(injector)

	return injector
}

func runServer(cfg *config.Config, injector do.Injector) {
	api, err := do.Invoke[*httpapi.Server](injector)
	if err != nil {
		slog.Error("failed to resolve http api", "error", err)
		os.Exit(1)
	}
	pool, err := do.Invoke[*dispatchimpl.WorkerPool](injector)
	if err != nil {
		slog.Error("failed to resolve worker pool", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		slog.Info("startup: serving http", "listen_addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutdown: signal received", "signal", sig.String())
	case <-done:
		slog.Info("shutdown: http server stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}

	// Drain queued transcription and finalization work before exit.
	slog.Info("shutdown: draining worker pool")
	pool.Close()
	slog.Info("shutdown: complete")
}
