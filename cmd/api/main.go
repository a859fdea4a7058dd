package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"docflow/internal/app"
	"docflow/internal/auditlog"
	"docflow/internal/authpw"
	"docflow/internal/config"
	"docflow/internal/docid"
	"docflow/internal/lockmgr"
	"docflow/internal/store"
)

func main() {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("create data dir failed")
	}

	locks, err := lockmgr.New(filepath.Join(cfg.DataDir, ".locks"), cfg.LockWait)
	if err != nil {
		logger.Fatal().Err(err).Msg("lock manager init failed")
	}

	fileStore := store.NewFileStore(cfg.DataDir)
	generator := docid.New(fileStore, locks)
	masterLog := auditlog.New(cfg.DataDir, locks)
	credentials := authpw.NewService(fileStore, locks)

	service := app.New(fileStore, locks, generator, masterLog, credentials)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("data_dir", cfg.DataDir).Msg("docflow API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
