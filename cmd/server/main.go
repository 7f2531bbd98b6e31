// Segmentfold - Audience Query & Segmentation Engine
// Copyright 2026 Segmentfold Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/segmentfold/segmentfold

// Command server runs the Segmentfold HTTP server: audience queries over
// external CSV/parquet sources, plus durable segment management.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentfold/segmentfold/internal/api"
	"github.com/segmentfold/segmentfold/internal/catalog"
	"github.com/segmentfold/segmentfold/internal/config"
	"github.com/segmentfold/segmentfold/internal/engine"
	"github.com/segmentfold/segmentfold/internal/logging"
	"github.com/segmentfold/segmentfold/internal/segments"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Int("port", cfg.Server.Port).
		Msg("Starting Segmentfold")

	db, err := engine.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("open analytical engine: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close analytical engine")
		}
	}()

	store, err := segments.OpenStore(cfg.Segments.StorePath)
	if err != nil {
		return fmt.Errorf("open segment store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Failed to close segment store")
		}
	}()

	cat := catalog.Default()
	fetcher := engine.NewFetcher(cfg.Sources)
	loader := engine.NewLoader(db, cat, fetcher)
	executor := engine.NewExecutor(db, cat)
	segmentSvc := segments.NewService(store, loader, executor)

	handlers := api.NewHandlers(cfg, db, cat, loader, executor, segmentSvc)
	router := api.NewRouter(handlers, cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logging.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	logging.Info().Msg("Shutdown complete")
	return nil
}
