// Copyright 2026 The wflDB Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/wfldb-foundation/wfldb/lib/config"
	"github.com/wfldb-foundation/wfldb/lib/engine"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath string
		listen     string
	)
	pflag.StringVar(&configPath, "config", "", "path to the YAML configuration file")
	pflag.StringVar(&listen, "listen", "", "listen address override, e.g. :8080")
	pflag.Parse()

	logger := newLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Listen = listen
	}

	eng, err := engine.Open(engine.Options{
		DataDir:         cfg.DataDir,
		InlineThreshold: cfg.Engine.InlineThresholdBytes,
		ChunkSize:       cfg.Engine.ChunkSizeBytes,
		BatchMaxOps:     cfg.Engine.BatchMaxOps,
		BatchMaxBytes:   cfg.Engine.BatchMaxBytes,
		MaxObjectBytes:  cfg.Engine.MaxObjectBytes,
		GCGrace:         cfg.Engine.GCGrace,
		GCInterval:      cfg.Engine.GCInterval,
		MultipartTTL:    cfg.Engine.MultipartTTL,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newHandler(eng, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen, "data_dir", cfg.DataDir)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newLogger builds the process-wide JSON logger and installs it as
// the slog default.
func newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}
