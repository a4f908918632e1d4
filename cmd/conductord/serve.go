// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/checkpoint"
	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/llm/factory"
	"github.com/teradata-labs/conductor/pkg/observability"
	"github.com/teradata-labs/conductor/pkg/orchestrator"
	"github.com/teradata-labs/conductor/pkg/server"
	"github.com/teradata-labs/conductor/pkg/toolservice"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Conductor chat server",
	Long: heredoc.Doc(`
		Start the Conductor server.

		The server opens the checkpoint store, connects the backend tool
		service, builds the configured LLM provider, and serves chat turns
		over SSE on /v1/chat:stream.

		Press Ctrl+C to shut down gracefully.
	`),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting conductor",
		zap.String("version", rootCmd.Version),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.String("checkpoint_backend", cfg.Checkpoint.Backend))
	if used := viper.ConfigFileUsed(); used != "" {
		logger.Info("config file loaded", zap.String("path", used))
	} else {
		logger.Info("no config file found, using defaults and environment")
	}

	tracer := observability.Tracer(observability.NewNoOpTracer())
	if cfg.Observability.Enabled {
		tracer = observability.NewZapTracer(logger)
	}

	saver, err := checkpoint.NewSaver(cfg.Checkpoint, logger)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer func() { _ = saver.Close() }()

	if cfg.Checkpoint.Retention.Enabled {
		sweeper, err := checkpoint.NewSweeper(saver, cfg.Checkpoint.Retention, logger)
		if err != nil {
			logger.Warn("checkpoint retention sweeper disabled", zap.Error(err))
		} else {
			sweeper.Start()
			defer sweeper.Stop()
		}
	}

	tools, err := toolservice.NewClient(cfg.ToolService, logger)
	if err != nil {
		return fmt.Errorf("connect backend tool service: %w", err)
	}
	defer func() { _ = tools.Close() }()

	provider, err := factory.NewProvider(cfg.LLM, tracer, logger)
	if err != nil {
		return fmt.Errorf("build llm provider: %w", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		Agents:   cfg.Agents,
		Provider: provider,
		Saver:    saver,
		Tools:    tools,
		Tracer:   tracer,
		Logger:   logger,
	})
	defer func() { _ = orch.Close() }()

	srv := server.New(cfg.Server, orch, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	return nil
}

// buildLogger constructs the process logger from the logging config.
// Stack traces attach at error level only.
func buildLogger(lc config.LoggingConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()

	level := zap.InfoLevel
	if lc.Level != "" {
		if err := level.UnmarshalText([]byte(lc.Level)); err != nil {
			fmt.Fprintf(os.Stderr, "Invalid log level %q, using info\n", lc.Level)
			level = zap.InfoLevel
		}
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	if lc.Format == "text" {
		zapConfig.Encoding = "console"
	}
	if lc.File != "" {
		zapConfig.OutputPaths = []string{lc.File}
		zapConfig.ErrorOutputPaths = []string{lc.File}
	}

	return zapConfig.Build(zap.AddStacktrace(zap.ErrorLevel))
}
