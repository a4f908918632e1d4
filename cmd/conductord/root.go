// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/teradata-labs/conductor/internal/version"
	"github.com/teradata-labs/conductor/pkg/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "conductord",
	Short: "Conductor - multi-agent chat orchestrator",
	Long: heredoc.Doc(`
		Conductor routes chat turns across specialized LLM agents: research,
		editing, org inbox, weather, data formatting, and general chat. Turns
		stream back over SSE and every agent checkpoints its progress so a
		conversation can pause for approval and resume later.
	`),
	Version:       version.Get(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $CONDUCTOR_DATA_DIR/conductord.yaml)")

	rootCmd.PersistentFlags().String("host", "0.0.0.0", "HTTP server host")
	rootCmd.PersistentFlags().Int("port", 2024, "HTTP server port")

	rootCmd.PersistentFlags().String("llm-provider", "anthropic", "LLM provider (anthropic, bedrock, bedrock-sdk)")
	rootCmd.PersistentFlags().String("anthropic-model", "claude-sonnet-4-5-20250929", "Anthropic model")
	rootCmd.PersistentFlags().Float64("temperature", 1.0, "LLM temperature")
	rootCmd.PersistentFlags().Int("max-tokens", 4096, "maximum tokens per LLM response")

	rootCmd.PersistentFlags().String("checkpoint-backend", "sqlite", "checkpoint store (memory, sqlite, postgres)")

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")

	_ = viper.BindPFlag("server.host", rootCmd.PersistentFlags().Lookup("host"))
	_ = viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))

	_ = viper.BindPFlag("llm.provider", rootCmd.PersistentFlags().Lookup("llm-provider"))
	_ = viper.BindPFlag("llm.anthropic_model", rootCmd.PersistentFlags().Lookup("anthropic-model"))
	_ = viper.BindPFlag("llm.temperature", rootCmd.PersistentFlags().Lookup("temperature"))
	_ = viper.BindPFlag("llm.max_tokens", rootCmd.PersistentFlags().Lookup("max-tokens"))

	_ = viper.BindPFlag("checkpoint.backend", rootCmd.PersistentFlags().Lookup("checkpoint-backend"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// initConfig reads the config file and environment before any command runs.
func initConfig() {
	var err error
	cfg, err = config.LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}
