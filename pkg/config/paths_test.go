// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDataDir(t *testing.T) {
	t.Run("default to ~/.conductor", func(t *testing.T) {
		// Empty counts as unset.
		t.Setenv("CONDUCTOR_DATA_DIR", "")

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(homeDir, ".conductor"), GetDataDir())
	})

	t.Run("use CONDUCTOR_DATA_DIR when set", func(t *testing.T) {
		t.Setenv("CONDUCTOR_DATA_DIR", "/custom/conductor/data")

		assert.Equal(t, "/custom/conductor/data", GetDataDir())
	})

	t.Run("expand ~ in CONDUCTOR_DATA_DIR", func(t *testing.T) {
		t.Setenv("CONDUCTOR_DATA_DIR", "~/custom/.conductor")

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(homeDir, "custom", ".conductor"), GetDataDir())
	})

	t.Run("bare ~ expands to home", func(t *testing.T) {
		t.Setenv("CONDUCTOR_DATA_DIR", "~")

		homeDir, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, homeDir, GetDataDir())
	})

	t.Run("make relative path absolute", func(t *testing.T) {
		t.Setenv("CONDUCTOR_DATA_DIR", "relative/conductor")

		dataDir := GetDataDir()
		assert.True(t, filepath.IsAbs(dataDir))
		assert.True(t, strings.HasSuffix(dataDir, filepath.Join("relative", "conductor")))
	})
}

func TestToolServiceDefaultsFromEnv(t *testing.T) {
	// BACKEND_TOOL_SERVICE_HOST/PORT are honored verbatim, without the
	// CONDUCTOR_ prefix, for compatibility with existing deployments.
	t.Setenv("BACKEND_TOOL_SERVICE_HOST", "tools.internal")
	t.Setenv("BACKEND_TOOL_SERVICE_PORT", "9443")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "tools.internal", cfg.ToolService.Host)
	assert.Equal(t, 9443, cfg.ToolService.Port)
	assert.Equal(t, "tools.internal:9443", cfg.ToolService.Address())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 2024, cfg.Server.Port)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sqlite", cfg.Checkpoint.Backend)
	assert.True(t, cfg.Checkpoint.Retention.Enabled)
	assert.Equal(t, "0 3 * * *", cfg.Checkpoint.Retention.Schedule)
	assert.Equal(t, "chat", cfg.Agents.DefaultAgent)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Server:      ServerConfig{Port: 2024},
			LLM:         LLMConfig{Provider: "anthropic", AnthropicAPIKey: "sk-test"},
			Checkpoint:  CheckpointConfig{Backend: "sqlite", Path: "/tmp/cp.db"},
			ToolService: ToolServiceConfig{Host: "backend", Port: 50052},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("anthropic requires api key", func(t *testing.T) {
		cfg := base()
		cfg.LLM.AnthropicAPIKey = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "anthropic_api_key")
	})

	t.Run("bedrock works without explicit keys", func(t *testing.T) {
		cfg := base()
		cfg.LLM.Provider = "bedrock"
		cfg.LLM.AnthropicAPIKey = ""
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown provider rejected", func(t *testing.T) {
		cfg := base()
		cfg.LLM.Provider = "petals"
		assert.Error(t, cfg.Validate())
	})

	t.Run("postgres backend requires dsn", func(t *testing.T) {
		cfg := base()
		cfg.Checkpoint.Backend = "postgres"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "postgres_dsn")

		cfg.Checkpoint.PostgresDSN = "postgres://conductor@localhost/conductor"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("port range checked", func(t *testing.T) {
		cfg := base()
		cfg.Server.Port = 0
		assert.Error(t, cfg.Validate())
	})
}
