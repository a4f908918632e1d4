// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/teradata-labs/conductor/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Conductor configuration",
	Long:  `Manage configuration files and secrets for Conductor.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate example configuration file",
	Long:  `Generate an example conductord.yaml configuration file in the data directory.`,
	Run:   runConfigInit,
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [key-name]",
	Short: "Save a secret to the system keyring",
	Long: `Save a secret to the system keyring securely.

The key will be stored in your system's secure credential storage
(Keychain on macOS, Credential Manager on Windows, Secret Service on Linux).

Run 'conductord config list-keys' to see available key names.`,
	Args: cobra.ExactArgs(1),
	Run:  runConfigSetKey,
}

var configGetKeyCmd = &cobra.Command{
	Use:   "get-key [key-name]",
	Short: "Retrieve a secret from the system keyring",
	Long:  `Retrieve a secret from the system keyring (for verification).`,
	Args:  cobra.ExactArgs(1),
	Run:   runConfigGetKey,
}

var configDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key [key-name]",
	Short: "Delete a secret from the system keyring",
	Long:  `Remove a secret from the system keyring.`,
	Args:  cobra.ExactArgs(1),
	Run:   runConfigDeleteKey,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration (merged from all sources).`,
	Run:   runConfigShow,
}

var configListKeysCmd = &cobra.Command{
	Use:   "list-keys",
	Short: "List available secret keys",
	Long:  `List all available secret keys that can be stored in the keyring.`,
	Run:   runConfigListKeys,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Set a non-sensitive configuration value in conductord.yaml.

For sensitive values (API keys, DSNs), use 'conductord config set-key' instead.

Examples:
  conductord config set llm.provider bedrock
  conductord config set llm.bedrock_region us-west-2
  conductord config set checkpoint.backend postgres
  conductord config set agents.research.hitl_web_search true
  conductord config set server.port 2024
  conductord config set logging.level debug`,
	Args: cobra.ExactArgs(2),
	Run:  runConfigSet,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a configuration value",
	Long: `Get a configuration value from conductord.yaml.

Examples:
  conductord config get llm.provider
  conductord config get checkpoint.backend
  conductord config get server.port`,
	Args: cobra.ExactArgs(1),
	Run:  runConfigGet,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetKeyCmd)
	configCmd.AddCommand(configGetKeyCmd)
	configCmd.AddCommand(configDeleteKeyCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configListKeysCmd)
}

func configFilePath() string {
	return filepath.Join(config.GetDataDir(), config.DefaultConfigFileName+".yaml")
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configDir := config.GetDataDir()
	configPath := configFilePath()

	if err := os.MkdirAll(configDir, 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating config directory: %v\n", err)
		os.Exit(1)
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file already exists: %s\n", configPath)
		fmt.Print("Overwrite? (y/N): ")
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	fmt.Println("Conductor Configuration Setup")
	fmt.Println("=============================")
	fmt.Println()

	fmt.Println("Choose your LLM provider:")
	fmt.Println("  1. Anthropic Claude (API key required)")
	fmt.Println("  2. AWS Bedrock (AWS credentials required)")
	fmt.Print("Selection (1-2) [1]: ")
	var providerChoice string
	_, _ = fmt.Scanln(&providerChoice)

	llmProvider := "anthropic"
	if providerChoice == "2" {
		llmProvider = "bedrock"
	}

	fmt.Println()
	fmt.Println("Choose your checkpoint backend:")
	fmt.Println("  1. SQLite (local file, zero setup)")
	fmt.Println("  2. PostgreSQL (shared database)")
	fmt.Println("  3. Memory (conversations lost on restart)")
	fmt.Print("Selection (1-3) [1]: ")
	var backendChoice string
	_, _ = fmt.Scanln(&backendChoice)

	checkpointBackend := "sqlite"
	switch backendChoice {
	case "2":
		checkpointBackend = "postgres"
	case "3":
		checkpointBackend = "memory"
	}

	configContent := generateExampleConfig(llmProvider, checkpointBackend)

	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config file: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("✓ Config file created: %s\n", configPath)
	fmt.Println("\nNext steps:")

	step := 1
	switch llmProvider {
	case "anthropic":
		fmt.Printf("%d. Save your Anthropic API key:\n", step)
		fmt.Println("   conductord config set-key anthropic_api_key")
		step++
	case "bedrock":
		fmt.Printf("%d. Configure AWS credentials (choose one method):\n", step)
		fmt.Println("   Option A - AWS Profile/SSO:")
		fmt.Println("     aws configure  # or set AWS_PROFILE environment variable")
		fmt.Println("   Option B - Direct credentials (stored in keyring):")
		fmt.Println("     conductord config set-key bedrock_access_key_id")
		fmt.Println("     conductord config set-key bedrock_secret_access_key")
		step++
	}

	switch checkpointBackend {
	case "sqlite":
		fmt.Printf("%d. Optional: encrypt the checkpoint database at rest:\n", step)
		fmt.Println("   conductord config set-key checkpoint_encryption_key")
		step++
	case "postgres":
		fmt.Printf("%d. Save your PostgreSQL connection string:\n", step)
		fmt.Println("   conductord config set-key checkpoint_postgres_dsn")
		step++
	}

	fmt.Printf("%d. Start the server:\n", step)
	fmt.Println("   conductord serve")
}

func runConfigSetKey(cmd *cobra.Command, args []string) {
	keyName := args[0]

	availableKeys := config.ListAvailableSecretKeys()
	validKeys := make(map[string]bool)
	for _, k := range availableKeys {
		validKeys[k] = true
	}

	if !validKeys[keyName] {
		fmt.Fprintf(os.Stderr, "Invalid key name: %s\n", keyName)
		fmt.Fprintf(os.Stderr, "Available keys:\n")
		for _, k := range availableKeys {
			fmt.Fprintf(os.Stderr, "  - %s\n", k)
		}
		os.Exit(1)
	}

	// Read secret from stdin (without echo)
	fmt.Printf("Enter %s (input hidden): ", keyName)
	secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println() // New line after hidden input
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}

	secret := string(secretBytes)
	if secret == "" {
		fmt.Fprintf(os.Stderr, "Secret cannot be empty\n")
		os.Exit(1)
	}

	if err := config.SaveSecretToKeyring(keyName, secret); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving to keyring: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Saved %s to system keyring\n", keyName)
}

func runConfigGetKey(cmd *cobra.Command, args []string) {
	keyName := args[0]

	secret, err := config.GetSecretFromKeyring(keyName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error retrieving key: %v\n", err)
		fmt.Fprintf(os.Stderr, "Key not found in keyring. Set it with: conductord config set-key %s\n", keyName)
		os.Exit(1)
	}

	fmt.Printf("%s: %s\n", keyName, maskSecret(secret))
}

func runConfigDeleteKey(cmd *cobra.Command, args []string) {
	keyName := args[0]

	if err := config.DeleteSecretFromKeyring(keyName); err != nil {
		fmt.Fprintf(os.Stderr, "Error deleting key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Deleted %s from system keyring\n", keyName)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println()

	fmt.Println("Server:")
	fmt.Printf("  Host: %s\n", cfg.Server.Host)
	fmt.Printf("  Port: %d\n", cfg.Server.Port)
	fmt.Printf("  CORS: %t\n", cfg.Server.CORS.Enabled)
	fmt.Println()

	fmt.Println("LLM:")
	fmt.Printf("  Provider: %s\n", cfg.LLM.Provider)
	switch cfg.LLM.Provider {
	case "anthropic":
		fmt.Printf("  Model: %s\n", cfg.LLM.AnthropicModel)
		if cfg.LLM.AnthropicAPIKey != "" {
			fmt.Printf("  API Key: %s\n", maskSecret(cfg.LLM.AnthropicAPIKey))
		} else {
			fmt.Printf("  API Key: (not set)\n")
		}
	case "bedrock", "bedrock-sdk":
		fmt.Printf("  Region: %s\n", cfg.LLM.BedrockRegion)
		fmt.Printf("  Model ID: %s\n", cfg.LLM.BedrockModelID)
		if cfg.LLM.BedrockProfile != "" {
			fmt.Printf("  Profile: %s\n", cfg.LLM.BedrockProfile)
		}
	}
	fmt.Printf("  Temperature: %.1f\n", cfg.LLM.Temperature)
	fmt.Printf("  Max Tokens: %d\n", cfg.LLM.MaxTokens)
	fmt.Println()

	fmt.Println("Checkpoint:")
	fmt.Printf("  Backend: %s\n", cfg.Checkpoint.Backend)
	switch cfg.Checkpoint.Backend {
	case "sqlite":
		fmt.Printf("  Path: %s\n", cfg.Checkpoint.Path)
		fmt.Printf("  Encrypted: %t\n", cfg.Checkpoint.EncryptionKey != "")
	case "postgres":
		fmt.Printf("  DSN: %s\n", maskSecret(cfg.Checkpoint.PostgresDSN))
	}
	fmt.Printf("  Compression: %t\n", cfg.Checkpoint.Compression)
	fmt.Printf("  Retention: %t\n", cfg.Checkpoint.Retention.Enabled)
	if cfg.Checkpoint.Retention.Enabled {
		fmt.Printf("  Retention Schedule: %s\n", cfg.Checkpoint.Retention.Schedule)
		fmt.Printf("  Retention Max Age: %d days\n", cfg.Checkpoint.Retention.MaxAgeDays)
	}
	fmt.Println()

	fmt.Println("Tool Service:")
	fmt.Printf("  Address: %s\n", cfg.ToolService.Address())
	fmt.Printf("  Timeout: %ds\n", cfg.ToolService.TimeoutSeconds)
	fmt.Println()

	fmt.Println("Agents:")
	fmt.Printf("  Default Agent: %s\n", cfg.Agents.DefaultAgent)
	fmt.Printf("  Alias Path: %s\n", cfg.Agents.AliasPath)
	fmt.Printf("  Research Skip Quick Answer: %t\n", cfg.Agents.Research.SkipQuickAnswer)
	fmt.Printf("  Research HITL Web Search: %t\n", cfg.Agents.Research.HITLWebSearch)
	fmt.Printf("  Research Max Search Workers: %d\n", cfg.Agents.Research.MaxSearchWorkers)
	fmt.Println()

	fmt.Println("Logging:")
	fmt.Printf("  Level: %s\n", cfg.Logging.Level)
	fmt.Printf("  Format: %s\n", cfg.Logging.Format)
	fmt.Println()

	fmt.Println("Observability:")
	fmt.Printf("  Enabled: %t\n", cfg.Observability.Enabled)
}

func runConfigListKeys(cmd *cobra.Command, args []string) {
	keys := config.ListAvailableSecretKeys()
	fmt.Println("Available secret keys:")
	fmt.Println("======================")
	for _, key := range keys {
		fmt.Printf("  - %s\n", key)
	}
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  conductord config set-key <key-name>")
	fmt.Println("  conductord config get-key <key-name>")
	fmt.Println("  conductord config delete-key <key-name>")
}

func runConfigSet(cmd *cobra.Command, args []string) {
	key := args[0]
	value := args[1]

	configPath := configFilePath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Config file not found: %s\n", configPath)
		fmt.Fprintf(os.Stderr, "Run 'conductord config init' to create one\n")
		os.Exit(1)
	}

	// Secrets never land in the config file
	for _, secretKey := range config.ListAvailableSecretKeys() {
		if strings.HasSuffix(key, secretKey) {
			fmt.Fprintf(os.Stderr, "Error: '%s' is a secret key. Use 'conductord config set-key %s' instead.\n", key, secretKey)
			os.Exit(1)
		}
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		os.Exit(1)
	}

	inferredValue := inferType(key, value, v)
	v.Set(key, inferredValue)

	if err := v.WriteConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Set %s = %v\n", key, inferredValue)
}

func runConfigGet(cmd *cobra.Command, args []string) {
	key := args[0]

	configPath := configFilePath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Config file not found: %s\n", configPath)
		fmt.Fprintf(os.Stderr, "Run 'conductord config init' to create one\n")
		os.Exit(1)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		os.Exit(1)
	}

	if !v.IsSet(key) {
		fmt.Fprintf(os.Stderr, "Key not found: %s\n", key)
		os.Exit(1)
	}

	fmt.Printf("%s: %v\n", key, v.Get(key))
}

// maskSecret masks a secret for display.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// inferType keeps numeric and boolean values typed when writing YAML, so
// "temperature 1.0" stays a float instead of collapsing to the int 1.
func inferType(key, value string, v *viper.Viper) interface{} {
	lower := strings.ToLower(key)

	if strings.Contains(lower, "temperature") {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}

	if strings.Contains(lower, "port") || strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "max_tokens") || strings.Contains(lower, "max_age_days") ||
		strings.Contains(lower, "workers") {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}

	if strings.Contains(lower, "enabled") || strings.Contains(lower, "hitl") ||
		strings.Contains(lower, "skip_") || strings.Contains(lower, "compression") {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}

	// Match the type of an existing value when the key is already present
	if v.IsSet(key) {
		switch v.Get(key).(type) {
		case bool:
			if b, err := strconv.ParseBool(value); err == nil {
				return b
			}
		case int, int64:
			if i, err := strconv.Atoi(value); err == nil {
				return i
			}
		case float64:
			if f, err := strconv.ParseFloat(value, 64); err == nil {
				return f
			}
		}
	}

	return value
}

// generateExampleConfig renders a starter conductord.yaml for the chosen
// LLM provider and checkpoint backend.
func generateExampleConfig(llmProvider, checkpointBackend string) string {
	out := `# Conductor Configuration
# Generated by: conductord config init

server:
  host: 0.0.0.0
  port: 2024
  cors:
    enabled: true
    allowed_origins: ["*"]

llm:
`

	switch llmProvider {
	case "anthropic":
		out += `  provider: anthropic
  anthropic_model: claude-sonnet-4-5-20250929
  # anthropic_api_key: set via keyring (conductord config set-key anthropic_api_key)
`
	case "bedrock":
		out += `  provider: bedrock
  bedrock_region: us-west-2
  bedrock_model_id: anthropic.claude-sonnet-4-5-20250929-v1:0
  # bedrock_profile: default  # Use AWS profile for authentication
`
	}

	out += `  temperature: 1.0
  max_tokens: 4096
  timeout_seconds: 120

checkpoint:
`

	switch checkpointBackend {
	case "sqlite":
		out += `  backend: sqlite
  # path defaults to <data-dir>/checkpoints.db
  compression: true
  # encryption_key: set via keyring (conductord config set-key checkpoint_encryption_key)
`
	case "postgres":
		out += `  backend: postgres
  # postgres_dsn: set via keyring (conductord config set-key checkpoint_postgres_dsn)
  compression: true
`
	case "memory":
		out += `  backend: memory
`
	}

	out += `  retention:
    enabled: true
    schedule: "0 3 * * *"
    max_age_days: 30

tool_service:
  host: backend
  port: 50052
  timeout_seconds: 60

agents:
  default_agent: chat
  research:
    skip_quick_answer: false
    hitl_web_search: false
    max_search_workers: 4

logging:
  level: info
  format: text

observability:
  enabled: true
`

	return out
}
