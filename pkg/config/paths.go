// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// GetDataDir returns the conductor data directory: CONDUCTOR_DATA_DIR when
// set, ~/.conductor otherwise. The config file, the default checkpoint
// database, and the agent alias table all live under it.
//
// The result is absolute: a leading ~ expands to the home directory and
// relative paths resolve against the working directory. Bootstrap code
// calls this to locate the config file before any config is loaded, so the
// env var is read with os.Getenv rather than through viper.
func GetDataDir() string {
	if dir := os.Getenv("CONDUCTOR_DATA_DIR"); dir != "" {
		return expandPath(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		// No resolvable home directory. A relative dot directory still
		// lets the daemon start.
		return ".conductor"
	}
	return filepath.Join(home, ".conductor")
}

// expandPath makes path absolute, expanding a leading ~ to the home
// directory. Paths that cannot be resolved come back unchanged.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
