// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Well-known agent names. The intent classifier and the alias table both
// speak this vocabulary.
const (
	NameChat       = "chat"
	NameResearch   = "full_research_agent"
	NameOrg        = "org_agent"
	NameWeather    = "weather_agent"
	NameEditing    = "editing_agent"
	NameFormatting = "data_formatting"
)

// maxAliasHops bounds alias chains so a cyclic table cannot spin.
const maxAliasHops = 4

// DefaultAliases maps agent types that have not been migrated onto the
// agents that cover them today.
func DefaultAliases() map[string]string {
	return map[string]string{
		"podcast_script_agent":   NameChat,
		"fiction_editor_agent":   NameEditing,
		"entertainment_agent":    NameResearch,
		"electronics_agent":      NameChat,
		"general_project_agent":  NameChat,
		"rss_agent":              NameResearch,
		"image_generation_agent": NameChat,
		"org_inbox_agent":        NameOrg,
	}
}

// Registry routes turns to agents. It is a flat name map plus an alias
// table; the alias table can be overridden from a YAML file that is hot
// reloaded when it changes.
type Registry struct {
	mu           sync.RWMutex
	agents       map[string]types.Agent
	aliases      map[string]string
	defaultAgent string
	aliasPath    string
	watcher      *fsnotify.Watcher
	logger       *zap.Logger
}

// NewRegistry builds a registry from config. The alias file is optional;
// when present its entries overlay the built-in table.
func NewRegistry(cfg config.AgentsConfig, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaultAgent := cfg.DefaultAgent
	if defaultAgent == "" {
		defaultAgent = NameChat
	}
	r := &Registry{
		agents:       make(map[string]types.Agent),
		aliases:      DefaultAliases(),
		defaultAgent: defaultAgent,
		aliasPath:    cfg.AliasPath,
		logger:       logger,
	}
	if r.aliasPath != "" {
		if err := r.loadAliasFile(); err != nil {
			logger.Warn("failed to load agent alias file, using built-in table",
				zap.String("path", r.aliasPath),
				zap.Error(err))
		}
	}
	return r
}

// Register adds an agent under its own name.
func (r *Registry) Register(a types.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[a.Name()] = a
}

// Get returns the agent registered under exactly this name.
func (r *Registry) Get(name string) (types.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	return a, ok
}

// Alias follows the alias table from a requested agent type to its
// serving agent name. Names without an alias map to themselves.
func (r *Registry) Alias(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := 0; i < maxAliasHops; i++ {
		next, ok := r.aliases[name]
		if !ok {
			return name
		}
		name = next
	}
	return name
}

// Resolve maps a requested agent type to a registered agent, applying
// aliases and falling back to the default agent for unknown types. The
// returned name is the agent actually serving the turn.
func (r *Registry) Resolve(requested string) (types.Agent, string, error) {
	name := r.Alias(requested)
	if a, ok := r.Get(name); ok {
		return a, name, nil
	}
	if name != r.defaultAgent {
		r.logger.Warn("unknown agent type, falling back to default",
			zap.String("requested", requested),
			zap.String("resolved", name),
			zap.String("default", r.defaultAgent))
	}
	if a, ok := r.Get(r.defaultAgent); ok {
		return a, r.defaultAgent, nil
	}
	return nil, "", fmt.Errorf("no agent registered for %q and default agent %q is missing", requested, r.defaultAgent)
}

// Names returns the registered agent names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// aliasFile is the YAML shape of the alias table override.
type aliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// loadAliasFile rebuilds the alias table as built-ins overlaid with the
// file's entries, so deleting a line restores the built-in mapping.
func (r *Registry) loadAliasFile() error {
	data, err := os.ReadFile(r.aliasPath)
	if err != nil {
		return err
	}
	var f aliasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse alias file %s: %w", r.aliasPath, err)
	}
	table := DefaultAliases()
	for from, to := range f.Aliases {
		table[from] = to
	}
	r.mu.Lock()
	r.aliases = table
	r.mu.Unlock()
	r.logger.Info("agent alias table loaded",
		zap.String("path", r.aliasPath),
		zap.Int("file_entries", len(f.Aliases)))
	return nil
}

// WatchAliases blocks watching the alias file for changes, reloading the
// table on write. Editors that replace files on save emit Create, so both
// ops trigger. Returns when ctx is done or the watcher closes.
func (r *Registry) WatchAliases(ctx context.Context) error {
	if r.aliasPath == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create alias watcher: %w", err)
	}
	r.mu.Lock()
	r.watcher = watcher
	r.mu.Unlock()

	dir := filepath.Dir(r.aliasPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch alias directory %s: %w", dir, err)
	}
	r.logger.Info("watching agent alias file", zap.String("path", r.aliasPath))

	target := filepath.Base(r.aliasPath)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if err := r.loadAliasFile(); err != nil {
				r.logger.Error("failed to reload alias file, keeping previous table",
					zap.String("path", r.aliasPath),
					zap.Error(err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("alias watcher error", zap.Error(err))

		case <-ctx.Done():
			return nil
		}
	}
}

// Close stops the alias watcher if one is running.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher != nil {
		err := r.watcher.Close()
		r.watcher = nil
		return err
	}
	return nil
}
