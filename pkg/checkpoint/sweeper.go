// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/config"
)

const (
	// DefaultSweepSchedule runs retention at 03:00 daily.
	DefaultSweepSchedule = "0 3 * * *"

	// DefaultMaxAgeDays is how long non-latest checkpoints are kept.
	DefaultMaxAgeDays = 30

	sweepTimeout = 5 * time.Minute
)

// Sweeper deletes old checkpoints on a cron schedule. The latest row of
// every thread always survives so a dormant conversation can resume.
type Sweeper struct {
	saver      Saver
	cronEngine *cron.Cron
	maxAge     time.Duration
	logger     *zap.Logger
}

// NewSweeper builds a sweeper from retention config. Zero-value fields
// take the package defaults.
func NewSweeper(saver Saver, cfg config.RetentionConfig, logger *zap.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	maxAgeDays := cfg.MaxAgeDays
	if maxAgeDays <= 0 {
		maxAgeDays = DefaultMaxAgeDays
	}

	s := &Sweeper{
		saver:      saver,
		cronEngine: cron.New(),
		maxAge:     time.Duration(maxAgeDays) * 24 * time.Hour,
		logger:     logger,
	}
	if _, err := s.cronEngine.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins scheduled sweeps.
func (s *Sweeper) Start() {
	s.cronEngine.Start()
	s.logger.Info("checkpoint retention sweeper started",
		zap.Duration("max_age", s.maxAge))
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cronEngine.Stop().Done()
}

// RunOnce sweeps immediately with the configured horizon. Exposed for
// the CLI and tests; the cron entry calls it on schedule.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	return s.saver.Sweep(ctx, time.Now().Add(-s.maxAge))
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	removed, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Warn("checkpoint sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("checkpoint sweep removed old rows",
			zap.Int64("removed", removed))
	}
}
