// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/types"
)

// Postgres mirrors the SQLite schema with a BIGSERIAL seq standing in
// for rowid as the per-thread append order.
const postgresSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	thread_id TEXT NOT NULL,
	parent_id TEXT,
	next_json TEXT,
	values_blob BYTEA,
	created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id);
`

// PostgresSaver stores checkpoints in PostgreSQL for deployments where
// several conductor instances share one store.
type PostgresSaver struct {
	mu     sync.RWMutex
	db     *sql.DB
	codec  *codec
	dsn    string
	logger *zap.Logger
}

// NewPostgresSaver connects to the database named by cfg.PostgresDSN and
// ensures the checkpoint schema exists.
func NewPostgresSaver(cfg config.CheckpointConfig, logger *zap.Logger) (*PostgresSaver, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres checkpoint backend requires a DSN (set checkpoint.postgres_dsn or CONDUCTOR_CHECKPOINT_POSTGRES_DSN)")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := newCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	s := &PostgresSaver{codec: c, dsn: cfg.PostgresDSN, logger: logger}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresSaver) open() error {
	db, err := sql.Open("postgres", s.dsn)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}
	s.db = db
	return nil
}

// Latest implements graph.Checkpointer.
func (s *PostgresSaver) Latest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("checkpoint latest: %w", types.ErrTransportClosed)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, thread_id, parent_id, next_json, values_blob, created_at
		 FROM checkpoints WHERE thread_id = $1 ORDER BY seq DESC LIMIT 1`, threadID)
	return s.scanCheckpoint(row, "latest")
}

// Get implements graph.Checkpointer.
func (s *PostgresSaver) Get(ctx context.Context, threadID, checkpointID string) (*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("checkpoint get: %w", types.ErrTransportClosed)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, thread_id, parent_id, next_json, values_blob, created_at
		 FROM checkpoints WHERE thread_id = $1 AND id = $2`, threadID, checkpointID)
	return s.scanCheckpoint(row, "get")
}

// Put implements graph.Checkpointer.
func (s *PostgresSaver) Put(ctx context.Context, cp *graph.Checkpoint) (string, error) {
	if cp.ThreadID == "" {
		return "", fmt.Errorf("checkpoint missing thread id")
	}
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	blob, err := s.codec.encodeValues(cp.Values)
	if err != nil {
		return "", err
	}
	nextJSON, err := marshalNext(cp.Next)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return "", fmt.Errorf("checkpoint put: %w", types.ErrTransportClosed)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, thread_id, parent_id, next_json, values_blob, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		cp.ID, cp.ThreadID, cp.ParentID, nextJSON, blob, cp.CreatedAt.UnixNano())
	if err != nil {
		return "", wrapStoreErr("put", err)
	}
	return cp.ID, nil
}

// DeleteThread implements Saver.
func (s *PostgresSaver) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return fmt.Errorf("checkpoint delete thread: %w", types.ErrTransportClosed)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = $1`, threadID)
	return wrapStoreErr("delete thread", err)
}

// Sweep implements Saver.
func (s *PostgresSaver) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, fmt.Errorf("checkpoint sweep: %w", types.ErrTransportClosed)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints
		 WHERE created_at < $1
		   AND seq NOT IN (SELECT MAX(seq) FROM checkpoints GROUP BY thread_id)`,
		olderThan.UnixNano())
	if err != nil {
		return 0, wrapStoreErr("sweep", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStoreErr("sweep", err)
	}
	return removed, nil
}

// Reset implements Saver.
func (s *PostgresSaver) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("closing stale checkpoint handle", zap.Error(err))
		}
		s.db = nil
	}
	return s.open()
}

// Close implements Saver.
func (s *PostgresSaver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *PostgresSaver) scanCheckpoint(row *sql.Row, op string) (*graph.Checkpoint, error) {
	var (
		cp        graph.Checkpoint
		parentID  sql.NullString
		nextJSON  sql.NullString
		blob      []byte
		createdNs int64
	)
	err := row.Scan(&cp.ID, &cp.ThreadID, &parentID, &nextJSON, &blob, &createdNs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapStoreErr(op, err)
	}
	cp.ParentID = parentID.String
	next, err := unmarshalNext(nextJSON.String)
	if err != nil {
		return nil, err
	}
	cp.Next = next
	values, err := s.codec.decodeValues(blob)
	if err != nil {
		return nil, err
	}
	cp.Values = values
	cp.CreatedAt = time.Unix(0, createdNs).UTC()
	return &cp, nil
}

var _ Saver = (*PostgresSaver)(nil)
