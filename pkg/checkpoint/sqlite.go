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
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/conductor/internal/sqlitedriver"
	"github.com/teradata-labs/conductor/pkg/config"
	"github.com/teradata-labs/conductor/pkg/graph"
	"github.com/teradata-labs/conductor/pkg/types"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	parent_id TEXT,
	next_json TEXT,
	values_blob BLOB,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_thread ON checkpoints(thread_id);
`

// SQLiteSaver stores checkpoints in a local SQLite file, the default
// backend for single-node deployments. With an encryption key and a CGO
// build the file is encrypted at rest with SQLCipher; without CGO a
// non-empty key is a configuration error, never a silent downgrade.
type SQLiteSaver struct {
	mu     sync.RWMutex
	db     *sql.DB
	codec  *codec
	path   string
	key    string
	logger *zap.Logger
}

// NewSQLiteSaver opens (or creates) the checkpoint database at cfg.Path.
func NewSQLiteSaver(cfg config.CheckpointConfig, logger *zap.Logger) (*SQLiteSaver, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite checkpoint backend requires a database path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := newCodec(cfg.Compression)
	if err != nil {
		return nil, err
	}
	s := &SQLiteSaver{codec: c, path: cfg.Path, key: cfg.EncryptionKey, logger: logger}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSaver) open() error {
	if s.key != "" && !sqlitedriver.EncryptionSupported {
		return fmt.Errorf("checkpoint encryption key set but this build has no SQLCipher support (rebuild with CGO_ENABLED=1)")
	}
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", s.path)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint database: %w", err)
	}

	if s.key != "" {
		// PRAGMA key must be the first operation on the connection.
		if _, err := db.Exec(fmt.Sprintf("PRAGMA key = '%s'", s.key)); err != nil {
			db.Close()
			return fmt.Errorf("failed to set encryption key: %w", err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return fmt.Errorf("failed to verify encryption key (wrong key or corrupted database): %w", err)
		}
	}

	// WAL keeps readers unblocked while the engine appends.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize checkpoint schema: %w", err)
	}

	s.db = db
	return nil
}

// Latest implements graph.Checkpointer.
func (s *SQLiteSaver) Latest(ctx context.Context, threadID string) (*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("checkpoint latest: %w", types.ErrTransportClosed)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, thread_id, parent_id, next_json, values_blob, created_at
		 FROM checkpoints WHERE thread_id = ? ORDER BY rowid DESC LIMIT 1`, threadID)
	return s.scanCheckpoint(row, "latest")
}

// Get implements graph.Checkpointer.
func (s *SQLiteSaver) Get(ctx context.Context, threadID, checkpointID string) (*graph.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, fmt.Errorf("checkpoint get: %w", types.ErrTransportClosed)
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, thread_id, parent_id, next_json, values_blob, created_at
		 FROM checkpoints WHERE thread_id = ? AND id = ?`, threadID, checkpointID)
	return s.scanCheckpoint(row, "get")
}

// Put implements graph.Checkpointer.
func (s *SQLiteSaver) Put(ctx context.Context, cp *graph.Checkpoint) (string, error) {
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
		 VALUES (?, ?, ?, ?, ?, ?)`,
		cp.ID, cp.ThreadID, cp.ParentID, nextJSON, blob, cp.CreatedAt.UnixNano())
	if err != nil {
		return "", wrapStoreErr("put", err)
	}
	return cp.ID, nil
}

// DeleteThread implements Saver.
func (s *SQLiteSaver) DeleteThread(ctx context.Context, threadID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return fmt.Errorf("checkpoint delete thread: %w", types.ErrTransportClosed)
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	return wrapStoreErr("delete thread", err)
}

// Sweep implements Saver. The subquery pins the newest row of every
// thread regardless of age.
func (s *SQLiteSaver) Sweep(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return 0, fmt.Errorf("checkpoint sweep: %w", types.ErrTransportClosed)
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints
		 WHERE created_at < ?
		   AND rowid NOT IN (SELECT MAX(rowid) FROM checkpoints GROUP BY thread_id)`,
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

// Reset implements Saver. It drops the current handle and reopens the
// database so the next turn starts on a fresh connection.
func (s *SQLiteSaver) Reset(ctx context.Context) error {
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
func (s *SQLiteSaver) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteSaver) scanCheckpoint(row *sql.Row, op string) (*graph.Checkpoint, error) {
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

var _ Saver = (*SQLiteSaver)(nil)
