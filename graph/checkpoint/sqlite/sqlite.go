//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides a SQLite-backed checkpoint saver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"trpc.group/trpc-go/stepflow/graph"
)

const (
	sqliteCreateCheckpoints = "CREATE TABLE IF NOT EXISTS checkpoints (" +
		"session_id TEXT NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"node_id TEXT NOT NULL, " +
		"ts INTEGER NOT NULL, " +
		"record_json BLOB NOT NULL, " +
		"PRIMARY KEY (session_id, checkpoint_id)" +
		")"

	sqliteCreateTsIndex = "CREATE INDEX IF NOT EXISTS idx_checkpoints_ts " +
		"ON checkpoints (ts)"

	sqliteInsertCheckpoint = "INSERT OR REPLACE INTO checkpoints (" +
		"session_id, checkpoint_id, node_id, ts, record_json) VALUES (?, ?, ?, ?, ?)"

	sqliteSelectLatest = "SELECT record_json FROM checkpoints " +
		"WHERE session_id = ? ORDER BY ts DESC, checkpoint_id DESC LIMIT 1"

	sqliteDeleteSession = "DELETE FROM checkpoints WHERE session_id = ?"

	sqliteDeleteOlderThan = "DELETE FROM checkpoints WHERE ts < ?"
)

// Saver is a SQLite-backed implementation of CheckpointSaver.
// It expects an initialized *sql.DB and will create the required schema.
// Records are stored as JSON blobs keyed by session and checkpoint id,
// which keeps the schema stable across record format changes.
type Saver struct {
	db *sql.DB
}

var _ graph.CheckpointSaver = (*Saver)(nil)

// NewSaver creates a new saver using the provided DB.
// The DB must use a SQLite driver. The constructor creates tables if needed.
func NewSaver(db *sql.DB) (*Saver, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateCheckpoints); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	if _, err := db.Exec(sqliteCreateTsIndex); err != nil {
		return nil, fmt.Errorf("create ts index: %w", err)
	}
	return &Saver{db: db}, nil
}

// Open opens (or creates) a SQLite database at path and returns a saver
// over it. The caller owns closing the returned DB.
func Open(path string) (*Saver, *sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite db: %w", err)
	}
	saver, err := NewSaver(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return saver, db, nil
}

// Put stores a checkpoint record.
func (s *Saver) Put(ctx context.Context, rec *graph.CheckpointRecord) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, sqliteInsertCheckpoint,
		rec.SessionID, rec.ID, rec.NodeID, rec.Timestamp.UnixNano(), raw)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// Latest returns the most recent record for the session, or nil.
func (s *Saver) Latest(ctx context.Context, sessionID string) (*graph.CheckpointRecord, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, sqliteSelectLatest, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select latest checkpoint: %w", err)
	}
	var rec graph.CheckpointRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return &rec, nil
}

// DeleteSession removes all records for the session.
func (s *Saver) DeleteSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, sqliteDeleteSession, sessionID); err != nil {
		return fmt.Errorf("delete session checkpoints: %w", err)
	}
	return nil
}

// DeleteOlderThan prunes records created before cutoff.
func (s *Saver) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, sqliteDeleteOlderThan, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}
