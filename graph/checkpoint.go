//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package graph

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"trpc.group/trpc-go/stepflow/log"
)

// CheckpointSchemaVersion is the current checkpoint record format version.
const CheckpointSchemaVersion = 1

// CheckpointRecord is the persisted execution frontier of one session:
// current node plus serialized context. It must round-trip exactly
// through save and restore.
type CheckpointRecord struct {
	// ID is the unique checkpoint identifier.
	ID string `json:"id"`
	// SessionID is the owning session.
	SessionID string `json:"session_id"`
	// NodeID is the current node pointer.
	NodeID string `json:"node_id"`
	// Outputs is the accumulated output-key map.
	Outputs map[string]any `json:"outputs"`
	// Visits is the per-node visit counters.
	Visits map[string]int `json:"visits"`
	// Timestamp is the checkpoint creation time in UTC.
	Timestamp time.Time `json:"ts"`
	// SchemaVersion is the record format version.
	SchemaVersion int `json:"v"`
}

// CheckpointSaver is the storage contract checkpoints require. The engine
// prescribes no storage engine; see checkpoint/inmemory and
// checkpoint/sqlite for reference implementations.
type CheckpointSaver interface {
	// Put stores a checkpoint record durably.
	Put(ctx context.Context, rec *CheckpointRecord) error
	// Latest returns the most recent record for a session, or nil.
	Latest(ctx context.Context, sessionID string) (*CheckpointRecord, error)
	// DeleteSession removes all records for a session.
	DeleteSession(ctx context.Context, sessionID string) error
	// DeleteOlderThan prunes records created before cutoff and returns
	// the number removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// CheckpointConfig controls when and how checkpoints are written.
type CheckpointConfig struct {
	// Enabled turns checkpointing on.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// OnNodeStart checkpoints before each node executes.
	OnNodeStart bool `json:"on_node_start" yaml:"on_node_start"`
	// OnNodeComplete checkpoints after each node completes.
	OnNodeComplete bool `json:"on_node_complete" yaml:"on_node_complete"`
	// MaxAge makes older checkpoints eligible for pruning by the reaper.
	// Zero disables pruning.
	MaxAge time.Duration `json:"max_age,omitempty" yaml:"max_age,omitempty"`
	// Async makes writes fire-and-forget through a bounded queue,
	// trading a small window of progress loss on crash for latency.
	Async bool `json:"async" yaml:"async"`
	// QueueSize bounds the async write queue. Zero means 64.
	QueueSize int `json:"queue_size,omitempty" yaml:"queue_size,omitempty"`
}

// DefaultCheckpointConfig checkpoints on node completion, asynchronously,
// pruning records older than seven days.
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{
		Enabled:        true,
		OnNodeComplete: true,
		MaxAge:         7 * 24 * time.Hour,
		Async:          true,
	}
}

// CheckpointManager persists execution frontiers at configured points and
// restores them on resume. Synchronous mode surfaces write failures to
// the execution; asynchronous mode retries in the background.
type CheckpointManager struct {
	saver  CheckpointSaver
	config CheckpointConfig

	queue    chan *CheckpointRecord
	wg       sync.WaitGroup
	closeOne sync.Once
}

// NewCheckpointManager creates a manager over the given saver.
func NewCheckpointManager(saver CheckpointSaver, config CheckpointConfig) *CheckpointManager {
	m := &CheckpointManager{saver: saver, config: config}
	if config.Async {
		size := config.QueueSize
		if size <= 0 {
			size = 64
		}
		m.queue = make(chan *CheckpointRecord, size)
		m.wg.Add(1)
		go m.writeLoop()
	}
	return m
}

// Config returns the manager's configuration.
func (m *CheckpointManager) Config() CheckpointConfig { return m.config }

// Save persists the execution frontier. In synchronous mode the caller
// blocks until the write is durable and a failure is fatal; in
// asynchronous mode the record is queued and failures are retried
// without blocking execution.
func (m *CheckpointManager) Save(ctx context.Context, execCtx *ExecContext) error {
	if !m.config.Enabled {
		return nil
	}
	rec := snapshotRecord(execCtx)
	if !m.config.Async {
		if err := m.saver.Put(ctx, rec); err != nil {
			return fmt.Errorf("%w: %v", ErrCheckpointFailure, err)
		}
		return nil
	}
	select {
	case m.queue <- rec:
	default:
		// Queue full: drop rather than block the execution path.
		log.Warnf("checkpoint queue full, dropping checkpoint for session %s", rec.SessionID)
	}
	return nil
}

// Restore returns the context and current-node pointer as of the last
// successful checkpoint, or ok=false when the session has none.
func (m *CheckpointManager) Restore(ctx context.Context, sessionID string) (*ExecContext, string, bool, error) {
	rec, err := m.saver.Latest(ctx, sessionID)
	if err != nil {
		return nil, "", false, fmt.Errorf("%w: %v", ErrCheckpointFailure, err)
	}
	if rec == nil {
		return nil, "", false, nil
	}
	execCtx := &ExecContext{
		SessionID: rec.SessionID,
		Current:   rec.NodeID,
		Outputs:   rec.Outputs,
		Visits:    rec.Visits,
	}
	if execCtx.Outputs == nil {
		execCtx.Outputs = make(map[string]any)
	}
	if execCtx.Visits == nil {
		execCtx.Visits = make(map[string]int)
	}
	return execCtx, rec.NodeID, true, nil
}

// DeleteSession removes all checkpoints for a session.
func (m *CheckpointManager) DeleteSession(ctx context.Context, sessionID string) error {
	return m.saver.DeleteSession(ctx, sessionID)
}

// StartReaper prunes checkpoints older than MaxAge every interval until
// ctx is done. The write path never prunes.
func (m *CheckpointManager) StartReaper(ctx context.Context, interval time.Duration) {
	if m.config.MaxAge <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-m.config.MaxAge)
				n, err := m.saver.DeleteOlderThan(ctx, cutoff)
				if err != nil {
					log.Errorf("checkpoint reaper: %v", err)
					continue
				}
				if n > 0 {
					log.Debugf("checkpoint reaper pruned %d records", n)
				}
			}
		}
	}()
}

// Close drains the async write queue and stops the background writer.
func (m *CheckpointManager) Close() {
	m.closeOne.Do(func() {
		if m.queue != nil {
			close(m.queue)
			m.wg.Wait()
		}
	})
}

func (m *CheckpointManager) writeLoop() {
	defer m.wg.Done()
	for rec := range m.queue {
		// Transient persistence failures are retried with exponential
		// backoff; the execution already moved on.
		_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
			return struct{}{}, m.saver.Put(context.Background(), rec)
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(5))
		if err != nil {
			log.Errorf("async checkpoint write for session %s failed: %v", rec.SessionID, err)
		}
	}
}

func snapshotRecord(execCtx *ExecContext) *CheckpointRecord {
	snapshot := execCtx.Clone()
	return &CheckpointRecord{
		ID:            uuid.New().String(),
		SessionID:     snapshot.SessionID,
		NodeID:        snapshot.Current,
		Outputs:       snapshot.Outputs,
		Visits:        snapshot.Visits,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: CheckpointSchemaVersion,
	}
}
