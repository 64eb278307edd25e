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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointSyncSaveRestoreRoundTrip(t *testing.T) {
	saver := &memSaver{}
	manager := NewCheckpointManager(saver, CheckpointConfig{Enabled: true, OnNodeComplete: true})

	execCtx := NewExecContext("sess", "inv")
	execCtx.Current = "classify"
	execCtx.Outputs["emails"] = []any{"a", "b"}
	execCtx.Visits["intake"] = 1
	execCtx.Visits["classify"] = 1
	require.NoError(t, manager.Save(context.Background(), execCtx))

	restored, nodeID, ok, err := manager.Restore(context.Background(), "sess")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "classify", nodeID)
	assert.Equal(t, execCtx.Outputs, restored.Outputs)
	assert.Equal(t, execCtx.Visits, restored.Visits)
	assert.False(t, restored.Failed)
}

func TestCheckpointRestoreUnknownSession(t *testing.T) {
	manager := NewCheckpointManager(&memSaver{}, CheckpointConfig{Enabled: true})
	_, _, ok, err := manager.Restore(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckpointSyncSaveFailureIsFatal(t *testing.T) {
	saver := &memSaver{failN: 1}
	manager := NewCheckpointManager(saver, CheckpointConfig{Enabled: true})
	err := manager.Save(context.Background(), NewExecContext("sess", "inv"))
	assert.ErrorIs(t, err, ErrCheckpointFailure)
}

func TestCheckpointDisabledIsNoOp(t *testing.T) {
	saver := &memSaver{}
	manager := NewCheckpointManager(saver, CheckpointConfig{Enabled: false})
	require.NoError(t, manager.Save(context.Background(), NewExecContext("sess", "inv")))
	assert.Zero(t, saver.count())
}

func TestCheckpointAsyncRetriesTransientFailure(t *testing.T) {
	// The first two writes fail; the background writer retries with
	// backoff until the record lands.
	saver := &memSaver{failN: 2}
	manager := NewCheckpointManager(saver, CheckpointConfig{Enabled: true, Async: true, QueueSize: 4})

	require.NoError(t, manager.Save(context.Background(), NewExecContext("sess", "inv")))
	manager.Close()

	assert.Equal(t, 1, saver.count())
}

func TestCheckpointSnapshotIsDetached(t *testing.T) {
	saver := &memSaver{}
	manager := NewCheckpointManager(saver, CheckpointConfig{Enabled: true})

	execCtx := NewExecContext("sess", "inv")
	execCtx.Current = "fetch"
	execCtx.Outputs["n"] = 1
	require.NoError(t, manager.Save(context.Background(), execCtx))

	// Mutations after the save must not leak into the stored record.
	execCtx.Outputs["n"] = 2
	rec, err := saver.Latest(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Outputs["n"])
}

func TestCheckpointReaperPrunesOldRecords(t *testing.T) {
	saver := &memSaver{}
	old := &CheckpointRecord{
		ID: "old", SessionID: "sess", NodeID: "a",
		Timestamp:     time.Now().Add(-8 * 24 * time.Hour),
		SchemaVersion: CheckpointSchemaVersion,
	}
	fresh := &CheckpointRecord{
		ID: "fresh", SessionID: "sess", NodeID: "b",
		Timestamp:     time.Now(),
		SchemaVersion: CheckpointSchemaVersion,
	}
	require.NoError(t, saver.Put(context.Background(), old))
	require.NoError(t, saver.Put(context.Background(), fresh))

	removed, err := saver.DeleteOlderThan(context.Background(), time.Now().Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	rec, err := saver.Latest(context.Background(), "sess")
	require.NoError(t, err)
	assert.Equal(t, "fresh", rec.ID)
}

func TestDefaultCheckpointConfig(t *testing.T) {
	cfg := DefaultCheckpointConfig()
	assert.True(t, cfg.Enabled)
	assert.True(t, cfg.OnNodeComplete)
	assert.False(t, cfg.OnNodeStart)
	assert.True(t, cfg.Async)
	assert.Equal(t, 7*24*time.Hour, cfg.MaxAge)
}
