//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package inmemory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trpc.group/trpc-go/stepflow/graph"
)

func TestPutLatestRoundTrip(t *testing.T) {
	saver := NewSaver()
	ctx := context.Background()

	first := &graph.CheckpointRecord{
		ID: "c1", SessionID: "sess", NodeID: "intake",
		Outputs:       map[string]any{"request": "check"},
		Visits:        map[string]int{"intake": 1},
		Timestamp:     time.Now().Add(-time.Minute),
		SchemaVersion: graph.CheckpointSchemaVersion,
	}
	second := &graph.CheckpointRecord{
		ID: "c2", SessionID: "sess", NodeID: "fetch",
		Timestamp:     time.Now(),
		SchemaVersion: graph.CheckpointSchemaVersion,
	}
	require.NoError(t, saver.Put(ctx, first))
	require.NoError(t, saver.Put(ctx, second))

	rec, err := saver.Latest(ctx, "sess")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "c2", rec.ID)
	assert.Equal(t, "fetch", rec.NodeID)
}

func TestLatestUnknownSession(t *testing.T) {
	rec, err := NewSaver().Latest(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDeleteSession(t *testing.T) {
	saver := NewSaver()
	ctx := context.Background()
	require.NoError(t, saver.Put(ctx, &graph.CheckpointRecord{ID: "c1", SessionID: "a", Timestamp: time.Now()}))
	require.NoError(t, saver.Put(ctx, &graph.CheckpointRecord{ID: "c2", SessionID: "b", Timestamp: time.Now()}))

	require.NoError(t, saver.DeleteSession(ctx, "a"))

	rec, err := saver.Latest(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, rec)
	rec, err = saver.Latest(ctx, "b")
	require.NoError(t, err)
	assert.NotNil(t, rec)
}

func TestDeleteOlderThan(t *testing.T) {
	saver := NewSaver()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, saver.Put(ctx, &graph.CheckpointRecord{ID: "old", SessionID: "a", Timestamp: now.Add(-time.Hour)}))
	require.NoError(t, saver.Put(ctx, &graph.CheckpointRecord{ID: "fresh", SessionID: "a", Timestamp: now}))
	require.NoError(t, saver.Put(ctx, &graph.CheckpointRecord{ID: "stale", SessionID: "b", Timestamp: now.Add(-time.Hour)}))

	removed, err := saver.DeleteOlderThan(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	rec, err := saver.Latest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "fresh", rec.ID)
	rec, err = saver.Latest(ctx, "b")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPutStoresACopy(t *testing.T) {
	saver := NewSaver()
	ctx := context.Background()
	rec := &graph.CheckpointRecord{ID: "c1", SessionID: "a", NodeID: "intake", Timestamp: time.Now()}
	require.NoError(t, saver.Put(ctx, rec))

	rec.NodeID = "mutated"
	stored, err := saver.Latest(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "intake", stored.NodeID)
}
