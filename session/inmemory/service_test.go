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

	"trpc.group/trpc-go/stepflow/session"
)

func TestCreateSessionGeneratesID(t *testing.T) {
	svc := NewService()
	sess, err := svc.CreateSession(context.Background(), session.Key{GraphID: "g"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "g", sess.GraphID)
	assert.Equal(t, session.SlotHash("g", sess.ID), sess.Hash)
	assert.False(t, sess.CreatedAt.IsZero())
}

func TestCreateSessionRequiresGraphID(t *testing.T) {
	svc := NewService()
	_, err := svc.CreateSession(context.Background(), session.Key{}, nil)
	assert.ErrorIs(t, err, session.ErrGraphIDRequired)
}

func TestGetSessionReturnsClone(t *testing.T) {
	svc := NewService()
	ctx := context.Background()
	key := session.Key{GraphID: "g", SessionID: "s"}
	_, err := svc.CreateSession(ctx, key, session.StateMap{"a": 1})
	require.NoError(t, err)

	got, err := svc.GetSession(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	got.State["a"] = 99

	again, err := svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, again.State["a"])
}

func TestGetSessionUnknownReturnsNil(t *testing.T) {
	svc := NewService()
	got, err := svc.GetSession(context.Background(), session.Key{GraphID: "g", SessionID: "nope"})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateStateMerges(t *testing.T) {
	svc := NewService()
	ctx := context.Background()
	key := session.Key{GraphID: "g", SessionID: "s"}
	_, err := svc.CreateSession(ctx, key, session.StateMap{"a": 1})
	require.NoError(t, err)

	require.NoError(t, svc.UpdateState(ctx, key, session.StateMap{"b": 2, "a": 3}))

	got, err := svc.GetSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 3, got.State["a"])
	assert.Equal(t, 2, got.State["b"])
}

func TestUpdateStateUnknownSession(t *testing.T) {
	svc := NewService()
	err := svc.UpdateState(context.Background(), session.Key{GraphID: "g", SessionID: "nope"}, nil)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestAppendTurnIsAppendOnly(t *testing.T) {
	svc := NewService()
	ctx := context.Background()
	key := session.Key{GraphID: "g", SessionID: "s"}
	_, err := svc.CreateSession(ctx, key, nil)
	require.NoError(t, err)

	for i, id := range []string{"t1", "t2"} {
		require.NoError(t, svc.AppendTurn(ctx, key, &session.Turn{
			ID:           id,
			EntryPointID: "main",
			Success:      i == 0,
			Timestamp:    time.Now(),
		}))
	}

	got, err := svc.GetSession(ctx, key)
	require.NoError(t, err)
	require.Len(t, got.Turns, 2)
	assert.Equal(t, "t1", got.Turns[0].ID)
	assert.Equal(t, "t2", got.Turns[1].ID)
}

func TestListAndDeleteSessions(t *testing.T) {
	svc := NewService()
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		_, err := svc.CreateSession(ctx, session.Key{GraphID: "g", SessionID: id}, nil)
		require.NoError(t, err)
	}

	sessions, err := svc.ListSessions(ctx, "g")
	require.NoError(t, err)
	assert.Len(t, sessions, 2)

	require.NoError(t, svc.DeleteSession(ctx, session.Key{GraphID: "g", SessionID: "a"}))
	sessions, err = svc.ListSessions(ctx, "g")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestSlotHashIsStable(t *testing.T) {
	h1 := session.SlotHash("g", "s")
	h2 := session.SlotHash("g", "s")
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, session.SlotHash("g", "other"))
}
