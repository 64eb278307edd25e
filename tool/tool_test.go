//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package tool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTool struct {
	name string
	call func(ctx context.Context, args map[string]any) (map[string]any, error)
}

func (t *fakeTool) Declaration() *Declaration {
	return &Declaration{Name: t.name}
}

func (t *fakeTool) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	return t.call(ctx, args)
}

func TestRegistryRegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeTool{name: "fetch"}))
	require.NoError(t, r.Register(&fakeTool{name: "send"}))

	_, ok := r.Resolve("fetch")
	assert.True(t, ok)
	_, ok = r.Resolve("ghost")
	assert.False(t, ok)
	assert.Equal(t, []string{"fetch", "send"}, r.Names())
}

func TestRegistryRejectsUnnamedTool(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(&fakeTool{}))
	assert.Error(t, r.Register(nil))
}

func TestRegistryReplaceOnReRegister(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeTool{name: "x", call: func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"v": 1}, nil
	}}))
	require.NoError(t, r.Register(&fakeTool{name: "x", call: func(context.Context, map[string]any) (map[string]any, error) {
		return map[string]any{"v": 2}, nil
	}}))

	out, err := r.Invoke(context.Background(), "x", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, out["v"])
}

func TestInvokeUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "nope", nil, 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInvokeWrapsToolError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	require.NoError(t, r.Register(&fakeTool{name: "bad", call: func(context.Context, map[string]any) (map[string]any, error) {
		return nil, boom
	}}))

	_, err := r.Invoke(context.Background(), "bad", nil, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "tool bad")
}

func TestInvokeTimeoutCancelsCall(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&fakeTool{name: "slow", call: func(ctx context.Context, _ map[string]any) (map[string]any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return map[string]any{}, nil
		}
	}}))

	start := time.Now()
	_, err := r.Invoke(context.Background(), "slow", nil, 20*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
