//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package function

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type searchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type searchResult struct {
	Hits  []string `json:"hits"`
	Total int      `json:"total"`
}

func TestFunctionToolCallDecodesAndEncodes(t *testing.T) {
	ft := New(func(_ context.Context, args searchArgs) (searchResult, error) {
		assert.Equal(t, "urgent", args.Query)
		assert.Equal(t, 2, args.Limit)
		return searchResult{Hits: []string{"a", "b"}, Total: 2}, nil
	}, WithName("search"), WithDescription("Search things."))

	decl := ft.Declaration()
	assert.Equal(t, "search", decl.Name)
	assert.Equal(t, "Search things.", decl.Description)

	out, err := ft.Call(context.Background(), map[string]any{"query": "urgent", "limit": 2})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, out["hits"])
	assert.Equal(t, float64(2), out["total"])
}

func TestFunctionToolPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	ft := New(func(_ context.Context, _ searchArgs) (searchResult, error) {
		return searchResult{}, boom
	}, WithName("failing"))

	_, err := ft.Call(context.Background(), nil)
	assert.ErrorIs(t, err, boom)
}

func TestFunctionToolRejectsMalformedArgs(t *testing.T) {
	ft := New(func(_ context.Context, args searchArgs) (searchResult, error) {
		return searchResult{}, nil
	}, WithName("search"))

	_, err := ft.Call(context.Background(), map[string]any{"limit": "not a number"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode args")
}

func TestFunctionToolRejectsNonObjectResult(t *testing.T) {
	ft := New(func(_ context.Context, _ searchArgs) (int, error) {
		return 42, nil
	}, WithName("scalar"))

	_, err := ft.Call(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not an object")
}
