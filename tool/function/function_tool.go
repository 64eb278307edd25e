//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

// Package function provides function-based tool implementations.
package function

import (
	"context"
	"encoding/json"
	"fmt"

	"trpc.group/trpc-go/stepflow/tool"
)

// FunctionTool wraps a plain Go function as a CallableTool. Input maps are
// decoded into I through JSON, and the returned O is encoded back into an
// output map. O must therefore marshal to a JSON object.
type FunctionTool[I, O any] struct {
	name        string
	description string
	fn          func(context.Context, I) (O, error)
}

// Option is a function that configures a FunctionTool.
type Option func(*options)

type options struct {
	name        string
	description string
}

// WithName sets the name of the function tool.
func WithName(name string) Option {
	return func(opts *options) {
		opts.name = name
	}
}

// WithDescription sets the description of the function tool.
func WithDescription(description string) Option {
	return func(opts *options) {
		opts.description = description
	}
}

// New creates a new FunctionTool wrapping fn.
func New[I, O any](fn func(context.Context, I) (O, error), opts ...Option) *FunctionTool[I, O] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return &FunctionTool[I, O]{
		name:        o.name,
		description: o.description,
		fn:          fn,
	}
}

// Declaration returns the tool's declaration.
func (t *FunctionTool[I, O]) Declaration() *tool.Declaration {
	return &tool.Declaration{
		Name:        t.name,
		Description: t.description,
	}
}

// Call invokes the wrapped function with args decoded into I.
func (t *FunctionTool[I, O]) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args for %s: %w", t.name, err)
	}
	var in I
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode args for %s: %w", t.name, err)
	}
	out, err := t.fn(ctx, in)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshal result of %s: %w", t.name, err)
	}
	result := make(map[string]any)
	if err := json.Unmarshal(encoded, &result); err != nil {
		return nil, fmt.Errorf("tool %s result is not an object: %w", t.name, err)
	}
	return result, nil
}

var _ tool.CallableTool = (*FunctionTool[struct{}, struct{}])(nil)
