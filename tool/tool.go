//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

// Package tool defines the invocation contract between the graph engine and
// external actions. The engine treats every tool as an opaque function keyed
// by name: structured input map in, structured output map or error out.
package tool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when a tool name cannot be resolved.
var ErrNotFound = errors.New("tool not found")

// Schema describes the shape of a tool's input or output map.
type Schema struct {
	// Type is the JSON schema type, usually "object".
	Type string `json:"type,omitempty"`
	// Description documents the value.
	Description string `json:"description,omitempty"`
	// Properties describes object members.
	Properties map[string]*Schema `json:"properties,omitempty"`
	// Required lists mandatory member names.
	Required []string `json:"required,omitempty"`
	// Items describes array elements.
	Items *Schema `json:"items,omitempty"`
}

// Declaration describes a tool to the engine and to reasoning steps.
type Declaration struct {
	// Name is the unique tool name used for resolution.
	Name string `json:"name"`
	// Description is the human-readable tool description.
	Description string `json:"description,omitempty"`
	// InputSchema describes the expected input map.
	InputSchema *Schema `json:"input_schema,omitempty"`
	// OutputSchema describes the produced output map.
	OutputSchema *Schema `json:"output_schema,omitempty"`
}

// Tool is the minimal interface all tools implement.
type Tool interface {
	// Declaration returns the tool's declaration.
	Declaration() *Declaration
}

// CallableTool is a tool that can be invoked synchronously.
type CallableTool interface {
	Tool

	// Call invokes the tool with a structured input map and returns a
	// structured output map. Implementations must honor ctx cancellation.
	Call(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Registry resolves tool names to invocable actions.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]CallableTool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]CallableTool)}
}

// Register adds a tool to the registry. Registering a name twice replaces
// the previous tool.
func (r *Registry) Register(t CallableTool) error {
	if t == nil {
		return errors.New("tool is nil")
	}
	decl := t.Declaration()
	if decl == nil || decl.Name == "" {
		return errors.New("tool declaration requires a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[decl.Name] = t
	return nil
}

// Resolve returns the tool registered under name.
func (r *Registry) Resolve(name string) (CallableTool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke resolves and calls a tool by name. A non-zero timeout bounds the
// call; zero means the caller's ctx alone governs cancellation.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, timeout time.Duration) (map[string]any, error) {
	t, ok := r.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	out, err := t.Call(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	return out, nil
}
