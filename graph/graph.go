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
	"fmt"
	"sort"
	"strings"
)

// Graph is a compiled, validated GraphSpec with the lookup structures the
// executor and router need. It is immutable after Compile and safe for
// concurrent use by many executions.
type Graph struct {
	spec     *GraphSpec
	nodes    map[string]*NodeSpec
	edges    map[string][]*EdgeSpec
	terminal map[string]bool
	pause    map[string]bool
	entries  map[string]*EntryPointSpec
}

// Compile validates the spec and builds a Graph from it.
func Compile(spec *GraphSpec) (*Graph, error) {
	report := spec.Validate()
	if !report.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrGraphInvalid, strings.Join(report.Errors, "; "))
	}
	g := &Graph{
		spec:     spec,
		nodes:    make(map[string]*NodeSpec, len(spec.Nodes)),
		edges:    make(map[string][]*EdgeSpec),
		terminal: make(map[string]bool, len(spec.TerminalNodes)),
		pause:    make(map[string]bool, len(spec.PauseNodes)),
		entries:  make(map[string]*EntryPointSpec),
	}
	for _, node := range spec.Nodes {
		g.nodes[node.ID] = node
	}
	for _, edge := range spec.Edges {
		g.edges[edge.Source] = append(g.edges[edge.Source], edge)
	}
	// Ascending priority; declaration order is the tie-break. SliceStable
	// keeps the router deterministic for equal priorities.
	for source := range g.edges {
		sort.SliceStable(g.edges[source], func(i, j int) bool {
			return g.edges[source][i].Priority < g.edges[source][j].Priority
		})
	}
	for _, id := range spec.TerminalNodes {
		g.terminal[id] = true
	}
	for _, id := range spec.PauseNodes {
		g.pause[id] = true
	}
	for _, ep := range spec.EntryPoints {
		g.entries[ep.ID] = ep
	}
	for _, ep := range spec.AsyncEntryPoints {
		g.entries[ep.ID] = ep
	}
	return g, nil
}

// Spec returns the underlying spec.
func (g *Graph) Spec() *GraphSpec { return g.spec }

// ID returns the graph id.
func (g *Graph) ID() string { return g.spec.ID }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*NodeSpec, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// Edges returns the outgoing edges of a node, sorted by ascending
// priority with declaration order preserved for equal priorities.
func (g *Graph) Edges(nodeID string) []*EdgeSpec {
	return g.edges[nodeID]
}

// EntryNode returns the primary entry node id.
func (g *Graph) EntryNode() string { return g.spec.EntryNode }

// IsTerminal reports whether the node ends the run on completion.
func (g *Graph) IsTerminal(nodeID string) bool { return g.terminal[nodeID] }

// IsPause reports whether the node suspends awaiting external input.
func (g *Graph) IsPause(nodeID string) bool { return g.pause[nodeID] }

// EntryPoint returns the entry point with the given id.
func (g *Graph) EntryPoint(id string) (*EntryPointSpec, bool) {
	ep, ok := g.entries[id]
	return ep, ok
}

// EntryPoints returns all entry points keyed by id.
func (g *Graph) EntryPoints() map[string]*EntryPointSpec {
	out := make(map[string]*EntryPointSpec, len(g.entries))
	for id, ep := range g.entries {
		out[id] = ep
	}
	return out
}

// Limits returns the graph's loop limits with defaults applied.
func (g *Graph) Limits() LoopLimits {
	limits := g.spec.Limits
	if limits.MaxIterations <= 0 {
		limits.MaxIterations = DefaultLoopLimits().MaxIterations
	}
	if limits.MaxToolCallsPerTurn <= 0 {
		limits.MaxToolCallsPerTurn = DefaultLoopLimits().MaxToolCallsPerTurn
	}
	return limits
}
