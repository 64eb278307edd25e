//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package graph

// Builder provides a fluent interface for assembling a GraphSpec and
// compiling it into an executable Graph.
//
// Example usage:
//
//	g, err := graph.NewBuilder("inbox-guardian").
//	  AddNode(&graph.NodeSpec{ID: "intake", Kind: graph.KindReasoningLoop}).
//	  AddEdge(&graph.EdgeSpec{Source: "intake", Target: "intake", Condition: graph.ConditionOnSuccess}).
//	  SetEntryNode("intake").
//	  Compile()
type Builder struct {
	spec *GraphSpec
}

// NewBuilder creates a builder for a graph with the given id.
func NewBuilder(id string) *Builder {
	return &Builder{spec: &GraphSpec{ID: id, Mode: ModeSingleShot}}
}

// SetVersion sets the graph version string.
func (b *Builder) SetVersion(version string) *Builder {
	b.spec.Version = version
	return b
}

// AddNode appends a node in declaration order.
func (b *Builder) AddNode(node *NodeSpec) *Builder {
	b.spec.Nodes = append(b.spec.Nodes, node)
	return b
}

// AddEdge appends an edge in declaration order.
func (b *Builder) AddEdge(edge *EdgeSpec) *Builder {
	b.spec.Edges = append(b.spec.Edges, edge)
	return b
}

// SetEntryNode sets the primary entry node.
func (b *Builder) SetEntryNode(nodeID string) *Builder {
	b.spec.EntryNode = nodeID
	return b
}

// AddEntryPoint appends a named synchronous entry point.
func (b *Builder) AddEntryPoint(ep *EntryPointSpec) *Builder {
	b.spec.EntryPoints = append(b.spec.EntryPoints, ep)
	return b
}

// AddAsyncEntryPoint appends an event/timer/webhook entry point.
func (b *Builder) AddAsyncEntryPoint(ep *AsyncEntryPointSpec) *Builder {
	b.spec.AsyncEntryPoints = append(b.spec.AsyncEntryPoints, ep)
	return b
}

// SetTerminalNodes sets the terminal node set.
func (b *Builder) SetTerminalNodes(ids ...string) *Builder {
	b.spec.TerminalNodes = ids
	return b
}

// SetPauseNodes sets the pause node set.
func (b *Builder) SetPauseNodes(ids ...string) *Builder {
	b.spec.PauseNodes = ids
	return b
}

// SetLimits sets the loop limits.
func (b *Builder) SetLimits(limits LoopLimits) *Builder {
	b.spec.Limits = limits
	return b
}

// SetMode sets the conversation mode.
func (b *Builder) SetMode(mode ConversationMode) *Builder {
	b.spec.Mode = mode
	return b
}

// Spec returns the assembled spec without compiling it.
func (b *Builder) Spec() *GraphSpec { return b.spec }

// Compile validates the assembled spec and returns the executable graph.
func (b *Builder) Compile() (*Graph, error) {
	return Compile(b.spec)
}
