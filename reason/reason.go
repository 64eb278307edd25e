//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

// Package reason defines the contract between the graph engine and the
// reasoning step that drives reasoning-loop nodes. The engine never
// interprets instructions or generates thoughts itself; it hands the
// node's working memory to a Reasoner and acts on the returned decision.
package reason

import "context"

// ToolRequest asks the engine to invoke one tool with structured input.
type ToolRequest struct {
	// Tool is the registered tool name.
	Tool string `json:"tool"`
	// Args is the structured input map.
	Args map[string]any `json:"args,omitempty"`
}

// Request is one turn of a reasoning loop.
type Request struct {
	// NodeID is the node being executed.
	NodeID string `json:"node_id"`
	// Instruction is the node's natural-language instruction.
	Instruction string `json:"instruction,omitempty"`
	// Memory is the node's working memory: projected inputs plus folded
	// tool results and partial outputs from earlier iterations.
	Memory map[string]any `json:"memory,omitempty"`
	// OutputKeys are the keys the node must produce to complete.
	OutputKeys []string `json:"output_keys,omitempty"`
	// Tools are the tool names the node may request.
	Tools []string `json:"tools,omitempty"`
	// RouteCandidates are the target node ids the reasoner may pick from
	// when the node has model-decides outgoing edges.
	RouteCandidates []string `json:"route_candidates,omitempty"`
	// Iteration is the 1-based loop iteration.
	Iteration int `json:"iteration"`
}

// Decision is the reasoner's answer for one turn: either tool requests
// to execute before the next turn, or (partial) final outputs. A node is
// complete only once every declared output key has a value.
type Decision struct {
	// ToolRequests, when non-empty, are executed and their results folded
	// back into working memory before the next turn.
	ToolRequests []ToolRequest `json:"tool_requests,omitempty"`
	// Outputs are produced output values, merged into the node's outputs.
	Outputs map[string]any `json:"outputs,omitempty"`
	// Route designates the next node for model-decides routing. It must
	// be one of the request's RouteCandidates.
	Route string `json:"route,omitempty"`
}

// Reasoner produces decisions for reasoning-loop turns. Implementations
// typically call an external model; the engine treats the call as an
// opaque suspension point and only requires ctx cancellation support.
type Reasoner interface {
	Decide(ctx context.Context, req *Request) (*Decision, error)
}

// Func adapts a function to the Reasoner interface.
type Func func(ctx context.Context, req *Request) (*Decision, error)

// Decide implements Reasoner.
func (f Func) Decide(ctx context.Context, req *Request) (*Decision, error) {
	return f(ctx, req)
}
