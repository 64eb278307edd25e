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
	"fmt"
	"time"

	"trpc.group/trpc-go/stepflow/log"
	"trpc.group/trpc-go/stepflow/reason"
	"trpc.group/trpc-go/stepflow/tool"
)

// stepOutcome is the result of running one node to completion.
type stepOutcome struct {
	outputs map[string]any
	// route is the reasoner-designated target for model-decides routing.
	route string
}

// stepExecutor runs exactly one node: a single direct tool invocation or
// a bounded reasoning loop.
type stepExecutor struct {
	registry    *tool.Registry
	reasoner    reason.Reasoner
	toolTimeout time.Duration
	limits      LoopLimits
}

func (s *stepExecutor) run(ctx context.Context, node *NodeSpec, execCtx *ExecContext, candidates []string) (*stepOutcome, error) {
	switch node.Kind {
	case KindDirectToolCall:
		return s.runDirectToolCall(ctx, node, execCtx)
	case KindReasoningLoop:
		return s.runReasoningLoop(ctx, node, execCtx, candidates)
	default:
		return nil, fmt.Errorf("node %s: unknown kind %q", node.ID, node.Kind)
	}
}

// runDirectToolCall invokes the node's tool with inputs drawn from
// context and maps the result onto the declared output keys.
func (s *stepExecutor) runDirectToolCall(ctx context.Context, node *NodeSpec, execCtx *ExecContext) (*stepOutcome, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("%w: node %s has no tool registry", ErrToolInvocation, node.ID)
	}
	inputs := execCtx.project(node.InputKeys)
	outputs := make(map[string]any)
	for _, name := range node.Tools {
		result, err := s.registry.Invoke(ctx, name, inputs, s.toolTimeout)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %v", ErrToolInvocation, node.ID, err)
		}
		mapToolResult(node.OutputKeys, result, outputs)
	}
	if missing := missingKeys(node.OutputKeys, outputs); len(missing) > 0 {
		return nil, fmt.Errorf("%w: node %s: tool results missing output keys %v",
			ErrToolInvocation, node.ID, missing)
	}
	return &stepOutcome{outputs: outputs}, nil
}

// mapToolResult projects a tool's result map onto declared output keys.
// Keys present in the result are taken directly; when the node declares a
// single output key the result does not contain, the whole result map
// becomes that key's value.
func mapToolResult(outputKeys []string, result, outputs map[string]any) {
	matched := false
	for _, key := range outputKeys {
		if v, ok := result[key]; ok {
			outputs[key] = v
			matched = true
		}
	}
	if !matched && len(outputKeys) == 1 {
		outputs[outputKeys[0]] = result
	}
}

// runReasoningLoop iterates the reasoner up to the tool-call budget.
// Each turn yields either tool requests (executed and folded back into
// working memory) or output values. The node completes only when every
// declared output key has a value; budget exhaustion is a failure, not a
// partial success.
func (s *stepExecutor) runReasoningLoop(ctx context.Context, node *NodeSpec, execCtx *ExecContext, candidates []string) (*stepOutcome, error) {
	if s.reasoner == nil {
		return nil, fmt.Errorf("node %s: no reasoner configured", node.ID)
	}
	memory := execCtx.project(node.InputKeys)
	produced := make(map[string]any)
	route := ""

	budget := s.limits.MaxToolCallsPerTurn
	for iteration := 1; iteration <= budget; iteration++ {
		decision, err := s.reasoner.Decide(ctx, &reason.Request{
			NodeID:          node.ID,
			Instruction:     node.Instruction,
			Memory:          memory,
			OutputKeys:      node.OutputKeys,
			Tools:           node.Tools,
			RouteCandidates: candidates,
			Iteration:       iteration,
		})
		if err != nil {
			return nil, fmt.Errorf("node %s: reasoner: %w", node.ID, err)
		}
		if decision.Route != "" {
			route = decision.Route
		}
		for k, v := range decision.Outputs {
			produced[k] = v
			memory[k] = v
		}
		if len(decision.ToolRequests) == 0 && complete(node.OutputKeys, produced) {
			return &stepOutcome{outputs: produced, route: route}, nil
		}
		for _, req := range decision.ToolRequests {
			if !allowedTool(node.Tools, req.Tool) {
				return nil, fmt.Errorf("%w: node %s: tool %s not declared", ErrToolInvocation, node.ID, req.Tool)
			}
			if s.registry == nil {
				return nil, fmt.Errorf("%w: node %s has no tool registry", ErrToolInvocation, node.ID)
			}
			result, err := s.registry.Invoke(ctx, req.Tool, req.Args, s.toolTimeout)
			if err != nil {
				return nil, fmt.Errorf("%w: node %s: %v", ErrToolInvocation, node.ID, err)
			}
			for k, v := range result {
				memory[k] = v
			}
			log.Debugf("node %s iteration %d: tool %s returned %d keys",
				node.ID, iteration, req.Tool, len(result))
		}
	}
	return nil, fmt.Errorf("%w: node %s after %d iterations, missing %v",
		ErrLoopBudgetExceeded, node.ID, budget, missingKeys(node.OutputKeys, produced))
}

func complete(keys []string, produced map[string]any) bool {
	for _, key := range keys {
		if _, ok := produced[key]; !ok {
			return false
		}
	}
	return true
}

func missingKeys(keys []string, produced map[string]any) []string {
	var missing []string
	for _, key := range keys {
		if _, ok := produced[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

func allowedTool(declared []string, name string) bool {
	if len(declared) == 0 {
		return false
	}
	for _, t := range declared {
		if t == name {
			return true
		}
	}
	return false
}
