//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package graph

import "fmt"

// Router selects the next node after a completed one. Edges are evaluated
// in ascending priority with declaration order as the tie-break, so the
// choice is deterministic for identical context (model-decides routing
// excepted, where the reasoning step designates the target).
type Router struct {
	graph *Graph
}

// NewRouter creates a router over the given graph.
func NewRouter(g *Graph) *Router {
	return &Router{graph: g}
}

// Route returns the ordered candidate targets after nodeID completed.
// designated is the reasoner-chosen target for model-decides edges, empty
// otherwise. An empty slice means no edge matched: the implicit terminal
// condition. The executor follows the first candidate; there is no
// parallel fan-out.
func (r *Router) Route(nodeID string, execCtx *ExecContext, designated string) ([]string, error) {
	edges := r.graph.Edges(nodeID)
	if len(edges) == 0 {
		return nil, nil
	}

	var candidates []string
	modelEdges := 0
	for _, edge := range edges {
		switch edge.Condition {
		case ConditionAlways:
			candidates = append(candidates, edge.Target)
		case ConditionOnSuccess:
			if !execCtx.Failed {
				candidates = append(candidates, edge.Target)
			}
		case ConditionExpression:
			ok, err := evalExpression(edge.Expression, execCtx)
			if err != nil {
				return nil, fmt.Errorf("edge %s: %w", edgeLabel(edge), err)
			}
			if ok {
				candidates = append(candidates, edge.Target)
			}
		case ConditionModelDecides:
			modelEdges++
			if designated != "" && designated == edge.Target {
				candidates = append(candidates, edge.Target)
			}
		}
		// First satisfied condition wins; later edges are fallbacks only.
		if len(candidates) > 0 {
			return candidates[:1], nil
		}
	}

	if modelEdges > 0 && designated != "" {
		// The reasoner picked a target, but it is not among the declared
		// model-decides candidates.
		return nil, fmt.Errorf("%w: node %s designated %q", ErrInvalidRouteSelection, nodeID, designated)
	}
	return nil, nil
}

// Candidates returns the model-decides targets declared on nodeID, in
// priority order, for handing to the reasoning step.
func (r *Router) Candidates(nodeID string) []string {
	var targets []string
	for _, edge := range r.graph.Edges(nodeID) {
		if edge.Condition == ConditionModelDecides {
			targets = append(targets, edge.Target)
		}
	}
	return targets
}
