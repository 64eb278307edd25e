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
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"trpc.group/trpc-go/stepflow/event"
	"trpc.group/trpc-go/stepflow/log"
	"trpc.group/trpc-go/stepflow/reason"
	"trpc.group/trpc-go/stepflow/tool"
)

var tracer = otel.Tracer("trpc.group/trpc-go/stepflow/graph")

// Executor drives one execution: it walks the graph node by node until a
// terminal node completes, a pause node is reached, a limit is hit, or a
// node fails unrecoverably. One Executor serves many concurrent
// executions; all per-run state lives in the ExecContext.
type Executor struct {
	graph       *Graph
	router      *Router
	steps       *stepExecutor
	checkpoints *CheckpointManager
	bus         *event.Bus
	strict      bool
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorOptions)

type executorOptions struct {
	registry    *tool.Registry
	reasoner    reason.Reasoner
	checkpoints *CheckpointManager
	bus         *event.Bus
	toolTimeout time.Duration
	strict      bool
}

// WithToolRegistry sets the tool registry used by nodes.
func WithToolRegistry(r *tool.Registry) ExecutorOption {
	return func(o *executorOptions) { o.registry = r }
}

// WithReasoner sets the reasoner driving reasoning-loop nodes.
func WithReasoner(r reason.Reasoner) ExecutorOption {
	return func(o *executorOptions) { o.reasoner = r }
}

// WithCheckpointManager enables checkpointing through the given manager.
func WithCheckpointManager(m *CheckpointManager) ExecutorOption {
	return func(o *executorOptions) { o.checkpoints = m }
}

// WithToolTimeout bounds each tool invocation.
func WithToolTimeout(d time.Duration) ExecutorOption {
	return func(o *executorOptions) { o.toolTimeout = d }
}

// WithEventBus publishes node lifecycle events to the given bus.
func WithEventBus(b *event.Bus) ExecutorOption {
	return func(o *executorOptions) { o.bus = b }
}

// WithStrictRouting makes a dead end (no edge matched on a non-terminal
// node) fail with ErrDeadEnd instead of ending the run implicitly.
func WithStrictRouting(strict bool) ExecutorOption {
	return func(o *executorOptions) { o.strict = strict }
}

// NewExecutor creates an executor over a compiled graph.
func NewExecutor(g *Graph, opts ...ExecutorOption) (*Executor, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	var options executorOptions
	for _, opt := range opts {
		opt(&options)
	}
	return &Executor{
		graph:  g,
		router: NewRouter(g),
		steps: &stepExecutor{
			registry:    options.registry,
			reasoner:    options.reasoner,
			toolTimeout: options.toolTimeout,
			limits:      g.Limits(),
		},
		checkpoints: options.checkpoints,
		bus:         options.bus,
		strict:      options.strict,
	}, nil
}

// Execute runs nodes from startNode until the run ends. It always
// returns a non-nil ExecutionResult; err is non-nil when the run ended
// in failure and wraps the matching taxonomy sentinel.
func (e *Executor) Execute(ctx context.Context, startNode string, execCtx *ExecContext) (*ExecutionResult, error) {
	limits := e.graph.Limits()
	current := startNode
	steps := 0

	for {
		select {
		case <-ctx.Done():
			return e.fail(execCtx, steps, ctx.Err())
		default:
		}

		if steps >= limits.MaxIterations {
			return e.fail(execCtx, steps, fmt.Errorf("%w: %d iterations", ErrLimitExceeded, steps))
		}

		node, ok := e.graph.Node(current)
		if !ok {
			return e.fail(execCtx, steps, fmt.Errorf("node %s not found", current))
		}

		execCtx.Current = current
		execCtx.Visits[current]++
		if node.MaxVisits > 0 && execCtx.Visits[current] > node.MaxVisits {
			return e.fail(execCtx, steps, fmt.Errorf("%w: node %s visited %d of %d times",
				ErrLimitExceeded, current, execCtx.Visits[current], node.MaxVisits))
		}

		if err := e.checkpoint(ctx, execCtx, checkpointOnStart); err != nil {
			return e.fail(execCtx, steps, err)
		}

		candidates := e.router.Candidates(current)
		outcome, stepErr := e.runStep(ctx, node, execCtx, candidates)
		steps++

		if stepErr != nil {
			// Partial outputs from a failed node are discarded, never
			// merged. Error-handling edges match against the failure
			// marker through the same routing mechanism as success.
			execCtx.Failed = true
			execCtx.FailureMessage = stepErr.Error()
			next, routeErr := e.nextNode(current, execCtx, "")
			if routeErr != nil || next == "" {
				return e.fail(execCtx, steps, stepErr)
			}
			log.Debugf("node %s failed, error edge to %s: %v", current, next, stepErr)
			execCtx.Failed = false // handled; FailureMessage stays readable
			if paused, result := e.pauseIfNeeded(ctx, execCtx, steps, next); paused {
				return result, nil
			}
			current = next
			continue
		}

		execCtx.merge(outcome.outputs)
		execCtx.Failed = false
		execCtx.FailureMessage = ""

		if limits.MaxContextBytes > 0 {
			if size := contextSize(execCtx); size > limits.MaxContextBytes {
				return e.fail(execCtx, steps, fmt.Errorf("%w: context size %d exceeds %d",
					ErrLimitExceeded, size, limits.MaxContextBytes))
			}
		}

		if err := e.checkpoint(ctx, execCtx, checkpointOnComplete); err != nil {
			return e.fail(execCtx, steps, err)
		}

		if e.graph.IsTerminal(current) {
			return e.succeed(execCtx, steps), nil
		}

		next, err := e.nextNode(current, execCtx, outcome.route)
		if err != nil {
			return e.fail(execCtx, steps, err)
		}
		if next == "" {
			// Implicit terminal: the run ends in the current node with a
			// result assembled from the context.
			if e.strict {
				return e.fail(execCtx, steps, fmt.Errorf("%w: node %s", ErrDeadEnd, current))
			}
			return e.succeed(execCtx, steps), nil
		}
		if paused, result := e.pauseIfNeeded(ctx, execCtx, steps, next); paused {
			return result, nil
		}
		current = next
	}
}

// runStep executes one node inside a span.
func (e *Executor) runStep(ctx context.Context, node *NodeSpec, execCtx *ExecContext, candidates []string) (*stepOutcome, error) {
	ctx, span := tracer.Start(ctx, "graph.node",
		trace.WithAttributes(
			attribute.String("node.id", node.ID),
			attribute.String("node.kind", string(node.Kind)),
			attribute.String("session.id", execCtx.SessionID),
		))
	defer span.End()
	e.publishNodeEvent(event.TypeNodeStarted, node.ID, execCtx, nil)
	outcome, err := e.steps.run(ctx, node, execCtx, candidates)
	if err != nil {
		span.RecordError(err)
		e.publishNodeEvent(event.TypeNodeFailed, node.ID, execCtx, err)
	} else {
		e.publishNodeEvent(event.TypeNodeCompleted, node.ID, execCtx, nil)
	}
	return outcome, err
}

func (e *Executor) publishNodeEvent(eventType, nodeID string, execCtx *ExecContext, cause error) {
	if e.bus == nil {
		return
	}
	ev := event.New(eventType)
	ev.Source = "executor"
	ev.SessionID = execCtx.SessionID
	ev.NodeID = nodeID
	if cause != nil {
		ev.Payload = map[string]any{"error": cause.Error()}
	}
	e.bus.Publish(ev)
}

// nextNode asks the router for the next node; "" means no edge matched.
func (e *Executor) nextNode(current string, execCtx *ExecContext, designated string) (string, error) {
	targets, err := e.router.Route(current, execCtx, designated)
	if err != nil {
		return "", err
	}
	if len(targets) == 0 {
		return "", nil
	}
	return targets[0], nil
}

// pauseIfNeeded suspends the run before entering a pause node. The
// frontier is checkpointed so the node is resumable rather than held in
// memory.
func (e *Executor) pauseIfNeeded(ctx context.Context, execCtx *ExecContext, steps int, next string) (bool, *ExecutionResult) {
	if !e.graph.IsPause(next) {
		return false, nil
	}
	execCtx.Current = next
	if e.checkpoints != nil {
		if err := e.checkpoints.Save(ctx, execCtx); err != nil {
			log.Errorf("pause checkpoint for session %s: %v", execCtx.SessionID, err)
		}
	}
	return true, &ExecutionResult{
		Success:       true,
		StepsExecuted: steps,
		Outputs:       execCtx.Clone().Outputs,
		Paused:        true,
		PauseNode:     next,
	}
}

type checkpointPoint int

const (
	checkpointOnStart checkpointPoint = iota
	checkpointOnComplete
)

func (e *Executor) checkpoint(ctx context.Context, execCtx *ExecContext, point checkpointPoint) error {
	if e.checkpoints == nil {
		return nil
	}
	cfg := e.checkpoints.Config()
	if point == checkpointOnStart && !cfg.OnNodeStart {
		return nil
	}
	if point == checkpointOnComplete && !cfg.OnNodeComplete {
		return nil
	}
	return e.checkpoints.Save(ctx, execCtx)
}

func (e *Executor) succeed(execCtx *ExecContext, steps int) *ExecutionResult {
	return &ExecutionResult{
		Success:       true,
		StepsExecuted: steps,
		Outputs:       execCtx.Clone().Outputs,
	}
}

func (e *Executor) fail(execCtx *ExecContext, steps int, err error) (*ExecutionResult, error) {
	return &ExecutionResult{
		Success:       false,
		StepsExecuted: steps,
		Outputs:       execCtx.Clone().Outputs,
		Error:         err.Error(),
	}, err
}

func contextSize(execCtx *ExecContext) int {
	raw, err := json.Marshal(execCtx.Outputs)
	if err != nil {
		return 0
	}
	return len(raw)
}
