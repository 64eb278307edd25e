//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

// Package graph provides declarative step-graph specifications and the
// engine that executes them: nodes are bounded reasoning loops or direct
// tool calls, connected by conditional edges, entered through named entry
// points and resumable from checkpoints.
package graph

import (
	"fmt"
	"time"
)

// NodeKind identifies how a node executes.
type NodeKind string

const (
	// KindReasoningLoop is a bounded reason-and-act loop that may call tools.
	KindReasoningLoop NodeKind = "reasoning_loop"
	// KindDirectToolCall invokes a single tool without reasoning.
	KindDirectToolCall NodeKind = "direct_tool_call"
)

// EdgeCondition identifies when an edge fires.
type EdgeCondition string

const (
	// ConditionAlways fires unconditionally.
	ConditionAlways EdgeCondition = "always"
	// ConditionOnSuccess fires when the source node completed without failure.
	ConditionOnSuccess EdgeCondition = "on_success"
	// ConditionExpression fires when the edge expression evaluates true.
	ConditionExpression EdgeCondition = "expression"
	// ConditionModelDecides lets the reasoning step pick among candidates.
	ConditionModelDecides EdgeCondition = "model_decides"
)

// TriggerKind identifies what starts an entry point.
type TriggerKind string

const (
	// TriggerManual is an explicit caller-initiated trigger.
	TriggerManual TriggerKind = "manual"
	// TriggerWebhook is an inbound HTTP delivery.
	TriggerWebhook TriggerKind = "webhook"
	// TriggerTimer is a periodic tick.
	TriggerTimer TriggerKind = "timer"
	// TriggerEvent is an internal event-bus delivery.
	TriggerEvent TriggerKind = "event"
)

// IsolationLevel controls whether triggers of an entry point share state.
type IsolationLevel string

const (
	// IsolationShared resolves every trigger to one session keyed by the
	// entry point, so repeated triggers accumulate state.
	IsolationShared IsolationLevel = "shared"
	// IsolationIsolated creates a fresh session per trigger.
	IsolationIsolated IsolationLevel = "isolated"
)

// OverflowPolicy controls what happens to triggers above MaxConcurrent.
type OverflowPolicy string

const (
	// OverflowReject rejects the trigger with ErrAdmissionRejected.
	OverflowReject OverflowPolicy = "reject"
	// OverflowQueue parks the trigger in a bounded queue.
	OverflowQueue OverflowPolicy = "queue"
)

// ConversationMode controls whether the primary entry point accumulates
// conversation state across triggers.
type ConversationMode string

const (
	// ModeSingleShot starts fresh on every trigger.
	ModeSingleShot ConversationMode = "single_shot"
	// ModeContinuous keeps the session alive between triggers.
	ModeContinuous ConversationMode = "continuous"
)

// NodeSpec describes one step of the graph. It is immutable during
// execution; per-session visit counters live in ExecContext.
type NodeSpec struct {
	// ID is the unique node identifier within the graph.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable node name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// Description documents the node.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Kind selects the execution strategy.
	Kind NodeKind `json:"kind" yaml:"kind"`
	// InputKeys are the context keys projected into the node.
	InputKeys []string `json:"input_keys,omitempty" yaml:"input_keys,omitempty"`
	// OutputKeys are the keys the node must produce to complete.
	OutputKeys []string `json:"output_keys,omitempty" yaml:"output_keys,omitempty"`
	// Tools are the tool names the node may invoke.
	Tools []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	// MaxVisits caps visits per execution. Zero means unbounded.
	MaxVisits int `json:"max_visits,omitempty" yaml:"max_visits,omitempty"`
	// ClientFacing marks nodes that may block awaiting external input.
	ClientFacing bool `json:"client_facing,omitempty" yaml:"client_facing,omitempty"`
	// Instruction is the natural-language instruction handed to the
	// reasoner for reasoning-loop nodes. Its interpretation is outside
	// the engine.
	Instruction string `json:"instruction,omitempty" yaml:"instruction,omitempty"`
}

// EdgeSpec describes a conditional transition between two nodes.
type EdgeSpec struct {
	// ID optionally names the edge.
	ID string `json:"id,omitempty" yaml:"id,omitempty"`
	// Source is the source node id.
	Source string `json:"source" yaml:"source"`
	// Target is the target node id.
	Target string `json:"target" yaml:"target"`
	// Condition selects when the edge fires.
	Condition EdgeCondition `json:"condition" yaml:"condition"`
	// Expression is the boolean expression for ConditionExpression edges.
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
	// Priority orders evaluation; lower values are evaluated first.
	// Equal priorities preserve declaration order.
	Priority int `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// TriggerConfig carries trigger-kind specific configuration.
type TriggerConfig struct {
	// EventTypes filters event triggers; empty matches nothing.
	EventTypes []string `json:"event_types,omitempty" yaml:"event_types,omitempty"`
	// Interval is the tick period for timer triggers.
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	// Source identifies the webhook source for webhook triggers.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
	// Path is the HTTP path for webhook triggers.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
	// Methods are the accepted HTTP methods for webhook triggers.
	Methods []string `json:"methods,omitempty" yaml:"methods,omitempty"`
}

// EntryPointSpec names a way to start or resume graph execution.
type EntryPointSpec struct {
	// ID is the unique entry point identifier.
	ID string `json:"id" yaml:"id"`
	// Name is the human-readable entry point name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	// EntryNode is the node where execution starts.
	EntryNode string `json:"entry_node" yaml:"entry_node"`
	// Trigger selects what fires this entry point.
	Trigger TriggerKind `json:"trigger" yaml:"trigger"`
	// TriggerConfig carries trigger-specific settings.
	TriggerConfig TriggerConfig `json:"trigger_config,omitempty" yaml:"trigger_config,omitempty"`
	// Isolation controls session sharing across triggers.
	Isolation IsolationLevel `json:"isolation" yaml:"isolation"`
	// MaxConcurrent caps in-flight executions. Zero means 1.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
	// Overflow selects the admission policy above MaxConcurrent.
	// Defaults: timers reject (drop if still running), events queue.
	Overflow OverflowPolicy `json:"overflow,omitempty" yaml:"overflow,omitempty"`
}

// AsyncEntryPointSpec is an entry point restricted to asynchronous
// triggers (webhook, timer, event).
type AsyncEntryPointSpec = EntryPointSpec

// LoopLimits bounds an execution's resource use.
type LoopLimits struct {
	// MaxIterations caps node executions across one whole run.
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	// MaxToolCallsPerTurn caps reasoning-loop iterations per node visit.
	MaxToolCallsPerTurn int `json:"max_tool_calls_per_turn,omitempty" yaml:"max_tool_calls_per_turn,omitempty"`
	// MaxContextBytes caps the serialized context size. Zero disables.
	MaxContextBytes int `json:"max_context_bytes,omitempty" yaml:"max_context_bytes,omitempty"`
}

// DefaultLoopLimits mirrors the limits used by the stock agent templates.
func DefaultLoopLimits() LoopLimits {
	return LoopLimits{
		MaxIterations:       100,
		MaxToolCallsPerTurn: 20,
	}
}

// GraphSpec is the immutable description of one agent's step graph.
type GraphSpec struct {
	// ID identifies the graph.
	ID string `json:"id" yaml:"id"`
	// Version is the graph version string.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	// Nodes lists the graph nodes in declaration order.
	Nodes []*NodeSpec `json:"nodes" yaml:"nodes"`
	// Edges lists the transitions in declaration order.
	Edges []*EdgeSpec `json:"edges,omitempty" yaml:"edges,omitempty"`
	// EntryNode is the primary entry node.
	EntryNode string `json:"entry_node" yaml:"entry_node"`
	// EntryPoints lists named synchronous entry points.
	EntryPoints []*EntryPointSpec `json:"entry_points,omitempty" yaml:"entry_points,omitempty"`
	// AsyncEntryPoints lists event/timer/webhook entry points.
	AsyncEntryPoints []*AsyncEntryPointSpec `json:"async_entry_points,omitempty" yaml:"async_entry_points,omitempty"`
	// TerminalNodes lists nodes whose completion ends the run.
	TerminalNodes []string `json:"terminal_nodes,omitempty" yaml:"terminal_nodes,omitempty"`
	// PauseNodes lists client-facing nodes that suspend awaiting input.
	PauseNodes []string `json:"pause_nodes,omitempty" yaml:"pause_nodes,omitempty"`
	// Limits bounds execution resources.
	Limits LoopLimits `json:"limits,omitempty" yaml:"limits,omitempty"`
	// Mode selects single-shot or continuous conversation.
	Mode ConversationMode `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// ValidationReport collects structural validation findings.
type ValidationReport struct {
	// Errors are violations that make the graph unusable.
	Errors []string `json:"errors"`
	// Warnings are findings that do not block execution.
	Warnings []string `json:"warnings"`
}

// Valid reports whether no errors were found.
func (r *ValidationReport) Valid() bool { return len(r.Errors) == 0 }

func (r *ValidationReport) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationReport) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks the structural invariants of the spec: unique node ids,
// edge endpoints and entry targets resolving to declared nodes, and
// exactly one primary entry node.
func (s *GraphSpec) Validate() *ValidationReport {
	report := &ValidationReport{}
	if s.ID == "" {
		report.errorf("graph id is required")
	}
	nodeIDs := make(map[string]bool, len(s.Nodes))
	for _, node := range s.Nodes {
		if node.ID == "" {
			report.errorf("node id cannot be empty")
			continue
		}
		if nodeIDs[node.ID] {
			report.errorf("duplicate node id %q", node.ID)
		}
		nodeIDs[node.ID] = true
		switch node.Kind {
		case KindReasoningLoop, KindDirectToolCall:
		default:
			report.errorf("node %q has unknown kind %q", node.ID, node.Kind)
		}
		if node.Kind == KindDirectToolCall && len(node.Tools) == 0 {
			report.errorf("node %q is a direct tool call but declares no tools", node.ID)
		}
	}
	if s.EntryNode == "" {
		report.errorf("graph requires exactly one primary entry node")
	} else if !nodeIDs[s.EntryNode] {
		report.errorf("entry node %q not found", s.EntryNode)
	}
	for _, edge := range s.Edges {
		if !nodeIDs[edge.Source] {
			report.errorf("edge %s: source %q not found", edgeLabel(edge), edge.Source)
		}
		if !nodeIDs[edge.Target] {
			report.errorf("edge %s: target %q not found", edgeLabel(edge), edge.Target)
		}
		switch edge.Condition {
		case ConditionAlways, ConditionOnSuccess, ConditionModelDecides:
		case ConditionExpression:
			if edge.Expression == "" {
				report.errorf("edge %s: expression condition without expression", edgeLabel(edge))
			}
		default:
			report.errorf("edge %s: unknown condition %q", edgeLabel(edge), edge.Condition)
		}
	}
	entryIDs := make(map[string]bool)
	validateEntryPoint := func(ep *EntryPointSpec, async bool) {
		if ep.ID == "" {
			report.errorf("entry point id cannot be empty")
			return
		}
		if entryIDs[ep.ID] {
			report.errorf("duplicate entry point id %q", ep.ID)
		}
		entryIDs[ep.ID] = true
		if !nodeIDs[ep.EntryNode] {
			report.errorf("entry point %q references unknown node %q", ep.ID, ep.EntryNode)
		}
		if async && ep.Trigger == TriggerManual {
			report.errorf("async entry point %q cannot use a manual trigger", ep.ID)
		}
		if ep.Trigger == TriggerTimer && ep.TriggerConfig.Interval <= 0 {
			report.errorf("entry point %q is a timer without an interval", ep.ID)
		}
		if ep.Trigger == TriggerEvent && len(ep.TriggerConfig.EventTypes) == 0 {
			report.warnf("entry point %q subscribes to no event types", ep.ID)
		}
	}
	for _, ep := range s.EntryPoints {
		validateEntryPoint(ep, false)
	}
	for _, ep := range s.AsyncEntryPoints {
		validateEntryPoint(ep, true)
	}
	for _, id := range s.TerminalNodes {
		if !nodeIDs[id] {
			report.errorf("terminal node %q not found", id)
		}
	}
	for _, id := range s.PauseNodes {
		if !nodeIDs[id] {
			report.errorf("pause node %q not found", id)
		}
	}
	return report
}

func edgeLabel(e *EdgeSpec) string {
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("%s->%s", e.Source, e.Target)
}
