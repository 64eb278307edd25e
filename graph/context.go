//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package graph

// ExecContext is the mutable state of one running execution: accumulated
// outputs, per-node visit counters and the current node pointer. It is
// owned exclusively by one Executor run; cross-execution state goes
// through the session store instead.
type ExecContext struct {
	// SessionID is the owning session.
	SessionID string `json:"session_id"`
	// InvocationID identifies this execution.
	InvocationID string `json:"invocation_id"`
	// Current is the node being (or about to be) executed.
	Current string `json:"current"`
	// Outputs maps output keys to values accumulated as nodes complete.
	// Later values overwrite earlier ones for the same key.
	Outputs map[string]any `json:"outputs"`
	// Visits counts node entries within this execution.
	Visits map[string]int `json:"visits"`
	// Failed marks that the last node failed; error-handling edges match
	// against it.
	Failed bool `json:"failed,omitempty"`
	// FailureMessage carries the failure description when Failed is set.
	FailureMessage string `json:"failure_message,omitempty"`
}

// NewExecContext creates a fresh context for a session.
func NewExecContext(sessionID, invocationID string) *ExecContext {
	return &ExecContext{
		SessionID:    sessionID,
		InvocationID: invocationID,
		Outputs:      make(map[string]any),
		Visits:       make(map[string]int),
	}
}

// Clone returns a copy sharing no mutable state with the original.
func (c *ExecContext) Clone() *ExecContext {
	clone := &ExecContext{
		SessionID:      c.SessionID,
		InvocationID:   c.InvocationID,
		Current:        c.Current,
		Outputs:        make(map[string]any, len(c.Outputs)),
		Visits:         make(map[string]int, len(c.Visits)),
		Failed:         c.Failed,
		FailureMessage: c.FailureMessage,
	}
	for k, v := range c.Outputs {
		clone.Outputs[k] = v
	}
	for k, v := range c.Visits {
		clone.Visits[k] = v
	}
	return clone
}

// merge folds a completed node's declared outputs into the context.
func (c *ExecContext) merge(outputs map[string]any) {
	for k, v := range outputs {
		c.Outputs[k] = v
	}
}

// project selects the node's declared input keys from the context.
// Keys without a value are simply absent.
func (c *ExecContext) project(keys []string) map[string]any {
	inputs := make(map[string]any, len(keys))
	for _, key := range keys {
		if v, ok := c.Outputs[key]; ok {
			inputs[key] = v
		}
	}
	return inputs
}

// ExecutionResult is the immutable terminal artifact of one run.
type ExecutionResult struct {
	// Success reports whether the run completed without failure.
	Success bool `json:"success"`
	// StepsExecuted counts node executions in the run.
	StepsExecuted int `json:"steps_executed"`
	// Outputs is the final output map.
	Outputs map[string]any `json:"outputs,omitempty"`
	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
	// Paused reports the run reached a pause node and awaits input.
	Paused bool `json:"paused,omitempty"`
	// PauseNode is the node awaiting input when Paused is set.
	PauseNode string `json:"pause_node,omitempty"`
}
