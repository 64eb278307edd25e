//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trpc.group/trpc-go/stepflow/event"
	"trpc.group/trpc-go/stepflow/graph"
	"trpc.group/trpc-go/stepflow/log"
	"trpc.group/trpc-go/stepflow/session"
)

// invocation is one admitted trigger awaiting or undergoing execution.
type invocation struct {
	id         string
	entryPoint *graph.EntryPointSpec
	input      map[string]any
}

// admission tracks per-entry-point in-flight executions and the overflow
// queue. Slots free as executions finish; queued invocations then run in
// arrival order.
type admission struct {
	spec     *graph.EntryPointSpec
	limit    int
	overflow graph.OverflowPolicy

	// slots holds one token per in-flight execution.
	slots chan struct{}
	// queue parks overflowed invocations until a slot frees.
	queue chan *invocation
}

func newAdmission(ep *graph.EntryPointSpec) *admission {
	limit := ep.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	overflow := ep.Overflow
	if overflow == "" {
		// Timers drop ticks that would overlap a still-running execution;
		// events wait their turn.
		if ep.Trigger == graph.TriggerEvent {
			overflow = graph.OverflowQueue
		} else {
			overflow = graph.OverflowReject
		}
	}
	return &admission{
		spec:     ep,
		limit:    limit,
		overflow: overflow,
		slots:    make(chan struct{}, limit),
		queue:    make(chan *invocation, defaultOverflowSize),
	}
}

// Trigger fires an entry point asynchronously. It returns the invocation
// id once the trigger is admitted or queued, or ErrAdmissionRejected when
// the entry point is saturated and configured to reject.
func (r *Runtime) Trigger(ctx context.Context, entryPointID string, input map[string]any) (string, error) {
	ep, ok := r.graph.EntryPoint(entryPointID)
	if !ok {
		return "", fmt.Errorf("%w: %s", graph.ErrEntryPointNotFound, entryPointID)
	}
	inv := &invocation{id: uuid.NewString(), entryPoint: ep, input: input}
	adm := r.admissions[entryPointID]

	select {
	case adm.slots <- struct{}{}:
		r.submit(ctx, adm, inv)
		return inv.id, nil
	default:
	}

	if adm.overflow == graph.OverflowQueue {
		select {
		case adm.queue <- inv:
			return inv.id, nil
		default:
		}
	}
	r.publishLifecycle(event.TypeInvocationRejected, inv, nil)
	return "", fmt.Errorf("%w: entry point %s at %d in-flight", graph.ErrAdmissionRejected, entryPointID, adm.limit)
}

// TriggerAndWait fires an entry point and blocks for the result. A zero
// timeout waits indefinitely. On timeout it returns (nil, nil): the
// execution keeps running in the background and its outcome lands in the
// session and on the event bus.
func (r *Runtime) TriggerAndWait(ctx context.Context, entryPointID string, input map[string]any, timeout time.Duration) (*graph.ExecutionResult, error) {
	ep, ok := r.graph.EntryPoint(entryPointID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrEntryPointNotFound, entryPointID)
	}
	adm := r.admissions[entryPointID]
	inv := &invocation{id: uuid.NewString(), entryPoint: ep, input: input}

	select {
	case adm.slots <- struct{}{}:
	default:
		if adm.overflow != graph.OverflowQueue {
			r.publishLifecycle(event.TypeInvocationRejected, inv, nil)
			return nil, fmt.Errorf("%w: entry point %s at %d in-flight", graph.ErrAdmissionRejected, entryPointID, adm.limit)
		}
		// Queue overflow policy: wait for a slot instead of parking the
		// invocation, since the caller is already blocking.
		select {
		case adm.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	type outcome struct {
		result *graph.ExecutionResult
		err    error
	}
	resultCh := make(chan outcome, 1)
	r.wg.Add(1)
	run := func() {
		defer r.wg.Done()
		defer r.releaseSlot(context.WithoutCancel(ctx), adm)
		result, err := r.run(context.WithoutCancel(ctx), adm, inv)
		resultCh <- outcome{result, err}
	}
	if err := r.pool.Submit(run); err != nil {
		r.wg.Done()
		<-adm.slots
		return nil, fmt.Errorf("submit invocation: %w", err)
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case out := <-resultCh:
		return out.result, out.err
	case <-timeoutCh:
		log.Warnf("invocation %s on %s still running after %s, detaching", inv.id, entryPointID, timeout)
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Resume continues a paused session: the latest checkpoint supplies the
// frontier and input is merged into the context before the pause node
// runs.
func (r *Runtime) Resume(ctx context.Context, sessionID string, input map[string]any) (*graph.ExecutionResult, error) {
	if r.checkpoints == nil {
		return nil, fmt.Errorf("resume requires a checkpoint manager")
	}
	execCtx, nodeID, ok, err := r.checkpoints.Restore(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", graph.ErrSessionNotFound, sessionID)
	}
	execCtx.InvocationID = uuid.NewString()
	for k, v := range input {
		execCtx.Outputs[k] = v
	}
	return r.executor.Execute(ctx, nodeID, execCtx)
}

// submit hands an admitted invocation to the pool. The slot is already
// held.
func (r *Runtime) submit(ctx context.Context, adm *admission, inv *invocation) {
	r.wg.Add(1)
	run := func() {
		defer r.wg.Done()
		defer r.releaseSlot(context.WithoutCancel(ctx), adm)
		if _, err := r.run(context.WithoutCancel(ctx), adm, inv); err != nil {
			log.Errorf("invocation %s on %s: %v", inv.id, inv.entryPoint.ID, err)
		}
	}
	if err := r.pool.Submit(run); err != nil {
		r.wg.Done()
		<-adm.slots
		log.Errorf("submit invocation %s: %v", inv.id, err)
	}
}

// releaseSlot frees one slot, promoting the next queued invocation if
// one is waiting.
func (r *Runtime) releaseSlot(ctx context.Context, adm *admission) {
	select {
	case next := <-adm.queue:
		// Keep the slot and hand it to the queued invocation.
		r.submit(ctx, adm, next)
	default:
		<-adm.slots
	}
}

// run resolves the session and executes the graph from the entry node.
func (r *Runtime) run(ctx context.Context, adm *admission, inv *invocation) (*graph.ExecutionResult, error) {
	key, seed, err := r.resolveSession(ctx, inv.entryPoint)
	if err != nil {
		return nil, err
	}

	execCtx := graph.NewExecContext(key.SessionID, inv.id)
	for k, v := range seed {
		execCtx.Outputs[k] = v
	}
	for k, v := range inv.input {
		execCtx.Outputs[k] = v
	}

	r.publishLifecycle(event.TypeInvocationStarted, inv, nil)
	result, execErr := r.executor.Execute(ctx, inv.entryPoint.EntryNode, execCtx)

	if result.Paused {
		r.publishPaused(inv, key.SessionID, result.PauseNode)
	} else {
		r.recordTurn(ctx, key, inv, result)
		r.publishLifecycle(event.TypeInvocationFinished, inv, result)
	}
	return result, execErr
}

// resolveSession maps an entry point to its session per its isolation
// level. Shared entry points pin one session keyed by the entry point id
// so repeated triggers accumulate state; isolated ones get a fresh
// session per trigger.
func (r *Runtime) resolveSession(ctx context.Context, ep *graph.EntryPointSpec) (session.Key, session.StateMap, error) {
	graphID := r.graph.ID()
	if ep.Isolation == graph.IsolationIsolated {
		sess, err := r.sessions.CreateSession(ctx, session.Key{GraphID: graphID}, nil)
		if err != nil {
			return session.Key{}, nil, fmt.Errorf("create session: %w", err)
		}
		return session.Key{GraphID: graphID, SessionID: sess.ID}, nil, nil
	}

	key := session.Key{GraphID: graphID, SessionID: "ep-" + ep.ID}
	sess, err := r.sessions.GetSession(ctx, key)
	if err != nil {
		return session.Key{}, nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		if sess, err = r.sessions.CreateSession(ctx, key, nil); err != nil {
			return session.Key{}, nil, fmt.Errorf("create session: %w", err)
		}
	}
	return key, sess.State, nil
}

// recordTurn appends the finished invocation to the session log and, for
// shared sessions, folds its outputs into session state.
func (r *Runtime) recordTurn(ctx context.Context, key session.Key, inv *invocation, result *graph.ExecutionResult) {
	turn := &session.Turn{
		ID:           inv.id,
		EntryPointID: inv.entryPoint.ID,
		Input:        inv.input,
		Outputs:      result.Outputs,
		Success:      result.Success,
		Timestamp:    time.Now().UTC(),
	}
	if err := r.sessions.AppendTurn(ctx, key, turn); err != nil {
		log.Warnf("append turn for session %s: %v", key.SessionID, err)
	}
	if inv.entryPoint.Isolation != graph.IsolationIsolated && result.Success {
		if err := r.sessions.UpdateState(ctx, key, result.Outputs); err != nil {
			log.Warnf("update state for session %s: %v", key.SessionID, err)
		}
	}
}

func (r *Runtime) publishLifecycle(eventType string, inv *invocation, result *graph.ExecutionResult) {
	e := event.New(eventType)
	e.Source = "runtime"
	e.Payload = map[string]any{
		"invocation_id":  inv.id,
		"entry_point_id": inv.entryPoint.ID,
	}
	if result != nil {
		e.Payload["success"] = result.Success
		e.Payload["steps"] = result.StepsExecuted
		if result.Error != "" {
			e.Payload["error"] = result.Error
		}
	}
	r.bus.Publish(e)
}

func (r *Runtime) publishPaused(inv *invocation, sessionID, pauseNode string) {
	e := event.New(event.TypeExecutionPaused)
	e.Source = "runtime"
	e.SessionID = sessionID
	e.NodeID = pauseNode
	e.Payload = map[string]any{
		"invocation_id":  inv.id,
		"entry_point_id": inv.entryPoint.ID,
	}
	r.bus.Publish(e)
}
