//
// Tencent is pleased to support the open source community by making stepflow available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// stepflow is licensed under the Apache License Version 2.0.
//
//

// Package runtime hosts graph executions behind their entry points: it
// resolves sessions, enforces per-entry-point admission limits, and wires
// webhook, timer and event triggers to the executor.
package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/stepflow/event"
	"trpc.group/trpc-go/stepflow/graph"
	"trpc.group/trpc-go/stepflow/log"
	"trpc.group/trpc-go/stepflow/reason"
	"trpc.group/trpc-go/stepflow/session"
	sessioninmemory "trpc.group/trpc-go/stepflow/session/inmemory"
	"trpc.group/trpc-go/stepflow/tool"
)

const (
	defaultPoolSize     = 64
	defaultOverflowSize = 16
)

// Runtime hosts one graph and its entry points.
type Runtime struct {
	graph    *graph.Graph
	executor *graph.Executor
	sessions session.Service
	bus      *event.Bus

	checkpoints *graph.CheckpointManager
	pool        *ants.Pool
	server      *webhookServer

	mu         sync.Mutex
	admissions map[string]*admission
	started    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// Option configures a Runtime.
type Option func(*options)

type options struct {
	registry    *tool.Registry
	reasoner    reason.Reasoner
	sessions    session.Service
	bus         *event.Bus
	checkpoints *graph.CheckpointManager
	poolSize    int
	toolTimeout time.Duration
	strict      bool
	serverAddr  string
	serverCORS  []string
}

// WithToolRegistry sets the tool registry nodes resolve tools from.
func WithToolRegistry(r *tool.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithReasoner sets the reasoner driving reasoning-loop nodes.
func WithReasoner(r reason.Reasoner) Option {
	return func(o *options) { o.reasoner = r }
}

// WithSessionService sets the session backend. Defaults to in-memory.
func WithSessionService(s session.Service) Option {
	return func(o *options) { o.sessions = s }
}

// WithEventBus sets the event bus. Defaults to a private bus.
func WithEventBus(b *event.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithCheckpointManager enables checkpointing and resume.
func WithCheckpointManager(m *graph.CheckpointManager) Option {
	return func(o *options) { o.checkpoints = m }
}

// WithPoolSize sets the async worker pool size.
func WithPoolSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.poolSize = n
		}
	}
}

// WithToolTimeout bounds each tool invocation.
func WithToolTimeout(d time.Duration) Option {
	return func(o *options) { o.toolTimeout = d }
}

// WithStrictRouting makes routing dead ends fail executions.
func WithStrictRouting(strict bool) Option {
	return func(o *options) { o.strict = strict }
}

// WithWebhookServer enables the inbound HTTP server on addr. Origins
// configure CORS; empty allows no cross-origin callers.
func WithWebhookServer(addr string, origins ...string) Option {
	return func(o *options) {
		o.serverAddr = addr
		o.serverCORS = origins
	}
}

// New creates a runtime over a compiled graph.
func New(g *graph.Graph, opts ...Option) (*Runtime, error) {
	if g == nil {
		return nil, fmt.Errorf("graph is nil")
	}
	o := options{poolSize: defaultPoolSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sessions == nil {
		o.sessions = sessioninmemory.NewService()
	}
	if o.bus == nil {
		o.bus = event.NewBus()
	}

	executor, err := graph.NewExecutor(g,
		graph.WithToolRegistry(o.registry),
		graph.WithReasoner(o.reasoner),
		graph.WithCheckpointManager(o.checkpoints),
		graph.WithEventBus(o.bus),
		graph.WithToolTimeout(o.toolTimeout),
		graph.WithStrictRouting(o.strict),
	)
	if err != nil {
		return nil, err
	}
	pool, err := ants.NewPool(o.poolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	r := &Runtime{
		graph:       g,
		executor:    executor,
		sessions:    o.sessions,
		bus:         o.bus,
		checkpoints: o.checkpoints,
		pool:        pool,
		admissions:  make(map[string]*admission),
	}
	for _, ep := range g.EntryPoints() {
		r.admissions[ep.ID] = newAdmission(ep)
	}
	if o.serverAddr != "" {
		r.server = newWebhookServer(r, o.serverAddr, o.serverCORS)
	}
	return r, nil
}

// EntryPointInfo describes one hosted entry point.
type EntryPointInfo struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Trigger       graph.TriggerKind    `json:"trigger"`
	EntryNode     string               `json:"entry_node"`
	Isolation     graph.IsolationLevel `json:"isolation"`
	MaxConcurrent int                  `json:"max_concurrent"`
	InFlight      int                  `json:"in_flight"`
}

// Info lists the runtime's entry points with their trigger kinds and
// current in-flight counts, sorted by entry point id.
func (r *Runtime) Info() []EntryPointInfo {
	eps := r.graph.EntryPoints()
	infos := make([]EntryPointInfo, 0, len(eps))
	for _, ep := range eps {
		adm := r.admissions[ep.ID]
		infos = append(infos, EntryPointInfo{
			ID:            ep.ID,
			Name:          ep.Name,
			Trigger:       ep.Trigger,
			EntryNode:     ep.EntryNode,
			Isolation:     ep.Isolation,
			MaxConcurrent: adm.limit,
			InFlight:      len(adm.slots),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Bus returns the runtime's event bus.
func (r *Runtime) Bus() *event.Bus { return r.bus }

// Sessions returns the runtime's session service.
func (r *Runtime) Sessions() session.Service { return r.sessions }

// Start launches timer schedulers, event subscriptions and the webhook
// server. It returns immediately; triggers fire until Stop.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return fmt.Errorf("runtime already started")
	}
	r.started = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	for _, ep := range r.graph.EntryPoints() {
		switch ep.Trigger {
		case graph.TriggerTimer:
			r.startTimer(ctx, ep)
		case graph.TriggerEvent:
			r.startEventSubscription(ctx, ep)
		}
	}
	if r.server != nil {
		if err := r.server.start(); err != nil {
			return err
		}
	}
	log.Infof("runtime started for graph %s", r.graph.ID())
	return nil
}

// Stop cancels triggers, waits for in-flight executions to drain and
// releases the pool. The session service and checkpoint manager are
// owned by the caller and stay open.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.started = false
	r.mu.Unlock()

	if r.server != nil {
		if err := r.server.stop(ctx); err != nil {
			log.Warnf("webhook server shutdown: %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.pool.Release()
	log.Infof("runtime stopped for graph %s", r.graph.ID())
	return nil
}
