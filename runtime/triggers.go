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
	"errors"
	"time"

	"trpc.group/trpc-go/stepflow/event"
	"trpc.group/trpc-go/stepflow/graph"
	"trpc.group/trpc-go/stepflow/log"
)

// startTimer ticks the entry point at its configured interval until ctx
// is done. Ticks that find the entry point saturated follow its overflow
// policy; the default for timers is to drop the tick.
func (r *Runtime) startTimer(ctx context.Context, ep *graph.EntryPointSpec) {
	interval := ep.TriggerConfig.Interval
	if interval <= 0 {
		log.Errorf("timer entry point %s has no interval, not starting", ep.ID)
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case tick := <-ticker.C:
				input := map[string]any{
					"triggered_at": tick.UTC().Format(time.RFC3339),
				}
				if _, err := r.Trigger(ctx, ep.ID, input); err != nil {
					if errors.Is(err, graph.ErrAdmissionRejected) {
						log.Debugf("timer %s: tick dropped, still running", ep.ID)
						continue
					}
					log.Errorf("timer %s: %v", ep.ID, err)
				}
			}
		}
	}()
}

// startEventSubscription feeds matching bus events into the entry point
// until ctx is done.
func (r *Runtime) startEventSubscription(ctx context.Context, ep *graph.EntryPointSpec) {
	ch, cancel := r.bus.Subscribe(event.TypeFilter(ep.TriggerConfig.EventTypes...))
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				input := map[string]any{
					"event_id":   e.ID,
					"event_type": e.Type,
				}
				for k, v := range e.Payload {
					input[k] = v
				}
				if _, err := r.Trigger(ctx, ep.ID, input); err != nil {
					log.Warnf("event entry point %s: dropping event %s: %v", ep.ID, e.ID, err)
				}
			}
		}
	}()
}
